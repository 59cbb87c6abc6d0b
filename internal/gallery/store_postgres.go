// Copyright (c) 2026 Pixveil. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package gallery

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taibuivan/pixveil/internal/platform/apperr"
	"github.com/taibuivan/pixveil/internal/platform/database/schema"
)

// # PostgreSQL Repository

// postgresRepository implements the [Repository] interface using pgx.
type postgresRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed gallery store.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

/*
FindEventBySlug resolves a public slug to its event row.

Parameters:
  - context: context.Context
  - slug: string

Returns:
  - *Event: Event with protection configuration columns
  - error: apperr.NotFound on absent rows
*/
func (repository *postgresRepository) FindEventBySlug(context context.Context, slug string) (*Event, error) {

	// Single-row lookup on the unique slug index
	query := fmt.Sprintf(`
		SELECT
			%s, %s, %s, %s, %s,
			%s, %s, %s, %s, %s, %s,
			%s, %s
		FROM %s
		WHERE %s = $1
	`,
		schema.GalleryEvent.ID, schema.GalleryEvent.Slug, schema.GalleryEvent.Title,
		schema.GalleryEvent.ProtectionLevel, schema.GalleryEvent.ImageQuality,
		schema.GalleryEvent.MaxWidth, schema.GalleryEvent.MaxHeight,
		schema.GalleryEvent.AddFingerprint, schema.GalleryEvent.FragmentImage,
		schema.GalleryEvent.AllowDownloads, schema.GalleryEvent.WatermarkText,
		schema.GalleryEvent.CreatedAt, schema.GalleryEvent.UpdatedAt,
		schema.GalleryEvent.Table,
		schema.GalleryEvent.Slug,
	)

	var event Event

	err := repository.pool.QueryRow(context, query, slug).Scan(
		&event.ID,
		&event.Slug,
		&event.Title,
		&event.ProtectionLevel,
		&event.ImageQuality,
		&event.MaxWidth,
		&event.MaxHeight,
		&event.AddFingerprint,
		&event.FragmentImage,
		&event.AllowDownloads,
		&event.WatermarkText,
		&event.CreatedAt,
		&event.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Event")
		}
		return nil, fmt.Errorf("postgres: failed to find event by slug: %w", err)
	}

	return &event, nil
}

/*
FindPhotoByID returns the photo row for a numeric photo ID.

Parameters:
  - context: context.Context
  - id: int64

Returns:
  - *Photo: Hydrated photo record
  - error: apperr.NotFound on absent rows
*/
func (repository *postgresRepository) FindPhotoByID(context context.Context, id int64) (*Photo, error) {

	query := fmt.Sprintf(`
		SELECT %s, %s, %s, %s, %s, %s, %s, %s
		FROM %s
		WHERE %s = $1
	`,
		schema.GalleryPhoto.ID, schema.GalleryPhoto.EventID, schema.GalleryPhoto.Filename,
		schema.GalleryPhoto.StoragePath, schema.GalleryPhoto.MimeType,
		schema.GalleryPhoto.SizeBytes, schema.GalleryPhoto.DownloadCount,
		schema.GalleryPhoto.CreatedAt,
		schema.GalleryPhoto.Table,
		schema.GalleryPhoto.ID,
	)

	var photo Photo

	err := repository.pool.QueryRow(context, query, id).Scan(
		&photo.ID,
		&photo.EventID,
		&photo.Filename,
		&photo.StoragePath,
		&photo.MimeType,
		&photo.SizeBytes,
		&photo.DownloadCount,
		&photo.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Photo")
		}
		return nil, fmt.Errorf("postgres: failed to find photo by id: %w", err)
	}

	return &photo, nil
}

/*
IncrementDownloadCount bumps the persistent download counter.

Parameters:
  - context: context.Context
  - photoID: int64

Returns:
  - error: apperr.NotFound if the photo row is missing
*/
func (repository *postgresRepository) IncrementDownloadCount(context context.Context, photoID int64) error {

	query := fmt.Sprintf(`UPDATE %s SET %s = %s + 1 WHERE %s = $1`,
		schema.GalleryPhoto.Table,
		schema.GalleryPhoto.DownloadCount, schema.GalleryPhoto.DownloadCount,
		schema.GalleryPhoto.ID,
	)

	result, err := repository.pool.Exec(context, query, photoID)
	if err != nil {
		return fmt.Errorf("postgres: failed to increment download count: %w", err)
	}

	// Affected row verification
	if result.RowsAffected() == 0 {
		return apperr.NotFound("Photo")
	}

	return nil
}
