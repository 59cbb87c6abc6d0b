// Copyright (c) 2026 Pixveil. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package protection

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taibuivan/pixveil/internal/platform/database/schema"
)

// # PostgreSQL Log Store

// postgresLogStore implements [LogStore] on the security.accesslog table.
type postgresLogStore struct {
	pool *pgxpool.Pool
}

// NewLogStore constructs a PostgreSQL backed access-log store.
func NewLogStore(pool *pgxpool.Pool) LogStore {
	return &postgresLogStore{pool: pool}
}

/*
Append inserts one access-log row. Metadata is serialized to JSONB; a nil
map stores SQL NULL.

Parameters:
  - context: context.Context
  - entry: *Entry

Returns:
  - error: Insert failures
*/
func (store *postgresLogStore) Append(context context.Context, entry *Entry) error {

	query := fmt.Sprintf(`
		INSERT INTO %s (%s, %s, %s, %s, %s, %s, %s, %s, %s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		schema.SecurityAccessLog.Table,
		schema.SecurityAccessLog.ID, schema.SecurityAccessLog.PhotoID,
		schema.SecurityAccessLog.EventID, schema.SecurityAccessLog.ClientIP,
		schema.SecurityAccessLog.UserAgent, schema.SecurityAccessLog.AccessType,
		schema.SecurityAccessLog.ClientFingerprint, schema.SecurityAccessLog.AccessedAt,
		schema.SecurityAccessLog.Metadata,
	)

	var metadata []byte
	if entry.Metadata != nil {
		encoded, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("postgres: failed to encode access metadata: %w", err)
		}
		metadata = encoded
	}

	// eventid may be empty for entries logged before event resolution
	var eventID any
	if entry.EventID != "" {
		eventID = entry.EventID
	}

	_, err := store.pool.Exec(context, query,
		entry.ID,
		entry.PhotoID,
		eventID,
		entry.ClientIP,
		entry.UserAgent,
		string(entry.AccessType),
		entry.ClientFingerprint,
		entry.AccessedAt,
		metadata,
	)

	if err != nil {
		return fmt.Errorf("postgres: failed to append access log entry: %w", err)
	}

	return nil
}

// deliveryTypesPredicate matches view, download, and fragment accesses.
// Token bookkeeping entries never count toward rapid-access thresholds.
func deliveryTypesPredicate(column string) string {
	return fmt.Sprintf(`(%s IN ('view', 'download') OR %s LIKE 'fragment_%%')`, column, column)
}

/*
CountPhotoAccesses counts delivery accesses by one fingerprint against one
photo since the cutoff.

Parameters:
  - context: context.Context
  - fingerprint: string
  - photoID: int64
  - since: time.Time (Trailing window start)

Returns:
  - int: Matching row count
  - error: Query failures
*/
func (store *postgresLogStore) CountPhotoAccesses(context context.Context, fingerprint string, photoID int64, since time.Time) (int, error) {

	query := fmt.Sprintf(`
		SELECT COUNT(*)
		FROM %s
		WHERE %s = $1 AND %s = $2 AND %s >= $3 AND %s
	`,
		schema.SecurityAccessLog.Table,
		schema.SecurityAccessLog.ClientFingerprint,
		schema.SecurityAccessLog.PhotoID,
		schema.SecurityAccessLog.AccessedAt,
		deliveryTypesPredicate(schema.SecurityAccessLog.AccessType),
	)

	var count int
	err := store.pool.QueryRow(context, query, fingerprint, photoID, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to count photo accesses: %w", err)
	}

	return count, nil
}

/*
CountAllAccesses counts delivery accesses by one fingerprint across all
photos since the cutoff.

Parameters:
  - context: context.Context
  - fingerprint: string
  - since: time.Time

Returns:
  - int: Matching row count
  - error: Query failures
*/
func (store *postgresLogStore) CountAllAccesses(context context.Context, fingerprint string, since time.Time) (int, error) {

	query := fmt.Sprintf(`
		SELECT COUNT(*)
		FROM %s
		WHERE %s = $1 AND %s >= $2 AND %s
	`,
		schema.SecurityAccessLog.Table,
		schema.SecurityAccessLog.ClientFingerprint,
		schema.SecurityAccessLog.AccessedAt,
		deliveryTypesPredicate(schema.SecurityAccessLog.AccessType),
	)

	var count int
	err := store.pool.QueryRow(context, query, fingerprint, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to count all accesses: %w", err)
	}

	return count, nil
}

/*
CountSuspicious counts suspicious entries for one fingerprint since the
cutoff.

Parameters:
  - context: context.Context
  - fingerprint: string
  - since: time.Time

Returns:
  - int: Matching row count
  - error: Query failures
*/
func (store *postgresLogStore) CountSuspicious(context context.Context, fingerprint string, since time.Time) (int, error) {

	query := fmt.Sprintf(`
		SELECT COUNT(*)
		FROM %s
		WHERE %s = $1 AND %s = $2 AND %s >= $3
	`,
		schema.SecurityAccessLog.Table,
		schema.SecurityAccessLog.ClientFingerprint,
		schema.SecurityAccessLog.AccessType,
		schema.SecurityAccessLog.AccessedAt,
	)

	var count int
	err := store.pool.QueryRow(context, query, fingerprint, string(AccessSuspicious), since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to count suspicious entries: %w", err)
	}

	return count, nil
}

/*
HourlyStats aggregates entry counts per hour and access type since the
cutoff, newest hour first.

Parameters:
  - context: context.Context
  - since: time.Time

Returns:
  - []HourlyBucket: Aggregated rows
  - error: Query failures
*/
func (store *postgresLogStore) HourlyStats(context context.Context, since time.Time) ([]HourlyBucket, error) {

	query := fmt.Sprintf(`
		SELECT date_trunc('hour', %s) AS bucket, %s, COUNT(*)
		FROM %s
		WHERE %s >= $1
		GROUP BY bucket, %s
		ORDER BY bucket DESC, %s ASC
	`,
		schema.SecurityAccessLog.AccessedAt,
		schema.SecurityAccessLog.AccessType,
		schema.SecurityAccessLog.Table,
		schema.SecurityAccessLog.AccessedAt,
		schema.SecurityAccessLog.AccessType,
		schema.SecurityAccessLog.AccessType,
	)

	rows, err := store.pool.Query(context, query, since)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query hourly stats: %w", err)
	}
	defer rows.Close()

	buckets := make([]HourlyBucket, 0)
	for rows.Next() {
		var bucket HourlyBucket
		if err := rows.Scan(&bucket.Hour, &bucket.AccessType, &bucket.Count); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan hourly stats row: %w", err)
		}
		buckets = append(buckets, bucket)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: hourly stats iteration failed: %w", err)
	}

	return buckets, nil
}

/*
Summarize reports suspicious-entry and distinct-client-IP counts since the
cutoff.

Parameters:
  - context: context.Context
  - since: time.Time

Returns:
  - *WindowSummary: Aggregated counts
  - error: Query failures
*/
func (store *postgresLogStore) Summarize(context context.Context, since time.Time) (*WindowSummary, error) {

	query := fmt.Sprintf(`
		SELECT
			COUNT(*) FILTER (WHERE %s = $1),
			COUNT(DISTINCT %s)
		FROM %s
		WHERE %s >= $2
	`,
		schema.SecurityAccessLog.AccessType,
		schema.SecurityAccessLog.ClientIP,
		schema.SecurityAccessLog.Table,
		schema.SecurityAccessLog.AccessedAt,
	)

	var summary WindowSummary
	err := store.pool.QueryRow(context, query, string(AccessSuspicious), since).
		Scan(&summary.SuspiciousEvents, &summary.UniqueIPs)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to summarize access window: %w", err)
	}

	return &summary, nil
}
