// Copyright (c) 2026 Pixveil. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package protection_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/pixveil/internal/gallery"
	"github.com/taibuivan/pixveil/internal/platform/apperr"
	"github.com/taibuivan/pixveil/internal/protection"
)

// fakeRepository is an in-memory [gallery.Repository].
type fakeRepository struct {
	events    map[string]*gallery.Event
	photos    map[int64]*gallery.Photo
	downloads map[int64]int
}

func (repository *fakeRepository) FindEventBySlug(_ context.Context, slug string) (*gallery.Event, error) {
	event, found := repository.events[slug]
	if !found {
		return nil, apperr.NotFound("Event")
	}
	return event, nil
}

func (repository *fakeRepository) FindPhotoByID(_ context.Context, id int64) (*gallery.Photo, error) {
	photo, found := repository.photos[id]
	if !found {
		return nil, apperr.NotFound("Photo")
	}
	return photo, nil
}

func (repository *fakeRepository) IncrementDownloadCount(_ context.Context, photoID int64) error {
	repository.downloads[photoID]++
	return nil
}

// deliveryFixture bundles a wired DeliveryService with its collaborators.
type deliveryFixture struct {
	service    *protection.DeliveryService
	repository *fakeRepository
	logStore   *fakeLogStore
	accessLog  *protection.AccessLogger
	tokens     *protection.TokenService
}

// auditEntries waits for background evaluation and snapshots the log.
func (fixture *deliveryFixture) auditEntries() []*protection.Entry {
	fixture.accessLog.Wait()
	return fixture.logStore.entries
}

func newDeliveryFixture(t *testing.T, event *gallery.Event) *deliveryFixture {
	t.Helper()

	root := t.TempDir()
	photoDir := filepath.Join(root, "photos")
	require.NoError(t, os.MkdirAll(photoDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(photoDir, "p1.jpg"), makeJPEG(t, 600, 600), 0o644))

	repository := &fakeRepository{
		events: map[string]*gallery.Event{event.Slug: event},
		photos: map[int64]*gallery.Photo{
			1: {
				ID:          1,
				EventID:     event.ID,
				Filename:    "beach.jpg",
				StoragePath: "photos/p1.jpg",
				MimeType:    "image/jpeg",
			},
		},
		downloads: map[int64]int{},
	}

	tokenStore := protection.NewMemoryTokenStore()
	tokens, err := protection.NewTokenService(tokenStore, testServerSecret)
	require.NoError(t, err)

	logStore := &fakeLogStore{}
	accessLogger := newTestAccessLogger(logStore)

	service := protection.NewDeliveryService(
		repository,
		gallery.NewPathResolver(root),
		tokens,
		protection.NewTransformer(),
		accessLogger,
		quietLogger(),
	)

	return &deliveryFixture{
		service:    service,
		repository: repository,
		logStore:   logStore,
		accessLog:  accessLogger,
		tokens:     tokens,
	}
}

func standardEvent() *gallery.Event {
	return &gallery.Event{
		ID:              "event-1",
		Slug:            "smith-wedding",
		Title:           "Smith Wedding",
		ProtectionLevel: "standard",
		AllowDownloads:  true,
	}
}

func maximumEvent() *gallery.Event {
	event := standardEvent()
	event.ProtectionLevel = "maximum"
	event.FragmentImage = true
	return event
}

/*
TestDeliveryService_IssueToken verifies usage budgets and lifetimes per
request kind and protection level.
*/
func TestDeliveryService_IssueToken(t *testing.T) {
	tests := []struct {
		name          string
		event         *gallery.Event
		download      bool
		wantMaxUses   int
		wantLifetime  time.Duration
		wantLevelName protection.Level
	}{
		{"view_token", standardEvent(), false, 3, 5 * time.Minute, protection.LevelStandard},
		{"download_token_single_use", standardEvent(), true, 1, 5 * time.Minute, protection.LevelStandard},
		{"maximum_level_short_lifetime", maximumEvent(), false, 3, 3 * time.Minute, protection.LevelMaximum},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fixture := newDeliveryFixture(t, tt.event)

			issued, err := fixture.service.IssueToken(context.Background(), protection.IssueTokenInput{
				Slug:        tt.event.Slug,
				PhotoID:     1,
				SessionID:   "session-1",
				Download:    tt.download,
				Client:      testClient,
				Fingerprint: testClient.Fingerprint,
			})
			require.NoError(t, err)

			assert.NotEmpty(t, issued.Token)
			assert.Equal(t, tt.wantMaxUses, issued.MaxUses)
			assert.Equal(t, tt.wantLevelName, issued.ProtectionLevel)
			assert.Equal(t, int(tt.wantLifetime/time.Second), issued.ExpiresIn)
			assert.WithinDuration(t, time.Now().Add(tt.wantLifetime), issued.ExpiresAt, 5*time.Second)

			// Issuance is audited.
			entries := fixture.auditEntries()
			require.Len(t, entries, 1)
			assert.Equal(t, protection.AccessTokenGenerated, entries[0].AccessType)
		})
	}
}

/*
TestDeliveryService_IssueToken_WrongPairing verifies a photo from another
event cannot be unlocked through this event's slug.
*/
func TestDeliveryService_IssueToken_WrongPairing(t *testing.T) {
	fixture := newDeliveryFixture(t, standardEvent())
	fixture.repository.photos[1].EventID = "some-other-event"

	_, err := fixture.service.IssueToken(context.Background(), protection.IssueTokenInput{
		Slug:        "smith-wedding",
		PhotoID:     1,
		SessionID:   "s",
		Client:      testClient,
		Fingerprint: testClient.Fingerprint,
	})

	appError := apperr.As(err)
	require.NotNil(t, appError)
	assert.Equal(t, "NOT_FOUND", appError.Code)
}

func issueViewToken(t *testing.T, fixture *deliveryFixture, slug string) string {
	t.Helper()

	issued, err := fixture.service.IssueToken(context.Background(), protection.IssueTokenInput{
		Slug:        slug,
		PhotoID:     1,
		SessionID:   "session-1",
		Client:      testClient,
		Fingerprint: testClient.Fingerprint,
	})
	require.NoError(t, err)
	return issued.Token
}

/*
TestDeliveryService_Deliver_Whole verifies the plain delivery path: token
consumed, transformed JPEG returned, access audited.
*/
func TestDeliveryService_Deliver_Whole(t *testing.T) {
	fixture := newDeliveryFixture(t, standardEvent())
	token := issueViewToken(t, fixture, "smith-wedding")

	delivery, err := fixture.service.Deliver(context.Background(), protection.DeliverInput{
		Slug:        "smith-wedding",
		PhotoID:     1,
		Token:       token,
		Fingerprint: testClient.Fingerprint,
		Client:      testClient,
	})
	require.NoError(t, err)

	assert.Equal(t, protection.DeliverWhole, delivery.Kind)
	assert.Equal(t, "image/jpeg", delivery.MimeType)
	assert.Equal(t, 2, delivery.Remaining)
	assert.NotEmpty(t, delivery.Body)

	width, height := decodeDims(t, delivery.Body)
	assert.Equal(t, 600, width)
	assert.Equal(t, 600, height)

	// token_generated + view
	entries := fixture.auditEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, protection.AccessView, entries[1].AccessType)
}

/*
TestDeliveryService_Deliver_RejectedToken verifies invalid tokens are logged
and surface as 401 TOKEN_REJECTED.
*/
func TestDeliveryService_Deliver_RejectedToken(t *testing.T) {
	fixture := newDeliveryFixture(t, standardEvent())

	_, err := fixture.service.Deliver(context.Background(), protection.DeliverInput{
		Slug:        "smith-wedding",
		PhotoID:     1,
		Token:       "forged-token",
		Fingerprint: testClient.Fingerprint,
		Client:      testClient,
	})

	appError := apperr.As(err)
	require.NotNil(t, appError)
	assert.Equal(t, "TOKEN_REJECTED", appError.Code)
	assert.Equal(t, protection.ReasonTampered, appError.Message)

	entries := fixture.auditEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, protection.AccessTokenInvalid, entries[0].AccessType)
}

/*
TestDeliveryService_Deliver_TokenPhotoMismatch verifies a token minted for
one photo is rejected when presented for another.
*/
func TestDeliveryService_Deliver_TokenPhotoMismatch(t *testing.T) {
	fixture := newDeliveryFixture(t, standardEvent())
	fixture.repository.photos[2] = &gallery.Photo{
		ID: 2, EventID: "event-1", Filename: "other.jpg", StoragePath: "photos/p1.jpg", MimeType: "image/jpeg",
	}
	token := issueViewToken(t, fixture, "smith-wedding")

	_, err := fixture.service.Deliver(context.Background(), protection.DeliverInput{
		Slug:        "smith-wedding",
		PhotoID:     2,
		Token:       token,
		Fingerprint: testClient.Fingerprint,
		Client:      testClient,
	})

	appError := apperr.As(err)
	require.NotNil(t, appError)
	assert.Equal(t, "TOKEN_REJECTED", appError.Code)
}

/*
TestDeliveryService_Deliver_Fragmented exercises the tile sub-protocol: the
plan request, a tile request, and an out-of-range index.
*/
func TestDeliveryService_Deliver_Fragmented(t *testing.T) {
	fixture := newDeliveryFixture(t, maximumEvent())

	// Plan request.
	token := issueViewToken(t, fixture, "smith-wedding")
	delivery, err := fixture.service.Deliver(context.Background(), protection.DeliverInput{
		Slug:        "smith-wedding",
		PhotoID:     1,
		Token:       token,
		Fingerprint: testClient.Fingerprint,
		Client:      testClient,
	})
	require.NoError(t, err)

	require.Equal(t, protection.DeliverFragmentPlan, delivery.Kind)
	require.NotNil(t, delivery.Plan)
	assert.True(t, delivery.Plan.Fragmented)
	assert.Equal(t, 9, delivery.Plan.FragmentCount)
	assert.Equal(t, 3, delivery.Plan.GridSize)
	assert.Len(t, delivery.Plan.Positions, 9)

	// The plan response is audited like any served view.
	entries := fixture.auditEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, protection.AccessView, entries[1].AccessType)
	assert.Equal(t, true, entries[1].Metadata["plan"])

	// Tile request.
	four := 4
	delivery, err = fixture.service.Deliver(context.Background(), protection.DeliverInput{
		Slug:        "smith-wedding",
		PhotoID:     1,
		Token:       token,
		Fingerprint: testClient.Fingerprint,
		Client:      testClient,
		Fragment:    &four,
	})
	require.NoError(t, err)

	require.Equal(t, protection.DeliverFragment, delivery.Kind)
	require.NotNil(t, delivery.Fragment)
	assert.Equal(t, 4, delivery.Fragment.Index)

	// 600×600 source: center tile starts one 200px tile in from each edge.
	assert.Equal(t, 200, delivery.Fragment.Position.Left)
	assert.Equal(t, 200, delivery.Fragment.Position.Top)

	width, height := decodeDims(t, delivery.Body)
	assert.Equal(t, 200, width)
	assert.Equal(t, 200, height)
}

/*
TestDeliveryService_Deliver_BadFragmentIndex verifies out-of-range tile
indices are rejected without consuming the image.
*/
func TestDeliveryService_Deliver_BadFragmentIndex(t *testing.T) {
	fixture := newDeliveryFixture(t, maximumEvent())
	token := issueViewToken(t, fixture, "smith-wedding")

	ninetyNine := 99
	_, err := fixture.service.Deliver(context.Background(), protection.DeliverInput{
		Slug:        "smith-wedding",
		PhotoID:     1,
		Token:       token,
		Fingerprint: testClient.Fingerprint,
		Client:      testClient,
		Fragment:    &ninetyNine,
	})

	appError := apperr.As(err)
	require.NotNil(t, appError)
	assert.Equal(t, "VALIDATION_ERROR", appError.Code)
}

/*
TestDeliveryService_Download verifies the download path: watermark, counter,
and audit entry.
*/
func TestDeliveryService_Download(t *testing.T) {
	event := standardEvent()
	event.WatermarkText = "© Smith Wedding"
	fixture := newDeliveryFixture(t, event)

	issued, err := fixture.service.IssueToken(context.Background(), protection.IssueTokenInput{
		Slug:        "smith-wedding",
		PhotoID:     1,
		SessionID:   "s",
		Download:    true,
		Client:      testClient,
		Fingerprint: testClient.Fingerprint,
	})
	require.NoError(t, err)

	download, err := fixture.service.DeliverDownload(context.Background(), protection.DownloadInput{
		Slug:        "smith-wedding",
		PhotoID:     1,
		Token:       issued.Token,
		Fingerprint: testClient.Fingerprint,
		Client:      testClient,
	})
	require.NoError(t, err)

	assert.Equal(t, "beach.jpg", download.Filename)
	assert.Equal(t, "image/jpeg", download.MimeType)
	assert.NotEmpty(t, download.Body)
	assert.Equal(t, 1, fixture.repository.downloads[1])

	// The single-use token is spent.
	_, err = fixture.service.DeliverDownload(context.Background(), protection.DownloadInput{
		Slug:        "smith-wedding",
		PhotoID:     1,
		Token:       issued.Token,
		Fingerprint: testClient.Fingerprint,
		Client:      testClient,
	})
	appError := apperr.As(err)
	require.NotNil(t, appError)
	assert.Equal(t, "TOKEN_REJECTED", appError.Code)
}

/*
TestDeliveryService_Download_Disabled verifies events with downloads off
return 403 even for a valid token.
*/
func TestDeliveryService_Download_Disabled(t *testing.T) {
	event := standardEvent()
	event.AllowDownloads = false
	fixture := newDeliveryFixture(t, event)
	token := issueViewToken(t, fixture, "smith-wedding")

	_, err := fixture.service.DeliverDownload(context.Background(), protection.DownloadInput{
		Slug:        "smith-wedding",
		PhotoID:     1,
		Token:       token,
		Fingerprint: testClient.Fingerprint,
		Client:      testClient,
	})

	appError := apperr.As(err)
	require.NotNil(t, appError)
	assert.Equal(t, "FORBIDDEN", appError.Code)
	assert.Zero(t, fixture.repository.downloads[1])
}

/*
TestDeliveryService_Stats verifies the operator snapshot reflects live
token counts.
*/
func TestDeliveryService_Stats(t *testing.T) {
	fixture := newDeliveryFixture(t, standardEvent())
	issueViewToken(t, fixture, "smith-wedding")
	issueViewToken(t, fixture, "smith-wedding")

	stats, err := fixture.service.Stats(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.ActiveTokens)
	assert.Equal(t, 24, stats.WindowHours)

	// Two issuance entries from the same client in the last hour.
	assert.Equal(t, 0, stats.LastHour.SuspiciousEvents)
	assert.Equal(t, 1, stats.LastHour.UniqueIPs)
}
