// Copyright (c) 2026 Pixveil. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package protection

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/taibuivan/pixveil/internal/gallery"
	"github.com/taibuivan/pixveil/internal/platform/apperr"
	"github.com/taibuivan/pixveil/internal/platform/constants"
	slugutil "github.com/taibuivan/pixveil/pkg/slug"
)

// # Delivery Orchestration

// DeliveryService wires the full pipeline: token issuance and verification,
// photo loading, transformation, audit logging, and operator statistics.
type DeliveryService struct {
	repository  gallery.Repository
	paths       *gallery.PathResolver
	tokens      *TokenService
	transformer *Transformer
	accessLog   *AccessLogger
	logger      *slog.Logger
}

// NewDeliveryService creates the delivery orchestrator.
func NewDeliveryService(
	repository gallery.Repository,
	paths *gallery.PathResolver,
	tokens *TokenService,
	transformer *Transformer,
	accessLog *AccessLogger,
	logger *slog.Logger,
) *DeliveryService {
	return &DeliveryService{
		repository:  repository,
		paths:       paths,
		tokens:      tokens,
		transformer: transformer,
		accessLog:   accessLog,
		logger:      logger,
	}
}

// IssueTokenInput carries the parameters for minting one access token.
type IssueTokenInput struct {
	Slug        string
	PhotoID     int64
	SessionID   string
	Download    bool
	Client      ClientInfo
	Fingerprint string
}

// IssuedToken is returned to the gallery frontend after minting.
type IssuedToken struct {
	Token           string    `json:"token"`
	ExpiresIn       int       `json:"expiresIn"`
	ExpiresAt       time.Time `json:"expiresAt"`
	MaxUses         int       `json:"maxUses"`
	ProtectionLevel Level     `json:"protectionLevel"`
}

/*
IssueToken mints an access token for one photo of one event.

Download tokens are single-use; view tokens allow a few uses so the gallery
page can survive a flaky connection. Events at the maximum protection level
get shortened token lifetimes.

Parameters:
  - context: context.Context
  - input: IssueTokenInput

Returns:
  - *IssuedToken: Wire token plus issuance metadata
  - error: apperr.NotFound when the event/photo pairing is invalid
*/
func (service *DeliveryService) IssueToken(context context.Context, input IssueTokenInput) (*IssuedToken, error) {
	event, photo, err := service.loadPair(context, input.Slug, input.PhotoID)
	if err != nil {
		return nil, err
	}

	settings := SettingsForEvent(event)

	maxUses := constants.ViewTokenMaxUses
	if input.Download {
		maxUses = constants.DownloadTokenMaxUses
	}
	expiresIn := constants.DefaultTokenTTL
	if settings.Level == LevelMaximum {
		expiresIn = constants.MaximumLevelTokenTTL
	}

	generated, err := service.tokens.Generate(context, GenerateInput{
		PhotoID:           photo.ID,
		SessionID:         input.SessionID,
		ClientFingerprint: input.Fingerprint,
		Level:             settings.Level,
		ExpiresIn:         expiresIn,
		MaxUses:           maxUses,
	})
	if err != nil {
		return nil, apperr.Internal(err)
	}

	service.accessLog.Log(context, photo.ID, event.ID, AccessTokenGenerated, input.Client, map[string]any{
		"download": input.Download,
		"max_uses": maxUses,
	})

	return &IssuedToken{
		Token:           generated.Token,
		ExpiresIn:       int(expiresIn / time.Second),
		ExpiresAt:       generated.ExpiresAt,
		MaxUses:         generated.MaxUses,
		ProtectionLevel: settings.Level,
	}, nil
}

// DeliverInput carries the parameters for one secure view request.
type DeliverInput struct {
	Slug        string
	PhotoID     int64
	Token       string
	Fingerprint string
	Client      ClientInfo

	// Fragment selects one tile; nil requests fragment metadata (on
	// fragmenting events) or the whole image (otherwise).
	Fragment *int
}

// DeliveryKind discriminates the three delivery response shapes.
type DeliveryKind int

const (
	// DeliverWhole is a complete transformed image body.
	DeliverWhole DeliveryKind = iota

	// DeliverFragment is a single tile body.
	DeliverFragment

	// DeliverFragmentPlan is the JSON tile map for client-side reassembly.
	DeliverFragmentPlan
)

// FragmentPlan describes the tile layout a fragmenting client must fetch.
type FragmentPlan struct {
	Fragmented    bool               `json:"fragmented"`
	FragmentCount int                `json:"fragmentCount"`
	GridSize      int                `json:"gridSize"`
	Width         int                `json:"width"`
	Height        int                `json:"height"`
	Positions     []FragmentPosition `json:"positions"`
}

// Delivery is the outcome of one secure view request.
type Delivery struct {
	Kind      DeliveryKind
	Body      []byte
	MimeType  string
	Level     Level
	Remaining int

	// Fragment is set when Kind is DeliverFragment.
	Fragment *Fragment

	// Plan is set when Kind is DeliverFragmentPlan.
	Plan *FragmentPlan
}

/*
Deliver verifies an access token and serves the protected image.

On fragmenting events the request without a fragment index returns the tile
plan; with an index it returns that tile. Everything else returns the whole
transformed image.

Every outcome is recorded in the access log, including rejections.

Parameters:
  - context: context.Context
  - input: DeliverInput

Returns:
  - *Delivery: Body or tile plan
  - error: apperr.TokenRejected on verification failure, apperr.NotFound
    on bad event/photo pairing, apperr.ValidationError on a bad fragment
    index
*/
func (service *DeliveryService) Deliver(context context.Context, input DeliverInput) (*Delivery, error) {
	record, err := service.authorize(context, input.Token, input.PhotoID, input.Fingerprint, input.Client)
	if err != nil {
		return nil, err
	}
	remaining := record.RemainingUses()

	event, photo, err := service.loadPair(context, input.Slug, input.PhotoID)
	if err != nil {
		return nil, err
	}

	original, err := service.readOriginal(event, photo)
	if err != nil {
		return nil, err
	}

	settings := SettingsForEvent(event)
	result := service.transformer.Transform(original, photo.MimeType, settings)
	if result.Outcome == OutcomeFallback {
		service.logger.Warn("transform_fallback",
			slog.Int64("photo_id", photo.ID),
			slog.String("mime_type", photo.MimeType),
		)
	}

	if settings.FragmentImage && result.Outcome == OutcomeTransformed {
		delivery, err := service.deliverFragmented(context, event, photo, result, settings, input, remaining)
		if err != nil || delivery != nil {
			return delivery, err
		}
		// Fragmentation failed; fall through to whole delivery.
	}

	service.accessLog.Log(context, photo.ID, event.ID, AccessView, input.Client, map[string]any{
		"outcome": string(result.Outcome),
		"marker":  result.Marker,
	})

	return &Delivery{
		Kind:      DeliverWhole,
		Body:      result.Bytes,
		MimeType:  result.MimeType,
		Level:     settings.Level,
		Remaining: remaining,
	}, nil
}

// deliverFragmented handles the tile sub-protocol. A nil, nil return means
// fragmentation could not run and the caller should serve the whole image.
func (service *DeliveryService) deliverFragmented(
	context context.Context,
	event *gallery.Event,
	photo *gallery.Photo,
	result *Result,
	settings Settings,
	input DeliverInput,
	remaining int,
) (*Delivery, error) {
	fragmented, err := service.transformer.Fragmentize(result.Bytes, settings.EffectiveQuality())
	if err != nil {
		service.logger.Warn("fragmentation_failed",
			slog.Int64("photo_id", photo.ID),
			slog.String("error", err.Error()),
		)
		return nil, nil
	}

	if input.Fragment == nil {
		positions := make([]FragmentPosition, len(fragmented.Fragments))
		for i, fragment := range fragmented.Fragments {
			positions[i] = fragment.Position
		}

		service.accessLog.Log(context, photo.ID, event.ID, AccessView, input.Client, map[string]any{
			"plan":   true,
			"marker": result.Marker,
		})

		// The plan itself consumes the use that was charged at verification:
		// tile fetches ride the remaining uses.
		return &Delivery{
			Kind:      DeliverFragmentPlan,
			Level:     settings.Level,
			Remaining: remaining,
			Plan: &FragmentPlan{
				Fragmented:    true,
				FragmentCount: len(fragmented.Fragments),
				GridSize:      constants.FragmentGridSize,
				Width:         fragmented.Width,
				Height:        fragmented.Height,
				Positions:     positions,
			},
		}, nil
	}

	index := *input.Fragment
	if index < 0 || index >= len(fragmented.Fragments) {
		return nil, apperr.ValidationError(fmt.Sprintf("Fragment index must be between 0 and %d", len(fragmented.Fragments)-1))
	}

	fragment := fragmented.Fragments[index]
	service.accessLog.Log(context, photo.ID, event.ID, AccessFragment(index), input.Client, map[string]any{
		"marker": result.Marker,
	})

	return &Delivery{
		Kind:      DeliverFragment,
		Body:      fragment.Bytes,
		MimeType:  "image/jpeg",
		Level:     settings.Level,
		Remaining: remaining,
		Fragment:  &fragment,
	}, nil
}

// DownloadInput carries the parameters for one secure download request.
type DownloadInput struct {
	Slug        string
	PhotoID     int64
	Token       string
	Fingerprint string
	Client      ClientInfo
}

// Download is the outcome of one secure download request.
type Download struct {
	Body     []byte
	MimeType string
	Filename string
}

/*
DeliverDownload verifies a token and serves the original-fidelity file.

Downloads bypass the transformation pipeline but are gated by the event's
AllowDownloads flag, stamped with the configured watermark, and counted on
the photo row.

Parameters:
  - context: context.Context
  - input: DownloadInput

Returns:
  - *Download: Attachment body
  - error: apperr.Forbidden when the event disables downloads
*/
func (service *DeliveryService) DeliverDownload(context context.Context, input DownloadInput) (*Download, error) {
	_, err := service.authorize(context, input.Token, input.PhotoID, input.Fingerprint, input.Client)
	if err != nil {
		return nil, err
	}

	event, photo, err := service.loadPair(context, input.Slug, input.PhotoID)
	if err != nil {
		return nil, err
	}

	if !event.AllowDownloads {
		service.accessLog.Log(context, photo.ID, event.ID, AccessTokenInvalid, input.Client, map[string]any{
			"reason": "downloads_disabled",
		})
		return nil, apperr.Forbidden("Downloads are disabled for this event")
	}

	body, err := service.readOriginal(event, photo)
	if err != nil {
		return nil, err
	}

	mimeType := photo.MimeType
	if watermarked, stamped := ApplyWatermark(body, event.WatermarkText, constants.DownloadWatermarkQuality); stamped {
		body = watermarked
		mimeType = "image/jpeg"
	}

	if err := service.repository.IncrementDownloadCount(context, photo.ID); err != nil {
		// The client already earned the bytes; a failed counter update is
		// log-only.
		service.logger.Error("download_count_failed",
			slog.Int64("photo_id", photo.ID),
			slog.String("error", err.Error()),
		)
	}

	service.accessLog.Log(context, photo.ID, event.ID, AccessDownload, input.Client, nil)

	return &Download{
		Body:     body,
		MimeType: mimeType,
		Filename: photo.Filename,
	}, nil
}

// SecurityStats is the operator-facing snapshot of the protection pipeline.
type SecurityStats struct {
	ActiveTokens int            `json:"activeTokens"`
	WindowHours  int            `json:"windowHours"`
	Hourly       []HourlyBucket `json:"hourly"`
	LastHour     WindowSummary  `json:"lastHour"`
}

/*
Stats assembles the operator security snapshot: live token count, hourly
access aggregates over the trailing 24 hours, and a last-hour summary of
suspicious events and distinct client IPs.

Parameters:
  - context: context.Context

Returns:
  - *SecurityStats: Snapshot
  - error: Storage failures
*/
func (service *DeliveryService) Stats(context context.Context) (*SecurityStats, error) {
	active, err := service.tokens.ActiveTokens(context)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	now := time.Now()
	hourly, err := service.accessLog.store.HourlyStats(context, now.Add(-constants.SecurityStatsWindow))
	if err != nil {
		return nil, apperr.Internal(err)
	}

	summary, err := service.accessLog.store.Summarize(context, now.Add(-constants.SecuritySummaryWindow))
	if err != nil {
		return nil, apperr.Internal(err)
	}

	return &SecurityStats{
		ActiveTokens: active,
		WindowHours:  int(constants.SecurityStatsWindow / time.Hour),
		Hourly:       hourly,
		LastHour:     *summary,
	}, nil
}

// authorize verifies the token, consumes a use, and records rejections.
func (service *DeliveryService) authorize(context context.Context, token string, photoID int64, fingerprint string, client ClientInfo) (*TokenRecord, error) {
	verification, err := service.tokens.Verify(context, token, fingerprint)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	if !verification.Valid {
		service.accessLog.Log(context, photoID, "", AccessTokenInvalid, client, map[string]any{
			"reason": verification.Reason,
		})
		return nil, apperr.TokenRejected(verification.Reason)
	}

	// The token must have been minted for the photo it is presented against.
	if verification.Record.PhotoID != photoID {
		service.accessLog.Log(context, photoID, "", AccessTokenInvalid, client, map[string]any{
			"reason":         "photo_mismatch",
			"token_photo_id": verification.Record.PhotoID,
		})
		return nil, apperr.TokenRejected(ReasonNotFound)
	}

	return verification.Record, nil
}

// loadPair resolves the slug/photo pair and verifies ownership.
//
// Slugs arrive straight from the URL path, so they are normalized the same
// way they were at creation time before hitting the unique index.
func (service *DeliveryService) loadPair(context context.Context, slug string, photoID int64) (*gallery.Event, *gallery.Photo, error) {
	event, err := service.repository.FindEventBySlug(context, slugutil.From(slug))
	if err != nil {
		return nil, nil, err
	}

	photo, err := service.repository.FindPhotoByID(context, photoID)
	if err != nil {
		return nil, nil, err
	}

	if photo.EventID != event.ID {
		return nil, nil, apperr.NotFound("Photo")
	}

	return event, photo, nil
}

// readOriginal loads the photo's bytes from the storage root.
//
// An unresolvable path is a not-found to the client; the slug and underlying
// error go to the operator log instead of the response body.
func (service *DeliveryService) readOriginal(event *gallery.Event, photo *gallery.Photo) ([]byte, error) {
	path, err := service.paths.Resolve(event, photo)
	if err != nil {
		service.logger.Error("photo_path_unresolvable",
			slog.String("slug", event.Slug),
			slog.Int64("photo_id", photo.ID),
			slog.String("error", err.Error()),
		)
		return nil, apperr.NotFound("Photo")
	}

	body, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("read photo file: %w", err))
	}

	return body, nil
}
