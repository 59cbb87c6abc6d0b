// Copyright (c) 2026 Pixveil. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package protection

import (
	"context"
	"log/slog"

	"github.com/taibuivan/pixveil/internal/platform/constants"
)

// # Anomaly Detection

// Rapid-access reasons recorded in the suspicious entry's metadata.
const (
	anomalySamePhoto = "rapid_same_photo"
	anomalyAllPhotos = "rapid_all_photos"
)

// evaluate runs the rapid-access checks for one just-logged delivery access
// and records a suspicious entry when a threshold trips.
//
// Both checks use trailing SQL windows rather than in-memory counters so
// detection works identically across replicas and survives restarts.
func (accessLogger *AccessLogger) evaluate(context context.Context, photoID int64, client ClientInfo) {
	since := accessLogger.now().Add(-constants.RapidAccessWindow)

	samePhoto, err := accessLogger.store.CountPhotoAccesses(context, client.Fingerprint, photoID, since)
	if err != nil {
		accessLogger.logger.Error("anomaly_count_failed",
			slog.String("error", err.Error()),
			slog.String("check", anomalySamePhoto),
		)
		return
	}
	if samePhoto > constants.SamePhotoAccessThreshold {
		accessLogger.flagSuspicious(context, photoID, client, anomalySamePhoto, samePhoto)
		return
	}

	total, err := accessLogger.store.CountAllAccesses(context, client.Fingerprint, since)
	if err != nil {
		accessLogger.logger.Error("anomaly_count_failed",
			slog.String("error", err.Error()),
			slog.String("check", anomalyAllPhotos),
		)
		return
	}
	if total > constants.TotalAccessThreshold {
		accessLogger.flagSuspicious(context, photoID, client, anomalyAllPhotos, total)
	}
}

// flagSuspicious appends a suspicious entry carrying the tripped check and
// the observed count.
func (accessLogger *AccessLogger) flagSuspicious(context context.Context, photoID int64, client ClientInfo, reason string, observed int) {
	entry := &Entry{
		ID:                accessLogger.newID(),
		PhotoID:           photoID,
		ClientIP:          client.IP,
		UserAgent:         truncate(client.UserAgent, constants.UserAgentMaxLen),
		AccessType:        AccessSuspicious,
		ClientFingerprint: truncate(client.Fingerprint, constants.FingerprintMaxLen),
		AccessedAt:        accessLogger.now(),
		Metadata: map[string]any{
			"reason":   reason,
			"observed": observed,
		},
	}

	if err := accessLogger.store.Append(context, entry); err != nil {
		accessLogger.logger.Error("suspicious_entry_append_failed",
			slog.String("error", err.Error()),
			slog.String("fingerprint", client.Fingerprint),
		)
		return
	}

	accessLogger.logger.Warn("suspicious_access_flagged",
		slog.String("fingerprint", client.Fingerprint),
		slog.Int64("photo_id", photoID),
		slog.String("reason", reason),
		slog.Int("observed", observed),
	)
}

/*
IsBlockEligible reports whether a fingerprint has accumulated enough
suspicious entries in the trailing hour to warrant blocking.

Enforcement is advisory: the delivery path never consults this, the
rate-limiting layer and operator tooling do.

Parameters:
  - context: context.Context
  - fingerprint: string

Returns:
  - bool: True when the escalation threshold is met
  - error: Storage failures
*/
func (accessLogger *AccessLogger) IsBlockEligible(context context.Context, fingerprint string) (bool, error) {
	since := accessLogger.now().Add(-constants.EscalationWindow)

	suspicious, err := accessLogger.store.CountSuspicious(context, fingerprint, since)
	if err != nil {
		return false, err
	}

	return suspicious >= constants.EscalationThreshold, nil
}
