// Copyright (c) 2026 Pixveil. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package protection

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/taibuivan/pixveil/internal/platform/constants"
)

// # Access Logging

// AccessType classifies one access-log entry.
type AccessType string

const (
	AccessView           AccessType = "view"
	AccessDownload       AccessType = "download"
	AccessTokenGenerated AccessType = "token_generated"
	AccessTokenInvalid   AccessType = "token_invalid"
	AccessSuspicious     AccessType = "suspicious"
)

// AccessFragment returns the access type for one fragment delivery, e.g.
// "fragment_4". Fragment types share the "fragment_" prefix so the anomaly
// queries can match them with a single pattern.
func AccessFragment(index int) AccessType {
	return AccessType(fmt.Sprintf("fragment_%d", index))
}

// Entry is one access-log row.
type Entry struct {
	ID                string
	PhotoID           int64
	EventID           string
	ClientIP          string
	UserAgent         string
	AccessType        AccessType
	ClientFingerprint string
	AccessedAt        time.Time
	Metadata          map[string]any
}

// ClientInfo carries the request-derived attributes recorded with each entry.
type ClientInfo struct {
	IP          string
	UserAgent   string
	Fingerprint string
}

// HourlyBucket is one aggregation row for the operator stats endpoint.
type HourlyBucket struct {
	Hour       time.Time `json:"hour"`
	AccessType string    `json:"accessType"`
	Count      int       `json:"count"`
}

// WindowSummary condenses one trailing window for the operator stats
// endpoint.
type WindowSummary struct {
	SuspiciousEvents int `json:"suspiciousEvents"`
	UniqueIPs        int `json:"uniqueIPs"`
}

// LogStore persists access-log entries and answers the sliding-window
// questions the anomaly detector asks.
type LogStore interface {

	/*
		Append inserts one entry. Entries are append-only.
	*/
	Append(context context.Context, entry *Entry) error

	/*
		CountPhotoAccesses counts delivery accesses (views, downloads,
		fragments) for one fingerprint against one photo since the cutoff.
	*/
	CountPhotoAccesses(context context.Context, fingerprint string, photoID int64, since time.Time) (int, error)

	/*
		CountAllAccesses counts delivery accesses for one fingerprint across
		all photos since the cutoff.
	*/
	CountAllAccesses(context context.Context, fingerprint string, since time.Time) (int, error)

	/*
		CountSuspicious counts suspicious entries recorded for one
		fingerprint since the cutoff.
	*/
	CountSuspicious(context context.Context, fingerprint string, since time.Time) (int, error)

	/*
		HourlyStats aggregates entry counts per hour and access type since
		the cutoff, for the operator stats endpoint.
	*/
	HourlyStats(context context.Context, since time.Time) ([]HourlyBucket, error)

	/*
		Summarize reports suspicious-entry and distinct-client-IP counts
		since the cutoff.
	*/
	Summarize(context context.Context, since time.Time) (*WindowSummary, error)
}

// AccessLogger records accesses and runs anomaly evaluation off the request
// path.
//
// # Failure Policy
//
// Logging must never break delivery: every failure is logged and swallowed.
// A gallery that stops serving photos because the audit table is down is a
// worse outcome than a gap in the audit trail.
type AccessLogger struct {
	store  LogStore
	logger *slog.Logger
	newID  func() string
	now    func() time.Time

	// pending tracks in-flight anomaly evaluations for clean shutdown.
	pending sync.WaitGroup
}

// NewAccessLogger creates an access logger.
func NewAccessLogger(store LogStore, logger *slog.Logger, newID func() string) *AccessLogger {
	return &AccessLogger{
		store:  store,
		logger: logger,
		newID:  newID,
		now:    time.Now,
	}
}

/*
Log records one access synchronously, then kicks off anomaly evaluation in
the background for delivery accesses.

Parameters:
  - context: context.Context (Request context; used for the insert only)
  - photoID: int64
  - eventID: string
  - accessType: AccessType
  - client: ClientInfo
  - metadata: map[string]any (Optional detail, e.g. rejection reason)
*/
func (accessLogger *AccessLogger) Log(context context.Context, photoID int64, eventID string, accessType AccessType, client ClientInfo, metadata map[string]any) {
	entry := &Entry{
		ID:                accessLogger.newID(),
		PhotoID:           photoID,
		EventID:           eventID,
		ClientIP:          client.IP,
		UserAgent:         truncate(client.UserAgent, constants.UserAgentMaxLen),
		AccessType:        accessType,
		ClientFingerprint: truncate(client.Fingerprint, constants.FingerprintMaxLen),
		AccessedAt:        accessLogger.now(),
		Metadata:          metadata,
	}

	if err := accessLogger.store.Append(context, entry); err != nil {
		accessLogger.logger.Error("access_log_append_failed",
			slog.String("error", err.Error()),
			slog.Int64("photo_id", photoID),
			slog.String("access_type", string(accessType)),
		)
		return
	}

	if isDeliveryAccess(accessType) {
		accessLogger.evaluateAsync(photoID, client)
	}
}

// Wait blocks until all in-flight anomaly evaluations finish. Called during
// server shutdown.
func (accessLogger *AccessLogger) Wait() {
	accessLogger.pending.Wait()
}

// evaluateAsync runs rapid-access detection on its own goroutine with a
// fresh context, so a canceled request cannot abort the evaluation and a
// slow evaluation cannot delay the response.
func (accessLogger *AccessLogger) evaluateAsync(photoID int64, client ClientInfo) {
	accessLogger.pending.Add(1)

	go func() {
		defer accessLogger.pending.Done()
		defer func() {
			if recovered := recover(); recovered != nil {
				accessLogger.logger.Error("anomaly_evaluation_panic",
					slog.Any("panic", recovered),
				)
			}
		}()

		detached, cancel := context.WithTimeout(context.Background(), constants.AnomalyEvaluationTimeout)
		defer cancel()

		accessLogger.evaluate(detached, photoID, client)
	}()
}

// truncate bounds free-form client strings before they reach storage. The
// cut backs up to a rune boundary: splitting a multibyte character would
// produce invalid UTF-8 and fail the insert, dropping the audit entry.
func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}

	cut := max
	for cut > 0 && !utf8.RuneStart(value[cut]) {
		cut--
	}
	return value[:cut]
}

// isDeliveryAccess reports whether an access type represents actual image
// bytes leaving the server.
func isDeliveryAccess(accessType AccessType) bool {
	if accessType == AccessView || accessType == AccessDownload {
		return true
	}
	return len(accessType) > 9 && accessType[:9] == "fragment_"
}
