// Copyright (c) 2026 Pixveil. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package constants provides centralized, immutable values for the entire platform.

It defines default timeouts, protection thresholds, and cross-cutting keys that
are shared between different layers of the system.

Categories:

  - Server Timing: Read/Write/Idle timeouts for the HTTP server.
  - Rate Limiting: Burst capacities and IP tracking TTLs.
  - Image Protection: Token lifetimes, quality caps, anomaly thresholds.

Using this package ensures Magic Strings and Magic Numbers are eliminated
from the business logic.
*/
package constants

import "time"

// # Metadata

const (
	AppName    = "pixveil-api"
	AppVersion = "0.1.0-dev"
)

// # Server Timing

const (
	// DefaultReadTimeout is the maximum duration for reading the entire request.
	DefaultReadTimeout = 5 * time.Second

	// DefaultWriteTimeout is the maximum duration before timing out writes of the response.
	DefaultWriteTimeout = 30 * time.Second

	// DefaultIdleTimeout is the maximum amount of time to wait for the next request.
	DefaultIdleTimeout = 120 * time.Second

	// DefaultReadHeaderTimeout is the amount of time allowed to read request headers.
	DefaultReadHeaderTimeout = 2 * time.Second

	// GlobalRequestTimeout is the deadline for the entire request lifecycle.
	GlobalRequestTimeout = 30 * time.Second

	// ShutdownTimeout is how long we wait for in-flight requests to complete during shutdown.
	ShutdownTimeout = 30 * time.Second
)

// # Rate Limiting

const (
	// DefaultRateLimitRPS is the requests per second allowed per IP.
	DefaultRateLimitRPS = 100.0

	// DefaultRateLimitBurst is the maximum burst allowed for the rate limiter.
	DefaultRateLimitBurst = 150

	// RateLimitCleanupInterval is how often old IP entries are removed from memory.
	RateLimitCleanupInterval = 1 * time.Minute

	// RateLimitClientTTL is how long a client must be idle before its entry is deleted.
	RateLimitClientTTL = 3 * time.Minute
)

// # Access Tokens (Image Protection)

const (
	// DefaultTokenTTL is the lifetime of an image access token.
	DefaultTokenTTL = 300 * time.Second

	// MaximumLevelTokenTTL is the shortened lifetime applied when the owning
	// event runs at the "maximum" protection level.
	MaximumLevelTokenTTL = 180 * time.Second

	// ViewTokenMaxUses allows a few uses per token so a gallery page can
	// retry a flaky connection without minting a fresh token.
	ViewTokenMaxUses = 3

	// DownloadTokenMaxUses is strictly single-use.
	DownloadTokenMaxUses = 1

	// TokenEvictionGrace is added to the token TTL before the store entry is
	// evicted, so "expired" verifications can still report a precise reason.
	TokenEvictionGrace = 60 * time.Second

	// ImageProtectionKeyPurpose labels the HKDF sub-key that signs access tokens.
	ImageProtectionKeyPurpose = "pixveil:image-protection"
)

// # Image Transformation

const (
	// DefaultImageQuality is the baseline JPEG quality for protected delivery.
	DefaultImageQuality = 85

	// EnhancedQualityCap caps quality at the "enhanced" protection level.
	EnhancedQualityCap = 70

	// MaximumQualityCap caps quality at the "maximum" protection level.
	MaximumQualityCap = 60

	// DefaultMaxWidth and DefaultMaxHeight bound delivered image dimensions.
	DefaultMaxWidth  = 1920
	DefaultMaxHeight = 1080

	// FragmentGridSize is the fixed tile grid dimension (3×3) for fragmented delivery.
	FragmentGridSize = 3

	// DownloadWatermarkQuality is the JPEG quality used when re-encoding a
	// watermarked download. Downloads stay near-original fidelity.
	DownloadWatermarkQuality = 90
)

// # Anomaly Detection

const (
	// RapidAccessWindow is the trailing window for rapid-access evaluation.
	RapidAccessWindow = 5 * time.Minute

	// SamePhotoAccessThreshold flags more than this many accesses to one photo
	// by one fingerprint inside the window.
	SamePhotoAccessThreshold = 5

	// TotalAccessThreshold flags more than this many accesses across all photos
	// by one fingerprint inside the window.
	TotalAccessThreshold = 30

	// EscalationWindow is the trailing window for block-eligibility evaluation.
	EscalationWindow = 1 * time.Hour

	// EscalationThreshold is the suspicious-entry count at which a fingerprint
	// becomes eligible for blocking by the external rate-limiting layer.
	EscalationThreshold = 3

	// AnomalyEvaluationTimeout bounds one background rapid-access evaluation.
	AnomalyEvaluationTimeout = 10 * time.Second

	// SecurityStatsWindow is the trailing window for the operator stats endpoint.
	SecurityStatsWindow = 24 * time.Hour

	// SecuritySummaryWindow is the trailing window for the last-hour summary
	// on the operator stats endpoint.
	SecuritySummaryWindow = time.Hour
)

// # Access Log Limits

const (
	// UserAgentMaxLen truncates stored user agents to keep rows bounded.
	UserAgentMaxLen = 500

	// FingerprintMaxLen bounds the stored fingerprint column.
	FingerprintMaxLen = 32
)

// # Authentication

const (
	// AuthIssuer is the standard 'iss' claim in operator JWTs.
	AuthIssuer = "pixveil.app"

	// HeaderSessionID carries the optional opaque gallery session identifier.
	HeaderSessionID = "X-Session-ID"

	// AnonymousSession is recorded when a client supplies no session identifier.
	AnonymousSession = "anonymous"
)

// # HTTP Headers

const (
	HeaderXRequestID       = "X-Request-ID"
	HeaderXRealIP          = "X-Real-IP"
	HeaderXForwardedFor    = "X-Forwarded-For"
	HeaderOrigin           = "Origin"
	HeaderProtectionLevel  = "X-Protection-Level"
	HeaderRemainingUses    = "X-Remaining-Uses"
	HeaderFragmentIndex    = "X-Fragment-Index"
	HeaderFragmentPosition = "X-Fragment-Position"
	HeaderDownloadProtect  = "X-Download-Protected"
)

// # JSON Field Identifiers

const (
	FieldError   = "error"
	FieldCode    = "code"
	FieldMessage = "message"
	FieldStatus  = "status"
)

// # Redis Prefixes (Cache Taxonomy)

const (
	RedisPrefixAccessToken = "protect:token:"
)
