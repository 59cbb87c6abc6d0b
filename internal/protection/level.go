// Copyright (c) 2026 Pixveil. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package protection implements the secure image access pipeline.

It gates every protected image byte behind short-lived, usage-bounded access
tokens, transforms images on the fly (downscaling, recompression, forensic
markers, tile fragmentation), and records every access for anomaly detection.

Architecture (leaf to root):

  - TokenService: mints and verifies HMAC-signed access tokens.
  - ClientFingerprint: coarse request-derived client identifier.
  - Transformer: produces the bytes actually sent to the client.
  - AccessLogger: append-only audit trail + rapid-access flagging.
  - DeliveryService: orchestrates verify → load → transform → log → serve.

The pipeline raises the cost of casual scraping and hotlinking. It is not a
DRM system and does not try to defeat screen capture.
*/
package protection

import (
	"github.com/taibuivan/pixveil/internal/gallery"
	"github.com/taibuivan/pixveil/internal/platform/constants"
)

// # Protection Levels

// Level is the coarse protection tier configured per event.
//
// It drives quality reduction, fingerprint-check strictness, and
// fragmentation eligibility.
type Level string

const (
	// LevelStandard applies downscaling and recompression only.
	LevelStandard Level = "standard"

	// LevelEnhanced additionally binds tokens to the client fingerprint
	// and caps delivery quality harder.
	LevelEnhanced Level = "enhanced"

	// LevelMaximum applies the strongest quality cap, shortens token
	// lifetimes, and enables tile fragmentation.
	LevelMaximum Level = "maximum"
)

// ParseLevel maps a stored string to a [Level], falling back to standard
// for unknown values so a bad row never disables delivery.
func ParseLevel(value string) Level {
	switch Level(value) {
	case LevelEnhanced:
		return LevelEnhanced
	case LevelMaximum:
		return LevelMaximum
	default:
		return LevelStandard
	}
}

// # Delivery Settings

// Settings are the per-request transformation parameters derived from the
// owning event's configuration.
type Settings struct {
	Level          Level
	Quality        int
	MaxWidth       int
	MaxHeight      int
	AddFingerprint bool
	FragmentImage  bool
}

// SettingsForEvent derives transformation settings from event configuration,
// applying platform defaults for unset values.
//
// Fragmentation is only honored at the maximum protection level; the flag is
// resolved here so downstream code never re-checks the level.
func SettingsForEvent(event *gallery.Event) Settings {
	level := ParseLevel(event.ProtectionLevel)

	quality := event.ImageQuality
	if quality < 1 || quality > 100 {
		quality = constants.DefaultImageQuality
	}

	maxWidth := event.MaxWidth
	if maxWidth <= 0 {
		maxWidth = constants.DefaultMaxWidth
	}
	maxHeight := event.MaxHeight
	if maxHeight <= 0 {
		maxHeight = constants.DefaultMaxHeight
	}

	return Settings{
		Level:          level,
		Quality:        quality,
		MaxWidth:       maxWidth,
		MaxHeight:      maxHeight,
		AddFingerprint: event.AddFingerprint,
		FragmentImage:  event.FragmentImage && level == LevelMaximum,
	}
}

// EffectiveQuality returns the JPEG quality after the level cap is applied.
//
// Higher protection levels deliberately degrade fidelity: a scraped copy is
// worth less than the original the host sells.
func (s Settings) EffectiveQuality() int {
	quality := s.Quality

	switch s.Level {
	case LevelEnhanced:
		if quality > constants.EnhancedQualityCap {
			quality = constants.EnhancedQualityCap
		}
	case LevelMaximum:
		if quality > constants.MaximumQualityCap {
			quality = constants.MaximumQualityCap
		}
	}

	return quality
}
