// Copyright (c) 2026 Pixveil. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package gallery provides read access to event and photo records.

It is the thin data layer the secure delivery pipeline consumes: resolving a
public event slug to its configuration, locating photo records, and keeping
the persistent download counter. Gallery management (CRUD, uploads) lives in
a separate service and is out of scope here.
*/
package gallery

import "time"

// Event is a photo-gallery event (a wedding, a shoot) published under a slug.
//
// The protection columns drive the secure delivery pipeline: they are
// configured by the event host and read on every image request.
type Event struct {
	ID    string `json:"id"`
	Slug  string `json:"slug"`
	Title string `json:"title"`

	// ProtectionLevel is one of "standard", "enhanced", "maximum".
	ProtectionLevel string `json:"protection_level"`

	// ImageQuality is the host-chosen JPEG quality (1-100, 0 = platform default).
	ImageQuality int `json:"image_quality"`

	// MaxWidth/MaxHeight bound delivered dimensions (0 = platform default).
	MaxWidth  int `json:"max_width"`
	MaxHeight int `json:"max_height"`

	// AddFingerprint embeds a forensic marker into delivered images.
	AddFingerprint bool `json:"add_fingerprint"`

	// FragmentImage splits delivery into a tile grid (maximum level only).
	FragmentImage bool `json:"fragment_image"`

	// AllowDownloads gates the secure-download endpoint.
	AllowDownloads bool `json:"allow_downloads"`

	// WatermarkText, when set, is overlaid on downloaded images.
	WatermarkText string `json:"watermark_text"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Photo is a single image belonging to an event.
type Photo struct {
	ID       int64  `json:"id"`
	EventID  string `json:"event_id"`
	Filename string `json:"filename"`

	// StoragePath is relative to the configured photo storage root.
	StoragePath string `json:"-"`

	MimeType      string    `json:"mime_type"`
	SizeBytes     int64     `json:"size_bytes"`
	DownloadCount int64     `json:"download_count"`
	CreatedAt     time.Time `json:"created_at"`
}
