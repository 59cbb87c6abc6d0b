// Copyright (c) 2026 Pixveil. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package schema centralizes table and column identifiers so repositories
// never embed raw SQL name literals.
package schema

// GalleryEventTable represents the 'gallery.event' table
type GalleryEventTable struct {
	Table           string
	ID              string
	Slug            string
	Title           string
	ProtectionLevel string
	ImageQuality    string
	MaxWidth        string
	MaxHeight       string
	AddFingerprint  string
	FragmentImage   string
	AllowDownloads  string
	WatermarkText   string
	CreatedAt       string
	UpdatedAt       string
}

var GalleryEvent = GalleryEventTable{
	Table:           "gallery.event",
	ID:              "id",
	Slug:            "slug",
	Title:           "title",
	ProtectionLevel: "protectionlevel",
	ImageQuality:    "imagequality",
	MaxWidth:        "maxwidth",
	MaxHeight:       "maxheight",
	AddFingerprint:  "addfingerprint",
	FragmentImage:   "fragmentimage",
	AllowDownloads:  "allowdownloads",
	WatermarkText:   "watermarktext",
	CreatedAt:       "createdat",
	UpdatedAt:       "updatedat",
}
