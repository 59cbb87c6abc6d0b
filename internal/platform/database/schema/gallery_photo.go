// Copyright (c) 2026 Pixveil. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package schema

// GalleryPhotoTable represents the 'gallery.photo' table
type GalleryPhotoTable struct {
	Table         string
	ID            string
	EventID       string
	Filename      string
	StoragePath   string
	MimeType      string
	SizeBytes     string
	DownloadCount string
	CreatedAt     string
}

var GalleryPhoto = GalleryPhotoTable{
	Table:         "gallery.photo",
	ID:            "id",
	EventID:       "eventid",
	Filename:      "filename",
	StoragePath:   "storagepath",
	MimeType:      "mimetype",
	SizeBytes:     "sizebytes",
	DownloadCount: "downloadcount",
	CreatedAt:     "createdat",
}
