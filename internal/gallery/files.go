// Copyright (c) 2026 Pixveil. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package gallery

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// # Photo File Resolution

// PathResolver maps photo records to absolute file paths inside the
// configured storage root.
//
// # Safety
//
// Stored paths are relative and untrusted (they originate from the upload
// service). Resolution rejects any path that would escape the root, so a
// corrupted or malicious row can never read arbitrary files.
type PathResolver struct {
	root string
}

// NewPathResolver creates a resolver rooted at the given directory.
func NewPathResolver(root string) *PathResolver {
	return &PathResolver{root: filepath.Clean(root)}
}

/*
Resolve returns the absolute on-disk path for a photo's original bytes.

Parameters:
  - event: *Event (Owning event, part of the storage layout)
  - photo: *Photo

Returns:
  - string: Absolute path to an existing regular file
  - error: When the path escapes the root or the file is missing
*/
func (resolver *PathResolver) Resolve(event *Event, photo *Photo) (string, error) {
	if photo.StoragePath == "" {
		return "", fmt.Errorf("gallery: photo %d has no storage path", photo.ID)
	}

	absolute := filepath.Join(resolver.root, filepath.Clean("/"+photo.StoragePath))

	// Traversal guard: the joined path must stay inside the root.
	if !strings.HasPrefix(absolute, resolver.root+string(filepath.Separator)) {
		return "", fmt.Errorf("gallery: storage path %q escapes storage root", photo.StoragePath)
	}

	info, err := os.Stat(absolute)
	if err != nil {
		return "", fmt.Errorf("gallery: photo file unavailable: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("gallery: storage path %q is a directory", photo.StoragePath)
	}

	return absolute, nil
}
