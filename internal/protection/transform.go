// Copyright (c) 2026 Pixveil. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package protection

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/taibuivan/pixveil/internal/platform/constants"
)

// # Image Transformation

// Outcome describes how a delivery body was produced.
type Outcome string

const (
	// OutcomeTransformed means the full pipeline ran.
	OutcomeTransformed Outcome = "transformed"

	// OutcomeFallback means transformation failed and the original bytes
	// were served unchanged. Availability beats protection: a corrupt or
	// unsupported source must still reach the paying client.
	OutcomeFallback Outcome = "fallback"
)

// Result is the output of one transformation run.
type Result struct {
	Bytes    []byte
	MimeType string
	Outcome  Outcome

	// Marker is the forensic identifier embedded in the output, empty on
	// fallback.
	Marker string
}

// Transformer applies protection-level-driven image processing: downscale,
// recompress, and tag with a forensic marker.
//
// Output is always JPEG regardless of source format; metadata (EXIF, GPS,
// embedded thumbnails) is shed as a side effect of re-encoding.
type Transformer struct{}

// NewTransformer creates a Transformer.
func NewTransformer() *Transformer {
	return &Transformer{}
}

/*
Transform runs the full pipeline over original image bytes.

Dimensions are clamped to the settings' bounding box preserving aspect
ratio; images already inside the box are never upscaled. The effective
JPEG quality comes from the protection level cap.

Decode or encode failures return a fallback Result carrying the original
bytes, never an error: delivery must not break on a bad source file.

Parameters:
  - original: []byte (Source image: JPEG, PNG, or WebP)
  - mimeType: string (Source MIME type, used for the fallback result)
  - settings: Settings

Returns:
  - *Result: Transformed or fallback bytes
*/
func (transformer *Transformer) Transform(original []byte, mimeType string, settings Settings) *Result {
	source, _, err := image.Decode(bytes.NewReader(original))
	if err != nil {
		return &Result{Bytes: original, MimeType: mimeType, Outcome: OutcomeFallback}
	}

	scaled := scaleToFit(source, settings.MaxWidth, settings.MaxHeight)

	var encoded bytes.Buffer
	err = jpeg.Encode(&encoded, scaled, &jpeg.Options{Quality: settings.EffectiveQuality()})
	if err != nil {
		return &Result{Bytes: original, MimeType: mimeType, Outcome: OutcomeFallback}
	}

	output := encoded.Bytes()
	marker := ""
	if settings.AddFingerprint {
		marker = newForensicMarker()
		tagged, err := injectComment(output, marker)
		if err == nil {
			output = tagged
		} else {
			marker = ""
		}
	}

	return &Result{
		Bytes:    output,
		MimeType: "image/jpeg",
		Outcome:  OutcomeTransformed,
		Marker:   marker,
	}
}

// scaleToFit downscales an image to fit within maxWidth×maxHeight preserving
// aspect ratio. Images already within bounds are returned as-is.
func scaleToFit(source image.Image, maxWidth, maxHeight int) image.Image {
	bounds := source.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	if width <= maxWidth && height <= maxHeight {
		return source
	}

	ratio := float64(maxWidth) / float64(width)
	if heightRatio := float64(maxHeight) / float64(height); heightRatio < ratio {
		ratio = heightRatio
	}

	targetWidth := int(float64(width) * ratio)
	targetHeight := int(float64(height) * ratio)
	if targetWidth < 1 {
		targetWidth = 1
	}
	if targetHeight < 1 {
		targetHeight = 1
	}

	target := image.NewRGBA(image.Rect(0, 0, targetWidth, targetHeight))
	draw.CatmullRom.Scale(target, target.Bounds(), source, bounds, draw.Over, nil)
	return target
}

// newForensicMarker returns a random 16-hex-character identifier. The marker
// ties a leaked copy back to the access-log entry of the request that
// produced it.
func newForensicMarker() string {
	buffer := make([]byte, 8)
	if _, err := rand.Read(buffer); err != nil {
		return ""
	}
	return hex.EncodeToString(buffer)
}

// injectComment inserts a JPEG COM segment carrying the marker immediately
// after the SOI marker. Browsers ignore comment segments, so rendering is
// unaffected, but the tag survives save-as and casual re-hosting.
func injectComment(jpegBytes []byte, comment string) ([]byte, error) {
	if len(jpegBytes) < 2 || jpegBytes[0] != 0xFF || jpegBytes[1] != 0xD8 {
		return nil, fmt.Errorf("not a jpeg stream")
	}

	payload := []byte("pixveil:" + comment)
	segmentLen := len(payload) + 2
	if segmentLen > 0xFFFF {
		return nil, fmt.Errorf("comment too long")
	}

	out := make([]byte, 0, len(jpegBytes)+4+len(payload))
	out = append(out, 0xFF, 0xD8)
	out = append(out, 0xFF, 0xFE, byte(segmentLen>>8), byte(segmentLen&0xFF))
	out = append(out, payload...)
	out = append(out, jpegBytes[2:]...)
	return out, nil
}

// # Fragmentation

// FragmentPosition describes where a tile sits in the reassembled image, in
// output pixel coordinates.
type FragmentPosition struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Fragment is one tile of a fragmented image.
type Fragment struct {
	Index    int
	Row      int
	Col      int
	Bytes    []byte
	Position FragmentPosition
}

// FragmentedImage is the full tile set for one transformed image.
type FragmentedImage struct {
	Fragments []Fragment
	Width     int
	Height    int
}

/*
Fragmentize splits a transformed JPEG into a uniform 3×3 tile grid.

Tiles use floor division, so up to two trailing pixel rows/columns are
trimmed when dimensions are not divisible by three. Tiles are indexed
row-major: index = row*3 + col.

Parameters:
  - transformed: []byte (JPEG bytes from Transform)
  - quality: int (Re-encode quality for each tile)

Returns:
  - *FragmentedImage: Nine tiles plus trimmed canvas dimensions
  - error: Decode or encode failures; callers fall back to whole delivery
*/
func (transformer *Transformer) Fragmentize(transformed []byte, quality int) (*FragmentedImage, error) {
	source, _, err := image.Decode(bytes.NewReader(transformed))
	if err != nil {
		return nil, fmt.Errorf("fragment_decode_failed: %w", err)
	}

	grid := constants.FragmentGridSize
	bounds := source.Bounds()
	tileWidth := bounds.Dx() / grid
	tileHeight := bounds.Dy() / grid
	if tileWidth < 1 || tileHeight < 1 {
		return nil, fmt.Errorf("image too small to fragment")
	}

	fragments := make([]Fragment, 0, grid*grid)
	for row := 0; row < grid; row++ {
		for col := 0; col < grid; col++ {
			left := col * tileWidth
			top := row * tileHeight

			tile := image.NewRGBA(image.Rect(0, 0, tileWidth, tileHeight))
			sourceRect := image.Rect(
				bounds.Min.X+left,
				bounds.Min.Y+top,
				bounds.Min.X+left+tileWidth,
				bounds.Min.Y+top+tileHeight,
			)
			draw.Copy(tile, image.Point{}, source, sourceRect, draw.Src, nil)

			var encoded bytes.Buffer
			if err := jpeg.Encode(&encoded, tile, &jpeg.Options{Quality: quality}); err != nil {
				return nil, fmt.Errorf("fragment_encode_failed: %w", err)
			}

			fragments = append(fragments, Fragment{
				Index: row*grid + col,
				Row:   row,
				Col:   col,
				Bytes: encoded.Bytes(),
				Position: FragmentPosition{
					Left:   left,
					Top:    top,
					Width:  tileWidth,
					Height: tileHeight,
				},
			})
		}
	}

	return &FragmentedImage{
		Fragments: fragments,
		Width:     tileWidth * grid,
		Height:    tileHeight * grid,
	}, nil
}
