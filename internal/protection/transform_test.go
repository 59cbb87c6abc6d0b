// Copyright (c) 2026 Pixveil. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package protection_test

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/pixveil/internal/protection"
)

// makeJPEG renders a width×height gradient and encodes it as JPEG.
func makeJPEG(t *testing.T, width, height int) []byte {
	t.Helper()

	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			canvas.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}

	var encoded bytes.Buffer
	require.NoError(t, jpeg.Encode(&encoded, canvas, &jpeg.Options{Quality: 90}))
	return encoded.Bytes()
}

// decodeDims decodes image bytes and returns width, height.
func decodeDims(t *testing.T, body []byte) (int, int) {
	t.Helper()

	decoded, _, err := image.Decode(bytes.NewReader(body))
	require.NoError(t, err)
	return decoded.Bounds().Dx(), decoded.Bounds().Dy()
}

/*
TestTransformer_Downscale verifies oversized images are scaled into the
bounding box preserving aspect ratio.
*/
func TestTransformer_Downscale(t *testing.T) {
	transformer := protection.NewTransformer()
	original := makeJPEG(t, 2000, 1000)

	result := transformer.Transform(original, "image/jpeg", protection.Settings{
		Level:     protection.LevelStandard,
		Quality:   85,
		MaxWidth:  1000,
		MaxHeight: 1000,
	})

	require.Equal(t, protection.OutcomeTransformed, result.Outcome)
	assert.Equal(t, "image/jpeg", result.MimeType)

	width, height := decodeDims(t, result.Bytes)
	assert.Equal(t, 1000, width)
	assert.Equal(t, 500, height)
}

/*
TestTransformer_NeverUpscales verifies images already within bounds keep
their dimensions.
*/
func TestTransformer_NeverUpscales(t *testing.T) {
	transformer := protection.NewTransformer()
	original := makeJPEG(t, 200, 200)

	result := transformer.Transform(original, "image/jpeg", protection.Settings{
		Level:     protection.LevelStandard,
		Quality:   85,
		MaxWidth:  1920,
		MaxHeight: 1080,
	})

	require.Equal(t, protection.OutcomeTransformed, result.Outcome)

	width, height := decodeDims(t, result.Bytes)
	assert.Equal(t, 200, width)
	assert.Equal(t, 200, height)
}

/*
TestTransformer_ForensicMarker verifies the marker is embedded as a JPEG
comment segment and reported in the result.
*/
func TestTransformer_ForensicMarker(t *testing.T) {
	transformer := protection.NewTransformer()
	original := makeJPEG(t, 100, 100)

	result := transformer.Transform(original, "image/jpeg", protection.Settings{
		Level:          protection.LevelEnhanced,
		Quality:        85,
		MaxWidth:       1920,
		MaxHeight:      1080,
		AddFingerprint: true,
	})

	require.Equal(t, protection.OutcomeTransformed, result.Outcome)
	require.NotEmpty(t, result.Marker)
	assert.Len(t, result.Marker, 16)

	// The tagged stream must still decode.
	width, height := decodeDims(t, result.Bytes)
	assert.Equal(t, 100, width)
	assert.Equal(t, 100, height)

	// And carry the marker in its comment segment.
	assert.True(t, bytes.Contains(result.Bytes, []byte("pixveil:"+result.Marker)))
}

/*
TestTransformer_FallbackOnCorruptInput verifies undecodable bytes are served
unchanged with the fallback outcome.
*/
func TestTransformer_FallbackOnCorruptInput(t *testing.T) {
	transformer := protection.NewTransformer()
	original := []byte("definitely not an image")

	result := transformer.Transform(original, "image/jpeg", protection.Settings{
		Level:     protection.LevelStandard,
		Quality:   85,
		MaxWidth:  1920,
		MaxHeight: 1080,
	})

	assert.Equal(t, protection.OutcomeFallback, result.Outcome)
	assert.Equal(t, original, result.Bytes)
	assert.Empty(t, result.Marker)
}

/*
TestTransformer_Fragmentize verifies the 3×3 tile grid geometry: row-major
indexing, uniform tile dimensions, and floor-division edge trimming.
*/
func TestTransformer_Fragmentize(t *testing.T) {
	transformer := protection.NewTransformer()
	source := makeJPEG(t, 900, 900)

	fragmented, err := transformer.Fragmentize(source, 60)
	require.NoError(t, err)

	require.Len(t, fragmented.Fragments, 9)
	assert.Equal(t, 900, fragmented.Width)
	assert.Equal(t, 900, fragmented.Height)

	for i, fragment := range fragmented.Fragments {
		assert.Equal(t, i, fragment.Index)
		assert.Equal(t, i/3, fragment.Row)
		assert.Equal(t, i%3, fragment.Col)
		assert.Equal(t, 300, fragment.Position.Width)
		assert.Equal(t, 300, fragment.Position.Height)

		width, height := decodeDims(t, fragment.Bytes)
		assert.Equal(t, 300, width)
		assert.Equal(t, 300, height)
	}

	// Center tile sits one tile in from each edge.
	center := fragmented.Fragments[4]
	assert.Equal(t, 300, center.Position.Left)
	assert.Equal(t, 300, center.Position.Top)
}

/*
TestTransformer_Fragmentize_TrimsRemainder verifies dimensions not divisible
by three are floor-trimmed.
*/
func TestTransformer_Fragmentize_TrimsRemainder(t *testing.T) {
	transformer := protection.NewTransformer()
	source := makeJPEG(t, 100, 100)

	fragmented, err := transformer.Fragmentize(source, 60)
	require.NoError(t, err)

	// 100/3 = 33: two pixels trimmed from each axis.
	assert.Equal(t, 99, fragmented.Width)
	assert.Equal(t, 99, fragmented.Height)

	last := fragmented.Fragments[8]
	assert.Equal(t, 66, last.Position.Left)
	assert.Equal(t, 66, last.Position.Top)
	assert.Equal(t, 33, last.Position.Width)
	assert.Equal(t, 33, last.Position.Height)
}

/*
TestTransformer_Fragmentize_RejectsCorruptInput verifies undecodable bytes
surface an error so delivery can fall back to the whole image.
*/
func TestTransformer_Fragmentize_RejectsCorruptInput(t *testing.T) {
	transformer := protection.NewTransformer()

	_, err := transformer.Fragmentize([]byte("garbage"), 60)
	assert.Error(t, err)
}

/*
TestApplyWatermark verifies watermarking re-encodes as JPEG and falls back
cleanly on bad input or empty text.
*/
func TestApplyWatermark(t *testing.T) {
	original := makeJPEG(t, 400, 300)

	stampedBody, stamped := protection.ApplyWatermark(original, "© Pixveil", 90)
	require.True(t, stamped)
	assert.NotEqual(t, original, stampedBody)

	width, height := decodeDims(t, stampedBody)
	assert.Equal(t, 400, width)
	assert.Equal(t, 300, height)

	// Empty text is a no-op.
	unchanged, stamped := protection.ApplyWatermark(original, "", 90)
	assert.False(t, stamped)
	assert.Equal(t, original, unchanged)

	// Corrupt input is returned untouched.
	corrupt := []byte("not an image")
	fallback, stamped := protection.ApplyWatermark(corrupt, "text", 90)
	assert.False(t, stamped)
	assert.Equal(t, corrupt, fallback)
}
