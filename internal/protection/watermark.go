// Copyright (c) 2026 Pixveil. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package protection

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// # Download Watermarking

const watermarkMargin = 12

// ApplyWatermark stamps a text label into the bottom-right corner of an image
// and re-encodes it as JPEG. The second return reports whether stamping ran;
// false means the caller got its input back unchanged.
//
// Downloads are the one path that hands clients full-resolution bytes, so
// they carry a visible attribution mark. Failures fall back to the unmarked
// input for the same availability reason as [Transformer.Transform].
func ApplyWatermark(original []byte, text string, quality int) ([]byte, bool) {
	if text == "" {
		return original, false
	}

	source, _, err := image.Decode(bytes.NewReader(original))
	if err != nil {
		return original, false
	}

	bounds := source.Bounds()
	canvas := image.NewRGBA(bounds)
	draw.Copy(canvas, bounds.Min, source, bounds, draw.Src, nil)

	face := basicfont.Face7x13
	textWidth := font.MeasureString(face, text).Ceil()

	x := bounds.Max.X - textWidth - watermarkMargin
	y := bounds.Max.Y - watermarkMargin
	if x < bounds.Min.X {
		x = bounds.Min.X
	}

	// Dark shadow one pixel off, then the light text; readable on any
	// background without alpha blending.
	shadow := &font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(color.RGBA{A: 200}),
		Face: face,
		Dot:  fixed.P(x+1, y+1),
	}
	shadow.DrawString(text)

	drawer := &font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(color.RGBA{R: 255, G: 255, B: 255, A: 230}),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	drawer.DrawString(text)

	var encoded bytes.Buffer
	if err := jpeg.Encode(&encoded, canvas, &jpeg.Options{Quality: quality}); err != nil {
		return original, false
	}
	return encoded.Bytes(), true
}
