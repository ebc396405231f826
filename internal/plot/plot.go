// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package plot

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/relabs-tech/optical_tracker/internal/marker"
)

const (
	margin     = 24
	dotRadius  = 3
	minSpanMM  = 200.0 // smallest area shown, so a single marker is not zoomed to a point
	headerLine = 14
)

var (
	Background = color.RGBA{0x10, 0x10, 0x18, 0xff}
	MarkerDot  = color.RGBA{0x30, 0xe0, 0x60, 0xff}
	TextColor  = color.RGBA{0xe0, 0xe0, 0xe0, 0xff}
)

// TopDown draws the visible markers of f seen from above: X to the right,
// Z (depth) downwards. Each dot is labelled with its marker index.
func TopDown(f marker.Frame, width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{Background}, image.Point{}, draw.Src)

	label(img, 4, headerLine-2, fmt.Sprintf("seq %d  visible %d/%d", f.Sequence, f.Visible(), len(f.Markers)))

	minX, maxX, minZ, maxZ, ok := bounds(f)
	if !ok {
		return img
	}

	// keep the aspect ratio: one scale for both axes
	spanX := math.Max(maxX-minX, minSpanMM)
	spanZ := math.Max(maxZ-minZ, minSpanMM)
	plotW := float64(width - 2*margin)
	plotH := float64(height - 2*margin - headerLine)
	scale := math.Min(plotW/spanX, plotH/spanZ)
	cx, cz := (minX+maxX)/2, (minZ+maxZ)/2

	for i, p := range f.Markers {
		if !p.Visible() {
			continue
		}
		px, py := Project(p, cx, cz, scale, width, height)
		dot(img, px, py)
		label(img, px+dotRadius+2, py+4, fmt.Sprint(i))
	}
	return img
}

// Project maps a marker to pixel coordinates for a plot centred on (cx, cz).
func Project(p marker.Position, cx, cz, scale float64, width, height int) (int, int) {
	px := float64(width)/2 + (p.X-cx)*scale
	py := float64(height+headerLine)/2 + (p.Z-cz)*scale
	return int(math.Round(px)), int(math.Round(py))
}

// WritePNG renders f and encodes it as PNG.
func WritePNG(w io.Writer, f marker.Frame, width, height int) error {
	return png.Encode(w, TopDown(f, width, height))
}

func bounds(f marker.Frame) (minX, maxX, minZ, maxZ float64, ok bool) {
	minX, minZ = math.Inf(1), math.Inf(1)
	maxX, maxZ = math.Inf(-1), math.Inf(-1)
	for _, p := range f.Markers {
		if !p.Visible() {
			continue
		}
		ok = true
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minZ, maxZ = math.Min(minZ, p.Z), math.Max(maxZ, p.Z)
	}
	return
}

func dot(img *image.RGBA, x, y int) {
	r := image.Rect(x-dotRadius, y-dotRadius, x+dotRadius+1, y+dotRadius+1)
	draw.Draw(img, r.Intersect(img.Bounds()), &image.Uniform{MarkerDot}, image.Point{}, draw.Src)
}

func label(img *image.RGBA, x, y int, s string) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(TextColor),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}
