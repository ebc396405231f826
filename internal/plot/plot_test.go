package plot

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/relabs-tech/optical_tracker/internal/marker"
)

func TestTopDownDrawsVisibleMarkers(t *testing.T) {
	f := marker.Frame{
		Sequence: 12,
		Markers: []marker.Position{
			{X: -100, Y: 0, Z: -2000},
			{X: 100, Y: 0, Z: -1900},
			{X: -3.697314e28, Y: -3.697314e28, Z: -3.697314e28},
		},
	}
	const w, h = 320, 240
	img := TopDown(f, w, h)
	if img.Bounds().Dx() != w || img.Bounds().Dy() != h {
		t.Fatalf("bounds = %v", img.Bounds())
	}

	minX, maxX, minZ, maxZ, ok := bounds(f)
	if !ok || minX != -100 || maxX != 100 || minZ != -2000 || maxZ != -1900 {
		t.Fatalf("bounds ignored the missing marker wrongly: %v %v %v %v %v", minX, maxX, minZ, maxZ, ok)
	}

	scale := 0.0
	{
		plotW := float64(w - 2*margin)
		plotH := float64(h - 2*margin - headerLine)
		sx, sz := plotW/200, plotH/200
		scale = sx
		if sz < sx {
			scale = sz
		}
	}
	for _, p := range f.Markers[:2] {
		px, py := Project(p, 0, -1950, scale, w, h)
		if got := img.RGBAAt(px, py); got != MarkerDot {
			t.Errorf("pixel at %d,%d = %v, want marker colour", px, py, got)
		}
	}
}

func TestTopDownEmptyFrame(t *testing.T) {
	img := TopDown(marker.Frame{}, 100, 60)
	if got := img.RGBAAt(99, 59); got != Background {
		t.Fatalf("corner = %v, want background", got)
	}
}

func TestWritePNG(t *testing.T) {
	var buf bytes.Buffer
	f := marker.Frame{Sequence: 1, Markers: []marker.Position{{X: 0, Y: 0, Z: -2000}}}
	if err := WritePNG(&buf, f, 64, 64); err != nil {
		t.Fatal(err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 64 {
		t.Fatalf("decoded width %d", img.Bounds().Dx())
	}
}
