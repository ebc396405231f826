// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package marker

// MissingThreshold is the bound below which a coordinate is the tracker's
// "marker not seen" sentinel (the device reports about -3.7e28).
const MissingThreshold = -1e28

// Position is the 3D position of a single marker, in millimetres.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Visible reports whether the tracker actually saw the marker in this frame.
func (p Position) Visible() bool {
	return p.X > MissingThreshold && p.Y > MissingThreshold && p.Z > MissingThreshold
}

// Frame is one synchronized snapshot of all marker positions.
type Frame struct {
	Sequence uint32     `json:"seq"`
	Flags    uint32     `json:"flags"`
	Markers  []Position `json:"markers"`
}

// Visible returns the number of markers the tracker saw in this frame.
func (f Frame) Visible() int {
	n := 0
	for _, m := range f.Markers {
		if m.Visible() {
			n++
		}
	}
	return n
}

// Source is anything that can hand out frames over time.
type Source interface {
	Next() (Frame, error)
}
