// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package report

import (
	"fmt"
	"io"
	"time"

	"github.com/relabs-tech/optical_tracker/internal/marker"
)

// StopLine is printed once after the polling loop.
const StopLine = "Stop"

// Reporter writes the console lines of the capture demo.
//
//	<iteration> <frame> x:<x> <y> <z> at <ms>
//	 y:<x> <y> <z>
type Reporter struct {
	w io.Writer
}

func New(w io.Writer) *Reporter {
	return &Reporter{w: w}
}

// Millis converts d to fractional milliseconds.
func Millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// Buffered reports a position read into a caller buffer together with the
// time the poll took.
func (r *Reporter) Buffered(iteration, frame int, x []float64, poll time.Duration) error {
	_, err := fmt.Fprintf(r.w, "%d %d x:%v %v %v at %v\n", iteration, frame, x[0], x[1], x[2], Millis(poll))
	return err
}

// Allocated reports a position returned by value.
func (r *Reporter) Allocated(p marker.Position) error {
	_, err := fmt.Fprintf(r.w, " y:%v %v %v \n", p.X, p.Y, p.Z)
	return err
}

func (r *Reporter) Stop() error {
	_, err := fmt.Fprintln(r.w, StopLine)
	return err
}
