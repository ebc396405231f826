// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package tracker

import (
	"fmt"

	"github.com/relabs-tech/optical_tracker/internal/marker"
)

// NumPorts is the number of strober ports on the system unit.
const NumPorts = 4

// Collector is one collection session on a Link: the markers to track, the
// collection parameters and the most recent frame.
//
// Usage is strictly ordered: AddMarkers/Configure, SetupCollection,
// Activate, then any number of UpdateFrame + Position reads.
type Collector struct {
	link *Link

	FrameFrequency  float64 // Frequency to collect data frames at (120).
	MarkerFrequency float64 // Marker frequency for marker maximum on-time (2500).
	Threshold       int     // Dynamic or static threshold value to use (30).
	Gain            int     // Minimum gain code amplification to use (160).
	StreamMode      int     // Stream mode for the data buffers (0).
	DutyCycle       float64 // Marker duty cycle to use (0.4).
	Voltage         float64 // Voltage to use when turning on markers (7.0).
	CollectTime     float64 // Seconds of buffered data to collect (1).
	TriggerTime     float64 // Seconds to pre-trigger data by (0).

	numElements  int
	totalMarkers int
	collectFlags uint32
	nonblocking  bool

	setup  bool
	active bool

	frame     marker.Frame
	haveFrame bool
}

func newCollector(l *Link) *Collector {
	return &Collector{
		link:            l,
		FrameFrequency:  120,
		MarkerFrequency: 2500,
		Threshold:       30,
		Gain:            160,
		StreamMode:      0,
		DutyCycle:       0.4,
		Voltage:         7.0,
		CollectTime:     1,
		TriggerTime:     0,
		collectFlags:    FlagNoFireMarkers | FlagBufferRaw,
	}
}

// AddMarkers adds n markers on strober port p.
func (c *Collector) AddMarkers(n, port int) error {
	if port < 0 || port >= NumPorts {
		return fmt.Errorf("%w: %d", ErrPort, port)
	}
	if n < 1 {
		return fmt.Errorf("tracker: cannot add %d markers", n)
	}
	if c.setup {
		return ErrAlreadySetup
	}
	c.numElements += n
	c.totalMarkers += n
	return nil
}

// Configure requests n markers on port 0 at frameFrequency Hz and selects
// blocking or non-blocking polls.
func (c *Collector) Configure(n int, frameFrequency float64, blocking bool) error {
	if err := c.AddMarkers(n, 0); err != nil {
		return err
	}
	c.FrameFrequency = frameFrequency
	if blocking {
		c.EnforceBlocking()
	} else {
		c.SetNonBlocking()
	}
	return nil
}

// EnforceBlocking makes the device hand out only frames it has not
// returned before, and makes UpdateFrame wait for them.
func (c *Collector) EnforceBlocking() {
	c.collectFlags |= FlagGetNextFrame
	c.nonblocking = false
}

func (c *Collector) SetNonBlocking() { c.nonblocking = true }
func (c *Collector) SetBlocking()    { c.nonblocking = false }
func (c *Collector) IsNonBlocking() bool {
	return c.nonblocking
}

// NumElements is the number of markers in this collector.
func (c *Collector) NumElements() int {
	return c.numElements
}

// Settings returns the parameters SetupCollection sends to the device.
func (c *Collector) Settings() CollectionSettings {
	return CollectionSettings{
		NumMarkers:      c.totalMarkers,
		FrameFrequency:  c.FrameFrequency,
		MarkerFrequency: c.MarkerFrequency,
		Threshold:       c.Threshold,
		Gain:            c.Gain,
		StreamMode:      c.StreamMode,
		DutyCycle:       c.DutyCycle,
		Voltage:         c.Voltage,
		CollectTime:     c.CollectTime,
		TriggerTime:     c.TriggerTime,
		Flags:           c.collectFlags,
	}
}

// SetupCollection prepares the device buffers. It can be called only once.
func (c *Collector) SetupCollection() error {
	if c.link.Closed() {
		return ErrLinkClosed
	}
	if c.setup {
		return ErrAlreadySetup
	}
	if c.totalMarkers == 0 {
		return ErrNoMarkers
	}
	if err := c.link.dev.SetupCollection(c.Settings()); err != nil {
		return fmt.Errorf("tracker: setup collection: %w", err)
	}
	c.setup = true
	c.frame.Markers = make([]marker.Position, c.totalMarkers)
	c.link.settle()
	return nil
}

// Activate turns the markers on. Frames can be polled afterwards.
func (c *Collector) Activate() error {
	if c.link.Closed() {
		return ErrLinkClosed
	}
	if !c.setup {
		return ErrNotSetup
	}
	if err := c.link.dev.ActivateMarkers(); err != nil {
		return fmt.Errorf("tracker: activate markers: %w", err)
	}
	c.active = true
	c.link.settle()
	return nil
}

// Deactivate turns the markers off. Activate may be called again later.
func (c *Collector) Deactivate() error {
	if c.link.Closed() {
		return ErrLinkClosed
	}
	if err := c.link.dev.DeactivateMarkers(); err != nil {
		return fmt.Errorf("tracker: deactivate markers: %w", err)
	}
	c.active = false
	return nil
}

// UpdateFrame asks the device for a new frame and returns its sequence
// number. The frame buffer is replaced only when the call succeeds.
func (c *Collector) UpdateFrame() (int, error) {
	if c.link.Closed() {
		return -1, ErrLinkClosed
	}
	if !c.active {
		return -1, ErrNotActive
	}

	f, err := c.link.dev.Latest3D(!c.nonblocking)
	if err != nil {
		return -1, err
	}
	if len(f.Markers) != c.totalMarkers {
		return -1, fmt.Errorf("%w: got %d, want %d", ErrMissingMarkers, len(f.Markers), c.totalMarkers)
	}

	c.frame.Sequence = f.Sequence
	c.frame.Flags = f.Flags
	copy(c.frame.Markers, f.Markers)
	c.haveFrame = true
	return int(f.Sequence), nil
}

// Next polls a frame and returns a copy of it. It makes a Collector a
// marker.Source.
func (c *Collector) Next() (marker.Frame, error) {
	if _, err := c.UpdateFrame(); err != nil {
		return marker.Frame{}, err
	}
	out := c.frame
	out.Markers = append([]marker.Position(nil), c.frame.Markers...)
	return out, nil
}

// PositionInto copies marker n of the latest frame into dst[0:3] and
// returns that frame's sequence number. It does not allocate.
func (c *Collector) PositionInto(dst []float64, n int) (int, error) {
	p, err := c.position(n)
	if err != nil {
		return -1, err
	}
	if len(dst) < 3 {
		return -1, fmt.Errorf("tracker: position buffer needs 3 elements, got %d", len(dst))
	}
	dst[0], dst[1], dst[2] = p.X, p.Y, p.Z
	return int(c.frame.Sequence), nil
}

// Position returns marker n of the latest frame.
func (c *Collector) Position(n int) (marker.Position, error) {
	return c.position(n)
}

func (c *Collector) position(n int) (marker.Position, error) {
	if n < 0 || n >= c.numElements {
		return marker.Position{}, fmt.Errorf("%w: %d of %d", ErrMarkerIndex, n, c.numElements)
	}
	if !c.haveFrame {
		return marker.Position{}, ErrNoFrame
	}
	return c.frame.Markers[n], nil
}
