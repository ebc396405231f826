// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package tracker

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/relabs-tech/optical_tracker/internal/marker"
)

// PositionFunc generates the position of marker n in frame seq.
type PositionFunc func(seq uint32, n int) marker.Position

// FixedPositions returns the same position for every marker and frame.
func FixedPositions(p marker.Position) PositionFunc {
	return func(uint32, int) marker.Position { return p }
}

// MockOptions configure a MockDevice. The zero value is usable.
type MockOptions struct {
	Positions PositionFunc
	// DropMarkers removes this many markers from every frame, like a
	// strober that lost some of its markers.
	DropMarkers int
	// Paced makes blocking reads wait for the next frame period.
	Paced bool
	Now   func() time.Time
	Sleep func(time.Duration)
}

// MockDevice simulates a tracker. Frame sequence numbers start at 1.
type MockDevice struct {
	mu       sync.Mutex
	opts     MockOptions
	settings CollectionSettings

	initialized bool
	active      bool
	seq         uint32
	lastFrame   time.Time

	calls []string
}

// NewMockDevice creates a simulated tracker. Without a Positions function
// the markers move smoothly around a point two metres in front of the
// cameras.
func NewMockDevice(opts MockOptions) *MockDevice {
	if opts.Positions == nil {
		opts.Positions = smoothPositions
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = time.Sleep
	}
	return &MockDevice{opts: opts}
}

func smoothPositions(seq uint32, n int) marker.Position {
	t := float64(seq) / 100
	return marker.Position{
		X: 100*float64(n) + 50*math.Sin(t),
		Y: 30 * math.Cos(t*0.7),
		Z: -2000 + 10*math.Sin(t*0.3),
	}
}

func (m *MockDevice) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "initialize")
	m.initialized = true
	return nil
}

func (m *MockDevice) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "shutdown")
	m.initialized = false
	m.active = false
	return nil
}

func (m *MockDevice) SetupCollection(s CollectionSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "setup")
	if !m.initialized {
		return errors.New("mock: device not initialized")
	}
	m.settings = s
	return nil
}

func (m *MockDevice) ActivateMarkers() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "activate")
	m.active = true
	return nil
}

func (m *MockDevice) DeactivateMarkers() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "deactivate")
	m.active = false
	return nil
}

func (m *MockDevice) Latest3D(wait bool) (marker.Frame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "latest3d")
	if !m.active {
		return marker.Frame{}, errors.New("mock: markers not activated")
	}

	if m.opts.Paced && m.settings.FrameFrequency > 0 && !m.lastFrame.IsZero() {
		period := time.Duration(float64(time.Second) / m.settings.FrameFrequency)
		next := m.lastFrame.Add(period)
		now := m.opts.Now()
		if now.Before(next) {
			if !wait {
				return marker.Frame{}, ErrNoFrame
			}
			m.opts.Sleep(next.Sub(now))
		}
	}
	m.lastFrame = m.opts.Now()

	m.seq++
	n := m.settings.NumMarkers - m.opts.DropMarkers
	if n < 0 {
		n = 0
	}
	f := marker.Frame{Sequence: m.seq, Markers: make([]marker.Position, n)}
	for i := range f.Markers {
		f.Markers[i] = m.opts.Positions(m.seq, i)
	}
	return f, nil
}

// Settings returns what the last SetupCollection call asked for.
func (m *MockDevice) Settings() CollectionSettings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings
}

// Calls returns the device operations in the order they were made.
func (m *MockDevice) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}
