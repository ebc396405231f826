// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package tracker

import (
	"errors"

	"github.com/relabs-tech/optical_tracker/internal/marker"
)

// Collection flags passed to the device with SetupCollection.
const (
	FlagNoFireMarkers uint32 = 1 << iota
	FlagBufferRaw
	FlagGetNextFrame
)

var (
	ErrLinkClosed     = errors.New("tracker: link already shut down")
	ErrAlreadySetup   = errors.New("tracker: setup collection can be called only once")
	ErrNotSetup       = errors.New("tracker: collection not set up")
	ErrNotActive      = errors.New("tracker: markers not activated")
	ErrNoMarkers      = errors.New("tracker: no markers added")
	ErrNoFrame        = errors.New("tracker: no frame available")
	ErrMissingMarkers = errors.New("tracker: missing marker elements")
	ErrMarkerIndex    = errors.New("tracker: marker index out of range")
	ErrPort           = errors.New("tracker: invalid strober port")
)

// CollectionSettings is what a device needs to start collecting frames.
type CollectionSettings struct {
	NumMarkers      int
	FrameFrequency  float64 // Hz
	MarkerFrequency float64 // Hz
	Threshold       int
	Gain            int
	StreamMode      int
	DutyCycle       float64
	Voltage         float64
	CollectTime     float64 // seconds
	TriggerTime     float64 // seconds
	Flags           uint32
}

// Device is the capability set of an optical tracking system.
// Implementations talk to real hardware or simulate it.
type Device interface {
	Initialize() error
	Shutdown() error
	SetupCollection(s CollectionSettings) error
	ActivateMarkers() error
	DeactivateMarkers() error
	// Latest3D returns the newest frame. With wait set it blocks until a
	// frame newer than the last one returned is available; otherwise it
	// returns ErrNoFrame when nothing new is ready.
	Latest3D(wait bool) (marker.Frame, error)
}
