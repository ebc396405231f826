// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"
	"log"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// Strobe is a GPIO output that flips level on every polled frame, so a
// scope or DAQ can line its samples up with tracker frames.
type Strobe struct {
	pin   gpio.PinOut
	level gpio.Level
}

// NewStrobe opens GPIO pin name (e.g. "GPIO17") as a strobe output.
func NewStrobe(name string) (*Strobe, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("strobe: periph host init: %w", err)
	}

	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("strobe: pin %q not found", name)
	}

	s, err := newStrobe(pin)
	if err != nil {
		return nil, err
	}
	log.Printf("strobe: toggling %s once per frame", pin.Name())
	return s, nil
}

func newStrobe(pin gpio.PinOut) (*Strobe, error) {
	if err := pin.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("strobe: set %s low: %w", pin.Name(), err)
	}
	return &Strobe{pin: pin, level: gpio.Low}, nil
}

// Toggle flips the output level.
func (s *Strobe) Toggle() error {
	s.level = !s.level
	if err := s.pin.Out(s.level); err != nil {
		return fmt.Errorf("strobe: %s: %w", s.pin.Name(), err)
	}
	return nil
}

// Level is the level last written to the pin.
func (s *Strobe) Level() gpio.Level {
	return s.level
}
