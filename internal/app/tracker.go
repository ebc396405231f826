// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"log"
	"time"

	"github.com/relabs-tech/optical_tracker/internal/config"
	"github.com/relabs-tech/optical_tracker/internal/sensors"
	"github.com/relabs-tech/optical_tracker/internal/tracker"
)

// frameStrobe is toggled once per polled frame.
type frameStrobe interface {
	Toggle() error
}

// openDevice picks the tracker backend named by HARDWARE.
func openDevice(cfg *config.Config) (tracker.Device, error) {
	switch cfg.Hardware {
	case config.HardwareMock:
		log.Println("using simulated tracker")
		return tracker.NewMockDevice(tracker.MockOptions{Paced: true}), nil
	case config.HardwareSerial:
		ackTimeout := time.Duration(cfg.BridgeAckTimeoutMS) * time.Millisecond
		return sensors.OpenBridge(cfg.BridgeSerialPort, cfg.BridgeBaudRate, ackTimeout)
	default:
		return nil, fmt.Errorf("unknown hardware %q", cfg.Hardware)
	}
}

// openStrobe returns nil when no strobe pin is configured.
func openStrobe(cfg *config.Config) (frameStrobe, error) {
	if cfg.SyncGPIOPin == "" {
		return nil, nil
	}
	return sensors.NewStrobe(cfg.SyncGPIOPin)
}

func linkOptions(cfg *config.Config) tracker.Options {
	return tracker.Options{SettleDelay: time.Duration(cfg.SettleDelayMS) * time.Millisecond}
}

// startCollector configures, sets up and activates a collector from cfg.
func startCollector(link *tracker.Link, cfg *config.Config) (*tracker.Collector, error) {
	c := link.NewCollector()
	if err := c.AddMarkers(cfg.MarkerCount, cfg.MarkerPort); err != nil {
		return nil, err
	}
	c.FrameFrequency = cfg.FrameFrequency
	c.MarkerFrequency = cfg.MarkerFrequency
	c.Threshold = cfg.Threshold
	c.Gain = cfg.Gain
	c.StreamMode = cfg.StreamMode
	c.DutyCycle = cfg.DutyCycle
	c.Voltage = cfg.Voltage
	c.CollectTime = cfg.CollectTime
	c.TriggerTime = cfg.TriggerTime
	if cfg.Blocking {
		c.EnforceBlocking()
	} else {
		c.SetNonBlocking()
	}

	if err := c.SetupCollection(); err != nil {
		return nil, err
	}
	if err := c.Activate(); err != nil {
		return nil, err
	}
	log.Printf("collecting %d markers at %g Hz (blocking=%v)", c.NumElements(), c.FrameFrequency, !c.IsNonBlocking())
	return c, nil
}
