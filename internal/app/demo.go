// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/relabs-tech/optical_tracker/internal/config"
	"github.com/relabs-tech/optical_tracker/internal/report"
	"github.com/relabs-tech/optical_tracker/internal/tracker"
)

// RunDemo polls cfg.DemoIterations frames from the configured tracker and
// prints marker 0 of each one to stdout.
func RunDemo(cfg *config.Config) error {
	strobe, err := openStrobe(cfg)
	if err != nil {
		return err
	}
	dev, err := openDevice(cfg)
	if err != nil {
		return err
	}
	return runDemo(os.Stdout, dev, cfg, strobe, time.Now)
}

func runDemo(w io.Writer, dev tracker.Device, cfg *config.Config, strobe frameStrobe, now func() time.Time) error {
	link, err := tracker.Open(dev, linkOptions(cfg))
	if err != nil {
		return err
	}
	defer func() {
		// only reached with the link open when something failed mid-run
		if !link.Closed() {
			if err := link.Shutdown(); err != nil {
				log.Printf("shutdown after failure: %v", err)
			}
		}
	}()

	c, err := startCollector(link, cfg)
	if err != nil {
		return err
	}

	rep := report.New(w)
	x := make([]float64, 3)

	for i := 0; i < cfg.DemoIterations; i++ {
		start := now()
		fn, err := c.UpdateFrame()
		elapsed := now().Sub(start)
		if err != nil {
			return fmt.Errorf("iteration %d: %w", i, err)
		}
		if strobe != nil {
			if err := strobe.Toggle(); err != nil {
				log.Printf("strobe: %v", err)
			}
		}

		if _, err := c.PositionInto(x, 0); err != nil {
			return fmt.Errorf("iteration %d: %w", i, err)
		}
		if err := rep.Buffered(i, fn, x, elapsed); err != nil {
			return err
		}

		y, err := c.Position(0)
		if err != nil {
			return fmt.Errorf("iteration %d: %w", i, err)
		}
		if err := rep.Allocated(y); err != nil {
			return err
		}
	}

	if err := rep.Stop(); err != nil {
		return err
	}
	return link.Shutdown()
}
