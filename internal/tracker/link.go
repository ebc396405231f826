// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package tracker

import (
	"fmt"
	"io"
	"log"
	"sync"
	"time"
)

// Options tune how a Link drives its device.
type Options struct {
	// SettleDelay is slept after initialize, setup, activate and before
	// shutdown. The hardware needs about a second.
	SettleDelay time.Duration
	// Sleep replaces time.Sleep, mostly for tests.
	Sleep func(time.Duration)
}

// Link owns an initialized device for the lifetime of the program.
// Shutdown may be called from another goroutine to release a poll that
// is still waiting on the device.
type Link struct {
	dev  Device
	opts Options

	mu     sync.Mutex
	closed bool
}

// Open initializes dev and returns a Link that owns it.
func Open(dev Device, opts Options) (*Link, error) {
	if opts.Sleep == nil {
		opts.Sleep = time.Sleep
	}
	if err := dev.Initialize(); err != nil {
		// devices holding a port or goroutine release it here
		if c, ok := dev.(io.Closer); ok {
			if cerr := c.Close(); cerr != nil {
				log.Printf("tracker: close after failed initialize: %v", cerr)
			}
		}
		return nil, fmt.Errorf("tracker: initialize: %w", err)
	}
	l := &Link{dev: dev, opts: opts}
	l.settle()
	return l, nil
}

// NewCollector returns a collector with default settings bound to this link.
func (l *Link) NewCollector() *Collector {
	return newCollector(l)
}

// Shutdown deactivates the markers and releases the device. It must be the
// last call on the link.
func (l *Link) Shutdown() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrLinkClosed
	}
	l.closed = true
	l.mu.Unlock()

	if err := l.dev.DeactivateMarkers(); err != nil {
		log.Printf("tracker: deactivate before shutdown: %v", err)
	}
	l.settle()

	if err := l.dev.Shutdown(); err != nil {
		return fmt.Errorf("tracker: shutdown: %w", err)
	}
	return nil
}

// Closed reports whether Shutdown has been called.
func (l *Link) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func (l *Link) settle() {
	if l.opts.SettleDelay > 0 {
		l.opts.Sleep(l.opts.SettleDelay)
	}
}
