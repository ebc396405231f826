// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/optical_tracker/internal/config"
	"github.com/relabs-tech/optical_tracker/internal/marker"
	"github.com/relabs-tech/optical_tracker/internal/tracker"
)

// maxConsecutivePollErrors stops the producer when the tracker keeps failing.
const maxConsecutivePollErrors = 50

type framePublisher interface {
	Publish(topic string, payload []byte) error
}

type mqttPublisher struct {
	client mqtt.Client
}

func (p mqttPublisher) Publish(topic string, payload []byte) error {
	token := p.client.Publish(topic, 0, true, payload)
	token.Wait()
	return token.Error()
}

// RunFrameProducer polls the tracker until SIGINT/SIGTERM and publishes
// every frame as JSON to cfg.TopicFrame.
func RunFrameProducer(cfg *config.Config) error {
	strobe, err := openStrobe(cfg)
	if err != nil {
		return err
	}

	// --- connect to MQTT ---
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDProducer)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("MQTT connect error: %w", token.Error())
	}
	defer client.Disconnect(250)
	log.Printf("connected to MQTT broker at %s", cfg.MQTTBroker)

	// --- bring up the tracker, last so nothing above can leak it ---
	dev, err := openDevice(cfg)
	if err != nil {
		return err
	}
	link, err := tracker.Open(dev, linkOptions(cfg))
	if err != nil {
		return err
	}
	// also releases a poll still blocked when the signal arrived
	defer func() {
		if err := link.Shutdown(); err != nil {
			log.Printf("tracker shutdown: %v", err)
		}
	}()

	c, err := startCollector(link, cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("publishing frames to %s", cfg.TopicFrame)
	n, err := produceFrames(ctx, c, mqttPublisher{client: client}, cfg.TopicFrame, cfg.ProducerLogInterval, strobe)
	log.Printf("frame producer stopped after %d frames", n)
	return err
}

type pollResult struct {
	frame marker.Frame
	err   error
}

// produceFrames publishes frames from src until ctx is done. It returns
// the number of frames published.
//
// Each poll runs in its own goroutine so that cancelling ctx returns even
// while a blocking poll waits. That goroutine ends once the caller shuts
// the link down.
func produceFrames(ctx context.Context, src marker.Source, pub framePublisher, topic string, logEvery int, strobe frameStrobe) (int, error) {
	published := 0
	failures := 0
	results := make(chan pollResult, 1)

	for {
		select {
		case <-ctx.Done():
			return published, nil
		default:
		}

		go func() {
			f, err := src.Next()
			results <- pollResult{frame: f, err: err}
		}()

		var r pollResult
		select {
		case <-ctx.Done():
			return published, nil
		case r = <-results:
		}

		f, err := r.frame, r.err
		if err != nil {
			if errors.Is(err, tracker.ErrNoFrame) {
				// non-blocking mode, nothing new yet
				time.Sleep(time.Millisecond)
				continue
			}
			if errors.Is(err, tracker.ErrLinkClosed) {
				return published, err
			}
			failures++
			if failures >= maxConsecutivePollErrors {
				return published, fmt.Errorf("giving up after %d poll errors: %w", failures, err)
			}
			log.Printf("frame poll error: %v", err)
			continue
		}
		failures = 0

		if strobe != nil {
			if err := strobe.Toggle(); err != nil {
				log.Printf("strobe: %v", err)
			}
		}

		payload, err := json.Marshal(f)
		if err != nil {
			log.Printf("json marshal error (frame): %v", err)
			continue
		}
		if err := pub.Publish(topic, payload); err != nil {
			log.Printf("MQTT publish error (%s): %v", topic, err)
			continue
		}
		published++

		if logEvery > 0 && published%logEvery == 0 {
			log.Printf("published %d frames, seq=%d visible=%d/%d", published, f.Sequence, f.Visible(), len(f.Markers))
		}
	}
}
