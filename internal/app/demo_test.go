package app

import (
	"bufio"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/relabs-tech/optical_tracker/internal/config"
	"github.com/relabs-tech/optical_tracker/internal/marker"
	"github.com/relabs-tech/optical_tracker/internal/tracker"
)

func mockConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Hardware = config.HardwareMock
	cfg.SettleDelayMS = 0
	return cfg
}

// eventLog records device calls and output lines in one ordered list.
type eventLog struct {
	events []string
}

func (l *eventLog) Write(p []byte) (int, error) {
	for _, line := range strings.SplitAfter(string(p), "\n") {
		if line != "" {
			l.events = append(l.events, "out:"+strings.TrimSuffix(line, "\n"))
		}
	}
	return len(p), nil
}

// loggedDevice wraps a device, logs shutdown and advances a fake clock by
// pollCost during each poll.
type loggedDevice struct {
	tracker.Device
	log      *eventLog
	clock    *time.Time
	pollCost time.Duration
	failAt   int
	polls    int
}

func (d *loggedDevice) Latest3D(wait bool) (marker.Frame, error) {
	d.polls++
	if d.failAt > 0 && d.polls == d.failAt {
		return marker.Frame{}, errors.New("system unit not responding")
	}
	*d.clock = d.clock.Add(d.pollCost)
	return d.Device.Latest3D(wait)
}

func (d *loggedDevice) Shutdown() error {
	d.log.events = append(d.log.events, "shutdown")
	return d.Device.Shutdown()
}

type countingStrobe struct{ n int }

func (s *countingStrobe) Toggle() error { s.n++; return nil }

func newLoggedDevice(log *eventLog) (*loggedDevice, func() time.Time) {
	clock := time.Unix(1700000000, 0)
	dev := &loggedDevice{
		Device:   tracker.NewMockDevice(tracker.MockOptions{Positions: tracker.FixedPositions(marker.Position{X: 1, Y: 2, Z: 3})}),
		log:      log,
		clock:    &clock,
		pollCost: 2500 * time.Microsecond,
	}
	now := func() time.Time {
		// formatting and printing happen between polls; they must not count
		clock = clock.Add(time.Millisecond)
		return clock
	}
	return dev, now
}

func TestDemoScenario(t *testing.T) {
	events := &eventLog{}
	dev, now := newLoggedDevice(events)
	strobe := &countingStrobe{}

	if err := runDemo(events, dev, mockConfig(), strobe, now); err != nil {
		t.Fatalf("runDemo: %v", err)
	}

	var want []string
	for i := 0; i < 10; i++ {
		// poll cost 2.5ms plus the 1ms the fake clock ticks per call
		want = append(want, fmt.Sprintf("out:%d %d x:1 2 3 at 3.5", i, i+1), "out: y:1 2 3 ")
	}
	want = append(want, "out:Stop", "shutdown")

	if len(events.events) != len(want) {
		t.Fatalf("got %d events, want %d:\n%s", len(events.events), len(want), strings.Join(events.events, "\n"))
	}
	for i := range want {
		if events.events[i] != want[i] {
			t.Errorf("event %d = %q, want %q", i, events.events[i], want[i])
		}
	}
	if strobe.n != 10 {
		t.Errorf("strobe toggled %d times, want 10", strobe.n)
	}
}

func TestDemoLinesPerIteration(t *testing.T) {
	var sb strings.Builder
	cfg := mockConfig()
	cfg.DemoIterations = 4
	cfg.MarkerCount = 5

	dev := tracker.NewMockDevice(tracker.MockOptions{})
	if err := runDemo(&sb, dev, cfg, nil, time.Now); err != nil {
		t.Fatal(err)
	}

	scanner := bufio.NewScanner(strings.NewReader(sb.String()))
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if len(lines) != 2*4+1 {
		t.Fatalf("got %d lines, want 9:\n%s", len(lines), sb.String())
	}

	lastSeq := 0
	for i := 0; i < 4; i++ {
		var idx, seq int
		var x0, x1, x2, ms float64
		if _, err := fmt.Sscanf(lines[2*i], "%d %d x:%g %g %g at %g", &idx, &seq, &x0, &x1, &x2, &ms); err != nil {
			t.Fatalf("line %q: %v", lines[2*i], err)
		}
		var y0, y1, y2 float64
		if _, err := fmt.Sscanf(lines[2*i+1], " y:%g %g %g", &y0, &y1, &y2); err != nil {
			t.Fatalf("line %q: %v", lines[2*i+1], err)
		}
		if idx != i {
			t.Errorf("index %d, want %d", idx, i)
		}
		if seq < lastSeq {
			t.Errorf("sequence went backwards: %d after %d", seq, lastSeq)
		}
		lastSeq = seq
		if ms < 0 {
			t.Errorf("negative elapsed %g", ms)
		}
		if x0 != y0 || x1 != y1 || x2 != y2 {
			t.Errorf("iteration %d: buffered (%g %g %g) != allocated (%g %g %g)", i, x0, x1, x2, y0, y1, y2)
		}
	}
	if lines[8] != "Stop" {
		t.Errorf("last line %q, want Stop", lines[8])
	}
	calls := dev.Calls()
	if calls[len(calls)-1] != "shutdown" {
		t.Errorf("last device call %q, want shutdown", calls[len(calls)-1])
	}
}

func TestDemoPollFailureStillShutsDown(t *testing.T) {
	events := &eventLog{}
	dev, now := newLoggedDevice(events)
	dev.failAt = 3

	err := runDemo(events, dev, mockConfig(), nil, now)
	if err == nil || !strings.Contains(err.Error(), "iteration 2") {
		t.Fatalf("expected failure at iteration 2, got %v", err)
	}

	got := events.events
	if len(got) != 5 {
		t.Fatalf("events = %v", got)
	}
	if got[len(got)-1] != "shutdown" {
		t.Fatalf("link not shut down: %v", got)
	}
	for _, e := range got {
		if e == "out:Stop" {
			t.Fatal("Stop printed after a failure")
		}
	}
}

func TestDemoMissingMarkersAborts(t *testing.T) {
	cfg := mockConfig()
	dev := tracker.NewMockDevice(tracker.MockOptions{DropMarkers: 1})

	var sb strings.Builder
	err := runDemo(&sb, dev, cfg, nil, time.Now)
	if !errors.Is(err, tracker.ErrMissingMarkers) {
		t.Fatalf("expected ErrMissingMarkers, got %v", err)
	}
	if sb.Len() != 0 {
		t.Fatalf("unexpected output %q", sb.String())
	}
}
