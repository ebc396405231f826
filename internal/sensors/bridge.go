// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	nmea "github.com/adrianmo/go-nmea"
	serial "github.com/jacobsa/go-serial/serial"

	"github.com/relabs-tech/optical_tracker/internal/marker"
	"github.com/relabs-tech/optical_tracker/internal/tracker"
)

// Sentences exchanged with the tracker bridge. The bridge is the PC that
// runs the vendor SDK and forwards frames over a serial line.
//
//	host -> bridge: $OTINI  $OTSET,...  $OTACT  $OTDEA  $OTSHD
//	bridge -> host: $OTACK,<cmd>,<status>  $OTFRM,<seq>,<flags>,<n>,x,y,z,...
const (
	talkerID = "OT"

	cmdInitialize = "INI"
	cmdSetup      = "SET"
	cmdActivate   = "ACT"
	cmdDeactivate = "DEA"
	cmdShutdown   = "SHD"

	typeAck   = "ACK"
	typeFrame = "FRM"

	// maxFrameMarkers matches the largest MARKER_COUNT the config accepts.
	maxFrameMarkers = 512
)

// FrameSentence is a decoded $OTFRM sentence.
type FrameSentence struct {
	nmea.BaseSentence
	Frame marker.Frame
}

// AckSentence is a decoded $OTACK sentence. Status 0 means success.
type AckSentence struct {
	nmea.BaseSentence
	Command string
	Status  int64
}

func parseFrameSentence(s nmea.BaseSentence) (nmea.Sentence, error) {
	p := nmea.NewParser(s)
	seq := p.Int64(0, "sequence")
	flags := p.Int64(1, "flags")
	n := p.Int64(2, "marker count")
	if err := p.Err(); err != nil {
		return nil, err
	}
	if seq < 0 || seq > math.MaxUint32 {
		return nil, fmt.Errorf("nmea: %s sequence %d out of range", s.Prefix(), seq)
	}
	if flags < 0 || flags > math.MaxUint32 {
		return nil, fmt.Errorf("nmea: %s flags %d out of range", s.Prefix(), flags)
	}
	// bound n before multiplying so a corrupt count cannot wrap
	if n < 0 || n > maxFrameMarkers || len(s.Fields) != 3+3*int(n) {
		return nil, fmt.Errorf("nmea: %s marker count %d does not match %d fields", s.Prefix(), n, len(s.Fields))
	}

	f := marker.Frame{Sequence: uint32(seq), Flags: uint32(flags), Markers: make([]marker.Position, n)}
	for i := range f.Markers {
		f.Markers[i] = marker.Position{
			X: p.Float64(3+3*i, "x"),
			Y: p.Float64(4+3*i, "y"),
			Z: p.Float64(5+3*i, "z"),
		}
	}
	return FrameSentence{BaseSentence: s, Frame: f}, p.Err()
}

func parseAckSentence(s nmea.BaseSentence) (nmea.Sentence, error) {
	p := nmea.NewParser(s)
	a := AckSentence{
		BaseSentence: s,
		Command:      p.String(0, "command"),
		Status:       p.Int64(1, "status"),
	}
	return a, p.Err()
}

func newSentenceParser() *nmea.SentenceParser {
	return &nmea.SentenceParser{
		CustomParsers: map[string]nmea.ParserFunc{
			typeFrame: parseFrameSentence,
			typeAck:   parseAckSentence,
		},
	}
}

// encodeSentence builds a checksummed sentence line for the given type.
func encodeSentence(typ string, fields ...string) string {
	body := talkerID + typ
	if len(fields) > 0 {
		body += "," + strings.Join(fields, ",")
	}
	return "$" + body + "*" + nmea.Checksum(body) + "\r\n"
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Bridge is a tracker.Device reached over a serial line.
type Bridge struct {
	port       io.ReadWriteCloser
	parser     *nmea.SentenceParser
	ackTimeout time.Duration

	writeMu sync.Mutex
	acks    chan AckSentence
	frames  chan marker.Frame // newest unread frame only
	done    chan struct{}
	readErr error
}

// OpenBridge opens the serial port of a tracker bridge.
func OpenBridge(portName string, baudRate int, ackTimeout time.Duration) (*Bridge, error) {
	serialOpts := serial.OpenOptions{
		PortName:              portName,
		BaudRate:              uint(baudRate),
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}

	port, err := serial.Open(serialOpts)
	if err != nil {
		return nil, fmt.Errorf("bridge: open %s: %w", portName, err)
	}
	log.Printf("bridge: serial port opened on %s at %d baud", portName, baudRate)

	return NewBridge(port, ackTimeout), nil
}

// NewBridge starts reading sentences from port.
func NewBridge(port io.ReadWriteCloser, ackTimeout time.Duration) *Bridge {
	b := &Bridge{
		port:       port,
		parser:     newSentenceParser(),
		ackTimeout: ackTimeout,
		acks:       make(chan AckSentence, 4),
		frames:     make(chan marker.Frame, 1),
		done:       make(chan struct{}),
	}
	go b.readLoop()
	return b
}

func (b *Bridge) readLoop() {
	defer close(b.done)
	reader := bufio.NewReader(b.port)

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			b.readErr = fmt.Errorf("bridge: read: %w", err)
			return
		}

		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "$") {
			continue
		}

		sentence, err := b.parser.Parse(line)
		if err != nil {
			// line noise or a sentence type we do not use
			log.Printf("bridge: parse error: %v (line: %q)", err, line)
			continue
		}

		switch m := sentence.(type) {
		case FrameSentence:
			b.pushFrame(m.Frame)
		case AckSentence:
			select {
			case b.acks <- m:
			default:
				log.Printf("bridge: dropping unexpected ack for %s", m.Command)
			}
		}
	}
}

// pushFrame keeps only the newest frame. Only readLoop sends on b.frames.
func (b *Bridge) pushFrame(f marker.Frame) {
	select {
	case b.frames <- f:
		return
	default:
	}
	select {
	case <-b.frames:
	default:
	}
	b.frames <- f
}

func (b *Bridge) send(typ string, fields ...string) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	if _, err := io.WriteString(b.port, encodeSentence(typ, fields...)); err != nil {
		return fmt.Errorf("bridge: write %s: %w", typ, err)
	}
	return nil
}

// command sends a sentence and waits for its acknowledgement.
func (b *Bridge) command(typ string, fields ...string) error {
	if err := b.send(typ, fields...); err != nil {
		return err
	}

	timer := time.NewTimer(b.ackTimeout)
	defer timer.Stop()

	for {
		select {
		case a := <-b.acks:
			if a.Command != typ {
				log.Printf("bridge: ignoring ack for %s while waiting for %s", a.Command, typ)
				continue
			}
			if a.Status != 0 {
				return fmt.Errorf("bridge: %s rejected with status %d", typ, a.Status)
			}
			return nil
		case <-b.done:
			return b.readErr
		case <-timer.C:
			return fmt.Errorf("bridge: no ack for %s after %v", typ, b.ackTimeout)
		}
	}
}

func (b *Bridge) Initialize() error {
	return b.command(cmdInitialize)
}

func (b *Bridge) SetupCollection(s tracker.CollectionSettings) error {
	return b.command(cmdSetup,
		strconv.Itoa(s.NumMarkers),
		formatFloat(s.FrameFrequency),
		formatFloat(s.MarkerFrequency),
		strconv.Itoa(s.Threshold),
		strconv.Itoa(s.Gain),
		strconv.Itoa(s.StreamMode),
		formatFloat(s.DutyCycle),
		formatFloat(s.Voltage),
		formatFloat(s.CollectTime),
		formatFloat(s.TriggerTime),
		strconv.FormatUint(uint64(s.Flags), 10),
	)
}

func (b *Bridge) ActivateMarkers() error {
	return b.command(cmdActivate)
}

func (b *Bridge) DeactivateMarkers() error {
	return b.command(cmdDeactivate)
}

// Latest3D returns the newest frame not handed out before. With wait set
// it blocks until one arrives or the port fails.
func (b *Bridge) Latest3D(wait bool) (marker.Frame, error) {
	if wait {
		select {
		case f := <-b.frames:
			return f, nil
		case <-b.done:
			return marker.Frame{}, b.readErr
		}
	}

	select {
	case f := <-b.frames:
		return f, nil
	case <-b.done:
		return marker.Frame{}, b.readErr
	default:
		return marker.Frame{}, tracker.ErrNoFrame
	}
}

// Close releases the serial port without talking to the bridge. Blocked
// reads return the port error.
func (b *Bridge) Close() error {
	return b.port.Close()
}

// Shutdown asks the bridge to release the system unit and closes the port.
func (b *Bridge) Shutdown() error {
	cmdErr := b.command(cmdShutdown)
	if err := b.port.Close(); err != nil {
		return fmt.Errorf("bridge: close: %w", err)
	}
	return cmdErr
}
