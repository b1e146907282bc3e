// Package replay provides deterministic capture and playback of the raw
// packets a netsync.Client sends and receives, for offline reproduction
// of desync and misprediction bugs.
package replay

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// MagicBytes identifies an entitysync trace file.
const MagicBytes = "ESNC"

// CurrentVersion is the trace file format version.
const CurrentVersion = uint16(1)

// Direction distinguishes a packet the client sent from one it received.
type Direction uint8

const (
	// DirectionIn is a packet received from the server.
	DirectionIn Direction = iota
	// DirectionOut is a packet sent by the client (an input batch).
	DirectionOut
)

// Header is the fixed preamble of a trace file.
type Header struct {
	Magic   [4]byte
	Version uint16
	Seed    int64
}

// Frame is a single captured packet.
type Frame struct {
	OffsetMillis uint32 // milliseconds since the trace started
	Dir          Direction
	Data         []byte
}

// Recorder appends frames to an open trace file as a client runs. It is
// not safe for concurrent use; call it from the same goroutine that
// drives netsync.Client.Update.
type Recorder struct {
	w         *bufio.Writer
	closer    io.Closer
	startTime time.Time
	log       *logrus.Entry
}

// NewRecorder creates path and writes the trace header, stamping seed
// for deterministic reproduction of any randomized test fixtures.
func NewRecorder(path string, seed int64, log *logrus.Entry) (*Recorder, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("replay: create %s: %w", path, err)
	}
	w := bufio.NewWriter(f)

	var hdr Header
	copy(hdr.Magic[:], MagicBytes)
	hdr.Version = CurrentVersion
	hdr.Seed = seed
	if err := binary.Write(w, binary.LittleEndian, hdr); err != nil {
		f.Close()
		return nil, fmt.Errorf("replay: write header: %w", err)
	}

	log.WithFields(logrus.Fields{"path": path, "seed": seed}).Debug("replay trace started")
	return &Recorder{w: w, closer: f, startTime: time.Now(), log: log}, nil
}

// Record appends one captured packet at the current trace time.
func (r *Recorder) Record(dir Direction, data []byte) error {
	frame := Frame{
		OffsetMillis: uint32(time.Since(r.startTime).Milliseconds()),
		Dir:          dir,
		Data:         data,
	}
	if err := binary.Write(r.w, binary.LittleEndian, frame.OffsetMillis); err != nil {
		return fmt.Errorf("replay: write offset: %w", err)
	}
	if err := binary.Write(r.w, binary.LittleEndian, frame.Dir); err != nil {
		return fmt.Errorf("replay: write direction: %w", err)
	}
	if err := binary.Write(r.w, binary.LittleEndian, uint32(len(frame.Data))); err != nil {
		return fmt.Errorf("replay: write length: %w", err)
	}
	if _, err := r.w.Write(frame.Data); err != nil {
		return fmt.Errorf("replay: write payload: %w", err)
	}
	return nil
}

// TraceInbound records a packet the client received. Together with
// TraceOutbound it satisfies netsync.Tracer, so a Recorder attaches
// directly via Client.SetTracer; write failures are logged rather than
// surfaced, since tracing must never disturb the client it observes.
func (r *Recorder) TraceInbound(data []byte) {
	if err := r.Record(DirectionIn, data); err != nil {
		r.log.WithError(err).Warn("failed to record inbound trace frame")
	}
}

// TraceOutbound records an input packet the client produced.
func (r *Recorder) TraceOutbound(data []byte) {
	if err := r.Record(DirectionOut, data); err != nil {
		r.log.WithError(err).Warn("failed to record outbound trace frame")
	}
}

// Close flushes buffered frames and closes the underlying file.
func (r *Recorder) Close() error {
	if err := r.w.Flush(); err != nil {
		return fmt.Errorf("replay: flush: %w", err)
	}
	return r.closer.Close()
}

// Reader replays a trace file written by Recorder, one frame at a time.
type Reader struct {
	r      *bufio.Reader
	closer io.Closer
	Header Header
}

// OpenReader opens path and parses its header.
func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("replay: open %s: %w", path, err)
	}
	r := bufio.NewReader(f)

	var hdr Header
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		f.Close()
		return nil, fmt.Errorf("replay: read header: %w", err)
	}
	if string(hdr.Magic[:]) != MagicBytes {
		f.Close()
		return nil, fmt.Errorf("replay: %s is not an entitysync trace", path)
	}
	return &Reader{r: r, closer: f, Header: hdr}, nil
}

// Next returns the next frame, or io.EOF once the trace is exhausted.
func (r *Reader) Next() (Frame, error) {
	var frame Frame
	if err := binary.Read(r.r, binary.LittleEndian, &frame.OffsetMillis); err != nil {
		return Frame{}, err
	}
	if err := binary.Read(r.r, binary.LittleEndian, &frame.Dir); err != nil {
		return Frame{}, fmt.Errorf("replay: read direction: %w", err)
	}
	var n uint32
	if err := binary.Read(r.r, binary.LittleEndian, &n); err != nil {
		return Frame{}, fmt.Errorf("replay: read length: %w", err)
	}
	frame.Data = make([]byte, n)
	if _, err := io.ReadFull(r.r, frame.Data); err != nil {
		return Frame{}, fmt.Errorf("replay: read payload: %w", err)
	}
	return frame, nil
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.closer.Close()
}
