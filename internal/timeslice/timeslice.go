// Package timeslice records how long each phase of the pipeline takes into a
// compact binary log.
package timeslice

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

const (
	Magic   uint32 = 0x534c544a // "JTLS"
	Version uint32 = 1
)

type header struct {
	Magic       uint32
	Version     uint32
	KindsLength uint32
}

// Kind identifies a recorded phase.
type Kind uint64

var kinds = make(map[Kind]string)

// RegisterKind names a new phase. Call it from package initialisation only.
func RegisterKind(name string) Kind {
	id := Kind(len(kinds) + 1)
	kinds[id] = name
	return id
}

// Name returns the registered name of k.
func (k Kind) Name() string { return kinds[k] }

type record struct {
	Kind     Kind
	Duration int64
}

// Writer appends records to an underlying stream. Only one Writer is
// active at a time. Record may be called from any goroutine.
type Writer struct {
	mu     sync.Mutex
	w      *bufio.Writer
	err    error
	closed bool
}

var current atomic.Pointer[Writer]

var errAlreadyOpen = errors.New("timeslice: already open")

// Open writes the log header and makes the returned Writer the destination
// of Record until it is closed.
func Open(w io.Writer) (*Writer, error) {
	if current.Load() != nil {
		return nil, errAlreadyOpen
	}

	names, err := json.Marshal(kinds)
	if err != nil {
		return nil, fmt.Errorf("timeslice: marshal kinds: %w", err)
	}

	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, header{
		Magic:       Magic,
		Version:     Version,
		KindsLength: uint32(len(names)),
	}); err != nil {
		return nil, fmt.Errorf("timeslice: write header: %w", err)
	}
	if _, err := bw.Write(names); err != nil {
		return nil, fmt.Errorf("timeslice: write kinds: %w", err)
	}

	out := &Writer{w: bw}
	if !current.CompareAndSwap(nil, out) {
		return nil, errAlreadyOpen
	}
	return out, nil
}

func (w *Writer) write(r record) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed || w.err != nil {
		return
	}
	w.err = binary.Write(w.w, binary.LittleEndian, r)
}

// Close flushes buffered records and detaches the writer. Records that race
// with Close are dropped.
func (w *Writer) Close() error {
	if !current.CompareAndSwap(w, nil) {
		return errors.New("timeslice: already closed")
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.closed = true
	if w.err != nil {
		return fmt.Errorf("timeslice: write record: %w", w.err)
	}
	return w.w.Flush()
}

// Record logs one duration for kind. It does nothing unless a Writer is
// open.
func Record(kind Kind, d time.Duration) {
	if w := current.Load(); w != nil {
		w.write(record{Kind: kind, Duration: d.Nanoseconds()})
	}
}

// Recorder measures consecutive phases.
type Recorder struct {
	last time.Time
}

func NewRecorder() *Recorder {
	return &Recorder{last: time.Now()}
}

// Record logs the time since the previous call (or NewRecorder) as kind.
func (r *Recorder) Record(kind Kind) {
	now := time.Now()
	Record(kind, now.Sub(r.last))
	r.last = now
}

// ReadAll decodes a log written through Open, calling fn for every record.
func ReadAll(r io.Reader, fn func(name string, d time.Duration) error) error {
	buf := bufio.NewReader(r)

	var h header
	if err := binary.Read(buf, binary.LittleEndian, &h); err != nil {
		return fmt.Errorf("timeslice: read header: %w", err)
	}
	if h.Magic != Magic {
		return errors.New("timeslice: invalid magic")
	}
	if h.Version != Version {
		return fmt.Errorf("timeslice: unsupported version %d", h.Version)
	}

	var names map[Kind]string
	if err := json.NewDecoder(io.LimitReader(buf, int64(h.KindsLength))).Decode(&names); err != nil {
		return fmt.Errorf("timeslice: decode kinds: %w", err)
	}

	for {
		var rec record
		if err := binary.Read(buf, binary.LittleEndian, &rec); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("timeslice: read record: %w", err)
		}
		name, ok := names[rec.Kind]
		if !ok {
			return fmt.Errorf("timeslice: unknown kind %d", rec.Kind)
		}
		if err := fn(name, time.Duration(rec.Duration)); err != nil {
			return err
		}
	}
}
