package timeslice

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

var (
	kindA = RegisterKind("a")
	kindB = RegisterKind("b")
)

func TestTimeslice(t *testing.T) {
	var buf bytes.Buffer
	w, err := Open(&buf)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	Record(kindA, 100*time.Millisecond)
	Record(kindB, 200*time.Millisecond)
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Dropped once closed.
	Record(kindA, time.Second)

	var seen []string
	var total time.Duration
	if err := ReadAll(bytes.NewReader(buf.Bytes()), func(name string, d time.Duration) error {
		seen = append(seen, name)
		total += d
		return nil
	}); err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(seen) != 2 || seen[0] != "a" || seen[1] != "b" {
		t.Fatalf("records=%v, want [a b]", seen)
	}
	if total != 300*time.Millisecond {
		t.Fatalf("total=%v, want 300ms", total)
	}
}

func TestOpenTwice(t *testing.T) {
	var buf bytes.Buffer
	w, err := Open(&buf)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer w.Close()

	if _, err := Open(&buf); err == nil {
		t.Fatalf("second Open succeeded")
	}
}

func TestRecorderToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "phases.bin")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	w, err := Open(f)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	r := NewRecorder()
	r.Record(kindA)
	r.Record(kindB)
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := w.Close(); err == nil {
		t.Fatalf("double Close succeeded")
	}
	f.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	count := 0
	if err := ReadAll(bytes.NewReader(data), func(name string, d time.Duration) error {
		count++
		if d < 0 {
			t.Fatalf("%s: negative duration %v", name, d)
		}
		return nil
	}); err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if count != 2 {
		t.Fatalf("records=%d, want 2", count)
	}
}

func TestReadAllRejectsGarbage(t *testing.T) {
	if err := ReadAll(bytes.NewReader([]byte("not a log at all")), func(string, time.Duration) error { return nil }); err == nil {
		t.Fatalf("ReadAll accepted garbage")
	}
}

func TestConcurrentRecord(t *testing.T) {
	const (
		workers = 8
		each    = 200
	)

	var buf bytes.Buffer
	w, err := Open(&buf)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(kind Kind) {
			defer wg.Done()
			r := NewRecorder()
			for j := 0; j < each; j++ {
				r.Record(kind)
			}
		}([]Kind{kindA, kindB}[i%2])
	}
	wg.Wait()
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	counts := make(map[string]int)
	if err := ReadAll(bytes.NewReader(buf.Bytes()), func(name string, d time.Duration) error {
		counts[name]++
		return nil
	}); err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	half := workers / 2 * each
	if counts[kindA.Name()] != half || counts[kindB.Name()] != half {
		t.Fatalf("counts=%v, want %d of each", counts, half)
	}
}

func TestOpenRace(t *testing.T) {
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		opened []*Writer
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if w, err := Open(&bytes.Buffer{}); err == nil {
				mu.Lock()
				opened = append(opened, w)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(opened) != 1 {
		t.Fatalf("%d writers opened, want 1", len(opened))
	}
	if err := opened[0].Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
