package replay

import (
	"io"
	"os"
	"path/filepath"
	"testing"
)

func writeGarbage(path string) error {
	return os.WriteFile(path, []byte("not a trace file at all"), 0o644)
}

func TestRecordAndReplayRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.esnc")

	rec, err := NewRecorder(path, 42, nil)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	if err := rec.Record(DirectionIn, []byte{1, 2, 3}); err != nil {
		t.Fatalf("Record in: %v", err)
	}
	if err := rec.Record(DirectionOut, []byte{4, 5}); err != nil {
		t.Fatalf("Record out: %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r, err := OpenReader(path)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer r.Close()
	if r.Header.Seed != 42 {
		t.Fatalf("Seed = %d, want 42", r.Header.Seed)
	}

	first, err := r.Next()
	if err != nil {
		t.Fatalf("Next (first): %v", err)
	}
	if first.Dir != DirectionIn || string(first.Data) != "\x01\x02\x03" {
		t.Fatalf("first frame = %+v", first)
	}

	second, err := r.Next()
	if err != nil {
		t.Fatalf("Next (second): %v", err)
	}
	if second.Dir != DirectionOut || string(second.Data) != "\x04\x05" {
		t.Fatalf("second frame = %+v", second)
	}

	if _, err := r.Next(); err != io.EOF {
		t.Fatalf("expected io.EOF at end of trace, got %v", err)
	}
}

func TestOpenReaderRejectsForeignFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-a-trace.bin")
	if err := writeGarbage(path); err != nil {
		t.Fatalf("writeGarbage: %v", err)
	}
	if _, err := OpenReader(path); err == nil {
		t.Fatal("expected an error opening a file without the entitysync magic")
	}
}
