package netsync

import "testing"

func TestWriterReaderRoundTrip(t *testing.T) {
	w := NewWriter(nil)
	w.WriteU8(7)
	w.WriteU16(1234)
	w.WriteU32(987654321)
	w.WriteBytes([]byte{1, 2, 3})

	r := NewReader(w.Bytes())
	if got := r.ReadU8(); got != 7 {
		t.Fatalf("ReadU8 = %d, want 7", got)
	}
	if got := r.ReadU16(); got != 1234 {
		t.Fatalf("ReadU16 = %d, want 1234", got)
	}
	if got := r.ReadU32(); got != 987654321 {
		t.Fatalf("ReadU32 = %d, want 987654321", got)
	}
	if got := r.ReadBytes(3); string(got) != "\x01\x02\x03" {
		t.Fatalf("ReadBytes = %v, want [1 2 3]", got)
	}
	if r.Poisoned() {
		t.Fatal("reader should not be poisoned after a clean parse")
	}
}

func TestReaderPoisonsOnUnderrun(t *testing.T) {
	r := NewReader([]byte{1, 2})
	r.ReadU32()
	if !r.Poisoned() {
		t.Fatal("reading past the end should poison the reader")
	}
	if got := r.ReadU8(); got != 0 {
		t.Fatalf("reads on a poisoned reader should return zero, got %d", got)
	}
}

func TestBitfieldRoundTrip(t *testing.T) {
	w := NewWriter(nil)
	set := map[int]bool{0: true, 3: true, 9: true}
	w.WriteBitfield(10, func(i int) bool { return set[i] })

	r := NewReader(w.Bytes())
	present := r.ReadBitfield(10)
	for i := 0; i < 10; i++ {
		if present(i) != set[i] {
			t.Fatalf("bit %d = %v, want %v", i, present(i), set[i])
		}
	}
}

func TestCopyFieldBoundsChecked(t *testing.T) {
	dst := make([]byte, 4)
	src := []byte{1, 2, 3, 4}
	if err := CopyField(dst, 0, src, 0, 4); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := CopyField(dst, 2, src, 0, 4); err == nil {
		t.Fatal("expected an error when dst is too small")
	}
	if err := CopyField(dst, 0, src, 2, 4); err == nil {
		t.Fatal("expected an error when src is too small")
	}
}

func TestWriterTruncate(t *testing.T) {
	w := NewWriter(nil)
	w.WriteU8(1)
	mark := w.Len()
	w.WriteBytes([]byte{2, 3, 4})
	w.Truncate(mark)
	if w.Len() != mark {
		t.Fatalf("Len() = %d, want %d", w.Len(), mark)
	}
}
