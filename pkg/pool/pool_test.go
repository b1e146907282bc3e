package pool

import "testing"

func TestByteBufferPool_GetAllocatesWhenEmpty(t *testing.T) {
	p := NewByteBufferPool(16)
	buf := p.Get()
	if len(buf) != 0 {
		t.Fatalf("Get() on empty pool returned len %d, want 0", len(buf))
	}
	if cap(buf) != 16 {
		t.Fatalf("Get() on empty pool returned cap %d, want 16", cap(buf))
	}
}

func TestByteBufferPool_PutGetReuses(t *testing.T) {
	p := NewByteBufferPool(16)
	buf := p.Get()
	buf = append(buf, 1, 2, 3)
	p.Put(buf)

	if p.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", p.Len())
	}

	reused := p.Get()
	if len(reused) != 0 {
		t.Fatalf("Get() after Put() returned len %d, want 0 (truncated)", len(reused))
	}
	if cap(reused) < 3 {
		t.Fatalf("Get() after Put() returned cap %d, want >= 3", cap(reused))
	}
	if p.Len() != 0 {
		t.Fatalf("Len() after Get() = %d, want 0", p.Len())
	}
}

func TestByteBufferPool_PutNilIsNoop(t *testing.T) {
	p := NewByteBufferPool(16)
	p.Put(nil)
	if p.Len() != 0 {
		t.Fatalf("Len() after Put(nil) = %d, want 0", p.Len())
	}
}

func TestGrowSlice_GrowsWithoutShrinking(t *testing.T) {
	s := make([]byte, 4, 8)
	grown := GrowSlice(s, 16)
	if len(grown) != 16 {
		t.Fatalf("len(grown) = %d, want 16", len(grown))
	}

	shrunk := GrowSlice(grown, 4)
	if cap(shrunk) < 16 {
		t.Fatalf("GrowSlice to a smaller n shrank capacity: cap=%d, want >= 16", cap(shrunk))
	}
	if len(shrunk) != 4 {
		t.Fatalf("len(shrunk) = %d, want 4", len(shrunk))
	}
}

func TestGrowSlice_PreservesContent(t *testing.T) {
	s := []byte{1, 2, 3, 4}
	grown := GrowSlice(s, 8)
	for i, want := range []byte{1, 2, 3, 4} {
		if grown[i] != want {
			t.Errorf("grown[%d] = %d, want %d", i, grown[i], want)
		}
	}
}
