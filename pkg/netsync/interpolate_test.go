package netsync

import (
	"encoding/binary"
	"math"
	"testing"
)

func f32bytes(v float32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, math.Float32bits(v))
	return b
}

func i32bytes(v int32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(v))
	return b
}

func TestFloat32InterpolatorBlends(t *testing.T) {
	interp := Float32Interpolator()
	dst := make([]byte, 4)

	interp(f32bytes(10), f32bytes(20), dst, 0.5)
	got := math.Float32frombits(binary.LittleEndian.Uint32(dst))
	if got != 15 {
		t.Fatalf("blend at t=0.5 = %f, want 15", got)
	}

	interp(f32bytes(10), f32bytes(20), dst, 0)
	if got := math.Float32frombits(binary.LittleEndian.Uint32(dst)); got != 10 {
		t.Fatalf("blend at t=0 = %f, want 10", got)
	}

	interp(f32bytes(10), f32bytes(20), dst, 1)
	if got := math.Float32frombits(binary.LittleEndian.Uint32(dst)); got != 20 {
		t.Fatalf("blend at t=1 = %f, want 20", got)
	}
}

func TestInt32InterpolatorRoundsToNearest(t *testing.T) {
	interp := Int32Interpolator()
	dst := make([]byte, 4)

	interp(i32bytes(0), i32bytes(3), dst, 0.5) // 1.5 rounds up
	if got := int32(binary.LittleEndian.Uint32(dst)); got != 2 {
		t.Fatalf("blend at t=0.5 = %d, want 2", got)
	}

	interp(i32bytes(-10), i32bytes(10), dst, 0.25)
	if got := int32(binary.LittleEndian.Uint32(dst)); got != -5 {
		t.Fatalf("blend at t=0.25 = %d, want -5", got)
	}
}

func TestDiscreteInterpolatorHoldsUntilOne(t *testing.T) {
	interp := DiscreteInterpolator()
	dst := make([]byte, 1)

	interp([]byte{3}, []byte{9}, dst, 0.99)
	if dst[0] != 3 {
		t.Fatalf("discrete blend at t=0.99 = %d, want 3 (hold initial)", dst[0])
	}
	interp([]byte{3}, []byte{9}, dst, 1.0)
	if dst[0] != 9 {
		t.Fatalf("discrete blend at t=1.0 = %d, want 9 (snap to next)", dst[0])
	}
}
