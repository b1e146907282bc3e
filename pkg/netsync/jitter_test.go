package netsync

import (
	"math"
	"testing"
	"time"
)

func TestJitterFirstSampleOnlySetsBaseline(t *testing.T) {
	j := NewJitterSampler(4)
	j.Sample(time.Unix(0, 0))
	if got := len(j.Values()); got != 0 {
		t.Fatalf("values after baseline-only sample = %d, want 0", got)
	}
}

func TestJitterRecordsInterArrivalGaps(t *testing.T) {
	j := NewJitterSampler(4)
	base := time.Unix(100, 0)
	j.Sample(base)
	j.Sample(base.Add(33 * time.Millisecond))
	j.Sample(base.Add(99 * time.Millisecond))

	vals := j.Values()
	if len(vals) != 2 {
		t.Fatalf("recorded %d samples, want 2", len(vals))
	}
	if math.Abs(vals[0]-0.033) > 1e-9 || math.Abs(vals[1]-0.066) > 1e-9 {
		t.Fatalf("samples = %v, want [0.033 0.066]", vals)
	}
}

func TestJitterRingDropsOldestOldestFirstOrder(t *testing.T) {
	j := NewJitterSampler(3)
	base := time.Unix(100, 0)
	j.Sample(base)
	elapsed := time.Duration(0)
	// Gaps of 10ms, 20ms, 30ms, 40ms; only the last three survive.
	for i := 1; i <= 4; i++ {
		elapsed += time.Duration(i*10) * time.Millisecond
		j.Sample(base.Add(elapsed))
	}

	vals := j.Values()
	want := []float64{0.02, 0.03, 0.04}
	if len(vals) != len(want) {
		t.Fatalf("recorded %d samples, want %d", len(vals), len(want))
	}
	for i := range want {
		if math.Abs(vals[i]-want[i]) > 1e-9 {
			t.Fatalf("samples = %v, want %v", vals, want)
		}
	}
}
