package netsync

import "testing"

func TestSeqDiffWraparound(t *testing.T) {
	if got := SeqDiff(1, 65535); got != 2 {
		t.Fatalf("SeqDiff(1, 65535) = %d, want 2", got)
	}
	if got := SeqDiff(65535, 1); got != -2 {
		t.Fatalf("SeqDiff(65535, 1) = %d, want -2", got)
	}
}

func TestSeqDiffOrdering(t *testing.T) {
	if !After(101, 100) {
		t.Fatal("After(101, 100) should be true")
	}
	if After(100, 101) {
		t.Fatal("After(100, 101) should be false")
	}
	if !AtOrAfter(100, 100) {
		t.Fatal("AtOrAfter(100, 100) should be true")
	}
}

func TestTickAddWraps(t *testing.T) {
	var t1 Tick = 65535
	if got := t1.Add(1); got != 0 {
		t.Fatalf("65535.Add(1) = %d, want 0", got)
	}
	var t2 Tick = 0
	if got := t2.Add(-1); got != 65535 {
		t.Fatalf("0.Add(-1) = %d, want 65535", got)
	}
}
