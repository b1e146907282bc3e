// Package netsync implements the client-side state-reconciliation core:
// a bounded snapshot store, a jitter-adaptive interpolation pipeline, and
// a client-side prediction/rollback engine, tied together by a reflective
// state reader and a tick-driven input assembler.
//
// The package is strictly single-threaded and cooperative (no internal
// locks); callers are responsible for serializing calls to Client.Receive
// and Client.Update if the transport delivers from a different goroutine.
package netsync

// Tick is a 16-bit wrap-around simulation step counter. Comparisons must
// go through SeqDiff rather than raw integer comparison, since the
// counter wraps every 65536 ticks.
type Tick uint16

// SeqDiff returns the signed short-distance between two ticks around the
// 16-bit wheel, in [-32768, 32767]. SeqDiff(a, b) > 0 means a is ahead
// of b by that many ticks.
func SeqDiff(a, b Tick) int16 {
	return int16(a - b)
}

// After reports whether a is strictly ahead of b on the tick wheel.
func After(a, b Tick) bool {
	return SeqDiff(a, b) > 0
}

// AtOrAfter reports whether a is at or ahead of b on the tick wheel.
func AtOrAfter(a, b Tick) bool {
	return SeqDiff(a, b) >= 0
}

// Add offsets a tick by a (possibly negative) number of ticks, wrapping.
func (t Tick) Add(n int) Tick {
	return Tick(int32(t) + int32(n))
}
