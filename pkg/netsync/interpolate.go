package netsync

import (
	"encoding/binary"
	"math"
)

// Float32Interpolator linearly blends a little-endian IEEE-754 float32
// field between initial and next by t. It is the common case for
// positions, angles, and other continuous values (spec §4.6).
func Float32Interpolator() Interpolator {
	return func(initial, next, dst []byte, t float64) {
		a := math.Float32frombits(binary.LittleEndian.Uint32(initial))
		b := math.Float32frombits(binary.LittleEndian.Uint32(next))
		v := a + float32(t)*(b-a)
		binary.LittleEndian.PutUint32(dst, math.Float32bits(v))
	}
}

// Int32Interpolator linearly blends a little-endian int32 field between
// initial and next by t, rounding to the nearest integer.
func Int32Interpolator() Interpolator {
	return func(initial, next, dst []byte, t float64) {
		a := int32(binary.LittleEndian.Uint32(initial))
		b := int32(binary.LittleEndian.Uint32(next))
		v := float64(a) + t*float64(b-a)
		binary.LittleEndian.PutUint32(dst, uint32(int32(math.Round(v))))
	}
}

// DiscreteInterpolator never blends: it holds initial until t reaches
// 1.0, then snaps to next. Use it for enum-like fields (animation
// state, weapon id) where a blended intermediate value is meaningless.
func DiscreteInterpolator() Interpolator {
	return func(initial, next, dst []byte, t float64) {
		if t >= 1.0 {
			copy(dst, next)
			return
		}
		copy(dst, initial)
	}
}
