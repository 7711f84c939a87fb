// Package gain provides amplitude and gain-related DSP operations.
package gain

import (
	"math"
)

// FloorDB is the lowest level ever reported. Silence, negative and
// non-finite inputs all map here instead of -Inf or NaN.
const FloorDB = -100.0

// LinearToDb converts a linear amplitude value to decibels.
// Returns FloorDB for values <= 0 and for NaN or Inf.
func LinearToDb(linear float64) float64 {
	if !(linear > 0) || math.IsInf(linear, 1) {
		return FloorDB
	}
	return 20.0 * math.Log10(linear)
}

// DbToLinear converts a decibel value to linear amplitude.
// Values <= FloorDB return 0.
func DbToLinear(db float64) float64 {
	if db <= FloorDB {
		return 0
	}
	return math.Pow(10.0, db/20.0)
}

// DbToLinear32 is the float32 version of DbToLinear.
func DbToLinear32(db float32) float32 {
	return float32(DbToLinear(float64(db)))
}

// IsUnity reports whether a dB trim is close enough to 0 dB to skip.
func IsUnity(db float64) bool {
	return math.Abs(db) <= 0.001
}

// Clamp limits a dB value to [-limit, limit].
func Clamp(db, limit float64) float64 {
	if db > limit {
		return limit
	}
	if db < -limit {
		return -limit
	}
	return db
}

// ApplyBuffer applies gain to an entire buffer in-place.
func ApplyBuffer(buffer []float32, gain float32) {
	for i := range buffer {
		buffer[i] *= gain
	}
}

// ApplyChannels applies gain to every channel of a planar block in-place.
func ApplyChannels(block [][]float32, numSamples int, gain float32) {
	for _, ch := range block {
		n := min(numSamples, len(ch))
		ApplyBuffer(ch[:n], gain)
	}
}

// Fade applies a linear ramp from startGain to endGain across the buffer.
// The last sample receives exactly endGain.
func Fade(buffer []float32, startGain, endGain float32) {
	if len(buffer) == 0 {
		return
	}
	if startGain == endGain {
		ApplyBuffer(buffer, endGain)
		return
	}

	last := len(buffer) - 1
	delta := (endGain - startGain) / float32(len(buffer))
	for i := 0; i < last; i++ {
		buffer[i] *= startGain + delta*float32(i+1)
	}
	buffer[last] *= endGain
}

// FadeChannels applies the same linear ramp to every channel of a planar block.
func FadeChannels(block [][]float32, numSamples int, startGain, endGain float32) {
	for _, ch := range block {
		n := min(numSamples, len(ch))
		Fade(ch[:n], startGain, endGain)
	}
}
