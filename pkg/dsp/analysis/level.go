package analysis

import (
	"math"

	"github.com/justyntemme/gainstage/pkg/dsp/gain"
)

const (
	// HistorySeconds is the length of the squared-sample history.
	HistorySeconds = 0.5

	defaultSampleRate  = 48000.0
	defaultBlockSize   = 512
	defaultWindowSize  = 4800
	defaultPeakHoldLen = 4800
)

// LevelAnalyzer measures a sliding-window RMS level and a held peak level
// over planar audio blocks.
//
// All channels feed one shared history ring, one after another, so the
// averaging window covers windowSamples entries across channels. The mean is
// additionally divided by the channel count of the block being processed.
// Two analyzers fed with the same channel layout are therefore directly
// comparable, which is all the level matcher needs.
//
// A LevelAnalyzer is owned by one audio callback and is not safe for
// concurrent use.
type LevelAnalyzer struct {
	sampleRate float64
	history    []float64
	writePos   int

	windowSamples   int
	peakHoldSamples int
	peakHoldCounter int

	rms  float64
	peak float64
}

// NewLevelAnalyzer creates an analyzer prepared for 48 kHz.
func NewLevelAnalyzer() *LevelAnalyzer {
	la := &LevelAnalyzer{
		windowSamples:   defaultWindowSize,
		peakHoldSamples: defaultPeakHoldLen,
	}
	la.Prepare(defaultSampleRate, defaultBlockSize)
	return la
}

// Prepare resets all state and sizes the history to HistorySeconds.
// It allocates and must not be called from the audio callback.
func (la *LevelAnalyzer) Prepare(sampleRate float64, maxBlockSize int) {
	la.sampleRate = sampleRate
	size := int(sampleRate * HistorySeconds)
	if size < 1 {
		size = 1
	}
	la.history = make([]float64, size)
	la.writePos = 0
	la.rms = 0
	la.peak = 0
	la.peakHoldCounter = 0
	la.windowSamples = clampInt(la.windowSamples, 1, size)
}

// Reset clears the history and meters without reallocating.
func (la *LevelAnalyzer) Reset() {
	clear(la.history)
	la.writePos = 0
	la.rms = 0
	la.peak = 0
	la.peakHoldCounter = 0
}

// SetRMSWindowSamples sets the averaging window, clamped to [1, history length].
func (la *LevelAnalyzer) SetRMSWindowSamples(n int) {
	la.windowSamples = clampInt(n, 1, len(la.history))
}

// RMSWindowSamples returns the current averaging window.
func (la *LevelAnalyzer) RMSWindowSamples() int {
	return la.windowSamples
}

// SetPeakHoldSamples sets how long a peak is held before it may fall.
func (la *LevelAnalyzer) SetPeakHoldSamples(n int) {
	if n < 0 {
		n = 0
	}
	la.peakHoldSamples = n
}

// HistoryLength returns the number of squared samples the ring can hold.
func (la *LevelAnalyzer) HistoryLength() int {
	return len(la.history)
}

// Process measures numSamples samples of every channel in block.
// Channels shorter than numSamples are measured up to their length.
func (la *LevelAnalyzer) Process(block [][]float32, numSamples int) {
	numChannels := len(block)
	if numChannels == 0 || numSamples <= 0 {
		return
	}

	size := len(la.history)
	blockPeak := 0.0
	for _, ch := range block {
		n := min(numSamples, len(ch))
		for _, s := range ch[:n] {
			v := float64(s)
			if a := math.Abs(v); a > blockPeak {
				blockPeak = a
			}
			la.history[la.writePos] = v * v
			la.writePos++
			if la.writePos == size {
				la.writePos = 0
			}
		}
	}

	switch {
	case blockPeak >= la.peak:
		la.peak = blockPeak
		la.peakHoldCounter = la.peakHoldSamples
	case la.peakHoldCounter > 0:
		la.peakHoldCounter -= numSamples
	default:
		la.peak = blockPeak
	}

	window := la.windowSamples
	pos := la.writePos - window
	if pos < 0 {
		pos += size
	}
	sum := 0.0
	for i := 0; i < window; i++ {
		sum += la.history[pos]
		pos++
		if pos == size {
			pos = 0
		}
	}
	la.rms = math.Sqrt(sum / float64(window*numChannels))
}

// RMSLevel returns the last RMS level, linear.
func (la *LevelAnalyzer) RMSLevel() float64 {
	return la.rms
}

// PeakLevel returns the held peak level, linear.
func (la *LevelAnalyzer) PeakLevel() float64 {
	return la.peak
}

// RMSdB returns the RMS level in dB, never below gain.FloorDB.
func (la *LevelAnalyzer) RMSdB() float64 {
	return gain.LinearToDb(la.rms)
}

// PeakdB returns the held peak level in dB, never below gain.FloorDB.
func (la *LevelAnalyzer) PeakdB() float64 {
	return gain.LinearToDb(la.peak)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
