package shared

import (
	"math"
	"sync/atomic"
)

// slot is one pair's entry in the registry table.
type slot struct {
	ring       atomic.Pointer[ring]
	sampleRate atomic.Uint64 // float64 bits
	lastWrite  atomic.Int64  // unix nanoseconds
	live       atomic.Bool
	owner      atomic.Uint64
}

// ring is a fixed-capacity planar circular buffer. Prepare replaces the
// whole ring, so capacity and channel count never change after creation.
type ring struct {
	data        [MaxChannels][]uint32
	capacity    int
	numChannels int

	// writePos is the next index to write, always < capacity.
	writePos atomic.Uint64
	// sequence counts publishes and is never reset except by Prepare.
	sequence atomic.Uint64
}

func newRing(capacity, numChannels int) *ring {
	rg := &ring{
		capacity:    capacity,
		numChannels: numChannels,
	}
	for ch := 0; ch < numChannels; ch++ {
		rg.data[ch] = make([]uint32, capacity)
	}
	return rg
}

// write stores up to numSamples samples per channel and returns how many
// were written. A block with no channels writes nothing.
func (rg *ring) write(block [][]float32, numSamples int) int {
	channels := min(len(block), rg.numChannels)
	if channels == 0 {
		return 0
	}
	n := numSamples
	for ch := 0; ch < channels; ch++ {
		n = min(n, len(block[ch]))
	}
	if n <= 0 {
		return 0
	}

	start := int(rg.writePos.Load())
	for ch := 0; ch < channels; ch++ {
		dst := rg.data[ch]
		pos := start
		for _, s := range block[ch][:n] {
			atomic.StoreUint32(&dst[pos], math.Float32bits(s))
			pos++
			if pos == rg.capacity {
				pos = 0
			}
		}
	}

	// Publishing the cursor after the samples orders them for any reader
	// that loads the cursor first.
	rg.writePos.Store(uint64((start + n) % rg.capacity))
	rg.sequence.Add(1)
	return n
}

func (rg *ring) read(dest [][]float32, numSamples, latencyOffset int) {
	if latencyOffset < 0 {
		latencyOffset = 0
	}
	end := int(rg.writePos.Load())

	start := (end - numSamples - latencyOffset) % rg.capacity
	if start < 0 {
		start += rg.capacity
	}

	for ch, out := range dest {
		n := min(numSamples, len(out))
		if ch >= rg.numChannels {
			clear(out[:n])
			continue
		}
		src := rg.data[ch]
		pos := start
		for i := 0; i < n; i++ {
			out[i] = math.Float32frombits(atomic.LoadUint32(&src[pos]))
			pos++
			if pos == rg.capacity {
				pos = 0
			}
		}
	}
}
