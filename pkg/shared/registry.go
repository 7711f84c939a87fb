// Package shared implements the cross-instance audio exchange used to pair a
// Before and an After instance of the level matcher.
//
// A Registry holds a fixed table of pair slots, one per pair ID. The Before
// side publishes each block into its slot's circular buffer; the After side
// reads back the most recent audio, shifted by a latency offset. Publish and
// ReadBack never allocate, lock or block, so both may be called from audio
// callbacks running on unrelated threads.
//
// Synchronization is by atomics only. Samples are stored as float32 bit
// patterns with atomic 32-bit stores; the write cursor is published after the
// samples and loaded before they are read, so a reader that observes a cursor
// also observes every sample written before it. Two publishers on one pair ID
// interleave at whole-sample granularity: the last write wins per sample and
// a single sample is never torn. Claim lets a publisher detect that situation.
package shared

import (
	"errors"
	"math"
	"time"
)

const (
	// MaxPairs is the number of pair slots. Valid pair IDs are 1..MaxPairs.
	MaxPairs = 16
	// MaxChannels is the number of channels a slot stores.
	MaxChannels = 2
	// BufferSeconds is the length of each slot's history.
	BufferSeconds = 1.0
	// StaleAfter is how long after the last publish a slot stops being live.
	StaleAfter = 1000 * time.Millisecond

	defaultCapacity = 48000
)

// ErrInvalidPairID is returned by operations that report errors when the
// pair ID is outside 1..MaxPairs.
var ErrInvalidPairID = errors.New("pair id out of range")

// Clock returns the current time. Liveness is measured against it.
type Clock func() time.Time

// Option configures a Registry.
type Option func(*Registry)

// WithClock replaces the wall clock used for liveness.
func WithClock(clock Clock) Option {
	return func(r *Registry) {
		r.now = clock
	}
}

// WithStaleAfter overrides the liveness window.
func WithStaleAfter(d time.Duration) Option {
	return func(r *Registry) {
		r.staleAfter = d
	}
}

// Registry is the table of pair slots. Create one per process and hand it to
// every processor instance that takes part in pairing.
type Registry struct {
	slots      [MaxPairs]slot
	now        Clock
	staleAfter time.Duration
}

// NewRegistry creates a registry with every slot sized for 48 kHz stereo.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		now:        time.Now,
		staleAfter: StaleAfter,
	}
	for _, opt := range opts {
		opt(r)
	}
	for i := range r.slots {
		r.slots[i].ring.Store(newRing(defaultCapacity, MaxChannels))
		r.slots[i].sampleRate.Store(math.Float64bits(defaultCapacity / BufferSeconds))
	}
	return r
}

func (r *Registry) slot(pairID int) *slot {
	if pairID < 1 || pairID > MaxPairs {
		return nil
	}
	return &r.slots[pairID-1]
}

// Prepare resizes the pair's buffers to hold BufferSeconds of audio at
// sampleRate, clears them and resets the cursors. It allocates and must only
// be called from setup code, never from an audio callback. Readers and
// writers running concurrently see either the old or the new buffers.
func (r *Registry) Prepare(pairID int, sampleRate float64, numChannels int) {
	s := r.slot(pairID)
	if s == nil {
		return
	}
	capacity := int(sampleRate * BufferSeconds)
	if capacity < 1 {
		capacity = 1
	}
	numChannels = min(max(numChannels, 1), MaxChannels)
	s.ring.Store(newRing(capacity, numChannels))
	s.sampleRate.Store(math.Float64bits(sampleRate))
}

// Publish copies numSamples samples of up to MaxChannels channels of block
// into the pair's buffer at the write cursor, advances the cursor, bumps the
// write sequence, stamps the write time and marks the slot live.
func (r *Registry) Publish(pairID int, block [][]float32, numSamples int) {
	s := r.slot(pairID)
	if s == nil || numSamples <= 0 {
		return
	}
	if s.ring.Load().write(block, numSamples) == 0 {
		return
	}

	s.lastWrite.Store(r.now().UnixNano())
	s.live.Store(true)
}

// ReadBack fills numSamples samples of each channel of dest with audio
// ending latencyOffset samples before the pair's write cursor. With a zero
// offset this is the most recently published audio. Requests reaching past
// what has been published return zeros or stale audio. Channels of dest the
// slot does not carry are zeroed.
func (r *Registry) ReadBack(pairID int, dest [][]float32, numSamples, latencyOffset int) {
	s := r.slot(pairID)
	if s == nil || numSamples <= 0 {
		return
	}
	rg := s.ring.Load()
	rg.read(dest, numSamples, latencyOffset)
}

// IsLive reports whether the pair has been published to and the last
// publish is more recent than the staleness window.
func (r *Registry) IsLive(pairID int) bool {
	s := r.slot(pairID)
	if s == nil || !s.live.Load() {
		return false
	}
	elapsed := r.now().UnixNano() - s.lastWrite.Load()
	return time.Duration(elapsed) < r.staleAfter
}

// MarkInactive clears the pair's liveness flag so readers stop treating it
// as live without waiting for the staleness window.
func (r *Registry) MarkInactive(pairID int) {
	if s := r.slot(pairID); s != nil {
		s.live.Store(false)
	}
}

// Claim records writerID as the publisher for pairID. It returns false when
// a different writer holds the claim and the slot is still live, in which
// case both writers will interleave on the shared buffer. The claim is taken
// over either way. writerID must be non-zero.
func (r *Registry) Claim(pairID int, writerID uint64) (bool, error) {
	s := r.slot(pairID)
	if s == nil {
		return false, ErrInvalidPairID
	}
	prev := s.owner.Swap(writerID)
	if prev == 0 || prev == writerID {
		return true, nil
	}
	return !r.IsLive(pairID), nil
}

// Release drops writerID's claim on pairID and marks the pair inactive if
// writerID still held it.
func (r *Registry) Release(pairID int, writerID uint64) {
	s := r.slot(pairID)
	if s == nil {
		return
	}
	if s.owner.CompareAndSwap(writerID, 0) {
		s.live.Store(false)
	}
}

// Stats is a point-in-time view of one pair slot.
type Stats struct {
	PairID      int
	Capacity    int
	NumChannels int
	SampleRate  float64
	WritePos    int
	Sequence    uint64
	LastWrite   time.Time
	Live        bool
}

// Stats returns the pair's current state. ok is false for an invalid pair ID.
func (r *Registry) Stats(pairID int) (st Stats, ok bool) {
	s := r.slot(pairID)
	if s == nil {
		return Stats{}, false
	}
	rg := s.ring.Load()
	st = Stats{
		PairID:      pairID,
		Capacity:    rg.capacity,
		NumChannels: rg.numChannels,
		SampleRate:  math.Float64frombits(s.sampleRate.Load()),
		WritePos:    int(rg.writePos.Load()),
		Sequence:    rg.sequence.Load(),
		Live:        r.IsLive(pairID),
	}
	if ns := s.lastWrite.Load(); ns != 0 {
		st.LastWrite = time.Unix(0, ns)
	}
	return st, true
}

// Sequence returns the number of publishes since the pair was last prepared.
func (r *Registry) Sequence(pairID int) uint64 {
	s := r.slot(pairID)
	if s == nil {
		return 0
	}
	return s.ring.Load().sequence.Load()
}
