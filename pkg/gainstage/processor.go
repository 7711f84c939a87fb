// Package gainstage implements the level-matching processor. A Before
// instance publishes its input to a shared pair slot; an After instance
// reads it back, compares levels and applies a smoothed correction so A/B
// comparisons are made at equal loudness.
package gainstage

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/justyntemme/gainstage/pkg/dsp/analysis"
	"github.com/justyntemme/gainstage/pkg/dsp/envelope"
	"github.com/justyntemme/gainstage/pkg/dsp/gain"
	"github.com/justyntemme/gainstage/pkg/framework/bus"
	"github.com/justyntemme/gainstage/pkg/framework/debug"
	"github.com/justyntemme/gainstage/pkg/framework/plugin"
	"github.com/justyntemme/gainstage/pkg/framework/process"
	"github.com/justyntemme/gainstage/pkg/shared"
)

var writerIDs atomic.Uint64

// Processor is one instance of the level matcher. Create one per plugin
// instance and share a single shared.Registry between all of them.
type Processor struct {
	*plugin.BaseProcessor

	registry *shared.Registry
	writerID uint64
	logger   *debug.Logger
	c        controls

	sampleRate   float64
	maxBlockSize int

	beforeAnalyzer *analysis.LevelAnalyzer
	afterAnalyzer  *analysis.LevelAnalyzer
	deltaAnalyzer  *analysis.LevelAnalyzer
	outputAnalyzer *analysis.LevelAnalyzer
	smoother       *envelope.GainSmoother

	reference [shared.MaxChannels][]float32
	delta     [shared.MaxChannels][]float32

	// audio thread only
	role        Role
	pairID      int
	appliedGain float32

	compensating atomic.Bool
	clipping     atomic.Bool
	conflict     atomic.Bool
}

// Option configures a Processor.
type Option func(*Processor)

// WithLogger sets the logger used for lifecycle messages.
func WithLogger(l *debug.Logger) Option {
	return func(p *Processor) {
		p.logger = l
	}
}

// WithBuses overrides the default stereo bus layout.
func WithBuses(b *bus.Configuration) Option {
	return func(p *Processor) {
		p.BaseProcessor = plugin.NewBaseProcessor(b)
	}
}

// NewProcessor creates a processor bound to registry.
func NewProcessor(registry *shared.Registry, opts ...Option) *Processor {
	p := &Processor{
		BaseProcessor:  plugin.NewBaseProcessor(bus.NewStereoConfiguration()),
		registry:       registry,
		writerID:       writerIDs.Add(1),
		logger:         debug.Default(),
		beforeAnalyzer: analysis.NewLevelAnalyzer(),
		afterAnalyzer:  analysis.NewLevelAnalyzer(),
		deltaAnalyzer:  analysis.NewLevelAnalyzer(),
		outputAnalyzer: analysis.NewLevelAnalyzer(),
		smoother:       envelope.NewGainSmoother(),
		appliedGain:    1,
	}
	for _, opt := range opts {
		opt(p)
	}

	if err := registerParameters(p.Parameters()); err != nil {
		panic(fmt.Sprintf("gainstage: %v", err))
	}
	p.c = bindControls(p.Parameters())
	p.role = p.c.role()
	p.pairID = p.c.pair()

	p.OnInitialize(p.initialize)
	p.OnSetActive(p.setActive)
	p.OnReset(p.reset)
	return p
}

// WriterID returns the ID this instance claims pair slots with.
func (p *Processor) WriterID() uint64 {
	return p.writerID
}

func (p *Processor) initialize(sampleRate float64, maxBlockSize int32) error {
	if sampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %v", sampleRate)
	}
	if maxBlockSize <= 0 {
		return fmt.Errorf("invalid max block size %d", maxBlockSize)
	}

	p.sampleRate = sampleRate
	p.maxBlockSize = int(maxBlockSize)

	for _, a := range []*analysis.LevelAnalyzer{p.beforeAnalyzer, p.afterAnalyzer, p.deltaAnalyzer, p.outputAnalyzer} {
		a.Prepare(sampleRate, p.maxBlockSize)
		a.SetPeakHoldSamples(int(sampleRate * 0.1))
	}
	window := p.c.window().Samples(sampleRate)
	p.beforeAnalyzer.SetRMSWindowSamples(window)
	p.afterAnalyzer.SetRMSWindowSamples(window)
	p.deltaAnalyzer.SetRMSWindowSamples(window)
	p.outputAnalyzer.SetRMSWindowSamples(window)

	p.smoother.Prepare(sampleRate)
	p.smoother.SetAttackTime(p.c.attack.GetPlainValue())
	p.smoother.SetReleaseTime(p.c.release.GetPlainValue())
	p.smoother.Reset()
	p.appliedGain = 1

	for ch := range p.reference {
		p.reference[ch] = make([]float32, p.maxBlockSize)
		p.delta[ch] = make([]float32, p.maxBlockSize)
	}

	p.role = p.c.role()
	p.pairID = p.c.pair()
	channels := p.GetBuses().MainChannels(bus.DirectionInput)
	p.registry.Prepare(p.pairID, sampleRate, channels)

	if p.role == RoleBefore {
		p.claim(p.pairID)
	}

	p.logger.Info("initialized %s instance on pair %d: %.0f Hz, %d channels, max block %d",
		p.role, p.pairID, sampleRate, channels, maxBlockSize)
	return nil
}

func (p *Processor) claim(pairID int) {
	ok, err := p.registry.Claim(pairID, p.writerID)
	if err != nil {
		p.logger.Error("claim pair %d: %v", pairID, err)
		return
	}
	p.conflict.Store(!ok)
	if !ok {
		p.logger.Warn("pair %d already has a live Before instance; both will write to the same slot", pairID)
	}
}

func (p *Processor) setActive(active bool) error {
	if active {
		p.logger.Debug("%s instance on pair %d activated", p.role, p.pairID)
		return nil
	}
	if p.role == RoleBefore {
		p.registry.Release(p.pairID, p.writerID)
	}
	p.logger.Debug("%s instance on pair %d deactivated", p.role, p.pairID)
	return nil
}

func (p *Processor) reset() {
	for _, a := range []*analysis.LevelAnalyzer{p.beforeAnalyzer, p.afterAnalyzer, p.deltaAnalyzer, p.outputAnalyzer} {
		a.Reset()
	}
	p.smoother.Reset()
	p.appliedGain = 1
}

// Terminate releases the instance's pair slot. Call it when the instance is
// destroyed.
func (p *Processor) Terminate() {
	if p.role == RoleBefore {
		p.registry.Release(p.pairID, p.writerID)
	}
	p.logger.Debug("%s instance on pair %d terminated", p.role, p.pairID)
}

// SupportsLayout reports whether the processor can run with the given
// channel counts.
func (p *Processor) SupportsLayout(inputChannels, outputChannels int) bool {
	return p.GetBuses().SupportsLayout(inputChannels, outputChannels)
}

// ProcessAudio processes one block. It does not allocate, lock or block.
func (p *Processor) ProcessAudio(ctx *process.Context) {
	// Work in place on the output, which also clears channels without input.
	// Until Initialize sizes the scratch buffers the block passes through.
	ctx.PassThrough()
	n := min(ctx.NumSamples(), p.maxBlockSize)
	if n <= 0 || p.c.bypass.Bool() {
		return
	}
	block := ctx.Output[:ctx.GetNumStereoChannels()]
	if len(block) == 0 {
		return
	}
	ctx.ClearExtraOutputs(len(block))

	p.trackRoleAndPair()

	if db := p.c.inputGain.GetPlainValue(); !gain.IsUnity(db) {
		gain.ApplyChannels(block, n, gain.DbToLinear32(float32(db)))
	}

	if p.role == RoleBefore {
		p.processBefore(block, n)
		return
	}
	p.processAfter(block, n)
}

// trackRoleAndPair follows role and pair ID changes made while running.
// Only atomic registry operations are used here.
func (p *Processor) trackRoleAndPair() {
	role, pairID := p.c.role(), p.c.pair()
	if role == p.role && pairID == p.pairID {
		return
	}

	if p.role == RoleBefore {
		p.registry.Release(p.pairID, p.writerID)
	}
	if role == RoleBefore {
		ok, err := p.registry.Claim(pairID, p.writerID)
		p.conflict.Store(err == nil && !ok)
	} else {
		p.conflict.Store(false)
	}
	if role != p.role {
		p.smoother.Reset()
		p.appliedGain = 1
		p.compensating.Store(false)
	}

	p.role, p.pairID = role, pairID
}

func (p *Processor) processBefore(block [][]float32, n int) {
	p.registry.Publish(p.pairID, block, n)

	p.beforeAnalyzer.Process(block, n)
	p.c.beforeLevel.SetPlainValue(p.beforeAnalyzer.RMSdB())
	p.compensating.Store(false)
}

func (p *Processor) processAfter(block [][]float32, n int) {
	channels := len(block)
	reference := p.reference[:channels]

	window := p.c.window().Samples(p.sampleRate)
	p.beforeAnalyzer.SetRMSWindowSamples(window)
	p.afterAnalyzer.SetRMSWindowSamples(window)
	p.smoother.SetAttackTime(p.c.attack.GetPlainValue())
	p.smoother.SetReleaseTime(p.c.release.GetPlainValue())

	p.registry.ReadBack(p.pairID, reference, n, p.c.latency.Int())

	p.beforeAnalyzer.Process(reference, n)
	p.afterAnalyzer.Process(block, n)

	var beforeLevel, afterLevel float64
	if p.c.measurementMode() == MeasurePeak {
		beforeLevel = p.beforeAnalyzer.PeakdB()
		afterLevel = p.afterAnalyzer.PeakdB()
	} else {
		beforeLevel = p.beforeAnalyzer.RMSdB()
		afterLevel = p.afterAnalyzer.RMSdB()
	}
	p.c.beforeLevel.SetPlainValue(beforeLevel)
	p.c.afterLevel.SetPlainValue(afterLevel)

	difference := beforeLevel - afterLevel
	armed := math.Abs(difference) > p.c.tolerance.GetPlainValue() && p.registry.IsLive(p.pairID)
	p.compensating.Store(armed)

	target := 0.0
	if armed {
		target = gain.Clamp(difference, MaxCorrectionDB)
	}
	smoothed := p.smoother.ProcessN(target, n)
	p.c.gainReduction.SetPlainValue(smoothed)

	switch {
	case p.c.listenBefore.Bool():
		for ch := range block {
			copy(block[ch][:n], reference[ch][:n])
		}
		p.appliedGain = 1
	case p.c.listenAfter.Bool():
		// live input as trimmed, uncorrected
		p.appliedGain = 1
	case p.c.deltaEnabled.Bool() || p.c.deltaSolo.Bool():
		p.synthesizeDelta(block, reference, n)
		if p.c.deltaSolo.Bool() {
			for ch := range block {
				copy(block[ch][:n], p.delta[ch][:n])
			}
			p.appliedGain = 1
		} else {
			p.applyCompensation(block, n, smoothed)
		}
	default:
		p.applyCompensation(block, n, smoothed)
	}

	if db := p.c.outputGain.GetPlainValue(); !gain.IsUnity(db) {
		gain.ApplyChannels(block, n, gain.DbToLinear32(float32(db)))
	}

	p.outputAnalyzer.Process(block, n)
	p.c.outputLevel.SetPlainValue(p.outputAnalyzer.RMSdB())
	p.clipping.Store(blockPeak(block, n) > 1.0)
}

// applyCompensation ramps from last block's gain to the new one.
func (p *Processor) applyCompensation(block [][]float32, n int, smoothedDb float64) {
	compensation := gain.DbToLinear32(float32(smoothedDb))
	gain.FadeChannels(block, n, p.appliedGain, compensation)
	p.appliedGain = compensation
}

func (p *Processor) synthesizeDelta(live, reference [][]float32, n int) {
	deltaGain := gain.DbToLinear32(float32(p.c.deltaGain.GetPlainValue()))
	delta := p.delta[:len(live)]
	for ch := range delta {
		out, after, before := delta[ch][:n], live[ch][:n], reference[ch][:n]
		for i := range out {
			out[i] = (after[i] - before[i]) * deltaGain
		}
	}
	p.deltaAnalyzer.Process(delta, n)
	p.c.deltaLevel.SetPlainValue(p.deltaAnalyzer.RMSdB())
}

func blockPeak(block [][]float32, n int) float32 {
	var peak float32
	for _, ch := range block {
		for _, s := range ch[:n] {
			peak = max(peak, float32(math.Abs(float64(s))))
		}
	}
	return peak
}

// IsPaired reports whether the instance has a partner. A Before instance is
// always paired; an After instance is paired while its Before is live.
func (p *Processor) IsPaired() bool {
	if p.c.role() == RoleBefore {
		return true
	}
	return p.registry.IsLive(p.c.pair())
}
