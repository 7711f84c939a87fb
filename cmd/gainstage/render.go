package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/justyntemme/gainstage/pkg/audiofile"
	"github.com/justyntemme/gainstage/pkg/framework/bus"
	"github.com/justyntemme/gainstage/pkg/framework/debug"
	"github.com/justyntemme/gainstage/pkg/framework/process"
	"github.com/justyntemme/gainstage/pkg/gainstage"
	"github.com/justyntemme/gainstage/pkg/shared"
)

// RenderCmd runs a Before and an After instance over two files as a host
// would, Before first in every block.
type RenderCmd struct {
	Before   string `required:"" type:"existingfile" help:"Reference (pre-processing) WAV file."`
	After    string `required:"" type:"existingfile" help:"Processed WAV file to match against the reference."`
	Out      string `required:"" type:"path" help:"Where to write the level-matched After signal."`
	Settings string `type:"existingfile" help:"JSON settings applied to both instances."`
	Pair     int    `default:"1" help:"Pair ID shared by the two instances (1-16)."`
	Latency  int    `default:"-1" help:"Latency offset in samples; -1 keeps the settings value."`
	Block    int    `default:"512" help:"Block size in samples."`
}

func (c *RenderCmd) Run(g *Globals) error {
	logger, closer, err := g.Logger()
	if err != nil {
		return err
	}
	defer closer.Close()

	if c.Block <= 0 {
		return fmt.Errorf("invalid block size %d", c.Block)
	}

	settings := gainstage.DefaultSettings()
	if c.Settings != "" {
		if settings, err = gainstage.LoadSettings(c.Settings); err != nil {
			return err
		}
	}
	settings.PairID = c.Pair
	if c.Latency >= 0 {
		settings.LatencySamples = c.Latency
	}

	files := debug.NewProfiler(1)
	var before, after *audiofile.Buffer
	files.Time("read "+c.Before, func() { before, err = audiofile.ReadWAV(c.Before) })
	if err != nil {
		return err
	}
	files.Time("read "+c.After, func() { after, err = audiofile.ReadWAV(c.After) })
	if err != nil {
		return err
	}
	if before.SampleRate != after.SampleRate {
		return fmt.Errorf("sample rates differ: %d Hz before, %d Hz after", before.SampleRate, after.SampleRate)
	}
	logger.Info("before: %s, %d ch, %.2f s", c.Before, before.NumChannels(), before.Duration())
	logger.Info("after: %s, %d ch, %.2f s", c.After, after.NumChannels(), after.Duration())

	out, telemetry, profiler, err := render(logger, settings, before, after, c.Block)
	if err != nil {
		return err
	}

	for ch, samples := range out.Channels {
		debug.CheckAudioBuffer(logger, samples, fmt.Sprintf("output channel %d", ch))
	}
	files.Time("write "+c.Out, func() { err = audiofile.WriteWAV(c.Out, out) })
	if err != nil {
		return err
	}

	fmt.Println(telemetry)
	fmt.Print(profiler.AudioReport())
	logger.Info("wrote %s", c.Out)
	logger.Debug("%s", files.Report())
	return nil
}

// instance pairs a processor with the context it is driven through.
type instance struct {
	p   *gainstage.Processor
	ctx *process.Context
}

func newInstance(logger *debug.Logger, reg *shared.Registry, s gainstage.Settings, role gainstage.Role, sampleRate float64, block, channels int) (*instance, error) {
	opts := []gainstage.Option{gainstage.WithLogger(logger.With(role.String()))}
	if channels == 1 {
		opts = append(opts, gainstage.WithBuses(bus.NewMonoConfiguration()))
	}
	p := gainstage.NewProcessor(reg, opts...)
	if !p.SupportsLayout(channels, channels) {
		return nil, fmt.Errorf("%s: unsupported channel count %d", role, channels)
	}

	s.Role = role.String()
	if err := s.Apply(p.GetParameters()); err != nil {
		return nil, fmt.Errorf("%s: %w", role, err)
	}
	if err := p.Initialize(sampleRate, int32(block)); err != nil {
		return nil, fmt.Errorf("%s: %w", role, err)
	}
	if err := p.SetActive(true); err != nil {
		return nil, fmt.Errorf("%s: %w", role, err)
	}
	return &instance{p: p, ctx: process.NewContext(block)}, nil
}

func (inst *instance) close() {
	err := inst.p.SetActive(false)
	debug.WarnIf(err != nil, "deactivate: %v", err)
	inst.p.Terminate()
}

// render processes after against before and returns the After output, the
// final telemetry and block timings. A Before file shorter than the After
// file is padded with silence.
func render(logger *debug.Logger, s gainstage.Settings, before, after *audiofile.Buffer, block int) (*audiofile.Buffer, gainstage.Telemetry, *debug.BlockProfiler, error) {
	if before.NumChannels() == 0 || after.NumChannels() == 0 {
		return nil, gainstage.Telemetry{}, nil, errors.New("input has no channels")
	}
	sampleRate := float64(after.SampleRate)
	reg := shared.NewRegistry()

	ref, err := newInstance(logger, reg, s, gainstage.RoleBefore, sampleRate, block, before.NumChannels())
	if err != nil {
		return nil, gainstage.Telemetry{}, nil, err
	}
	defer ref.close()
	live, err := newInstance(logger, reg, s, gainstage.RoleAfter, sampleRate, block, after.NumChannels())
	if err != nil {
		return nil, gainstage.Telemetry{}, nil, err
	}
	defer live.close()

	out := audiofile.NewBuffer(after.SampleRate, after.NumChannels(), after.NumFrames())
	out.BitDepth = after.BitDepth

	refIn := make([][]float32, before.NumChannels())
	refOut := make([][]float32, before.NumChannels())
	for ch := range refIn {
		refIn[ch] = make([]float32, block)
		refOut[ch] = make([]float32, block)
	}
	liveIn := make([][]float32, after.NumChannels())
	liveOut := make([][]float32, after.NumChannels())

	profiler := debug.NewBlockProfiler(sampleRate)
	frames := after.NumFrames()
	reportEvery := after.SampleRate
	nextReport := reportEvery

	for pos := 0; pos < frames; pos += block {
		n := min(block, frames-pos)
		for ch := range refIn {
			src := before.Channels[ch]
			copied := 0
			if pos < len(src) {
				copied = copy(refIn[ch][:n], src[pos:min(pos+n, len(src))])
			}
			clear(refIn[ch][copied:n])
		}
		for ch := range liveIn {
			liveIn[ch] = after.Channels[ch][pos : pos+n]
			liveOut[ch] = out.Channels[ch][pos : pos+n]
		}
		ref.ctx.SetBlock(refIn, refOut, n)
		live.ctx.SetBlock(liveIn, liveOut, n)

		profiler.TimeBlock(n, func() {
			ref.p.ProcessAudio(ref.ctx)
			live.p.ProcessAudio(live.ctx)
		})

		if pos+n >= nextReport {
			logger.Debug("%s: %s", time.Duration(float64(pos+n)/sampleRate*float64(time.Second)).Round(time.Millisecond), live.p.Telemetry())
			nextReport += reportEvery
		}
	}

	return out, live.p.Telemetry(), profiler, nil
}
