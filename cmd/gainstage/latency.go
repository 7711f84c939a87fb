package main

import (
	"fmt"

	"github.com/justyntemme/gainstage/pkg/audiofile"
	"github.com/justyntemme/gainstage/pkg/dsp/analysis"
)

// LatencyCmd estimates the latency offset to use for a file pair.
type LatencyCmd struct {
	Before string `required:"" type:"existingfile" help:"Reference (pre-processing) WAV file."`
	After  string `required:"" type:"existingfile" help:"Processed WAV file."`
	Max    int    `default:"48000" help:"Largest lag to search, in samples."`
}

func (c *LatencyCmd) Run(g *Globals) error {
	logger, closer, err := g.Logger()
	if err != nil {
		return err
	}
	defer closer.Close()

	before, err := audiofile.ReadWAV(c.Before)
	if err != nil {
		return err
	}
	after, err := audiofile.ReadWAV(c.After)
	if err != nil {
		return err
	}
	if before.SampleRate != after.SampleRate {
		return fmt.Errorf("sample rates differ: %d Hz before, %d Hz after", before.SampleRate, after.SampleRate)
	}

	est := analysis.EstimateLatency(mixdown(before), mixdown(after), c.Max)
	logger.Debug("correlation peak %.3f at lag %d", est.Correlation, est.Samples)
	if est.Correlation < 0.5 {
		logger.Warn("weak correlation (%.2f); the files may not contain the same material", est.Correlation)
	}

	fmt.Printf("latency: %d samples (%.2f ms), correlation %.3f\n",
		est.Samples, float64(est.Samples)*1000/float64(after.SampleRate), est.Correlation)
	return nil
}

// mixdown averages all channels into one float64 signal.
func mixdown(b *audiofile.Buffer) []float64 {
	frames := b.NumFrames()
	mono := make([]float64, frames)
	if b.NumChannels() == 0 {
		return mono
	}
	scale := 1 / float64(b.NumChannels())
	for _, ch := range b.Channels {
		for i, s := range ch[:frames] {
			mono[i] += float64(s) * scale
		}
	}
	return mono
}
