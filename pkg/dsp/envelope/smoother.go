// Package envelope provides envelope followers for gain control loops.
package envelope

import (
	"math"
)

const (
	defaultSampleRate = 48000.0
	defaultAttackMs   = 50.0
	defaultReleaseMs  = 200.0
)

// GainSmoother smooths a target gain in dB with a one-pole filter that uses
// separate time constants per direction. Attack governs movement toward a
// lower gain, release governs movement toward a higher gain.
//
// Coefficients are recomputed only when the sample rate or a time constant
// changes, never per sample.
type GainSmoother struct {
	sampleRate float64
	attackMs   float64
	releaseMs  float64

	attackCoef  float64
	releaseCoef float64

	current float64
}

// NewGainSmoother creates a smoother at 48 kHz with 50 ms attack and 200 ms release.
func NewGainSmoother() *GainSmoother {
	s := &GainSmoother{
		sampleRate: defaultSampleRate,
		attackMs:   defaultAttackMs,
		releaseMs:  defaultReleaseMs,
	}
	s.updateCoefficients()
	return s
}

// Prepare sets the sample rate and re-derives both coefficients.
func (s *GainSmoother) Prepare(sampleRate float64) {
	s.sampleRate = sampleRate
	s.updateCoefficients()
}

// SetAttackTime sets the attack time constant in milliseconds.
func (s *GainSmoother) SetAttackTime(ms float64) {
	if ms == s.attackMs {
		return
	}
	s.attackMs = ms
	s.updateCoefficients()
}

// SetReleaseTime sets the release time constant in milliseconds.
func (s *GainSmoother) SetReleaseTime(ms float64) {
	if ms == s.releaseMs {
		return
	}
	s.releaseMs = ms
	s.updateCoefficients()
}

// AttackCoefficient returns the per-step attack coefficient.
func (s *GainSmoother) AttackCoefficient() float64 {
	return s.attackCoef
}

// ReleaseCoefficient returns the per-step release coefficient.
func (s *GainSmoother) ReleaseCoefficient() float64 {
	return s.releaseCoef
}

// Process advances the filter by one step toward targetDb and returns the
// smoothed value.
func (s *GainSmoother) Process(targetDb float64) float64 {
	c := s.releaseCoef
	if targetDb < s.current {
		c = s.attackCoef
	}
	s.current = c*s.current + (1-c)*targetDb
	return s.current
}

// ProcessN advances the filter by n steps toward a constant targetDb. It is
// equal to calling Process n times: the smoothed value never crosses the
// target, so the direction cannot change inside the run.
func (s *GainSmoother) ProcessN(targetDb float64, n int) float64 {
	if n <= 0 {
		return s.current
	}
	if n == 1 {
		return s.Process(targetDb)
	}
	c := s.releaseCoef
	if targetDb < s.current {
		c = s.attackCoef
	}
	cn := math.Pow(c, float64(n))
	s.current = cn*s.current + (1-cn)*targetDb
	return s.current
}

// Current returns the last smoothed value without advancing.
func (s *GainSmoother) Current() float64 {
	return s.current
}

// Reset zeroes the smoothed value.
func (s *GainSmoother) Reset() {
	s.current = 0
}

func (s *GainSmoother) updateCoefficients() {
	if s.sampleRate <= 0 {
		return
	}
	s.attackCoef = timeCoefficient(s.sampleRate, s.attackMs)
	s.releaseCoef = timeCoefficient(s.sampleRate, s.releaseMs)
}

// timeCoefficient returns exp(-1 / (sampleRate * ms * 0.001)).
func timeCoefficient(sampleRate, ms float64) float64 {
	if ms <= 0 {
		return 0
	}
	return math.Exp(-1.0 / (sampleRate * ms * 0.001))
}
