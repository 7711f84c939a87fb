// Package param provides lock-free plugin parameters.
//
// A Parameter stores its normalized value (0-1) as atomic float64 bits, so
// the control thread can write while an audio callback reads without locks.
package param

import (
	"fmt"
	"math"
	"strconv"
	"sync/atomic"
)

// Parameter represents a plugin parameter
type Parameter struct {
	ID           uint32
	Name         string
	ShortName    string
	Unit         string
	Min          float64
	Max          float64
	DefaultValue float64 // normalized
	StepCount    int32
	Flags        uint32

	// normalized value as float64 bits
	value atomic.Uint64

	formatFunc func(float64) string
	parseFunc  func(string) (float64, error)
}

// Flags for parameters
const (
	CanAutomate uint32 = 1 << 0
	IsReadOnly  uint32 = 1 << 1
	IsList      uint32 = 1 << 3
	IsBypass    uint32 = 1 << 16
)

// GetValue returns the current normalized value (0-1)
func (p *Parameter) GetValue() float64 {
	return math.Float64frombits(p.value.Load())
}

// SetValue sets the normalized value, clamped to 0-1
func (p *Parameter) SetValue(value float64) {
	if value < 0 || math.IsNaN(value) {
		value = 0
	} else if value > 1 {
		value = 1
	}
	p.value.Store(math.Float64bits(value))
}

// GetPlainValue converts the current value to the plain range. Stepped
// parameters snap to the nearest step.
func (p *Parameter) GetPlainValue() float64 {
	return p.Denormalize(p.GetValue())
}

// SetPlainValue sets the value from the plain range
func (p *Parameter) SetPlainValue(plain float64) {
	p.SetValue(p.Normalize(plain))
}

// Int returns the plain value rounded to the nearest integer
func (p *Parameter) Int() int {
	return int(math.Round(p.GetPlainValue()))
}

// Bool reports whether a toggle is on
func (p *Parameter) Bool() bool {
	return p.GetValue() > 0.5
}

// Reset restores the default value
func (p *Parameter) Reset() {
	p.SetValue(p.DefaultValue)
}

// FormatValue returns formatted parameter value
func (p *Parameter) FormatValue(normalized float64) string {
	plain := p.Denormalize(normalized)
	if p.formatFunc != nil {
		return p.formatFunc(plain)
	}
	if p.StepCount > 0 {
		return fmt.Sprintf("%.0f", plain)
	}
	return fmt.Sprintf("%.2f", plain)
}

// ParseValue parses string to normalized value
func (p *Parameter) ParseValue(str string) (float64, error) {
	parse := p.parseFunc
	if parse == nil {
		parse = func(s string) (float64, error) { return strconv.ParseFloat(s, 64) }
	}
	plain, err := parse(str)
	if err != nil {
		return 0, fmt.Errorf("parameter %q: %w", p.Name, err)
	}
	return p.Normalize(plain), nil
}

// Normalize converts plain value to normalized (0-1)
func (p *Parameter) Normalize(plain float64) float64 {
	if p.Max <= p.Min {
		return 0
	}
	normalized := (plain - p.Min) / (p.Max - p.Min)
	if normalized < 0 {
		return 0
	}
	if normalized > 1 {
		return 1
	}
	return normalized
}

// Denormalize converts normalized (0-1) to plain value
func (p *Parameter) Denormalize(normalized float64) float64 {
	if p.StepCount > 0 {
		normalized = math.Round(normalized*float64(p.StepCount)) / float64(p.StepCount)
	}
	return p.Min + normalized*(p.Max-p.Min)
}
