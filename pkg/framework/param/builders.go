package param

import (
	"fmt"
	"strings"
)

// ChoiceOption represents a single choice in a list parameter
type ChoiceOption struct {
	Value   float64
	Name    string
	Aliases []string
}

// Choice creates a parameter builder for a multiple choice parameter.
// Option values are expected to be consecutive integers.
func Choice(id uint32, name string, options []ChoiceOption) *Builder {
	if len(options) == 0 {
		panic("param: choice needs at least one option")
	}

	formatter := func(value float64) string {
		for _, opt := range options {
			if opt.Value == value {
				return opt.Name
			}
		}
		return "Unknown"
	}

	parser := func(str string) (float64, error) {
		str = strings.TrimSpace(str)
		for _, opt := range options {
			if strings.EqualFold(str, opt.Name) {
				return opt.Value, nil
			}
			for _, alias := range opt.Aliases {
				if strings.EqualFold(str, alias) {
					return opt.Value, nil
				}
			}
		}
		return 0, fmt.Errorf("unknown option: %s", str)
	}

	minVal := options[0].Value
	maxVal := options[len(options)-1].Value

	return New(id, name).
		Range(minVal, maxVal).
		Steps(int32(len(options)-1)).
		Default(options[0].Value).
		Flags(CanAutomate | IsList).
		Formatter(formatter, parser)
}

// Common parameter helpers

// GainParameter creates a gain offset parameter spanning ±rangeDB
func GainParameter(id uint32, name string, rangeDB float64) *Builder {
	return New(id, name).
		Range(-rangeDB, rangeDB).
		Default(0).
		Unit("dB").
		Formatter(SignedDecibelFormatter, DecibelParser)
}

// TimeParameter creates a time parameter (ms or s depending on range)
func TimeParameter(id uint32, name string, minMs, maxMs, defaultMs float64) *Builder {
	return New(id, name).
		Range(minMs, maxMs).
		Default(defaultMs).
		Unit("ms").
		Formatter(TimeFormatter, TimeParser)
}

// ToleranceParameter creates a dB dead-band parameter
func ToleranceParameter(id uint32, name string, minDB, maxDB, defaultDB float64) *Builder {
	return New(id, name).
		Range(minDB, maxDB).
		Default(defaultDB).
		Unit("dB").
		Formatter(func(v float64) string {
			return fmt.Sprintf("%.2f dB", v)
		}, DecibelParser)
}

// SamplesParameter creates an integer sample count parameter
func SamplesParameter(id uint32, name string, maxSamples int) *Builder {
	return New(id, name).
		Integer(0, maxSamples).
		Default(0).
		Unit("samples").
		Formatter(SamplesFormatter, SamplesParser)
}

// SwitchParameter creates an on/off toggle
func SwitchParameter(id uint32, name string) *Builder {
	return New(id, name).
		Toggle().
		Formatter(OnOffFormatter, OnOffParser)
}

// LevelMeter creates a read-only dB meter with a -100 dB floor
func LevelMeter(id uint32, name string, maxDB float64) *Builder {
	return New(id, name).
		Range(-100, maxDB).
		Default(-100).
		Unit("dB").
		Formatter(DecibelFormatter, DecibelParser).
		ReadOnly()
}

// BypassParameter creates a bypass on/off switch
func BypassParameter(id uint32, name string) *Builder {
	return Choice(id, name, []ChoiceOption{
		{Value: 0, Name: "Active"},
		{Value: 1, Name: "Bypassed"},
	}).Bypass()
}
