package gainstage

import (
	"github.com/justyntemme/gainstage/pkg/framework/param"
	"github.com/justyntemme/gainstage/pkg/shared"
)

// Parameter IDs
const (
	ParamMode uint32 = iota
	ParamPairID
	ParamInputGain
	ParamOutputGain
	ParamBypass
	ParamMeasurementMode
	ParamRMSWindow
	ParamAttack
	ParamRelease
	ParamTolerance
	ParamDeltaEnabled
	ParamDeltaGain
	ParamDeltaSolo
	ParamListenBefore
	ParamListenAfter
	ParamLatencyOffset

	// Read-only meters
	ParamBeforeLevel
	ParamAfterLevel
	ParamOutputLevel
	ParamDeltaLevel
	ParamGainReduction
)

// Control ranges and defaults
const (
	TrimRangeDB      = 40.0
	MaxCorrectionDB  = 40.0
	WarningDB        = 10.0
	MinAttackMs      = 10.0
	MaxAttackMs      = 500.0
	DefaultAttackMs  = 50.0
	MinReleaseMs     = 50.0
	MaxReleaseMs     = 2000.0
	DefaultReleaseMs = 200.0
	MinToleranceDB   = 0.1
	MaxToleranceDB   = 3.0
	DefaultTolerance = 0.5
	MaxLatency       = 48000

	// Meters cover the hottest signal the trims can produce.
	meterMaxDB = 2*TrimRangeDB + 20
)

// Role selects which side of a pair an instance plays.
type Role int

const (
	RoleBefore Role = iota
	RoleAfter
)

func (r Role) String() string {
	if r == RoleAfter {
		return "after"
	}
	return "before"
}

// MeasurementMode selects which level drives the gain difference.
type MeasurementMode int

const (
	MeasureRMS MeasurementMode = iota
	MeasurePeak
)

func (m MeasurementMode) String() string {
	if m == MeasurePeak {
		return "peak"
	}
	return "rms"
}

// RMSWindow is one of the selectable RMS averaging lengths.
type RMSWindow int

const (
	Window50ms RMSWindow = iota
	Window100ms
	Window300ms
)

// Milliseconds returns the window length in ms.
func (w RMSWindow) Milliseconds() int {
	switch w {
	case Window50ms:
		return 50
	case Window300ms:
		return 300
	default:
		return 100
	}
}

// Samples converts the window to a sample count at sampleRate.
func (w RMSWindow) Samples(sampleRate float64) int {
	return int(sampleRate * float64(w.Milliseconds()) * 0.001)
}

// registerParameters adds every control and meter to r.
func registerParameters(r *param.Registry) error {
	return r.Add(
		param.Choice(ParamMode, "Mode", []param.ChoiceOption{
			{Value: float64(RoleBefore), Name: "Before", Aliases: []string{"pre", "reference"}},
			{Value: float64(RoleAfter), Name: "After", Aliases: []string{"post"}},
		}).Build(),
		param.New(ParamPairID, "Pair ID").ShortName("Pair").Integer(1, shared.MaxPairs).Default(1).Build(),
		param.GainParameter(ParamInputGain, "Input Gain", TrimRangeDB).ShortName("In").Build(),
		param.GainParameter(ParamOutputGain, "Output Gain", TrimRangeDB).ShortName("Out").Build(),
		param.BypassParameter(ParamBypass, "Bypass").Build(),

		param.Choice(ParamMeasurementMode, "Measurement Mode", []param.ChoiceOption{
			{Value: float64(MeasureRMS), Name: "RMS"},
			{Value: float64(MeasurePeak), Name: "Peak"},
		}).ShortName("Measure").Build(),
		param.Choice(ParamRMSWindow, "RMS Window", []param.ChoiceOption{
			{Value: float64(Window50ms), Name: "50ms", Aliases: []string{"50", "50 ms"}},
			{Value: float64(Window100ms), Name: "100ms", Aliases: []string{"100", "100 ms"}},
			{Value: float64(Window300ms), Name: "300ms", Aliases: []string{"300", "300 ms"}},
		}).Default(float64(Window100ms)).ShortName("Window").Build(),
		param.TimeParameter(ParamAttack, "Attack Time", MinAttackMs, MaxAttackMs, DefaultAttackMs).ShortName("Attack").Build(),
		param.TimeParameter(ParamRelease, "Release Time", MinReleaseMs, MaxReleaseMs, DefaultReleaseMs).ShortName("Release").Build(),
		param.ToleranceParameter(ParamTolerance, "Tolerance", MinToleranceDB, MaxToleranceDB, DefaultTolerance).ShortName("Tol").Build(),

		param.SwitchParameter(ParamDeltaEnabled, "Delta").Build(),
		param.GainParameter(ParamDeltaGain, "Delta Gain", TrimRangeDB).Build(),
		param.SwitchParameter(ParamDeltaSolo, "Delta Solo").Build(),
		param.SwitchParameter(ParamListenBefore, "Listen Before").Build(),
		param.SwitchParameter(ParamListenAfter, "Listen After").Build(),
		param.SamplesParameter(ParamLatencyOffset, "Latency Offset", MaxLatency).ShortName("Latency").Build(),

		param.LevelMeter(ParamBeforeLevel, "Before Level", meterMaxDB).Build(),
		param.LevelMeter(ParamAfterLevel, "After Level", meterMaxDB).Build(),
		param.LevelMeter(ParamOutputLevel, "Output Level", meterMaxDB).Build(),
		param.LevelMeter(ParamDeltaLevel, "Delta Level", meterMaxDB).Build(),
		param.GainParameter(ParamGainReduction, "Gain Correction", MaxCorrectionDB).ReadOnly().Build(),
	)
}

// controls caches the parameter pointers read each block.
type controls struct {
	mode         *param.Parameter
	pairID       *param.Parameter
	inputGain    *param.Parameter
	outputGain   *param.Parameter
	bypass       *param.Parameter
	measurement  *param.Parameter
	rmsWindow    *param.Parameter
	attack       *param.Parameter
	release      *param.Parameter
	tolerance    *param.Parameter
	deltaEnabled *param.Parameter
	deltaGain    *param.Parameter
	deltaSolo    *param.Parameter
	listenBefore *param.Parameter
	listenAfter  *param.Parameter
	latency      *param.Parameter

	beforeLevel   *param.Parameter
	afterLevel    *param.Parameter
	outputLevel   *param.Parameter
	deltaLevel    *param.Parameter
	gainReduction *param.Parameter
}

func bindControls(r *param.Registry) controls {
	return controls{
		mode:         r.MustGet(ParamMode),
		pairID:       r.MustGet(ParamPairID),
		inputGain:    r.MustGet(ParamInputGain),
		outputGain:   r.MustGet(ParamOutputGain),
		bypass:       r.MustGet(ParamBypass),
		measurement:  r.MustGet(ParamMeasurementMode),
		rmsWindow:    r.MustGet(ParamRMSWindow),
		attack:       r.MustGet(ParamAttack),
		release:      r.MustGet(ParamRelease),
		tolerance:    r.MustGet(ParamTolerance),
		deltaEnabled: r.MustGet(ParamDeltaEnabled),
		deltaGain:    r.MustGet(ParamDeltaGain),
		deltaSolo:    r.MustGet(ParamDeltaSolo),
		listenBefore: r.MustGet(ParamListenBefore),
		listenAfter:  r.MustGet(ParamListenAfter),
		latency:      r.MustGet(ParamLatencyOffset),

		beforeLevel:   r.MustGet(ParamBeforeLevel),
		afterLevel:    r.MustGet(ParamAfterLevel),
		outputLevel:   r.MustGet(ParamOutputLevel),
		deltaLevel:    r.MustGet(ParamDeltaLevel),
		gainReduction: r.MustGet(ParamGainReduction),
	}
}

func (c *controls) role() Role {
	return Role(c.mode.Int())
}

func (c *controls) pair() int {
	return c.pairID.Int()
}

func (c *controls) measurementMode() MeasurementMode {
	return MeasurementMode(c.measurement.Int())
}

func (c *controls) window() RMSWindow {
	return RMSWindow(c.rmsWindow.Int())
}
