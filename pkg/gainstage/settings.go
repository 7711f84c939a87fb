package gainstage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/justyntemme/gainstage/pkg/framework/param"
)

// validate is the shared validator instance for settings.
var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	// Use JSON tag names in error messages instead of struct field names
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return fld.Name
		}
		return name
	})
}

// Settings is the file form of an instance's controls.
type Settings struct {
	Role         string  `json:"role" validate:"oneof=before after"`
	PairID       int     `json:"pair_id" validate:"min=1,max=16"`
	InputTrimDB  float64 `json:"input_trim_db" validate:"min=-40,max=40"`
	OutputTrimDB float64 `json:"output_trim_db" validate:"min=-40,max=40"`
	Bypass       bool    `json:"bypass"`

	Measurement string  `json:"measurement" validate:"oneof=rms peak"`
	RMSWindowMs int     `json:"rms_window_ms" validate:"oneof=50 100 300"`
	AttackMs    float64 `json:"attack_ms" validate:"min=10,max=500"`
	ReleaseMs   float64 `json:"release_ms" validate:"min=50,max=2000"`
	ToleranceDB float64 `json:"tolerance_db" validate:"min=0.1,max=3"`

	DeltaEnabled bool    `json:"delta_enabled"`
	DeltaSolo    bool    `json:"delta_solo"`
	DeltaGainDB  float64 `json:"delta_gain_db" validate:"min=-40,max=40"`

	ListenBefore bool `json:"listen_before"`
	ListenAfter  bool `json:"listen_after"`

	LatencySamples int `json:"latency_samples" validate:"min=0,max=48000"`
}

// DefaultSettings returns the settings of a freshly created instance.
func DefaultSettings() Settings {
	return Settings{
		Role:        RoleBefore.String(),
		PairID:      1,
		Measurement: MeasureRMS.String(),
		RMSWindowMs: Window100ms.Milliseconds(),
		AttackMs:    DefaultAttackMs,
		ReleaseMs:   DefaultReleaseMs,
		ToleranceDB: DefaultTolerance,
	}
}

// LoadSettings reads JSON settings from path. Fields missing from the file
// keep their defaults.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()
	data, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("read settings: %w", err)
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parse settings %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return s, fmt.Errorf("settings %s: %w", path, err)
	}
	return s, nil
}

// Validate checks every field against its allowed range.
func (s *Settings) Validate() error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}
	msgs := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		msgs = append(msgs, fmt.Sprintf("%s %s", e.Field(), formatValidationMessage(e)))
	}
	return fmt.Errorf("invalid settings: %s", strings.Join(msgs, "; "))
}

// formatValidationMessage creates a human-readable message from a validator error.
func formatValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "min":
		return fmt.Sprintf("must be at least %s", e.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", e.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", e.Param())
	default:
		return fmt.Sprintf("failed validation '%s'", e.Tag())
	}
}

// Apply validates s and writes it to the processor's parameters.
func (s *Settings) Apply(r *param.Registry) error {
	if err := s.Validate(); err != nil {
		return err
	}

	role := RoleBefore
	if s.Role == RoleAfter.String() {
		role = RoleAfter
	}
	measurement := MeasureRMS
	if s.Measurement == MeasurePeak.String() {
		measurement = MeasurePeak
	}
	window := Window100ms
	switch s.RMSWindowMs {
	case 50:
		window = Window50ms
	case 300:
		window = Window300ms
	}

	values := []struct {
		id    uint32
		plain float64
	}{
		{ParamMode, float64(role)},
		{ParamPairID, float64(s.PairID)},
		{ParamInputGain, s.InputTrimDB},
		{ParamOutputGain, s.OutputTrimDB},
		{ParamBypass, boolValue(s.Bypass)},
		{ParamMeasurementMode, float64(measurement)},
		{ParamRMSWindow, float64(window)},
		{ParamAttack, s.AttackMs},
		{ParamRelease, s.ReleaseMs},
		{ParamTolerance, s.ToleranceDB},
		{ParamDeltaEnabled, boolValue(s.DeltaEnabled)},
		{ParamDeltaSolo, boolValue(s.DeltaSolo)},
		{ParamDeltaGain, s.DeltaGainDB},
		{ParamListenBefore, boolValue(s.ListenBefore)},
		{ParamListenAfter, boolValue(s.ListenAfter)},
		{ParamLatencyOffset, float64(s.LatencySamples)},
	}
	for _, v := range values {
		if err := r.SetPlain(v.id, v.plain); err != nil {
			return fmt.Errorf("apply settings: %w", err)
		}
	}
	return nil
}

// SettingsFromRegistry reads the current controls back into Settings.
func SettingsFromRegistry(r *param.Registry) (Settings, error) {
	for id := ParamMode; id <= ParamGainReduction; id++ {
		if r.Get(id) == nil {
			return Settings{}, fmt.Errorf("parameter %d not registered", id)
		}
	}
	c := bindControls(r)
	return Settings{
		Role:           c.role().String(),
		PairID:         c.pair(),
		InputTrimDB:    c.inputGain.GetPlainValue(),
		OutputTrimDB:   c.outputGain.GetPlainValue(),
		Bypass:         c.bypass.Bool(),
		Measurement:    c.measurementMode().String(),
		RMSWindowMs:    c.window().Milliseconds(),
		AttackMs:       c.attack.GetPlainValue(),
		ReleaseMs:      c.release.GetPlainValue(),
		ToleranceDB:    c.tolerance.GetPlainValue(),
		DeltaEnabled:   c.deltaEnabled.Bool(),
		DeltaSolo:      c.deltaSolo.Bool(),
		DeltaGainDB:    c.deltaGain.GetPlainValue(),
		ListenBefore:   c.listenBefore.Bool(),
		ListenAfter:    c.listenAfter.Bool(),
		LatencySamples: c.latency.Int(),
	}, nil
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
