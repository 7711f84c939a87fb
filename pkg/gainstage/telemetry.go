package gainstage

import (
	"fmt"
	"math"
)

// Telemetry is a polled snapshot of an instance's meters and status.
type Telemetry struct {
	Role   Role
	PairID int

	BeforeLevelDB float64
	AfterLevelDB  float64
	OutputLevelDB float64
	DeltaLevelDB  float64
	// GainDB is the smoothed correction currently applied.
	GainDB float64

	Compensating   bool
	Warning        bool
	Clipping       bool
	Paired         bool
	WriterConflict bool
}

// Telemetry returns the current meter values and status flags. Safe to call
// from any goroutine while audio is running.
func (p *Processor) Telemetry() Telemetry {
	t := Telemetry{
		Role:           p.c.role(),
		PairID:         p.c.pair(),
		BeforeLevelDB:  p.c.beforeLevel.GetPlainValue(),
		AfterLevelDB:   p.c.afterLevel.GetPlainValue(),
		OutputLevelDB:  p.c.outputLevel.GetPlainValue(),
		DeltaLevelDB:   p.c.deltaLevel.GetPlainValue(),
		GainDB:         p.c.gainReduction.GetPlainValue(),
		Compensating:   p.compensating.Load(),
		Clipping:       p.clipping.Load(),
		Paired:         p.IsPaired(),
		WriterConflict: p.conflict.Load(),
	}
	t.Warning = math.Abs(t.GainDB) > WarningDB
	return t
}

// Status returns the short status line a display would show.
func (t Telemetry) Status() string {
	switch {
	case !t.Paired:
		return "NOT PAIRED"
	case t.WriterConflict:
		return "PAIR CONFLICT"
	case t.Role == RoleBefore:
		return "REFERENCE"
	case t.Warning:
		return "LARGE CORRECTION"
	case t.Compensating:
		return "MATCHING"
	default:
		return "MATCHED"
	}
}

func (t Telemetry) String() string {
	return fmt.Sprintf("%s pair %d [%s] before %.1f dB, after %.1f dB, output %.1f dB, delta %.1f dB, gain %+.2f dB",
		t.Role, t.PairID, t.Status(), t.BeforeLevelDB, t.AfterLevelDB, t.OutputLevelDB, t.DeltaLevelDB, t.GainDB)
}
