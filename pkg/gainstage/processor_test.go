package gainstage

import (
	"bytes"
	"io"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/justyntemme/gainstage/pkg/dsp/gain"
	"github.com/justyntemme/gainstage/pkg/framework/debug"
	"github.com/justyntemme/gainstage/pkg/framework/process"
	"github.com/justyntemme/gainstage/pkg/shared"
)

const (
	testSampleRate = 48000.0
	testBlockSize  = 512
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// instance couples a processor with its own process context and buffers.
type instance struct {
	p   *Processor
	ctx *process.Context
	in  [][]float32
	out [][]float32
}

func newInstance(t testing.TB, reg *shared.Registry, mutate func(*Settings)) *instance {
	t.Helper()
	quiet := debug.New(io.Discard, "", 0)
	p := NewProcessor(reg, WithLogger(quiet))

	s := DefaultSettings()
	if mutate != nil {
		mutate(&s)
	}
	if err := s.Apply(p.GetParameters()); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if err := p.Initialize(testSampleRate, testBlockSize); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return &instance{
		p:   p,
		ctx: process.NewContext(testBlockSize),
		in:  [][]float32{make([]float32, testBlockSize), make([]float32, testBlockSize)},
		out: [][]float32{make([]float32, testBlockSize), make([]float32, testBlockSize)},
	}
}

func (inst *instance) process(n int) {
	inst.ctx.SetBlock(inst.in, inst.out, n)
	inst.p.ProcessAudio(inst.ctx)
}

// tone fills every channel of block with a sine continuing from sample index start.
func tone(block [][]float32, start int, freq, amplitude float64) {
	for _, ch := range block {
		for i := range ch {
			phase := 2 * math.Pi * freq * float64(start+i) / testSampleRate
			ch[i] = float32(amplitude * math.Sin(phase))
		}
	}
}

func rmsDb(block [][]float32) float64 {
	var sum float64
	count := 0
	for _, ch := range block {
		for _, s := range ch {
			sum += float64(s) * float64(s)
			count++
		}
	}
	return gain.LinearToDb(math.Sqrt(sum / float64(count)))
}

func TestLevelMatchConverges(t *testing.T) {
	clock := newFakeClock()
	reg := shared.NewRegistry(shared.WithClock(clock.Now))

	before := newInstance(t, reg, func(s *Settings) {
		s.PairID = 3
	})
	after := newInstance(t, reg, func(s *Settings) {
		s.Role = "after"
		s.PairID = 3
		s.ToleranceDB = 0.5
	})

	amplitude := gain.DbToLinear(-6)
	for b := 0; b < 300; b++ {
		start := b * testBlockSize
		tone(before.in, start, 1000, amplitude)
		tone(after.in, start, 1000, amplitude*gain.DbToLinear(-6))
		before.process(testBlockSize)
		after.process(testBlockSize)
	}

	tel := after.p.Telemetry()
	if !tel.Paired {
		t.Fatal("After instance should be paired")
	}
	if !tel.Compensating {
		t.Error("compensation should be armed")
	}
	if math.Abs(tel.GainDB-6) > 0.1 {
		t.Errorf("GainDB = %.3f, want about +6", tel.GainDB)
	}
	if math.Abs(tel.BeforeLevelDB-tel.AfterLevelDB-6) > 0.1 {
		t.Errorf("measured difference = %.3f, want about 6", tel.BeforeLevelDB-tel.AfterLevelDB)
	}
	if diff := math.Abs(rmsDb(after.out) - rmsDb(before.in)); diff > 0.5 {
		t.Errorf("output is %.3f dB from the reference, want within tolerance", diff)
	}
	if tel.Warning {
		t.Error("6 dB correction should not raise the warning")
	}
	if tel.Status() != "MATCHING" {
		t.Errorf("Status() = %q", tel.Status())
	}

	btel := before.p.Telemetry()
	if !btel.Paired || btel.Role != RoleBefore || btel.WriterConflict {
		t.Errorf("unexpected Before telemetry: %+v", btel)
	}
	// Stereo history is averaged over both channels and divided by the
	// channel count, so a full-scale stereo sine reads 6 dB under its peak.
	if want := gain.LinearToDb(amplitude / 2); math.Abs(btel.BeforeLevelDB-want) > 0.1 {
		t.Errorf("Before level = %.3f dB, want about %.3f", btel.BeforeLevelDB, want)
	}
}

func TestUnpairedAppliesNoGain(t *testing.T) {
	reg := shared.NewRegistry()
	after := newInstance(t, reg, func(s *Settings) {
		s.Role = "after"
		s.PairID = 5
		s.ToleranceDB = 0.1
	})

	for b := 0; b < 50; b++ {
		tone(after.in, b*testBlockSize, 440, 0.25)
		after.process(testBlockSize)
	}

	tel := after.p.Telemetry()
	if tel.Paired || after.p.IsPaired() {
		t.Error("pair 5 was never published and must not be paired")
	}
	if tel.Compensating || tel.GainDB != 0 {
		t.Errorf("expected no correction, got compensating=%v gain=%f", tel.Compensating, tel.GainDB)
	}
	if tel.Status() != "NOT PAIRED" {
		t.Errorf("Status() = %q", tel.Status())
	}
	for ch := range after.out {
		for i := range after.out[ch] {
			if after.out[ch][i] != after.in[ch][i] {
				t.Fatalf("output[%d][%d] = %f, want unchanged %f", ch, i, after.out[ch][i], after.in[ch][i])
			}
		}
	}
}

func TestDeltaSoloOfIdenticalSignalsIsSilent(t *testing.T) {
	reg := shared.NewRegistry()
	before := newInstance(t, reg, func(s *Settings) { s.PairID = 7 })
	after := newInstance(t, reg, func(s *Settings) {
		s.Role = "after"
		s.PairID = 7
		s.DeltaSolo = true
	})

	for b := 0; b < 20; b++ {
		tone(before.in, b*testBlockSize, 1000, 0.5)
		tone(after.in, b*testBlockSize, 1000, 0.5)
		before.process(testBlockSize)
		after.process(testBlockSize)
	}

	for ch := range after.out {
		for i, s := range after.out[ch] {
			if s != 0 {
				t.Fatalf("delta output[%d][%d] = %g, want 0", ch, i, s)
			}
		}
	}
	if got := after.p.Telemetry().DeltaLevelDB; got != gain.FloorDB {
		t.Errorf("DeltaLevelDB = %f, want %f", got, gain.FloorDB)
	}
}

func TestDeltaMonitoring(t *testing.T) {
	reg := shared.NewRegistry()
	before := newInstance(t, reg, func(s *Settings) { s.PairID = 8 })
	after := newInstance(t, reg, func(s *Settings) {
		s.Role = "after"
		s.PairID = 8
		s.DeltaEnabled = true
		s.DeltaGainDB = 6
	})

	for ch := range before.in {
		for i := range before.in[ch] {
			before.in[ch][i] = 0.5
			after.in[ch][i] = 0.25
		}
	}
	for b := 0; b < 20; b++ {
		before.process(testBlockSize)
		after.process(testBlockSize)
	}

	tel := after.p.Telemetry()
	want := gain.LinearToDb(0.25 * gain.DbToLinear(6) / math.Sqrt(2))
	if math.Abs(tel.DeltaLevelDB-want) > 0.01 {
		t.Errorf("DeltaLevelDB = %f, want %f", tel.DeltaLevelDB, want)
	}
	if tel.DeltaLevelDB <= gain.FloorDB {
		t.Error("delta of differing signals should be above the floor")
	}
	// Delta is monitored only; the audible path is the live input.
	if after.out[0][0] <= 0 {
		t.Errorf("output = %f, delta should not replace the output unless soloed", after.out[0][0])
	}
}

func TestRouting(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
		want   float32
	}{
		{"listen before", func(s *Settings) { s.ListenBefore = true }, 0.5},
		{"listen after", func(s *Settings) { s.ListenAfter = true }, 0.125},
		{"before wins over after", func(s *Settings) { s.ListenBefore = true; s.ListenAfter = true }, 0.5},
		{"listen after wins over solo", func(s *Settings) { s.ListenAfter = true; s.DeltaSolo = true }, 0.125},
		{"solo", func(s *Settings) { s.DeltaSolo = true }, -0.375},
		{"solo with delta gain", func(s *Settings) { s.DeltaSolo = true; s.DeltaGainDB = 20 }, -3.75},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := shared.NewRegistry()
			pair := i + 1
			before := newInstance(t, reg, func(s *Settings) { s.PairID = pair })
			after := newInstance(t, reg, func(s *Settings) {
				s.Role = "after"
				s.PairID = pair
				s.InputTrimDB = -6.0206
				tt.mutate(s)
			})

			for ch := range before.in {
				for j := range before.in[ch] {
					before.in[ch][j] = 0.5
					after.in[ch][j] = 0.25
				}
			}
			before.process(testBlockSize)
			after.process(testBlockSize)

			for ch := range after.out {
				got := after.out[ch][testBlockSize-1]
				if math.Abs(float64(got-tt.want)) > 1e-3 {
					t.Errorf("ch %d: output = %f, want %f", ch, got, tt.want)
				}
			}
		})
	}
}

func TestOutputTrimAndClipping(t *testing.T) {
	reg := shared.NewRegistry()
	after := newInstance(t, reg, func(s *Settings) {
		s.Role = "after"
		s.OutputTrimDB = 12
	})

	for ch := range after.in {
		for i := range after.in[ch] {
			after.in[ch][i] = 0.5
		}
	}
	after.process(testBlockSize)

	tel := after.p.Telemetry()
	if !tel.Clipping {
		t.Error("0.5 with +12 dB output trim should clip")
	}
	wantOut := 0.5 * gain.DbToLinear(12)
	if math.Abs(float64(after.out[0][10])-wantOut) > 1e-4 {
		t.Errorf("output = %f, want %f", after.out[0][10], wantOut)
	}

	after.p.GetParameters().MustGet(ParamOutputGain).SetPlainValue(0)
	after.process(testBlockSize)
	if after.p.Telemetry().Clipping {
		t.Error("clipping flag should clear once the output is back below full scale")
	}
}

func TestBypass(t *testing.T) {
	reg := shared.NewRegistry()
	before := newInstance(t, reg, func(s *Settings) {
		s.PairID = 4
		s.Bypass = true
		s.InputTrimDB = 12
	})

	tone(before.in, 0, 1000, 0.5)
	before.process(testBlockSize)

	if reg.Sequence(4) != 0 || reg.IsLive(4) {
		t.Error("bypassed instance must not publish")
	}
	for i := range before.out[0] {
		if before.out[0][i] != before.in[0][i] {
			t.Fatalf("bypass changed sample %d", i)
		}
	}
	if got := before.p.Telemetry().BeforeLevelDB; got != gain.FloorDB {
		t.Errorf("bypassed instance should not measure, level = %f", got)
	}
}

func TestStaleBeforeDisarmsCompensation(t *testing.T) {
	clock := newFakeClock()
	reg := shared.NewRegistry(shared.WithClock(clock.Now))
	before := newInstance(t, reg, func(s *Settings) { s.PairID = 9 })
	after := newInstance(t, reg, func(s *Settings) {
		s.Role = "after"
		s.PairID = 9
	})

	tone(before.in, 0, 1000, 0.5)
	tone(after.in, 0, 1000, 0.1)
	before.process(testBlockSize)
	after.process(testBlockSize)
	if !after.p.Telemetry().Compensating {
		t.Fatal("compensation should arm while the Before instance is live")
	}

	clock.Advance(999 * time.Millisecond)
	if !after.p.IsPaired() {
		t.Error("999 ms after the last publish the pair should still be live")
	}

	clock.Advance(time.Millisecond)
	if after.p.IsPaired() {
		t.Error("1000 ms after the last publish the pair should be stale")
	}
	after.process(testBlockSize)
	if after.p.Telemetry().Compensating {
		t.Error("stale pair must not arm compensation")
	}
}

func TestRoleChangeMarksSlotInactive(t *testing.T) {
	reg := shared.NewRegistry()
	inst := newInstance(t, reg, func(s *Settings) { s.PairID = 2 })

	tone(inst.in, 0, 1000, 0.5)
	inst.process(testBlockSize)
	if !reg.IsLive(2) {
		t.Fatal("Before instance should make its pair live")
	}

	inst.p.GetParameters().MustGet(ParamMode).SetPlainValue(float64(RoleAfter))
	inst.process(testBlockSize)
	if reg.IsLive(2) {
		t.Error("switching to After should mark the old slot inactive")
	}

	inst.p.GetParameters().MustGet(ParamMode).SetPlainValue(float64(RoleBefore))
	inst.p.GetParameters().MustGet(ParamPairID).SetPlainValue(6)
	inst.process(testBlockSize)
	if !reg.IsLive(6) {
		t.Error("Before instance should publish on its new pair")
	}

	inst.p.GetParameters().MustGet(ParamPairID).SetPlainValue(10)
	inst.process(testBlockSize)
	if reg.IsLive(6) {
		t.Error("changing pair ID should mark the old slot inactive")
	}
	if !reg.IsLive(10) {
		t.Fatal("Before instance should publish on pair 10")
	}

	inst.p.Terminate()
	if reg.IsLive(10) {
		t.Error("Terminate should mark the slot inactive")
	}
}

func TestWriterConflict(t *testing.T) {
	reg := shared.NewRegistry()
	first := newInstance(t, reg, func(s *Settings) { s.PairID = 11 })
	first.process(testBlockSize)

	var logs bytes.Buffer
	p := NewProcessor(reg, WithLogger(debug.New(&logs, "", debug.FlagLevel)))
	s := DefaultSettings()
	s.PairID = 11
	if err := s.Apply(p.GetParameters()); err != nil {
		t.Fatal(err)
	}
	if err := p.Initialize(testSampleRate, testBlockSize); err != nil {
		t.Fatal(err)
	}

	tel := p.Telemetry()
	if !tel.WriterConflict {
		t.Error("second live Before on the same pair should report a conflict")
	}
	if tel.Status() != "PAIR CONFLICT" {
		t.Errorf("Status() = %q", tel.Status())
	}
	if !bytes.Contains(logs.Bytes(), []byte("[WARN]")) {
		t.Errorf("expected a warning, got %q", logs.String())
	}
}

func TestExtraOutputChannelsCleared(t *testing.T) {
	reg := shared.NewRegistry()
	inst := newInstance(t, reg, func(s *Settings) {
		s.Role = "after"
	})
	inst.in = inst.in[:1]
	for i := range inst.out[1] {
		inst.out[1][i] = 1
	}
	tone(inst.in, 0, 1000, 0.5)
	inst.process(testBlockSize)

	for i, s := range inst.out[1] {
		if s != 0 {
			t.Fatalf("extra output channel sample %d = %f, want 0", i, s)
		}
	}
}

func TestChannelsBeyondStereoSilenced(t *testing.T) {
	reg := shared.NewRegistry()
	inst := newInstance(t, reg, func(s *Settings) {
		s.Role = "after"
	})
	inst.in = append(inst.in, make([]float32, testBlockSize))
	inst.out = append(inst.out, make([]float32, testBlockSize))
	tone(inst.in, 0, 1000, 0.5)
	inst.process(testBlockSize)

	for i, s := range inst.out[2] {
		if s != 0 {
			t.Fatalf("third output channel sample %d = %f, want 0", i, s)
		}
	}
	if math.Abs(float64(inst.out[0][10]-inst.in[0][10])) > 1e-6 {
		t.Error("an unpaired After instance should pass the stereo channels through")
	}
}

func TestUninitializedPassesThrough(t *testing.T) {
	p := NewProcessor(shared.NewRegistry(), WithLogger(debug.New(io.Discard, "", 0)))
	ctx := process.NewContext(testBlockSize)
	in := [][]float32{make([]float32, 64), make([]float32, 64)}
	out := [][]float32{make([]float32, 64), make([]float32, 64)}
	tone(in, 0, 1000, 0.5)

	ctx.SetBlock(in, out, 64)
	p.ProcessAudio(ctx)

	for ch := range in {
		for i := range in[ch] {
			if out[ch][i] != in[ch][i] {
				t.Fatalf("out[%d][%d] = %f, want input %f", ch, i, out[ch][i], in[ch][i])
			}
		}
	}
}

func TestHotInputMetersUnclamped(t *testing.T) {
	reg := shared.NewRegistry()
	inst := newInstance(t, reg, func(s *Settings) {
		s.InputTrimDB = TrimRangeDB
	})
	for _, ch := range inst.in {
		for i := range ch {
			ch[i] = 0.9
		}
	}
	for b := 0; b < 20; b++ {
		inst.process(testBlockSize)
	}

	want := inst.p.beforeAnalyzer.RMSdB()
	if want < 30 {
		t.Fatalf("analyzer level = %.2f dB, expected a hot signal", want)
	}
	if got := inst.p.Telemetry().BeforeLevelDB; math.Abs(got-want) > 1e-3 {
		t.Errorf("BeforeLevelDB = %.2f, want the analyzer's %.2f", got, want)
	}
}

func TestShortBlocks(t *testing.T) {
	reg := shared.NewRegistry()
	before := newInstance(t, reg, func(s *Settings) { s.PairID = 12 })
	after := newInstance(t, reg, func(s *Settings) {
		s.Role = "after"
		s.PairID = 12
		s.ListenBefore = true
	})

	tone(before.in, 0, 1000, 0.5)
	before.process(100)
	after.process(100)
	for i := 0; i < 100; i++ {
		if after.out[0][i] != before.in[0][i] {
			t.Fatalf("sample %d: got %f, want %f", i, after.out[0][i], before.in[0][i])
		}
	}
}

func TestInitializeErrors(t *testing.T) {
	p := NewProcessor(shared.NewRegistry(), WithLogger(debug.New(io.Discard, "", 0)))
	if err := p.Initialize(0, 512); err == nil {
		t.Error("zero sample rate should fail")
	}
	if err := p.Initialize(48000, 0); err == nil {
		t.Error("zero block size should fail")
	}
}

func TestLayouts(t *testing.T) {
	p := NewProcessor(shared.NewRegistry(), WithLogger(debug.New(io.Discard, "", 0)))
	if !p.SupportsLayout(2, 2) || !p.SupportsLayout(1, 1) {
		t.Error("mono and stereo should be supported")
	}
	if p.SupportsLayout(1, 2) || p.SupportsLayout(6, 6) {
		t.Error("mismatched or surround layouts should be rejected")
	}
}

func TestStateRoundTrip(t *testing.T) {
	reg := shared.NewRegistry()
	src := newInstance(t, reg, func(s *Settings) {
		s.Role = "after"
		s.PairID = 13
		s.AttackMs = 120
		s.DeltaEnabled = true
		s.LatencySamples = 256
	})

	var blob bytes.Buffer
	if err := src.p.SaveState(&blob); err != nil {
		t.Fatalf("SaveState: %v", err)
	}

	dst := NewProcessor(reg, WithLogger(debug.New(io.Discard, "", 0)))
	if err := dst.LoadState(&blob); err != nil {
		t.Fatalf("LoadState: %v", err)
	}

	got, err := SettingsFromRegistry(dst.GetParameters())
	if err != nil {
		t.Fatal(err)
	}
	if got.Role != "after" || got.PairID != 13 || got.LatencySamples != 256 || !got.DeltaEnabled {
		t.Errorf("restored settings = %+v", got)
	}
	if math.Abs(got.AttackMs-120) > 1e-6 {
		t.Errorf("AttackMs = %f, want 120", got.AttackMs)
	}
}

func TestProcessAudioDoesNotAllocate(t *testing.T) {
	reg := shared.NewRegistry()
	before := newInstance(t, reg, func(s *Settings) { s.PairID = 14 })
	after := newInstance(t, reg, func(s *Settings) {
		s.Role = "after"
		s.PairID = 14
		s.DeltaEnabled = true
		s.OutputTrimDB = -3
	})
	tone(before.in, 0, 1000, 0.5)
	tone(after.in, 0, 1000, 0.3)

	allocs := testing.AllocsPerRun(100, func() {
		before.process(testBlockSize)
		after.process(testBlockSize)
	})
	if allocs != 0 {
		t.Errorf("ProcessAudio allocated %.1f times per block pair", allocs)
	}
}

func BenchmarkProcessAfter(b *testing.B) {
	reg := shared.NewRegistry()
	before := newInstance(b, reg, func(s *Settings) { s.PairID = 15 })
	after := newInstance(b, reg, func(s *Settings) {
		s.Role = "after"
		s.PairID = 15
	})
	tone(before.in, 0, 1000, 0.5)
	tone(after.in, 0, 1000, 0.25)
	before.process(testBlockSize)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		after.process(testBlockSize)
	}
}
