package debug

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

// Profiler records timing statistics for named sections.
type Profiler struct {
	mu           sync.RWMutex
	measurements map[string]*Measurement
	maxSamples   int
}

// Measurement holds timing statistics for a profiled section.
type Measurement struct {
	Name    string
	Count   uint64
	Total   time.Duration
	Min     time.Duration
	Max     time.Duration
	Last    time.Duration
	samples []time.Duration
	next    int
}

// NewProfiler creates a new profiler keeping the last maxSamples timings
// per section for percentiles.
func NewProfiler(maxSamples int) *Profiler {
	return &Profiler{
		measurements: make(map[string]*Measurement),
		maxSamples:   max(maxSamples, 1),
	}
}

// Start begins timing a named section. Call the returned func to stop.
func (p *Profiler) Start(name string) func() {
	start := time.Now()
	return func() {
		p.Record(name, time.Since(start))
	}
}

// Time measures the execution time of a function.
func (p *Profiler) Time(name string, fn func()) {
	stop := p.Start(name)
	defer stop()
	fn()
}

// Record stores a timing measurement.
func (p *Profiler) Record(name string, elapsed time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	m, exists := p.measurements[name]
	if !exists {
		m = &Measurement{
			Name:    name,
			Min:     elapsed,
			Max:     elapsed,
			samples: make([]time.Duration, 0, p.maxSamples),
		}
		p.measurements[name] = m
	}

	m.Count++
	m.Total += elapsed
	m.Last = elapsed
	m.Min = min(m.Min, elapsed)
	m.Max = max(m.Max, elapsed)

	if len(m.samples) < p.maxSamples {
		m.samples = append(m.samples, elapsed)
	} else {
		m.samples[m.next] = elapsed
		m.next = (m.next + 1) % p.maxSamples
	}
}

// GetMeasurement returns a copy of the measurement for a named section.
func (p *Profiler) GetMeasurement(name string) (Measurement, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	m, exists := p.measurements[name]
	if !exists {
		return Measurement{}, false
	}
	return m.clone(), true
}

// GetAllMeasurements returns copies of all measurements sorted by name.
func (p *Profiler) GetAllMeasurements() []Measurement {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make([]Measurement, 0, len(p.measurements))
	for _, m := range p.measurements {
		result = append(result, m.clone())
	}
	slices.SortFunc(result, func(a, b Measurement) int {
		return strings.Compare(a.Name, b.Name)
	})
	return result
}

// Report generates a performance report.
func (p *Profiler) Report() string {
	measurements := p.GetAllMeasurements()
	if len(measurements) == 0 {
		return "No measurements recorded"
	}

	var sb strings.Builder
	sb.WriteString("Performance Report:\n")
	sb.WriteString("==================\n\n")
	for _, m := range measurements {
		fmt.Fprintf(&sb, "%s:\n", m.Name)
		fmt.Fprintf(&sb, "  Count:   %d\n", m.Count)
		fmt.Fprintf(&sb, "  Total:   %v\n", m.Total)
		fmt.Fprintf(&sb, "  Average: %v\n", m.Average())
		fmt.Fprintf(&sb, "  Min:     %v\n", m.Min)
		fmt.Fprintf(&sb, "  Max:     %v\n", m.Max)
		fmt.Fprintf(&sb, "  p99:     %v\n\n", m.Percentile(99))
	}
	return sb.String()
}

func (m *Measurement) clone() Measurement {
	c := *m
	c.samples = slices.Clone(m.samples)
	return c
}

// Average returns the average time for this measurement.
func (m Measurement) Average() time.Duration {
	if m.Count == 0 {
		return 0
	}
	return m.Total / time.Duration(m.Count)
}

// Percentile returns the p-th percentile (0-100) of the retained samples.
func (m Measurement) Percentile(p float64) time.Duration {
	if len(m.samples) == 0 {
		return 0
	}
	sorted := slices.Clone(m.samples)
	slices.Sort(sorted)
	p = min(max(p, 0), 100)
	index := int(float64(len(sorted)-1) * p / 100.0)
	return sorted[index]
}

// BlockProfiler times audio blocks against the realtime budget of a block.
type BlockProfiler struct {
	*Profiler
	sampleRate float64
}

// BlockSection is the measurement name BlockProfiler records blocks under.
const BlockSection = "ProcessAudio"

// NewBlockProfiler creates a profiler for blocks at sampleRate.
func NewBlockProfiler(sampleRate float64) *BlockProfiler {
	return &BlockProfiler{
		Profiler:   NewProfiler(4096),
		sampleRate: sampleRate,
	}
}

// TimeBlock runs fn and records it as one block of numSamples samples.
// The budget used for Load is the block's realtime duration.
func (b *BlockProfiler) TimeBlock(numSamples int, fn func()) {
	start := time.Now()
	fn()
	elapsed := time.Since(start)
	b.Record(BlockSection, elapsed)
	b.Record(BlockSection+".budget", b.blockDuration(numSamples))
}

func (b *BlockProfiler) blockDuration(numSamples int) time.Duration {
	if b.sampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(numSamples) / b.sampleRate * float64(time.Second))
}

// Load returns processing time as a percentage of realtime.
func (b *BlockProfiler) Load() float64 {
	work, ok := b.GetMeasurement(BlockSection)
	if !ok {
		return 0
	}
	budget, ok := b.GetMeasurement(BlockSection + ".budget")
	if !ok || budget.Total == 0 {
		return 0
	}
	return float64(work.Total) / float64(budget.Total) * 100
}

// AudioReport generates an audio-specific performance report.
func (b *BlockProfiler) AudioReport() string {
	var sb strings.Builder
	work, _ := b.GetMeasurement(BlockSection)
	fmt.Fprintf(&sb, "Blocks:       %d\n", work.Count)
	fmt.Fprintf(&sb, "Avg block:    %v\n", work.Average())
	fmt.Fprintf(&sb, "p99 block:    %v\n", work.Percentile(99))
	fmt.Fprintf(&sb, "Sample rate:  %.0f Hz\n", b.sampleRate)
	fmt.Fprintf(&sb, "CPU load:     %.2f%%\n", b.Load())
	return sb.String()
}
