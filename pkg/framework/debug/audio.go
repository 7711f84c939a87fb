package debug

import (
	"fmt"
	"math"
)

// AudioAnalyzer checks audio buffers for common problems.
type AudioAnalyzer struct {
	clippingThreshold float32
	dcThreshold       float32
	silenceThreshold  float32
}

// NewAudioAnalyzer creates a new audio analyzer with default settings.
func NewAudioAnalyzer() *AudioAnalyzer {
	return &AudioAnalyzer{
		clippingThreshold: 1.0,
		dcThreshold:       0.01,
		silenceThreshold:  0.0001,
	}
}

// AnalysisResult contains the results of audio buffer analysis.
type AnalysisResult struct {
	Peak           float32
	RMS            float32
	DC             float32
	ClippedSamples int
	Silent         bool
	NonFinite      int
}

// Analyze measures a buffer. NaN and infinite samples are counted and left
// out of the other statistics.
func (a *AudioAnalyzer) Analyze(buffer []float32) AnalysisResult {
	result := AnalysisResult{}
	if len(buffer) == 0 {
		return result
	}

	var sum, sumSquares float64
	finite := 0
	for _, sample := range buffer {
		s := float64(sample)
		if math.IsNaN(s) || math.IsInf(s, 0) {
			result.NonFinite++
			continue
		}
		finite++

		abs := float32(math.Abs(s))
		result.Peak = max(result.Peak, abs)
		if abs > a.clippingThreshold {
			result.ClippedSamples++
		}
		sum += s
		sumSquares += s * s
	}

	if finite > 0 {
		result.RMS = float32(math.Sqrt(sumSquares / float64(finite)))
		result.DC = float32(sum / float64(finite))
	}
	result.Silent = result.RMS < a.silenceThreshold
	return result
}

// Check returns a description of each problem found in the buffer.
func (a *AudioAnalyzer) Check(buffer []float32, name string) []string {
	var issues []string
	result := a.Analyze(buffer)

	if result.NonFinite > 0 {
		issues = append(issues, fmt.Sprintf("%s: contains %d NaN or Inf values", name, result.NonFinite))
	}
	if result.ClippedSamples > 0 {
		issues = append(issues, fmt.Sprintf("%s: %d samples above full scale (peak %.3f)", name, result.ClippedSamples, result.Peak))
	}
	if math.Abs(float64(result.DC)) > float64(a.dcThreshold) {
		issues = append(issues, fmt.Sprintf("%s: DC offset detected (%.3f)", name, result.DC))
	}
	return issues
}

var defaultAnalyzer = NewAudioAnalyzer()

// CheckAudioBuffer logs a warning for each problem in the buffer.
func CheckAudioBuffer(logger *Logger, buffer []float32, name string) {
	for _, issue := range defaultAnalyzer.Check(buffer, name) {
		logger.Warn("%s", issue)
	}
}
