package analysis

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

// LatencyEstimate is the result of EstimateLatency.
type LatencyEstimate struct {
	// Samples is how far delayed lags behind reference.
	Samples int
	// Correlation is the normalized cross-correlation at Samples, in [-1, 1].
	Correlation float64
}

// EstimateLatency finds the delay in [0, maxLag] at which delayed best
// matches reference, using FFT cross-correlation. The result is the latency
// offset a reader must apply to line the two signals up.
//
// It allocates and is meant for offline analysis, not the audio callback.
func EstimateLatency(reference, delayed []float64, maxLag int) LatencyEstimate {
	n := max(len(reference), len(delayed))
	if n == 0 {
		return LatencyEstimate{}
	}
	if maxLag < 0 {
		maxLag = 0
	}
	if maxLag >= n {
		maxLag = n - 1
	}

	// Pad to a power of two at least 2n so the circular correlation does not wrap.
	size := 1
	for size < 2*n {
		size <<= 1
	}
	paddedRef := make([]float64, size)
	paddedDel := make([]float64, size)
	copy(paddedRef, reference)
	copy(paddedDel, delayed)

	specDel := fft.FFTReal(paddedDel)
	specRef := fft.FFTReal(paddedRef)
	for i := range specDel {
		specDel[i] *= cmplx.Conj(specRef[i])
	}
	corr := fft.IFFT(specDel)

	best := 0
	bestVal := math.Inf(-1)
	for lag := 0; lag <= maxLag; lag++ {
		if v := real(corr[lag]); v > bestVal {
			bestVal = v
			best = lag
		}
	}

	norm := math.Sqrt(energy(reference) * energy(delayed))
	if norm == 0 {
		return LatencyEstimate{Samples: best}
	}
	return LatencyEstimate{Samples: best, Correlation: bestVal / norm}
}

func energy(x []float64) float64 {
	sum := 0.0
	for _, v := range x {
		sum += v * v
	}
	return sum
}
