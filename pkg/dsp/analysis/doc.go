// Package analysis provides the level measurements used by the level
// matcher and an offline latency estimator.
//
// LevelAnalyzer keeps a sliding RMS level and a held peak over planar audio
// blocks. It is preallocated by Prepare and never allocates while
// processing, so it can run inside an audio callback:
//
//	la := analysis.NewLevelAnalyzer()
//	la.Prepare(48000, 512)
//	la.SetRMSWindowSamples(4800)
//	la.Process(block, n)
//	level := la.RMSdB()
//
// EstimateLatency cross-correlates two signals with an FFT to find how far
// one lags the other. It allocates and is meant for offline use.
package analysis
