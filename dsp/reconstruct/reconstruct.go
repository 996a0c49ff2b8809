// Package reconstruct resynthesizes a captured signal with selected time
// intervals silenced. Frames are analyzed with a Hann window and FFT,
// cleared when they fall inside a mask interval, inverse-transformed, and
// overlap-added back together with window-energy normalization.
package reconstruct

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/asankah/audio-labeller/audio"
	"github.com/asankah/audio-labeller/dsp/fft"
	"github.com/asankah/audio-labeller/dsp/windowing"
	"github.com/asankah/audio-labeller/logging"
	"github.com/asankah/audio-labeller/mask"
)

// normEpsilon is the smallest accumulated window energy that still gets
// divided through; below it the sample keeps its accumulated near-zero
// value, which only happens at the signal edges where few frames overlap.
const normEpsilon = 1e-10

// Params configures masked reconstruction
type Params struct {
	WindowSize int `json:"window_size"` // FFT window size, power of two (default: 2048)
	HopSize    int `json:"hop_size"`    // Hop between frames (default: 512)
}

// DefaultParams returns the default reconstruction parameters
func DefaultParams() Params {
	return Params{
		WindowSize: 2048,
		HopSize:    512,
	}
}

// Reconstructor performs masked analysis-synthesis. It is a pure function
// of its inputs: the only state is the FFT plan and window coefficients,
// both read-only after construction.
type Reconstructor struct {
	params Params
	plan   *fft.Plan
	window *windowing.Hann
	logger logging.Logger
}

// NewReconstructor creates a reconstructor. Zero-valued params fields take
// their defaults; an invalid window/hop combination is a configuration
// error.
func NewReconstructor(params Params) (*Reconstructor, error) {
	defaults := DefaultParams()
	if params.WindowSize == 0 {
		params.WindowSize = defaults.WindowSize
	}
	if params.HopSize == 0 {
		params.HopSize = defaults.HopSize
	}

	if params.WindowSize < 2 || params.WindowSize&(params.WindowSize-1) != 0 {
		return nil, fmt.Errorf("reconstruct: window size must be a power of two >= 2, got %d", params.WindowSize)
	}
	if params.HopSize <= 0 {
		return nil, fmt.Errorf("reconstruct: hop size must be positive, got %d", params.HopSize)
	}
	if params.HopSize >= params.WindowSize {
		return nil, fmt.Errorf("reconstruct: hop size (%d) must be smaller than window size (%d)",
			params.HopSize, params.WindowSize)
	}

	plan, err := fft.ForSize(params.WindowSize)
	if err != nil {
		return nil, err
	}

	return &Reconstructor{
		params: params,
		plan:   plan,
		window: windowing.NewHann(params.WindowSize, true),
		logger: logging.GetGlobalLogger().WithFields(logging.Fields{"component": "reconstruct"}),
	}, nil
}

// Params returns the reconstructor's effective parameters
func (r *Reconstructor) Params() Params {
	return r.params
}

// Process resynthesizes the signal with every frame inside a mask interval
// silenced. The output has the input's sample count and rate. An empty mask
// list reproduces the input up to windowed-reconstruction error; a signal
// shorter than one window yields zero frames and a silent output of the
// same length.
func (r *Reconstructor) Process(sig *audio.Signal, masks mask.List) (*audio.Signal, error) {
	if sig == nil {
		return nil, fmt.Errorf("reconstruct: nil signal")
	}
	if sig.SampleRate <= 0 {
		return nil, fmt.Errorf("reconstruct: sample rate must be positive, got %d", sig.SampleRate)
	}

	cleaned, dropped := masks.Normalize()
	if dropped > 0 {
		r.logger.Warn("dropped degenerate mask intervals", logging.Fields{
			"dropped": dropped,
			"kept":    len(cleaned),
		})
	}

	n := r.params.WindowSize
	hop := r.params.HopSize
	length := sig.Len()

	out := make([]float64, length)
	norm := make([]float64, length)

	numFrames := (length - n) / hop
	if numFrames < 0 {
		numFrames = 0
	}
	if numFrames == 0 {
		r.logger.Debug("signal shorter than one window, nothing to resynthesize", logging.Fields{
			"samples":     length,
			"window_size": n,
		})
		return audio.NewSignal(out, sig.SampleRate), nil
	}

	numWorkers := workerCount(numFrames)

	// Overlapping frames write shared output regions, so each worker
	// accumulates into private buffers that are reduced after the pool
	// drains. Frames are assigned by stride rather than a shared queue so
	// the summation grouping, and therefore the output, is deterministic.
	partials := make([]*partial, numWorkers)

	var wg sync.WaitGroup
	for worker := 0; worker < numWorkers; worker++ {
		p := &partial{
			out:  make([]float64, length),
			norm: make([]float64, length),
		}
		partials[worker] = p

		wg.Add(1)
		go func(firstFrame int) {
			defer wg.Done()

			re := make([]float64, n)
			im := make([]float64, n)

			for frame := firstFrame; frame < numFrames; frame += numWorkers {
				start := frame * hop

				// Frame position as a fraction of total duration, on the
				// same hop-based time scale as the spectrogram's time axis
				pos := float64(start) / float64(length)
				masked := cleaned.Covers(pos)

				for j := 0; j < n; j++ {
					re[j] = sig.Samples[start+j] * r.window.At(j)
					im[j] = 0
				}

				r.plan.Forward(re, im)
				if masked {
					for j := 0; j < n; j++ {
						re[j] = 0
						im[j] = 0
					}
				}
				r.plan.Inverse(re, im)

				for j := 0; j < n; j++ {
					w := r.window.At(j)
					p.out[start+j] += re[j] * w
					p.norm[start+j] += w * w
				}
			}
		}(worker)
	}
	wg.Wait()

	for _, p := range partials {
		for i := range out {
			out[i] += p.out[i]
			norm[i] += p.norm[i]
		}
	}

	for i := range out {
		if norm[i] > normEpsilon {
			out[i] /= norm[i]
		}
	}

	r.logger.Debug("reconstruction complete", logging.Fields{
		"frames":  numFrames,
		"masks":   len(cleaned),
		"workers": numWorkers,
	})

	return audio.NewSignal(out, sig.SampleRate), nil
}

type partial struct {
	out  []float64
	norm []float64
}

// workerCount sizes the frame-processing pool to the workload
func workerCount(numFrames int) int {
	numCPU := runtime.NumCPU()

	if numFrames < 100 {
		return max(1, min(numCPU/2, numFrames))
	}
	if numFrames < 1000 {
		return min(numCPU, 8)
	}
	return numCPU
}
