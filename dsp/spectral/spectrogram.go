// Package spectral builds perceptually-scaled time-frequency representations
// of captured audio: a mel filterbank over FFT magnitudes, assembled frame by
// frame into a log-magnitude spectrogram.
package spectral

import (
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/asankah/audio-labeller/audio"
	"github.com/asankah/audio-labeller/dsp/fft"
	"github.com/asankah/audio-labeller/dsp/windowing"
	"github.com/asankah/audio-labeller/logging"
)

// logFloor is the smallest magnitude fed into the dB conversion; it keeps
// silent bins at a finite floor instead of -Inf.
const logFloor = 1e-10

// SpectrogramParams configures spectrogram extraction
type SpectrogramParams struct {
	WindowSize int `json:"window_size"` // FFT window size, power of two (default: 2048)
	HopSize    int `json:"hop_size"`    // Hop between frames (default: 512)
	MelBins    int `json:"mel_bins"`    // Number of mel filters (default: 128)
}

// DefaultSpectrogramParams returns the default extraction parameters
func DefaultSpectrogramParams() SpectrogramParams {
	return SpectrogramParams{
		WindowSize: 2048,
		HopSize:    512,
		MelBins:    128,
	}
}

// Spectrogram holds the log-magnitude mel spectrogram of a signal. Data is
// a single row-major buffer: frame f, bin m lives at Data[f*MelBins+m].
type Spectrogram struct {
	Data       []float64 `json:"data"`
	NumFrames  int       `json:"num_frames"`
	MelBins    int       `json:"mel_bins"`
	TimeAxis   []float64 `json:"time_axis"` // frame start time in seconds
	FreqAxis   []float64 `json:"freq_axis"` // mel filter center frequency in Hz
	SampleRate int       `json:"sample_rate"`
	WindowSize int       `json:"window_size"`
	HopSize    int       `json:"hop_size"`
}

// At returns the dB value at the given frame and mel bin
func (s *Spectrogram) At(frame, bin int) float64 {
	return s.Data[frame*s.MelBins+bin]
}

// Row returns the mel bins of one frame as a subslice of the backing buffer
func (s *Spectrogram) Row(frame int) []float64 {
	return s.Data[frame*s.MelBins : (frame+1)*s.MelBins]
}

// MinMax returns the smallest and largest values in the matrix. An empty
// spectrogram returns (0, 0).
func (s *Spectrogram) MinMax() (float64, float64) {
	if len(s.Data) == 0 {
		return 0, 0
	}
	lo, hi := s.Data[0], s.Data[0]
	for _, v := range s.Data[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

// Builder computes mel spectrograms. The FFT plan and window are built once
// at construction; the filterbank is built lazily per sample rate and
// cached, since the rate is a property of the signal, not the builder.
type Builder struct {
	params SpectrogramParams
	plan   *fft.Plan
	window *windowing.Hann
	logger logging.Logger

	mu         sync.Mutex
	fbRate     int
	filterbank *Filterbank
}

// NewBuilder creates a spectrogram builder. Zero-valued params fields take
// their defaults; an invalid window/hop combination is a configuration
// error.
func NewBuilder(params SpectrogramParams) (*Builder, error) {
	defaults := DefaultSpectrogramParams()
	if params.WindowSize == 0 {
		params.WindowSize = defaults.WindowSize
	}
	if params.HopSize == 0 {
		params.HopSize = defaults.HopSize
	}
	if params.MelBins == 0 {
		params.MelBins = defaults.MelBins
	}

	if err := validateFraming(params.WindowSize, params.HopSize); err != nil {
		return nil, err
	}
	if params.MelBins < 0 {
		return nil, fmt.Errorf("spectral: mel bin count must be positive, got %d", params.MelBins)
	}

	plan, err := fft.ForSize(params.WindowSize)
	if err != nil {
		return nil, err
	}

	return &Builder{
		params: params,
		plan:   plan,
		window: windowing.NewHann(params.WindowSize, true),
		logger: logging.GetGlobalLogger().WithFields(logging.Fields{"component": "spectrogram"}),
	}, nil
}

// validateFraming rejects the window/hop combinations that cannot frame a
// signal: non-power-of-two windows, non-positive hops, and hops at or above
// the window size (frames must overlap for the synthesis path to normalize).
func validateFraming(windowSize, hopSize int) error {
	if windowSize < 2 || windowSize&(windowSize-1) != 0 {
		return fmt.Errorf("spectral: window size must be a power of two >= 2, got %d", windowSize)
	}
	if hopSize <= 0 {
		return fmt.Errorf("spectral: hop size must be positive, got %d", hopSize)
	}
	if hopSize >= windowSize {
		return fmt.Errorf("spectral: hop size (%d) must be smaller than window size (%d)", hopSize, windowSize)
	}
	return nil
}

// Params returns the builder's effective parameters
func (b *Builder) Params() SpectrogramParams {
	return b.params
}

func (b *Builder) filterbankFor(sampleRate int) (*Filterbank, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.filterbank != nil && b.fbRate == sampleRate {
		return b.filterbank, nil
	}

	fb, err := NewFilterbank(b.params.MelBins, b.params.WindowSize, sampleRate)
	if err != nil {
		return nil, err
	}
	b.filterbank = fb
	b.fbRate = sampleRate

	return fb, nil
}

// Compute extracts the mel spectrogram of the signal. A signal shorter than
// one window yields an empty spectrogram, not an error.
func (b *Builder) Compute(sig *audio.Signal) (*Spectrogram, error) {
	if sig == nil {
		return nil, fmt.Errorf("spectral: nil signal")
	}
	if sig.SampleRate <= 0 {
		return nil, fmt.Errorf("spectral: sample rate must be positive, got %d", sig.SampleRate)
	}

	fb, err := b.filterbankFor(sig.SampleRate)
	if err != nil {
		return nil, err
	}

	n := b.params.WindowSize
	hop := b.params.HopSize
	melBins := b.params.MelBins

	numFrames := (sig.Len() - n) / hop
	if numFrames < 0 {
		numFrames = 0
	}

	result := &Spectrogram{
		Data:       make([]float64, numFrames*melBins),
		NumFrames:  numFrames,
		MelBins:    melBins,
		TimeAxis:   make([]float64, numFrames),
		FreqAxis:   fb.Centers(),
		SampleRate: sig.SampleRate,
		WindowSize: n,
		HopSize:    hop,
	}

	if numFrames == 0 {
		b.logger.Debug("signal shorter than one window, empty spectrogram", logging.Fields{
			"samples":     sig.Len(),
			"window_size": n,
		})
		return result, nil
	}

	for i := 0; i < numFrames; i++ {
		result.TimeAxis[i] = float64(i*hop) / float64(sig.SampleRate)
	}

	numWorkers := workerCount(numFrames)
	jobs := make(chan int, numFrames)

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			// Per-worker scratch, reused across frames
			re := make([]float64, n)
			im := make([]float64, n)
			mag := make([]float64, n/2+1)

			for frame := range jobs {
				start := frame * hop
				for j := 0; j < n; j++ {
					re[j] = sig.Samples[start+j] * b.window.At(j)
					im[j] = 0
				}

				b.plan.Forward(re, im)

				for k := range mag {
					mag[k] = math.Sqrt(re[k]*re[k] + im[k]*im[k])
				}

				// Rows are disjoint, so workers write without coordination
				row := result.Row(frame)
				fb.ApplyTo(row, mag)
				for m, sum := range row {
					row[m] = 20 * math.Log10(math.Max(logFloor, sum))
				}
			}
		}()
	}

	for frame := 0; frame < numFrames; frame++ {
		jobs <- frame
	}
	close(jobs)
	wg.Wait()

	b.logger.Debug("spectrogram computed", logging.Fields{
		"frames":  numFrames,
		"bins":    melBins,
		"workers": numWorkers,
	})

	return result, nil
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
