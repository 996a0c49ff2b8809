package audio

import (
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
)

// Signal represents captured mono audio data
type Signal struct {
	Samples    []float64 `json:"-"` // Raw PCM data, one channel
	SampleRate int       `json:"sample_rate"`
}

// NewSignal creates a signal from existing samples. The samples are used
// directly, not copied; the core pipelines only ever read them.
func NewSignal(samples []float64, sampleRate int) *Signal {
	return &Signal{
		Samples:    samples,
		SampleRate: sampleRate,
	}
}

// FromInterleaved downmixes interleaved multi-channel PCM to a mono signal
// by averaging the channels. With channels <= 1 the samples are copied as-is.
func FromInterleaved(samples []float64, channels, sampleRate int) *Signal {
	if channels <= 1 {
		mono := make([]float64, len(samples))
		copy(mono, samples)
		return NewSignal(mono, sampleRate)
	}

	frames := len(samples) / channels
	mono := make([]float64, frames)
	for i := 0; i < frames; i++ {
		sum := 0.0
		for c := 0; c < channels; c++ {
			sum += samples[i*channels+c]
		}
		mono[i] = sum / float64(channels)
	}

	return NewSignal(mono, sampleRate)
}

// Len returns the number of samples
func (s *Signal) Len() int {
	return len(s.Samples)
}

// Duration returns the signal duration
func (s *Signal) Duration() time.Duration {
	if s.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(s.Samples)) / float64(s.SampleRate) * float64(time.Second))
}

// DurationSeconds returns the signal duration in seconds
func (s *Signal) DurationSeconds() float64 {
	if s.SampleRate <= 0 {
		return 0
	}
	return float64(len(s.Samples)) / float64(s.SampleRate)
}

// Clone returns a deep copy of the signal
func (s *Signal) Clone() *Signal {
	samples := make([]float64, len(s.Samples))
	copy(samples, s.Samples)
	return NewSignal(samples, s.SampleRate)
}

// RMS returns the root-mean-square level of the signal using gonum
func (s *Signal) RMS() float64 {
	if len(s.Samples) == 0 {
		return 0
	}
	return floats.Norm(s.Samples, 2) / math.Sqrt(float64(len(s.Samples)))
}

// Peak returns the largest absolute sample value
func (s *Signal) Peak() float64 {
	peak := 0.0
	for _, v := range s.Samples {
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	return peak
}
