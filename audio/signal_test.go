package audio

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromInterleavedDownmix(t *testing.T) {
	// Stereo: left channel 1.0, right channel 0.0 -> mono 0.5
	interleaved := []float64{1, 0, 1, 0, 1, 0}
	sig := FromInterleaved(interleaved, 2, 48000)

	require.Equal(t, 3, sig.Len())
	assert.Equal(t, 48000, sig.SampleRate)
	for _, v := range sig.Samples {
		assert.InDelta(t, 0.5, v, 1e-12)
	}
}

func TestFromInterleavedMonoCopies(t *testing.T) {
	src := []float64{0.1, 0.2, 0.3}
	sig := FromInterleaved(src, 1, 16000)

	require.Equal(t, src, sig.Samples)

	// Mono input is copied, not aliased
	src[0] = 99
	assert.Equal(t, 0.1, sig.Samples[0])
}

func TestDuration(t *testing.T) {
	sig := NewSignal(make([]float64, 16000), 16000)
	assert.Equal(t, time.Second, sig.Duration())
	assert.InDelta(t, 1.0, sig.DurationSeconds(), 1e-12)

	empty := NewSignal(nil, 0)
	assert.Equal(t, time.Duration(0), empty.Duration())
}

func TestRMSAndPeak(t *testing.T) {
	const amp = 0.75
	samples := make([]float64, 16000)
	for i := range samples {
		samples[i] = amp * math.Sin(2*math.Pi*100*float64(i)/16000)
	}
	sig := NewSignal(samples, 16000)

	// A sine's RMS is amplitude/sqrt(2)
	assert.InDelta(t, amp/math.Sqrt2, sig.RMS(), 1e-6)
	assert.InDelta(t, amp, sig.Peak(), 1e-6)

	assert.Zero(t, NewSignal(nil, 16000).RMS())
	assert.Zero(t, NewSignal(nil, 16000).Peak())
}

func TestClone(t *testing.T) {
	sig := NewSignal([]float64{1, 2, 3}, 8000)
	dup := sig.Clone()

	require.Equal(t, sig.Samples, dup.Samples)
	assert.Equal(t, sig.SampleRate, dup.SampleRate)

	dup.Samples[0] = -1
	assert.Equal(t, 1.0, sig.Samples[0])
}
