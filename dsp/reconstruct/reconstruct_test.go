package reconstruct

import (
	"math"
	"math/rand"
	"testing"

	"github.com/asankah/audio-labeller/audio"
	"github.com/asankah/audio-labeller/mask"
)

// testSignal generates a deterministic tone-plus-noise signal
func testSignal(rate, samples int) *audio.Signal {
	rng := rand.New(rand.NewSource(7))
	data := make([]float64, samples)
	for i := range data {
		tone := 0.6 * math.Sin(2*math.Pi*440*float64(i)/float64(rate))
		data[i] = tone + 0.1*(rng.Float64()*2-1)
	}
	return audio.NewSignal(data, rate)
}

func rms(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range x {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(x)))
}

func TestNewReconstructorValidation(t *testing.T) {
	for _, params := range []Params{
		{WindowSize: 1000, HopSize: 256},
		{WindowSize: 1024, HopSize: -5},
		{WindowSize: 1024, HopSize: 1024},
		{WindowSize: 512, HopSize: 4096},
	} {
		if _, err := NewReconstructor(params); err == nil {
			t.Errorf("params %+v: expected error, got nil", params)
		}
	}
}

func TestNewReconstructorDefaults(t *testing.T) {
	r, err := NewReconstructor(Params{})
	if err != nil {
		t.Fatal(err)
	}

	params := r.Params()
	if params.WindowSize != 2048 || params.HopSize != 512 {
		t.Errorf("defaults = %+v, want window 2048 hop 512", params)
	}
}

// With no masks the overlap-add analysis-synthesis chain must reproduce the
// input over the region fully covered by overlapping frames; only the edges
// carry windowing error.
func TestNoOpReconstruction(t *testing.T) {
	const (
		rate    = 16000
		samples = 16384
		window  = 1024
		hop     = 256
	)

	r, err := NewReconstructor(Params{WindowSize: window, HopSize: hop})
	if err != nil {
		t.Fatal(err)
	}

	sig := testSignal(rate, samples)
	out, err := r.Process(sig, nil)
	if err != nil {
		t.Fatal(err)
	}

	if out.Len() != sig.Len() {
		t.Fatalf("output length %d, want %d", out.Len(), sig.Len())
	}
	if out.SampleRate != sig.SampleRate {
		t.Fatalf("output rate %d, want %d", out.SampleRate, sig.SampleRate)
	}

	// Interior of the frame-covered region [window, covered-window)
	numFrames := (samples - window) / hop
	covered := (numFrames-1)*hop + window

	diff := make([]float64, 0, covered-2*window)
	for i := window; i < covered-window; i++ {
		diff = append(diff, out.Samples[i]-sig.Samples[i])
	}

	rel := rms(diff) / rms(sig.Samples[window:covered-window])
	if rel > 1e-3 {
		t.Errorf("relative interior RMS error = %g, want < 1e-3", rel)
	}
}

// A mask interval fully covering a stretch of frames must drive the
// reconstructed energy there to ~zero relative to the unmasked output.
func TestMaskedFramesSilenced(t *testing.T) {
	const (
		rate    = 16000
		samples = 16384
		window  = 1024
		hop     = 256
	)

	r, err := NewReconstructor(Params{WindowSize: window, HopSize: hop})
	if err != nil {
		t.Fatal(err)
	}

	sig := testSignal(rate, samples)

	unmasked, err := r.Process(sig, nil)
	if err != nil {
		t.Fatal(err)
	}

	masks := mask.List{{Start: 0.4, Duration: 0.1, Label: "silence me"}}
	masked, err := r.Process(sig, masks)
	if err != nil {
		t.Fatal(err)
	}

	// Samples in [7680, 8192) are covered exclusively by frames whose
	// start-sample fraction lies in [0.4, 0.5)
	lo, hi := 7680, 8192
	maskedRMS := rms(masked.Samples[lo:hi])
	unmaskedRMS := rms(unmasked.Samples[lo:hi])

	if unmaskedRMS == 0 {
		t.Fatal("unmasked region unexpectedly silent")
	}
	if maskedRMS/unmaskedRMS > 1e-9 {
		t.Errorf("masked region RMS ratio = %g, want ~0", maskedRMS/unmaskedRMS)
	}

	// Samples far outside the mask are untouched
	for i := 1024; i < 4096; i++ {
		if math.Abs(masked.Samples[i]-unmasked.Samples[i]) > 1e-9 {
			t.Fatalf("sample %d outside mask changed: %g vs %g",
				i, masked.Samples[i], unmasked.Samples[i])
		}
	}
}

// Out-of-range intervals clamp to [0, 1] instead of being ignored
func TestMaskClamping(t *testing.T) {
	const (
		rate    = 16000
		samples = 16384
	)

	r, err := NewReconstructor(Params{WindowSize: 1024, HopSize: 256})
	if err != nil {
		t.Fatal(err)
	}

	sig := testSignal(rate, samples)
	masks := mask.List{{Start: -0.5, Duration: 2.0}}

	out, err := r.Process(sig, masks)
	if err != nil {
		t.Fatal(err)
	}

	// Every frame masked: nothing but epsilon-guarded accumulation remains
	if got := rms(out.Samples); got > 1e-12 {
		t.Errorf("fully-masked output RMS = %g, want ~0", got)
	}
}

func TestDegenerateShortSignal(t *testing.T) {
	r, err := NewReconstructor(Params{WindowSize: 1024, HopSize: 256})
	if err != nil {
		t.Fatal(err)
	}

	sig := testSignal(16000, 512)
	out, err := r.Process(sig, nil)
	if err != nil {
		t.Fatal(err)
	}

	if out.Len() != sig.Len() {
		t.Fatalf("output length %d, want %d", out.Len(), sig.Len())
	}
	for i, v := range out.Samples {
		if v != 0 {
			t.Fatalf("sample %d = %g, want 0 (no frames to synthesize)", i, v)
		}
	}
}

// Reconstruction is a pure function: identical inputs give identical
// outputs, even with the parallel frame pool.
func TestDeterminism(t *testing.T) {
	r, err := NewReconstructor(Params{WindowSize: 1024, HopSize: 256})
	if err != nil {
		t.Fatal(err)
	}

	sig := testSignal(16000, 8192)
	masks := mask.List{{Start: 0.25, Duration: 0.25}}

	a, err := r.Process(sig, masks)
	if err != nil {
		t.Fatal(err)
	}
	b, err := r.Process(sig, masks)
	if err != nil {
		t.Fatal(err)
	}

	for i := range a.Samples {
		if a.Samples[i] != b.Samples[i] {
			t.Fatalf("sample %d differs across runs: %g vs %g", i, a.Samples[i], b.Samples[i])
		}
	}
}

func TestProcessInvalidSignal(t *testing.T) {
	r, err := NewReconstructor(Params{WindowSize: 1024, HopSize: 256})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := r.Process(nil, nil); err == nil {
		t.Error("nil signal: expected error")
	}
	if _, err := r.Process(audio.NewSignal(make([]float64, 4096), -1), nil); err == nil {
		t.Error("non-positive sample rate: expected error")
	}
}
