package spectral

import (
	"fmt"
	"math"
)

// HzToMel converts frequency in Hz to mel scale
func HzToMel(hz float64) float64 {
	return 2595.0 * math.Log10(1.0+hz/700.0)
}

// MelToHz converts mel scale to frequency in Hz
func MelToHz(mel float64) float64 {
	return 700.0 * (math.Pow(10.0, mel/2595.0) - 1.0)
}

// Filterbank is a set of triangular mel filters over FFT magnitude bins.
// Each filter spans a contiguous range of bins in [0, fftSize/2], rising
// linearly to 1 at its center bin and falling back to 0. Built once per
// (numFilters, fftSize, sampleRate) combination and reused for every frame.
type Filterbank struct {
	numFilters int
	fftSize    int
	sampleRate int
	weights    [][]float64 // numFilters x (fftSize/2 + 1)
	centers    []float64   // center frequency in Hz per filter
}

// NewFilterbank builds a triangular mel filterbank from numFilters+2
// boundary frequencies equally spaced in mel space between 0 Hz and the
// Nyquist frequency.
func NewFilterbank(numFilters, fftSize, sampleRate int) (*Filterbank, error) {
	if numFilters <= 0 {
		return nil, fmt.Errorf("spectral: numFilters must be positive, got %d", numFilters)
	}
	if fftSize <= 0 {
		return nil, fmt.Errorf("spectral: fftSize must be positive, got %d", fftSize)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("spectral: sampleRate must be positive, got %d", sampleRate)
	}

	nyquist := float64(sampleRate) / 2.0
	highMel := HzToMel(nyquist)

	// numFilters+2 boundary points equally spaced in mel space
	melStep := highMel / float64(numFilters+1)
	hzPoints := make([]float64, numFilters+2)
	binPoints := make([]int, numFilters+2)
	for i := range hzPoints {
		hzPoints[i] = MelToHz(float64(i) * melStep)
		bin := int(math.Floor((float64(fftSize) + 1.0) * hzPoints[i] / float64(sampleRate)))
		binPoints[i] = min(bin, fftSize/2)
	}

	fb := &Filterbank{
		numFilters: numFilters,
		fftSize:    fftSize,
		sampleRate: sampleRate,
		weights:    make([][]float64, numFilters),
		centers:    make([]float64, numFilters),
	}

	numBins := fftSize/2 + 1
	for m := 0; m < numFilters; m++ {
		fb.centers[m] = hzPoints[m+1]
		fb.weights[m] = make([]float64, numBins)

		leftBin := binPoints[m]
		centerBin := binPoints[m+1]
		rightBin := binPoints[m+2]

		// Rising edge; zero-width segments keep weight 0
		if centerBin != leftBin {
			for k := leftBin; k < centerBin && k < numBins; k++ {
				fb.weights[m][k] = float64(k-leftBin) / float64(centerBin-leftBin)
			}
		}

		// Falling edge
		if rightBin != centerBin {
			for k := centerBin; k < rightBin && k < numBins; k++ {
				fb.weights[m][k] = float64(rightBin-k) / float64(rightBin-centerBin)
			}
		}
	}

	return fb, nil
}

// NumFilters returns the number of filters in the bank
func (fb *Filterbank) NumFilters() int {
	return fb.numFilters
}

// Centers returns a copy of the per-filter center frequencies in Hz
func (fb *Filterbank) Centers() []float64 {
	centers := make([]float64, len(fb.centers))
	copy(centers, fb.centers)
	return centers
}

// Weights returns the weight vector of filter m over bins [0, fftSize/2]
func (fb *Filterbank) Weights(m int) []float64 {
	return fb.weights[m]
}

// Apply projects a magnitude spectrum through the filterbank, returning
// one weighted sum per filter
func (fb *Filterbank) Apply(magnitude []float64) []float64 {
	out := make([]float64, fb.numFilters)
	fb.ApplyTo(out, magnitude)
	return out
}

// ApplyTo projects a magnitude spectrum through the filterbank into dst,
// which must have one element per filter. Allocation-free for hot loops.
func (fb *Filterbank) ApplyTo(dst, magnitude []float64) {
	for m, filter := range fb.weights {
		sum := 0.0
		for k := 0; k < len(filter) && k < len(magnitude); k++ {
			sum += filter[k] * magnitude[k]
		}
		dst[m] = sum
	}
}
