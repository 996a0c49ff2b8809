// Package fft implements an in-place radix-2 complex FFT over precomputed
// twiddle tables. Plans are built once per transform size and shared by the
// spectrogram and reconstruction pipelines; the tables are read-only after
// construction and safe for concurrent use.
package fft

import (
	"fmt"
	"math"
	"math/bits"
	"sync"
)

// Plan holds the precomputed state for transforms of a single size
type Plan struct {
	n      int
	stages int
	cos    []float64
	sin    []float64
}

// NewPlan builds a plan for transforms of size n. n must be a power of two.
func NewPlan(n int) (*Plan, error) {
	if n < 2 || n&(n-1) != 0 {
		return nil, fmt.Errorf("fft: size must be a power of two >= 2, got %d", n)
	}

	p := &Plan{
		n:      n,
		stages: bits.TrailingZeros(uint(n)),
		cos:    make([]float64, n/2),
		sin:    make([]float64, n/2),
	}
	for i := range p.cos {
		angle := 2 * math.Pi * float64(i) / float64(n)
		p.cos[i] = math.Cos(angle)
		p.sin[i] = math.Sin(angle)
	}

	return p, nil
}

// Size returns the transform size the plan was built for
func (p *Plan) Size() int {
	return p.n
}

// Stages returns the number of butterfly stages, log2(Size)
func (p *Plan) Stages() int {
	return p.stages
}

func (p *Plan) checkLen(re, im []float64) {
	if len(re) != p.n || len(im) != p.n {
		panic(fmt.Sprintf("fft: buffer length mismatch: plan size %d, got re=%d im=%d",
			p.n, len(re), len(im)))
	}
}

// Forward performs an in-place decimation-in-time FFT on the given
// real/imaginary buffers. Both must have the plan's size; anything else is
// a caller bug and panics.
func (p *Plan) Forward(re, im []float64) {
	p.checkLen(re, im)

	n := p.n

	// Bit-reversal permutation via the butterfly-increment technique
	j := 0
	for i := 0; i < n-1; i++ {
		if i < j {
			re[i], re[j] = re[j], re[i]
			im[i], im[j] = im[j], im[i]
		}
		k := n >> 1
		for k <= j {
			j -= k
			k >>= 1
		}
		j += k
	}

	// Iterative Cooley-Tukey butterfly stages
	for size := 2; size <= n; size <<= 1 {
		half := size >> 1
		stride := n / size
		for start := 0; start < n; start += size {
			ti := 0
			for k := start; k < start+half; k++ {
				// Twiddle e^{-i2π·ti/n} read from the tables
				wr := p.cos[ti]
				wi := -p.sin[ti]

				u := k + half
				tr := wr*re[u] - wi*im[u]
				tim := wr*im[u] + wi*re[u]

				re[u] = re[k] - tr
				im[u] = im[k] - tim
				re[k] += tr
				im[k] += tim

				ti += stride
			}
		}
	}
}

// Inverse performs the in-place inverse transform, scaled so that
// Inverse(Forward(x)) reproduces x. It uses the conjugate identity
// IDFT(x) = conj(DFT(conj(x)))/n: negate the imaginary part, run the
// forward transform, then scale the real part by 1/n and the imaginary
// part by -1/n.
func (p *Plan) Inverse(re, im []float64) {
	p.checkLen(re, im)

	for i := range im {
		im[i] = -im[i]
	}

	p.Forward(re, im)

	scale := 1.0 / float64(p.n)
	for i := range re {
		re[i] *= scale
		im[i] *= -scale
	}
}

var (
	planMu    sync.Mutex
	planCache = make(map[int]*Plan)
)

// ForSize returns a cached plan for the given size, building it on first
// use. Plans are shared; concurrent callers for the same size get the same
// plan.
func ForSize(n int) (*Plan, error) {
	planMu.Lock()
	defer planMu.Unlock()

	if p, ok := planCache[n]; ok {
		return p, nil
	}

	p, err := NewPlan(n)
	if err != nil {
		return nil, err
	}
	planCache[n] = p

	return p, nil
}
