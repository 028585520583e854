// Package spectrum computes power spectra of fixed-size real frames.
package spectrum

import (
	"gonum.org/v1/gonum/dsp/fourier"
)

// Analyzer reuses its FFT plan and buffers between calls. It is not safe for
// concurrent use.
type Analyzer struct {
	size   int
	fft    *fourier.FFT
	in     []float64
	coeffs []complex128
	power  []float64
}

func NewAnalyzer(size int) *Analyzer {
	return &Analyzer{
		size:   size,
		fft:    fourier.NewFFT(size),
		in:     make([]float64, size),
		coeffs: make([]complex128, size/2+1),
		power:  make([]float64, size/2+1),
	}
}

func (a *Analyzer) Size() int {
	return a.size
}

// Power returns |X[k]|^2 for k in [0, size/2]. Input shorter than the frame
// is zero padded. The returned slice is overwritten by the next call.
func (a *Analyzer) Power(frame []float32) []float64 {
	n := copy64(a.in, frame)
	for i := n; i < a.size; i++ {
		a.in[i] = 0
	}
	return a.transform()
}

// PowerFloat64 is Power for float64 input.
func (a *Analyzer) PowerFloat64(frame []float64) []float64 {
	n := copy(a.in, frame)
	for i := n; i < a.size; i++ {
		a.in[i] = 0
	}
	return a.transform()
}

func (a *Analyzer) transform() []float64 {
	a.coeffs = a.fft.Coefficients(a.coeffs, a.in)
	for i, c := range a.coeffs {
		a.power[i] = real(c)*real(c) + imag(c)*imag(c)
	}
	return a.power
}

// Freq returns the frequency of bin k in cycles per sample.
func (a *Analyzer) Freq(k int) float64 {
	return a.fft.Freq(k)
}

// PeakBin returns the index in [from, from+width) with the most power. Ties
// go to the lower bin.
func PeakBin(power []float64, from, width int) int {
	best := from
	for k := from + 1; k < from+width && k < len(power); k++ {
		if power[k] > power[best] {
			best = k
		}
	}
	return best
}

func copy64(dst []float64, src []float32) int {
	n := len(src)
	if n > len(dst) {
		n = len(dst)
	}
	for i := 0; i < n; i++ {
		dst[i] = float64(src[i])
	}
	return n
}
