package oscillator

import (
	"math"
)

const (
	tau float64 = math.Pi * 2
)

// Oscillator is a real sine source with a fixed starting phase.
type Oscillator struct {
	sampleRate float64
	frequency  float64
	phase      float64
}

func NewOscillator(sampleRate, frequency, phase float64) *Oscillator {
	return &Oscillator{
		sampleRate: sampleRate,
		frequency:  frequency,
		phase:      phase,
	}
}

// NewBinOscillator returns an oscillator at FFT bin `bin` of a frame of
// samplesPerFrame samples. Such a tone is periodic in the frame length.
func NewBinOscillator(samplesPerFrame, bin int, phase float64) *Oscillator {
	return NewOscillator(float64(samplesPerFrame), float64(bin), phase)
}

// Fill writes n samples of the tone, starting from the oscillator's phase.
func (o *Oscillator) Fill(n int) []float64 {
	ret := make([]float64, n)
	for i := range ret {
		// computed from the sample index to keep long tables exact
		ret[i] = math.Sin(tau*float64(i)*o.frequency/o.sampleRate + o.phase)
	}
	return ret
}
