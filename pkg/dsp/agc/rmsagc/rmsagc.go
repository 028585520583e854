package rmsagc

import (
	"math"
)

// RMSAGC is a root-mean-squared automatic gain controller. It scales its
// input so the running RMS level approaches target.
type RMSAGC struct {
	alpha   float64
	beta    float64
	target  float64
	maxGain float64
	average float64
}

// NewRMSAGC returns an AGC whose power estimate decays with factor alpha per
// sample. maxGain bounds amplification of near silence; 0 leaves it unbounded.
func NewRMSAGC(alpha, target, maxGain float64) *RMSAGC {
	r := &RMSAGC{
		alpha:   alpha,
		beta:    1 - alpha,
		target:  target,
		maxGain: maxGain,
	}
	r.Reset()
	return r
}

func (r *RMSAGC) Reset() {
	r.average = r.target * r.target
}

func (r *RMSAGC) PredictOutputSize(inputSize int) int {
	return inputSize
}

// WorkBuffer may be called with output aliasing input.
func (r *RMSAGC) WorkBuffer(input, output []float32) int {
	for i := 0; i < len(input); i++ {
		cur := float64(input[i])
		r.average = r.beta*r.average + r.alpha*cur*cur

		gain := r.target
		if r.average > 0 {
			gain /= math.Sqrt(r.average)
		}
		if r.maxGain > 0 && gain > r.maxGain {
			gain = r.maxGain
		}
		output[i] = float32(gain * cur)
	}

	return len(input)
}

func (r *RMSAGC) Work(data []float32) []float32 {
	ret := make([]float32, len(data))
	r.WorkBuffer(data, ret)
	return ret
}
