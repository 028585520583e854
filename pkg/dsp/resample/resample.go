// Package resample converts a real-valued stream between sample rates with a
// windowed-sinc interpolator.
//
// Output sample n sits exactly at input time n*src/dst and depends only on
// the input samples, so feeding a stream in chunks of any size produces the
// same output as feeding it at once.
package resample

import (
	"errors"
	"fmt"
	"math"

	"github.com/mjibson/go-dsp/window"
)

const (
	// zeroCrossings is the one-sided kernel support, in input samples at
	// unity ratio.
	zeroCrossings = 32
	// tableSteps is the number of table entries between two zero crossings.
	tableSteps = 32
)

var ErrInvalidRate = errors.New("invalid sample rate")

var sincTable = makeSincTable()

// makeSincTable holds the right half of a Hann windowed sinc, plus one
// trailing zero so interpolation never reads past the end.
func makeSincTable() []float64 {
	n := zeroCrossings * tableSteps
	win := window.Hann(2*n + 1)[n:]

	ret := make([]float64, n+2)
	ret[0] = 1
	for i := 1; i <= n; i++ {
		x := math.Pi * float64(i) / tableSteps
		ret[i] = math.Sin(x) / x * win[i]
	}
	return ret
}

type Resampler struct {
	src, dst float64
	ratio    float64 // input samples per output sample
	scale    float64 // kernel stretch, >1 when decimating
	radius   float64

	history  []float32
	base     int64 // stream index of history[0]
	inCount  int64
	outCount int64
}

func New(src, dst float64) (*Resampler, error) {
	if src <= 0 || dst <= 0 || math.IsNaN(src) || math.IsNaN(dst) {
		return nil, fmt.Errorf("%w: %v -> %v", ErrInvalidRate, src, dst)
	}
	ratio := src / dst
	scale := math.Max(1, ratio)
	return &Resampler{
		src:    src,
		dst:    dst,
		ratio:  ratio,
		scale:  scale,
		radius: zeroCrossings * scale,
	}, nil
}

// Ratio returns input samples consumed per output sample.
func (r *Resampler) Ratio() float64 {
	return r.ratio
}

// PredictOutputSize estimates the output produced for inputSize samples.
func (r *Resampler) PredictOutputSize(inputSize int) int {
	return int(math.Ceil(float64(inputSize)/r.ratio)) + 1
}

// Process consumes in and returns every output sample whose kernel support
// is now fully available.
func (r *Resampler) Process(in []float32) []float32 {
	r.history = append(r.history, in...)
	r.inCount += int64(len(in))
	return r.drain(false)
}

// Flush emits the remaining outputs treating the stream as ended, then
// resets the resampler.
func (r *Resampler) Flush() []float32 {
	out := r.drain(true)
	r.Reset()
	return out
}

func (r *Resampler) Reset() {
	r.history = r.history[:0]
	r.base = 0
	r.inCount = 0
	r.outCount = 0
}

func (r *Resampler) drain(final bool) []float32 {
	var out []float32
	for {
		t := r.position(r.outCount)
		if final {
			if t >= float64(r.inCount) {
				break
			}
		} else if int64(math.Floor(t+r.radius)) >= r.inCount {
			break
		}
		out = append(out, r.sample(t))
		r.outCount++
	}
	r.trim()
	return out
}

// position is the input time of output n. Multiplying before dividing keeps
// it exact for integral rates.
func (r *Resampler) position(n int64) float64 {
	return float64(n) * r.src / r.dst
}

func (r *Resampler) sample(t float64) float32 {
	lo := int64(math.Ceil(t - r.radius))
	if lo < r.base {
		lo = r.base
	}
	hi := int64(math.Floor(t + r.radius))
	if hi >= r.inCount {
		hi = r.inCount - 1
	}

	var acc float64
	for k := lo; k <= hi; k++ {
		acc += float64(r.history[k-r.base]) * r.kernel(t-float64(k))
	}
	return float32(acc)
}

func (r *Resampler) kernel(d float64) float64 {
	pos := math.Abs(d) / r.scale * tableSteps
	i := int(pos)
	if i >= len(sincTable)-1 {
		return 0
	}
	frac := pos - float64(i)
	v := sincTable[i] + frac*(sincTable[i+1]-sincTable[i])
	return v / r.scale
}

// trim drops input no future output can reach.
func (r *Resampler) trim() {
	next := r.position(r.outCount)
	keep := int64(math.Ceil(next-r.radius)) - 1
	if keep <= r.base {
		return
	}
	drop := keep - r.base
	if drop > int64(len(r.history)) {
		drop = int64(len(r.history))
	}
	r.history = append(r.history[:0], r.history[drop:]...)
	r.base += drop
}

// Resample converts a complete signal in one call.
func Resample(in []float32, src, dst float64) ([]float32, error) {
	r, err := New(src, dst)
	if err != nil {
		return nil, err
	}
	out := r.Process(in)
	return append(out, r.Flush()...), nil
}
