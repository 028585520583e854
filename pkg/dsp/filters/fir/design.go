// Package fir designs windowed-sinc FIR filter taps.
package fir

import (
	"errors"
	"fmt"
	"math"
)

type Kind int

const (
	None Kind = iota
	LowPass
	HighPass
	BandPass
)

var ErrInvalidFilter = errors.New("invalid filter")

func (k Kind) String() string {
	switch k {
	case None:
		return "none"
	case LowPass:
		return "lowpass"
	case HighPass:
		return "highpass"
	case BandPass:
		return "bandpass"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind accepts the names returned by Kind.String. The empty string is
// None.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "", "none":
		return None, nil
	case "lowpass":
		return LowPass, nil
	case "highpass":
		return HighPass, nil
	case "bandpass":
		return BandPass, nil
	}
	return None, fmt.Errorf("%w: unknown kind %q", ErrInvalidFilter, s)
}

// Spec describes a filter. Low is the cutoff of a high-pass and the lower
// edge of a band-pass; High is the cutoff of a low-pass and the upper edge of
// a band-pass.
type Spec struct {
	Kind       Kind
	Low        float64
	High       float64
	Transition float64
	Window     WindowType
	Gain       float64
}

func computeNTaps(sampleRate, transitionWidth float64, winType WindowType) int {
	ntaps := int(windowMaxAttenuation[winType] * sampleRate / (22.0 * transitionWidth))
	return ntaps | 1
}

// Design returns the taps of s at sampleRate, normalized to s.Gain at the
// centre of the passband.
func Design(s Spec, sampleRate float64) ([]float32, error) {
	nyquist := sampleRate / 2
	if s.Transition <= 0 {
		return nil, fmt.Errorf("%w: transition width %v", ErrInvalidFilter, s.Transition)
	}
	if _, ok := windowFuncs[s.Window]; !ok {
		return nil, fmt.Errorf("%w: window %s", ErrInvalidFilter, s.Window)
	}
	gain := s.Gain
	if gain == 0 {
		gain = 1
	}

	var lo, hi float64 // normalized angular edges
	switch s.Kind {
	case LowPass:
		if s.High <= 0 || s.High >= nyquist {
			return nil, fmt.Errorf("%w: low-pass cutoff %v", ErrInvalidFilter, s.High)
		}
		hi = 2 * math.Pi * s.High / sampleRate
	case HighPass:
		if s.Low <= 0 || s.Low >= nyquist {
			return nil, fmt.Errorf("%w: high-pass cutoff %v", ErrInvalidFilter, s.Low)
		}
		lo = 2 * math.Pi * s.Low / sampleRate
		hi = math.Pi
	case BandPass:
		if s.Low <= 0 || s.High >= nyquist || s.Low >= s.High {
			return nil, fmt.Errorf("%w: band %v-%v", ErrInvalidFilter, s.Low, s.High)
		}
		lo = 2 * math.Pi * s.Low / sampleRate
		hi = 2 * math.Pi * s.High / sampleRate
	default:
		return nil, fmt.Errorf("%w: kind %s", ErrInvalidFilter, s.Kind)
	}

	nTaps := computeNTaps(sampleRate, s.Transition, s.Window)
	w := windowFuncs[s.Window](nTaps)
	m := (nTaps - 1) / 2

	// ideal response is the difference of two low-passes at hi and lo
	taps := make([]float64, nTaps)
	for i := -m; i <= m; i++ {
		var v float64
		if i == 0 {
			v = (hi - lo) / math.Pi
		} else {
			fi := float64(i)
			v = (math.Sin(fi*hi) - math.Sin(fi*lo)) / (fi * math.Pi)
		}
		taps[i+m] = v * float64(w[i+m])
	}

	// response at the passband centre
	centre := (lo + hi) / 2
	if s.Kind == LowPass {
		centre = 0
	} else if s.Kind == HighPass {
		centre = math.Pi
	}
	resp := taps[m]
	for i := 1; i <= m; i++ {
		resp += 2 * taps[i+m] * math.Cos(float64(i)*centre)
	}

	ret := make([]float32, nTaps)
	for i, v := range taps {
		ret[i] = float32(v * gain / resp)
	}
	return ret, nil
}
