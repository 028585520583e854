package fir

import (
	"fmt"
	"math"
)

type WindowFunc func(int) []float32

type WindowType int

const (
	Hamming WindowType = iota
	Hann
	Blackman
)

var (
	// stopband attenuation in dB each window reaches; drives the tap count
	windowMaxAttenuation = map[WindowType]float64{
		Hamming:  53,
		Hann:     44,
		Blackman: 74,
	}
	windowFuncs = map[WindowType]WindowFunc{
		Hamming:  HammingWindow,
		Hann:     HannWindow,
		Blackman: BlackmanWindow,
	}
)

func (w WindowType) String() string {
	switch w {
	case Hamming:
		return "hamming"
	case Hann:
		return "hann"
	case Blackman:
		return "blackman"
	default:
		return fmt.Sprintf("window(%d)", int(w))
	}
}

func cosineWindow(ntaps int, c ...float64) []float32 {
	ret := make([]float32, ntaps)
	if ntaps == 1 {
		ret[0] = 1
		return ret
	}
	m := float64(ntaps - 1)
	for i := 0; i < ntaps; i++ {
		var v, sign float64 = 0, 1
		for k, ck := range c {
			v += sign * ck * math.Cos(2*math.Pi*float64(k)*float64(i)/m)
			sign = -sign
		}
		ret[i] = float32(v)
	}
	return ret
}

func BlackmanWindow(ntaps int) []float32 {
	return cosineWindow(ntaps, 0.42, 0.5, 0.08)
}

func HammingWindow(ntaps int) []float32 {
	return cosineWindow(ntaps, 0.54, 0.46)
}

func HannWindow(ntaps int) []float32 {
	return cosineWindow(ntaps, 0.5, 0.5)
}
