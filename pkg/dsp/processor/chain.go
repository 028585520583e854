package processor

import (
	"github.com/racerxdl/segdsp/dsp"

	"github.com/norasector/tonewire/pkg/dsp/agc/rmsagc"
	"github.com/norasector/tonewire/pkg/dsp/filters/fir"
)

const (
	agcAlpha   = 0.0002
	agcTarget  = 0.1
	agcMaxGain = 100
)

// NewReceiveChain builds the optional conditioning applied to received audio
// before tone detection: a FIR filter and an RMS AGC, each skipped when not
// requested. The chain preserves sample count and rate.
func NewReceiveChain(sampleRate int, filter fir.Spec, agc bool) (*Processor, error) {
	p := NewProcessor("receive")

	if filter.Kind != fir.None {
		if filter.Transition == 0 {
			filter.Transition = 200
		}
		taps, err := fir.Design(filter, float64(sampleRate))
		if err != nil {
			return nil, err
		}
		p.AddBlock(NewDSPWorkerFF(
			filter.Kind.String(),
			sampleRate,
			sampleRate,
			dsp.MakeFloatFirFilter(taps),
		))
	}

	if agc {
		p.AddBlock(NewDSPWorkerFF(
			"agc",
			sampleRate,
			sampleRate,
			rmsagc.NewRMSAGC(agcAlpha, agcTarget, agcMaxGain),
		))
	}

	return p, p.Initialize()
}
