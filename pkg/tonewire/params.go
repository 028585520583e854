package tonewire

import (
	"fmt"
	"strings"

	"github.com/norasector/tonewire/pkg/dsp/filters/fir"
	"github.com/norasector/tonewire/pkg/frame"
	"github.com/norasector/tonewire/pkg/modem"
	"github.com/norasector/tonewire/pkg/protocol"
)

// Mode is a set of operating mode flags.
type Mode uint32

const (
	ModeRx Mode = 1 << iota
	ModeTx
	// ModeTxOnlyTones allows Tones without synthesizing audio.
	ModeTxOnlyTones
	// ModeDSS scrambles payloads with a fixed sequence before encoding.
	ModeDSS
)

func (m Mode) String() string {
	var names []string
	for _, f := range []struct {
		flag Mode
		name string
	}{
		{ModeRx, "rx"},
		{ModeTx, "tx"},
		{ModeTxOnlyTones, "tx_only_tones"},
		{ModeDSS, "dss"},
	} {
		if m&f.flag != 0 {
			names = append(names, f.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

type Parameters struct {
	SampleRateInternal float64
	// SampleRateExternal is the rate of audio passed to Decode and returned
	// by Encode.
	SampleRateExternal float64
	SamplesPerFrame    int
	TxProtocol         protocol.ID
	// RxProtocols enables receive protocols on the instance. Nil means all.
	RxProtocols []protocol.ID
	Mode        Mode
	// PayloadLength selects fixed length frames when positive.
	PayloadLength   int
	Volume          int
	MarkerThreshold float64
	MarkerDebounce  int
	OutputChannels  int
	RxFilter        fir.Spec
	RxAGC           bool
}

func DefaultParameters() Parameters {
	return Parameters{
		SampleRateInternal: 48000,
		SampleRateExternal: 48000,
		SamplesPerFrame:    1024,
		TxProtocol:         protocol.DefaultTransmit(),
		Mode:               ModeRx | ModeTx,
		Volume:             10,
		MarkerThreshold:    modem.DefaultMarkerThreshold,
		MarkerDebounce:     modem.DefaultMarkerDebounce,
		OutputChannels:     1,
	}
}

func (p Parameters) Validate() error {
	switch {
	case p.SampleRateInternal <= 0 || p.SampleRateExternal <= 0:
		return fmt.Errorf("%w: sample rates %v/%v", ErrInvalidParameters, p.SampleRateInternal, p.SampleRateExternal)
	case p.SamplesPerFrame <= 0 || p.SamplesPerFrame%16 != 0:
		return fmt.Errorf("%w: %d samples per frame", ErrInvalidParameters, p.SamplesPerFrame)
	case p.Mode&(ModeRx|ModeTx|ModeTxOnlyTones) == 0:
		return fmt.Errorf("%w: mode %s neither receives nor transmits", ErrInvalidParameters, p.Mode)
	case p.PayloadLength < 0 || p.PayloadLength > frame.MaxFixedLength:
		return fmt.Errorf("%w: payload length %d", ErrInvalidParameters, p.PayloadLength)
	case p.OutputChannels < 1:
		return fmt.Errorf("%w: %d output channels", ErrInvalidParameters, p.OutputChannels)
	case p.MarkerThreshold < 0 || p.MarkerDebounce < 0:
		return fmt.Errorf("%w: marker threshold %v debounce %d", ErrInvalidParameters, p.MarkerThreshold, p.MarkerDebounce)
	}

	if !p.TxProtocol.Valid() {
		return fmt.Errorf("%w: unknown tx protocol %d", ErrInvalidParameters, p.TxProtocol)
	}
	for _, id := range p.RxProtocols {
		if !id.Valid() {
			return fmt.Errorf("%w: unknown rx protocol %d", ErrInvalidParameters, id)
		}
	}
	if err := modem.ValidateVolume(p.Volume); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParameters, err)
	}
	return nil
}
