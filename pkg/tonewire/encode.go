package tonewire

import (
	"fmt"
	"time"

	"github.com/norasector/tonewire/pkg/dsp/resample"
	"github.com/norasector/tonewire/pkg/modem"
	"github.com/norasector/tonewire/pkg/protocol"
)

// Encode renders payload with the instance's transmit protocol and volume.
func (i *Instance) Encode(payload []byte) ([]float32, error) {
	return i.EncodeWith(payload, i.params.TxProtocol, i.params.Volume)
}

// EncodeWith renders payload as audio at the external sample rate,
// interleaved across OutputChannels.
func (i *Instance) EncodeWith(payload []byte, id protocol.ID, volume int) ([]float32, error) {
	if i.closed {
		return nil, ErrClosed
	}
	if i.params.Mode&ModeTx == 0 {
		return nil, ErrTransmitDisabled
	}

	start := time.Now()
	desc, encoded, err := i.frame(payload, id)
	if err != nil {
		return nil, err
	}
	if err := modem.ValidateVolume(volume); err != nil {
		return nil, err
	}

	wave, err := i.modulator.Modulate(encoded, desc, volume, i.codec.FixedLength() > 0)
	if err != nil {
		return nil, err
	}

	if i.params.SampleRateExternal != i.params.SampleRateInternal {
		r, err := resample.New(i.params.SampleRateInternal, i.params.SampleRateExternal)
		if err != nil {
			return nil, err
		}
		out := r.Process(wave)
		wave = append(out, r.Flush()...)
	}

	if ch := i.params.OutputChannels; ch > 1 {
		interleaved := make([]float32, len(wave)*ch)
		for n, v := range wave {
			for c := 0; c < ch; c++ {
				interleaved[n*ch+c] = v
			}
		}
		wave = interleaved
	}

	i.writePoint("tonewire.encode",
		map[string]string{"protocol": desc.Name},
		map[string]interface{}{
			"payload_length": len(payload),
			"encoded_length": len(encoded),
			"samples":        len(wave),
			"duration":       time.Since(start).Microseconds(),
		}, start)

	i.logger.Debug().
		Str("protocol", desc.Name).
		Int("length", len(payload)).
		Int("samples", len(wave)).
		Msg("encoded")

	return wave, nil
}

// Tones returns the tone plan of payload for the transmit protocol without
// synthesizing audio.
func (i *Instance) Tones(payload []byte) ([]modem.ToneGroup, error) {
	if i.closed {
		return nil, ErrClosed
	}
	if i.params.Mode&(ModeTx|ModeTxOnlyTones) == 0 {
		return nil, ErrTransmitDisabled
	}
	desc, encoded, err := i.frame(payload, i.params.TxProtocol)
	if err != nil {
		return nil, err
	}
	return modem.Plan(encoded, desc, i.codec.FixedLength() > 0), nil
}

// EncodedSamples is the number of samples per channel Encode would produce for
// an n byte payload at the internal rate.
func (i *Instance) EncodedSamples(n int, id protocol.ID) (int, error) {
	desc, err := protocol.Lookup(id)
	if err != nil {
		return 0, err
	}
	return i.modulator.Duration(i.codec.EncodedSize(n, desc), desc, i.codec.FixedLength() > 0), nil
}

func (i *Instance) frame(payload []byte, id protocol.ID) (protocol.Descriptor, []byte, error) {
	desc, err := protocol.Lookup(id)
	if err != nil {
		return desc, nil, err
	}
	if !i.globalTx.Enabled(id) {
		return desc, nil, fmt.Errorf("%w: %s", ErrProtocolDisabled, desc)
	}
	if desc.MonoTone && i.codec.FixedLength() == 0 {
		return desc, nil, fmt.Errorf("%w: %s needs a fixed payload length", ErrUnsupportedProtocol, desc)
	}
	if !desc.Fits(i.params.SamplesPerFrame) {
		return desc, nil, fmt.Errorf("%w: %s at %d samples per frame", ErrUnsupportedProtocol, desc, i.params.SamplesPerFrame)
	}

	encoded, err := i.codec.Encode(payload, desc)
	if err != nil {
		return desc, nil, err
	}
	return desc, encoded, nil
}
