package tonewire

import (
	"time"

	"github.com/norasector/tonewire/pkg/modem"
	"github.com/norasector/tonewire/pkg/protocol"
)

// Decode feeds a chunk of audio at the external sample rate. It returns the
// oldest payload recovered so far, or nil if no frame has completed. Chunks
// may have any size; frame errors are counted in Stats and never returned.
func (i *Instance) Decode(chunk []float32) ([]byte, error) {
	m, ok, err := i.DecodeMessage(chunk)
	if err != nil || !ok {
		return nil, err
	}
	return m.Payload, nil
}

// DecodeMessage is Decode that also reports which protocol carried the
// payload.
func (i *Instance) DecodeMessage(chunk []float32) (modem.Message, bool, error) {
	if i.closed {
		return modem.Message{}, false, ErrClosed
	}
	if i.demod == nil {
		return modem.Message{}, false, ErrReceiveDisabled
	}

	samples := chunk
	if i.input != nil {
		samples = i.input.Process(chunk)
	}
	if err := i.demod.Write(samples); err != nil {
		return modem.Message{}, false, err
	}
	i.reportStats()

	m, ok := i.demod.Next()
	return m, ok, nil
}

// Next returns a further payload queued by an earlier Decode.
func (i *Instance) Next() ([]byte, bool) {
	m, ok := i.NextMessage()
	return m.Payload, ok
}

func (i *Instance) NextMessage() (modem.Message, bool) {
	if i.closed || i.demod == nil {
		return modem.Message{}, false
	}
	return i.demod.Next()
}

// Flush pushes any audio held by the input resampler through the
// demodulator. Call it at the end of a stream.
func (i *Instance) Flush() ([]byte, error) {
	m, _, err := i.FlushMessage()
	return m.Payload, err
}

func (i *Instance) FlushMessage() (modem.Message, bool, error) {
	if i.closed {
		return modem.Message{}, false, ErrClosed
	}
	if i.demod == nil {
		return modem.Message{}, false, ErrReceiveDisabled
	}
	if i.input != nil {
		if err := i.demod.Write(i.input.Flush()); err != nil {
			return modem.Message{}, false, err
		}
		i.reportStats()
	}
	m, ok := i.demod.Next()
	return m, ok, nil
}

func (i *Instance) reportStats() {
	cur := i.demod.Stats()
	prev := i.reported
	i.reported = cur
	now := time.Now()

	for id, n := range cur.ByProtocol {
		if delta := n - prev.ByProtocol[id]; delta > 0 {
			fields := map[string]interface{}{"count": delta}
			for k, v := range i.demod.Timings() {
				fields[k] = v
			}
			i.writePoint("tonewire.frame.decoded",
				map[string]string{"protocol": protocol.ID(id).String()},
				fields, now)
		}
	}
	if delta := cur.Failed - prev.Failed; delta > 0 {
		i.writePoint("tonewire.frame.failed", map[string]string{}, map[string]interface{}{"count": delta}, now)
		i.logger.Debug().Int("failed", cur.Failed).Msg("frame lost")
	}
}
