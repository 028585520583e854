// Package tonewire is the encode/decode engine: an Instance turns payloads
// into FSK audio and recovers payloads from a stream of audio chunks.
package tonewire

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/influxdata/influxdb-client-go/api"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/norasector/tonewire/pkg/dsp/filters/fir"
	"github.com/norasector/tonewire/pkg/dsp/processor"
	"github.com/norasector/tonewire/pkg/dsp/resample"
	"github.com/norasector/tonewire/pkg/frame"
	"github.com/norasector/tonewire/pkg/modem"
	"github.com/norasector/tonewire/pkg/protocol"
	"github.com/norasector/tonewire/pkg/util"
)

// Instance is one transmit/receive session. It is not safe for concurrent
// use; separate instances are independent.
type Instance struct {
	id     uuid.UUID
	params Parameters

	codec     *frame.Codec
	modulator *modem.Modulator
	demod     *modem.Demodulator
	input     *resample.Resampler

	rx       *protocol.Registry
	globalRx *protocol.Registry
	globalTx *protocol.Registry

	logger   zerolog.Logger
	writeAPI api.WriteAPI
	reported modem.Stats
	closed   bool
}

type Option func(i *Instance) error

func WithLogger(logger zerolog.Logger) Option {
	return func(i *Instance) error {
		i.logger = logger
		return nil
	}
}

// WithMetrics sends decode and encode points to writeAPI. A nil writeAPI
// discards them.
func WithMetrics(writeAPI api.WriteAPI) Option {
	return func(i *Instance) error {
		if writeAPI == nil {
			writeAPI = &util.MockWriteAPI{}
		}
		i.writeAPI = writeAPI
		return nil
	}
}

// WithRegistries replaces the process-wide receive and transmit registries
// for this instance. A nil registry keeps the process-wide one.
func WithRegistries(rx, tx *protocol.Registry) Option {
	return func(i *Instance) error {
		if rx != nil {
			i.globalRx = rx
		}
		if tx != nil {
			i.globalTx = tx
		}
		return nil
	}
}

func New(params Parameters, opts ...Option) (*Instance, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	i := &Instance{
		id:        uuid.New(),
		params:    params,
		modulator: modem.NewModulator(params.SamplesPerFrame),
		globalRx:  protocol.Rx(),
		globalTx:  protocol.Tx(),
		logger:    log.Logger,
		writeAPI:  &util.MockWriteAPI{}, // overwritten with option
	}

	for _, opt := range opts {
		if err := opt(i); err != nil {
			return nil, err
		}
	}
	i.logger = i.logger.With().Str("instance", i.id.String()).Logger().Hook(diagnosticsHook{})

	var codecOpts []frame.CodecOption
	if params.PayloadLength > 0 {
		codecOpts = append(codecOpts, frame.WithFixedLength(params.PayloadLength))
	}
	if params.Mode&ModeDSS != 0 {
		codecOpts = append(codecOpts, frame.WithDSS())
	}
	codec, err := frame.NewCodec(codecOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParameters, err)
	}
	i.codec = codec

	if params.RxProtocols == nil {
		i.rx = protocol.NewRegistry()
	} else if i.rx, err = protocol.NewRegistryOf(params.RxProtocols...); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParameters, err)
	}

	if params.Mode&ModeRx != 0 {
		if err := i.initReceive(); err != nil {
			return nil, err
		}
	}

	i.logger.Debug().
		Str("mode", params.Mode.String()).
		Str("tx_protocol", params.TxProtocol.String()).
		Float64("external_rate", params.SampleRateExternal).
		Int("payload_length", params.PayloadLength).
		Msg("instance created")

	return i, nil
}

func (i *Instance) initReceive() error {
	var chain *processor.Processor
	if i.params.RxFilter.Kind != fir.None || i.params.RxAGC {
		var err error
		chain, err = processor.NewReceiveChain(int(i.params.SampleRateInternal), i.params.RxFilter, i.params.RxAGC)
		if err != nil {
			return fmt.Errorf("%w: receive filter: %v", ErrInvalidParameters, err)
		}
	}

	demod, err := modem.NewDemodulator(modem.Config{
		SamplesPerFrame: i.params.SamplesPerFrame,
		Codec:           i.codec,
		Protocols:       protocol.Both{i.globalRx, i.rx},
		MarkerThreshold: i.params.MarkerThreshold,
		MarkerDebounce:  i.params.MarkerDebounce,
		Conditioner:     chain,
		Logger:          &i.logger,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParameters, err)
	}
	i.demod = demod

	if i.params.SampleRateExternal != i.params.SampleRateInternal {
		i.input, err = resample.New(i.params.SampleRateExternal, i.params.SampleRateInternal)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidParameters, err)
		}
	}
	return nil
}

func (i *Instance) ID() uuid.UUID {
	return i.id
}

func (i *Instance) Parameters() Parameters {
	return i.params
}

// SetReceiveProtocolEnabled toggles id in this instance's receive set. A
// protocol is detected only while it is enabled here and in the process-wide
// receive registry.
func (i *Instance) SetReceiveProtocolEnabled(id protocol.ID, enabled bool) error {
	if i.closed {
		return ErrClosed
	}
	return i.rx.SetEnabled(id, enabled)
}

// ReceiveProtocolEnabled reports whether the demodulator currently considers
// id.
func (i *Instance) ReceiveProtocolEnabled(id protocol.ID) bool {
	return i.globalRx.Enabled(id) && i.rx.Enabled(id)
}

// SetReceiveProtocolEnabled toggles id in the process-wide receive registry.
func SetReceiveProtocolEnabled(id protocol.ID, enabled bool) error {
	return protocol.Rx().SetEnabled(id, enabled)
}

// SetTransmitProtocolEnabled toggles id in the process-wide transmit registry.
func SetTransmitProtocolEnabled(id protocol.ID, enabled bool) error {
	return protocol.Tx().SetEnabled(id, enabled)
}

// State is the receive state machine's state. Instances without receive mode
// stay Idle.
func (i *Instance) State() modem.State {
	if i.demod == nil {
		return modem.Idle
	}
	return i.demod.State()
}

func (i *Instance) Stats() modem.Stats {
	if i.demod == nil {
		return modem.Stats{}
	}
	return i.demod.Stats()
}

// Close releases the instance's buffers. Further calls fail with ErrClosed.
func (i *Instance) Close() error {
	if i.closed {
		return ErrClosed
	}
	i.closed = true
	if i.demod != nil {
		i.demod.Reset()
		i.demod = nil
	}
	i.input = nil
	i.writeAPI.Flush()

	i.logger.Debug().Msg("instance closed")
	return nil
}
