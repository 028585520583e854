package modem

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/norasector/tonewire/pkg/dsp/processor"
	"github.com/norasector/tonewire/pkg/dsp/spectrum"
	"github.com/norasector/tonewire/pkg/fec"
	"github.com/norasector/tonewire/pkg/frame"
	"github.com/norasector/tonewire/pkg/protocol"
)

const (
	DefaultMarkerThreshold = 3.0
	DefaultMarkerDebounce  = 1

	// historySize frames are averaged before marker detection.
	historySize = 4
	// stepsPerFrame is the resolution of the symbol alignment search.
	stepsPerFrame = 16
)

var ErrInvalidFrameSize = errors.New("samples per frame must be a positive multiple of 16")

type Config struct {
	SamplesPerFrame int
	// Codec selects variable or fixed length framing. Defaults to variable.
	Codec *frame.Codec
	// Protocols gates which profiles are detected. Defaults to protocol.Rx().
	Protocols       protocol.Toggles
	MarkerThreshold float64
	// MarkerDebounce is the number of consecutive detections a marker needs.
	MarkerDebounce int
	// Conditioner, if set, runs on every frame before detection.
	Conditioner *processor.Processor
	Logger      *zerolog.Logger
}

// Demodulator consumes audio at the internal sample rate in chunks of any
// size and queues the payloads it recovers. It is not safe for concurrent
// use.
type Demodulator struct {
	spf         int
	codec       *frame.Codec
	toggles     protocol.Toggles
	threshold   float64
	debounce    int
	conditioner *processor.Processor
	analyzer    *spectrum.Analyzer
	logger      zerolog.Logger

	pending []float32
	state   State
	frames  int64
	timings map[string]interface{}

	history    [historySize][]float32
	historyID  int
	average    []float32
	power      []float64
	startHits  int
	endHits    int
	freqStart  int
	candidates []protocol.Descriptor

	recorded     []float32
	recvDuration int
	framesLeft   int
	accum        []float64
	encoded      []byte

	fixed *fixedDetector

	queue []Message
	stats Stats
}

func NewDemodulator(cfg Config) (*Demodulator, error) {
	if cfg.SamplesPerFrame <= 0 || cfg.SamplesPerFrame%stepsPerFrame != 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidFrameSize, cfg.SamplesPerFrame)
	}

	d := &Demodulator{
		spf:         cfg.SamplesPerFrame,
		codec:       cfg.Codec,
		toggles:     cfg.Protocols,
		threshold:   cfg.MarkerThreshold,
		debounce:    cfg.MarkerDebounce,
		conditioner: cfg.Conditioner,
		analyzer:    spectrum.NewAnalyzer(cfg.SamplesPerFrame),
		logger:      log.Logger,
		timings:     make(map[string]interface{}),
		average:     make([]float32, cfg.SamplesPerFrame),
		power:       make([]float64, cfg.SamplesPerFrame/2+1),
		accum:       make([]float64, cfg.SamplesPerFrame),
		encoded:     make([]byte, frame.LengthBlockSize+fec.MaxCodewordLength+8),
	}
	if cfg.Logger != nil {
		d.logger = *cfg.Logger
	}
	if d.codec == nil {
		codec, err := frame.NewCodec()
		if err != nil {
			return nil, err
		}
		d.codec = codec
	}
	if d.toggles == nil {
		d.toggles = protocol.Rx()
	}
	if d.threshold <= 0 {
		d.threshold = DefaultMarkerThreshold
	}
	if d.debounce < 1 {
		d.debounce = DefaultMarkerDebounce
	}
	for i := range d.history {
		d.history[i] = make([]float32, d.spf)
	}
	if d.codec.FixedLength() > 0 {
		d.fixed = newFixedDetector(d.spf, d.codec)
	}

	return d, nil
}

func (d *Demodulator) SamplesPerFrame() int {
	return d.spf
}

func (d *Demodulator) State() State {
	return d.state
}

func (d *Demodulator) Stats() Stats {
	return d.stats
}

// Timings returns the per-block durations of the last conditioned frame.
func (d *Demodulator) Timings() map[string]interface{} {
	ret := make(map[string]interface{}, len(d.timings))
	for k, v := range d.timings {
		ret[k] = v
	}
	return ret
}

// Write feeds samples. Whole frames are processed immediately and any
// remainder is kept for the next call, so the result does not depend on how
// the stream is chunked.
func (d *Demodulator) Write(samples []float32) error {
	d.pending = append(d.pending, samples...)

	off := 0
	defer func() {
		n := copy(d.pending, d.pending[off:])
		d.pending = d.pending[:n]
	}()

	for len(d.pending)-off >= d.spf {
		chunk := d.pending[off : off+d.spf]
		// a failed frame is consumed so the next Write does not replay it
		off += d.spf
		if err := d.processFrame(chunk); err != nil {
			return err
		}
	}
	return nil
}

// Next pops the oldest decoded message.
func (d *Demodulator) Next() (Message, bool) {
	if len(d.queue) == 0 {
		return Message{}, false
	}
	m := d.queue[0]
	d.queue[0] = Message{}
	d.queue = d.queue[1:]
	return m, true
}

// Queued is the number of messages waiting in Next.
func (d *Demodulator) Queued() int {
	return len(d.queue)
}

// Reset drops buffered audio, any frame in progress and queued messages.
// Stats are kept.
func (d *Demodulator) Reset() {
	d.pending = d.pending[:0]
	d.queue = nil
	for i := range d.history {
		clear32(d.history[i])
	}
	d.historyID = 0
	d.finishAnalysis()
	if d.fixed != nil {
		d.fixed.reset()
	}
	if d.conditioner != nil {
		d.conditioner.Reset()
	}
}

func (d *Demodulator) processFrame(samples []float32) error {
	if d.state == Idle {
		d.state = Seeking
	}
	if d.conditioner != nil && d.conditioner.Len() > 0 {
		out, err := d.conditioner.Process(samples, d.timings)
		if err != nil {
			return err
		}
		samples = out
	}

	d.frames++
	d.stats.FramesProcessed++

	if d.fixed != nil {
		d.processFixed(samples)
	} else {
		d.processVariable(samples)
	}
	return nil
}

func (d *Demodulator) processVariable(samples []float32) {
	copy(d.history[d.historyID], samples)
	d.historyID = (d.historyID + 1) % historySize

	fresh := false
	if d.historyID == 0 || d.state == Locked {
		for i := range d.average {
			var sum float32
			for h := range d.history {
				sum += d.history[h][i]
			}
			d.average[i] = sum / historySize
		}
		copy(d.power, d.analyzer.Power(d.average))
		fresh = true
	}

	if d.framesLeft > 0 {
		d.recorded = append(d.recorded, samples...)
		d.framesLeft--
		if d.framesLeft == 0 {
			d.state = FrameComplete
			d.analyze()
			d.finishAnalysis()
			return
		}
	}

	if !fresh {
		return
	}

	if d.state == Locked {
		if d.markerAt(d.freqStart, false) {
			d.endHits++
		} else {
			d.endHits = 0
		}
		if d.endHits >= d.debounce && d.framesLeft > 1 {
			d.recvDuration -= d.framesLeft - 1
			d.framesLeft = 1
			d.logger.Trace().Int("frames", d.recvDuration).Msg("end marker")
		}
		return
	}

	freqStart, ok := d.detectStart()
	if !ok {
		d.startHits = 0
		return
	}
	d.startHits++
	if d.startHits >= d.debounce {
		d.lock(freqStart)
	}
}

// markerAt tests the 16 bin pairs above freqStart. A start marker puts the
// tone of pair i in its lower bin for even i and in its upper bin for odd i;
// an end marker does the opposite.
func (d *Demodulator) markerAt(freqStart int, start bool) bool {
	for i := 0; i < protocol.MarkerTones; i++ {
		bin := freqStart + 2*i
		lo, hi := d.power[bin], d.power[bin+1]
		if (i%2 == 0) == start {
			if lo <= d.threshold*hi {
				return false
			}
		} else if hi <= d.threshold*lo {
			return false
		}
	}
	return true
}

func (d *Demodulator) receivable(p protocol.Descriptor) bool {
	return !p.MonoTone && p.Fits(d.spf) && d.toggles.Enabled(p.ID)
}

func (d *Demodulator) detectStart() (int, bool) {
	for _, p := range protocol.All() {
		if d.receivable(p) && d.markerAt(p.FreqStart, true) {
			return p.FreqStart, true
		}
	}
	return 0, false
}

// lock starts recording. The candidate set is fixed here, so toggling a
// protocol mid-frame does not affect the frame already being received.
func (d *Demodulator) lock(freqStart int) {
	d.candidates = d.candidates[:0]
	longest := 0
	for _, p := range protocol.All() {
		if p.FreqStart != freqStart || !d.receivable(p) {
			continue
		}
		d.candidates = append(d.candidates, p)
		if frames := d.frameCount(d.codec.MaxPayload(p), p); frames > longest {
			longest = frames
		}
	}
	if len(d.candidates) == 0 {
		return
	}

	d.state = Locked
	d.freqStart = freqStart
	d.recvDuration = longest
	d.framesLeft = longest
	d.recorded = d.recorded[:0]
	d.startHits = 0
	d.endHits = 0
	d.stats.Locks++

	d.logger.Debug().
		Int("freq_start", freqStart).
		Int("candidates", len(d.candidates)).
		Int64("frame", d.frames).
		Msg("start marker")
}

// frameCount is the on-air length of an n byte payload in frames, markers
// included.
func (d *Demodulator) frameCount(n int, p protocol.Descriptor) int {
	return 2*protocol.MarkerFrames + DataSymbols(d.codec.EncodedSize(n, p), p)*p.FramesPerTx
}

func (d *Demodulator) analyze() {
	for _, p := range d.candidates {
		for offset := protocol.MarkerFrames*stepsPerFrame - 1; offset >= 0; offset-- {
			payload, ok := d.recover(p, offset)
			if !ok {
				continue
			}
			d.emit(payload, p.ID)
			return
		}
	}

	d.stats.Failed++
	d.logger.Debug().
		Int("frames", d.recvDuration).
		Int("freq_start", d.freqStart).
		Msg("no frame recovered")
}

// recover reads the recording assuming data starts offset steps into it.
// Symbols are summed over their frames before the FFT. The declared length
// must agree with the number of frames recorded, which rejects other
// profiles that share the same markers.
func (d *Demodulator) recover(p protocol.Descriptor, offset int) ([]byte, bool) {
	step := d.spf / stepsPerFrame
	bpt := p.BytesPerTx
	encoded := d.encoded
	for i := range encoded {
		encoded[i] = 0
	}

	n, expected := 0, 0
	for itx := 0; ; itx++ {
		first := offset + itx*p.FramesPerTx*stepsPerFrame
		last := (first+(p.FramesPerTx-1)*stepsPerFrame)*step + d.spf
		have := (itx + 1) * bpt
		if last > len(d.recorded) || have > len(encoded) {
			return nil, false
		}

		for i := range d.accum {
			d.accum[i] = 0
		}
		for k := 0; k < p.FramesPerTx; k++ {
			start := (first + k*stepsPerFrame) * step
			for i, v := range d.recorded[start : start+d.spf] {
				d.accum[i] += float64(v)
			}
		}
		power := d.analyzer.PowerFloat64(d.accum)

		for i := 0; i < 2*bpt; i++ {
			base := p.FreqStart + i*protocol.BinsPerNibble
			nibble := byte(spectrum.PeakBin(power, base, protocol.BinsPerNibble) - base)
			idx := itx*bpt + i/2
			if i%2 == 0 {
				encoded[idx] = nibble
			} else {
				encoded[idx] |= nibble << 4
			}
		}

		if expected == 0 {
			if have < frame.LengthBlockSize {
				continue
			}
			block := make([]byte, frame.LengthBlockSize)
			copy(block, encoded)
			var err error
			n, err = d.codec.DecodeLength(block)
			if err != nil || n > d.codec.MaxPayload(p) {
				return nil, false
			}
			expected = d.codec.EncodedSize(n, p)

			frames := d.frameCount(n, p)
			if d.recvDuration > frames || d.recvDuration < frames-2*protocol.MarkerFrames {
				return nil, false
			}
		}
		if have >= expected {
			break
		}
	}

	payload, err := d.codec.DecodeData(encoded[frame.LengthBlockSize:expected], n, p)
	if err != nil {
		return nil, false
	}
	return payload, true
}

func (d *Demodulator) emit(payload []byte, id protocol.ID) {
	d.queue = append(d.queue, Message{
		Payload:  payload,
		Protocol: id,
		Frame:    d.frames,
	})
	d.stats.Decoded++
	d.stats.ByProtocol[id]++

	d.logger.Debug().
		Str("protocol", id.String()).
		Int("length", len(payload)).
		Int64("frame", d.frames).
		Msg("frame decoded")
}

func (d *Demodulator) finishAnalysis() {
	d.recorded = d.recorded[:0]
	d.framesLeft = 0
	d.recvDuration = 0
	d.candidates = d.candidates[:0]
	d.startHits = 0
	d.endHits = 0
	for i := range d.power {
		d.power[i] = 0
	}
	d.state = Idle
}

func clear32(s []float32) {
	for i := range s {
		s[i] = 0
	}
}
