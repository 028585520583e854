// Package modem turns encoded frames into multi-tone FSK audio and back.
package modem

import (
	"errors"
	"fmt"
	"sync"

	"github.com/norasector/tonewire/pkg/dsp/oscillator"
	"github.com/norasector/tonewire/pkg/protocol"
)

const (
	MinVolume = 0
	MaxVolume = 100

	// rampFraction of every tone group fades in and the same share fades out.
	rampFraction = 0.15
)

var (
	ErrInvalidVolume       = errors.New("volume out of range")
	ErrUnsupportedProtocol = errors.New("protocol tones exceed the frame's Nyquist bin")
)

func ValidateVolume(volume int) error {
	if volume < MinVolume || volume > MaxVolume {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrInvalidVolume, volume, MinVolume, MaxVolume)
	}
	return nil
}

type toneKey struct {
	bin   int
	phase float64
}

// Modulator synthesizes waveforms at the internal sample rate. One-frame tone
// tables are built lazily and shared across calls.
type Modulator struct {
	samplesPerFrame int

	mu     sync.Mutex
	tables map[toneKey][]float32
}

func NewModulator(samplesPerFrame int) *Modulator {
	return &Modulator{
		samplesPerFrame: samplesPerFrame,
		tables:          make(map[toneKey][]float32),
	}
}

func (m *Modulator) SamplesPerFrame() int {
	return m.samplesPerFrame
}

func (m *Modulator) tone(bin int, phase float64) []float32 {
	key := toneKey{bin: bin, phase: phase}
	if t, ok := m.tables[key]; ok {
		return t
	}

	samples := oscillator.NewBinOscillator(m.samplesPerFrame, bin, phase).Fill(m.samplesPerFrame)
	t := make([]float32, len(samples))
	for i, v := range samples {
		t[i] = float32(v)
	}
	m.tables[key] = t
	return t
}

// Modulate renders encoded with desc. Every frame's amplitude is
// volume/100 split evenly across its tones, with a linear ramp over the
// first and last 15% of each tone group.
func (m *Modulator) Modulate(encoded []byte, desc protocol.Descriptor, volume int, fixed bool) ([]float32, error) {
	if err := ValidateVolume(volume); err != nil {
		return nil, err
	}
	if !desc.Fits(m.samplesPerFrame) {
		return nil, fmt.Errorf("%w: %s at %d samples per frame", ErrUnsupportedProtocol, desc.Name, m.samplesPerFrame)
	}

	plan := Plan(encoded, desc, fixed)
	n := m.samplesPerFrame
	out := make([]float32, PlanFrames(plan)*n)

	m.mu.Lock()
	defer m.mu.Unlock()

	scale := float64(volume) / MaxVolume
	pos := 0
	for _, group := range plan {
		if len(group.Offsets) == 0 {
			pos += group.Frames * n
			continue
		}

		tables := make([][]float32, len(group.Offsets))
		for i, offset := range group.Offsets {
			tables[i] = m.tone(desc.FreqStart+offset, tonePhase(offset, desc))
		}

		amplitude := scale / float64(len(tables))
		total := group.Frames * n
		ramp := rampFraction * float64(total)
		begin := int(ramp)
		end := int((1 - rampFraction) * float64(total))

		for k := 0; k < total; k++ {
			var v float64
			for _, t := range tables {
				v += float64(t[k%n])
			}

			gain := 1.0
			switch {
			case k < begin:
				gain = float64(k) / ramp
			case k > end:
				gain = float64(total-k) / ramp
			}
			out[pos+k] = float32(v * amplitude * gain)
		}
		pos += total
	}

	return out, nil
}

// Duration is the number of samples Modulate produces for an encoded frame of
// n bytes.
func (m *Modulator) Duration(n int, desc protocol.Descriptor, fixed bool) int {
	frames := DataSymbols(n, desc) * desc.FramesPerTx
	if !fixed {
		frames += 2 * protocol.MarkerFrames
	}
	return frames * m.samplesPerFrame
}
