package modem

import (
	"math"

	"github.com/norasector/tonewire/pkg/frame"
	"github.com/norasector/tonewire/pkg/protocol"
)

// fixedDetector keeps a ring of normalized spectra, one per frame. Fixed
// length frames carry no markers, so every enabled profile is tried against
// the most recent frames each time a new one arrives.
type fixedDetector struct {
	codec  *frame.Codec
	minBin int
	rows   [][]uint8
	next   int
	filled int
	// holdoff suppresses detection while the window still overlaps a frame
	// that was just decoded.
	holdoff int

	tones []int
	bins  []int
}

func newFixedDetector(spf int, codec *frame.Codec) *fixedDetector {
	f := &fixedDetector{
		codec:  codec,
		minBin: spf / 2,
	}

	size := 0
	for _, p := range protocol.All() {
		if !p.Fits(spf) {
			continue
		}
		if p.FreqStart < f.minBin {
			f.minBin = p.FreqStart
		}
		if w := f.window(p); w > size {
			size = w
		}
		if t := 2 * p.BytesPerTx * protocol.BinsPerNibble; t > len(f.tones) {
			f.tones = make([]int, t)
		}
		if b := 2 * f.encodedSize(p); b > len(f.bins) {
			f.bins = make([]int, b)
		}
	}

	f.rows = make([][]uint8, size)
	for i := range f.rows {
		f.rows[i] = make([]uint8, spf/2+1)
	}
	return f
}

func (f *fixedDetector) encodedSize(p protocol.Descriptor) int {
	return f.codec.EncodedSize(f.codec.FixedLength(), p)
}

// window is the number of frames one frame of p occupies.
func (f *fixedDetector) window(p protocol.Descriptor) int {
	return DataSymbols(f.encodedSize(p), p) * p.FramesPerTx
}

func (f *fixedDetector) reset() {
	for _, row := range f.rows {
		for i := range row {
			row[i] = 0
		}
	}
	f.next = 0
	f.filled = 0
	f.holdoff = 0
}

// push stores power scaled so its largest bin at or above minBin is 255. It
// reports false for a silent frame.
func (f *fixedDetector) push(power []float64) bool {
	row := f.rows[f.next]
	f.next = (f.next + 1) % len(f.rows)
	if f.filled < len(f.rows) {
		f.filled++
	}

	var amax float64
	for _, v := range power[f.minBin:] {
		if v > amax {
			amax = v
		}
	}
	for i := range row {
		row[i] = 0
	}
	if amax == 0 {
		return false
	}
	for i := f.minBin; i < len(power) && i < len(row); i++ {
		row[i] = uint8(math.Round(255 * power[i] / amax))
	}
	return true
}

func (d *Demodulator) processFixed(samples []float32) {
	f := d.fixed
	audible := f.push(d.analyzer.Power(samples))

	if f.holdoff > 0 {
		f.holdoff--
		return
	}
	if !audible {
		return
	}

	for _, p := range protocol.All() {
		if !p.Fits(d.spf) || !d.toggles.Enabled(p.ID) {
			continue
		}
		window := f.window(p)
		if f.filled < window {
			continue
		}
		payload, ok := d.detectFixed(p, window)
		if !ok {
			continue
		}
		d.emit(payload, p.ID)
		f.holdoff = window
		d.state = Idle
		return
	}
}

// detectFixed votes every symbol of the last window frames: a nibble counts
// when more than half of its frames peak in the same bin. At least 75% of
// nibbles must be settled before Reed-Solomon decoding is attempted.
func (d *Demodulator) detectFixed(p protocol.Descriptor, window int) ([]byte, bool) {
	f := d.fixed
	total := f.encodedSize(p)
	symbols := DataSymbols(total, p)
	extra := p.SymbolsPerByteGroup()
	bpt := p.BytesPerTx
	size := len(f.rows)
	start := (f.next - window + size) % size

	tones := f.tones[:2*bpt*protocol.BinsPerNibble]
	bins := f.bins[:2*total]
	for i := range bins {
		bins[i] = 0
	}

	detected, needed := 0, 0
	for k := 0; k < symbols; k++ {
		if k%extra == 0 {
			for i := range tones {
				tones[i] = 0
			}
		}

		for i := 0; i < p.FramesPerTx; i++ {
			row := f.rows[(start+k*p.FramesPerTx+i)%size]
			for j := 0; j < bpt; j++ {
				base := p.FreqStart + 2*j*protocol.BinsPerNibble
				low := peak8(row, base)
				switch {
				case extra == 1:
					high := peak8(row, base+protocol.BinsPerNibble)
					tones[2*j*protocol.BinsPerNibble+low]++
					tones[(2*j+1)*protocol.BinsPerNibble+high]++
				case k%2 == 0:
					tones[2*j*protocol.BinsPerNibble+low]++
				default:
					tones[(2*j+1)*protocol.BinsPerNibble+low]++
				}
			}
		}

		if extra > 1 && k%extra == 0 {
			continue
		}

		for j := 0; j < bpt; j++ {
			idx := (k/extra)*bpt + j
			if idx >= total {
				break
			}
			for half := 0; half < 2; half++ {
				needed++
				votes := tones[(2*j+half)*protocol.BinsPerNibble:]
				for b := 0; b < protocol.BinsPerNibble; b++ {
					if votes[b] > p.FramesPerTx/2 {
						bins[2*idx+half] = b
						detected++
						break
					}
				}
			}
		}
	}

	if needed == 0 || 4*detected < 3*needed {
		return nil, false
	}

	block := make([]byte, total)
	for i := range block {
		block[i] = byte(bins[2*i+1]<<4 | bins[2*i])
	}
	payload, err := d.codec.DecodeData(block, d.codec.FixedLength(), p)
	if err != nil {
		return nil, false
	}
	return payload, true
}

func peak8(row []uint8, from int) int {
	best := 0
	for b := 1; b < protocol.BinsPerNibble; b++ {
		if row[from+b] > row[from+best] {
			best = b
		}
	}
	return best
}
