package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ID identifies a catalog entry. IDs are dense and stable: they are part of
// the wire contract between a transmitter and a receiver.
type ID int

const (
	AudibleNormal ID = iota
	AudibleFast
	AudibleFastest
	UltrasoundNormal
	UltrasoundFast
	UltrasoundFastest
	DualToneNormal
	DualToneFast
	DualToneFastest
	MonoToneNormal
	MonoToneFast
	MonoToneFastest

	Count int = iota
)

var ErrUnknownProtocol = errors.New("unknown protocol")

type Direction int

const (
	DirectionBoth Direction = iota
	DirectionTx
	DirectionRx
)

const (
	// BinsPerNibble is the number of adjacent FFT bins used to encode one
	// 4-bit value.
	BinsPerNibble = 16
	// MarkerTones is the number of tones in a start or end marker.
	MarkerTones = 16
	// MarkerFrames is the duration of a start or end marker.
	MarkerFrames = 16
)

// Descriptor describes one FSK profile.
type Descriptor struct {
	ID          ID
	Name        string
	FreqStart   int // FFT bin of the lowest tone
	FramesPerTx int
	BytesPerTx  int
	MonoTone    bool
	ECCLevel    int
	Direction   Direction
}

// Tones returns the number of simultaneous tones in one data symbol.
func (d Descriptor) Tones() int {
	if d.MonoTone {
		return 1
	}
	return 2 * d.BytesPerTx
}

// SymbolsPerByteGroup is 2 for mono-tone profiles, which need one symbol per
// nibble, and 1 otherwise.
func (d Descriptor) SymbolsPerByteGroup() int {
	if d.MonoTone {
		return 2
	}
	return 1
}

// DataBitsPerTx is used to spread tone phases across a symbol.
func (d Descriptor) DataBitsPerTx() int {
	return 8 * d.BytesPerTx
}

// HighestBin is the top FFT bin the profile can occupy, markers included.
func (d Descriptor) HighestBin() int {
	top := d.FreqStart + 2*MarkerTones
	data := d.FreqStart + 2*d.BytesPerTx*BinsPerNibble
	if d.MonoTone {
		data = d.FreqStart + 2*(d.BytesPerTx-1)*BinsPerNibble + BinsPerNibble
	}
	if data > top {
		top = data
	}
	return top
}

// Fits reports whether every tone of the profile lies below Nyquist for the
// given frame size.
func (d Descriptor) Fits(samplesPerFrame int) bool {
	return d.HighestBin() < samplesPerFrame/2
}

// SymbolSamples is the number of samples one data symbol lasts.
func (d Descriptor) SymbolSamples(samplesPerFrame int) int {
	return d.FramesPerTx * samplesPerFrame
}

// BaseFrequency returns the frequency in Hz of FreqStart.
func (d Descriptor) BaseFrequency(sampleRate float64, samplesPerFrame int) float64 {
	return float64(d.FreqStart) * ToneSpacing(sampleRate, samplesPerFrame)
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%s (%d)", d.Name, d.ID)
}

// ToneSpacing is the frequency distance between two adjacent bins.
func ToneSpacing(sampleRate float64, samplesPerFrame int) float64 {
	return sampleRate / float64(samplesPerFrame)
}

var catalog = [Count]Descriptor{
	{ID: AudibleNormal, Name: "Normal", FreqStart: 40, FramesPerTx: 9, BytesPerTx: 3, ECCLevel: 1},
	{ID: AudibleFast, Name: "Fast", FreqStart: 40, FramesPerTx: 6, BytesPerTx: 3, ECCLevel: 1},
	{ID: AudibleFastest, Name: "Fastest", FreqStart: 40, FramesPerTx: 3, BytesPerTx: 3, ECCLevel: 1},
	{ID: UltrasoundNormal, Name: "[U] Normal", FreqStart: 320, FramesPerTx: 9, BytesPerTx: 3, ECCLevel: 1},
	{ID: UltrasoundFast, Name: "[U] Fast", FreqStart: 320, FramesPerTx: 6, BytesPerTx: 3, ECCLevel: 1},
	{ID: UltrasoundFastest, Name: "[U] Fastest", FreqStart: 320, FramesPerTx: 3, BytesPerTx: 3, ECCLevel: 1},
	{ID: DualToneNormal, Name: "[DT] Normal", FreqStart: 24, FramesPerTx: 9, BytesPerTx: 1, ECCLevel: 1},
	{ID: DualToneFast, Name: "[DT] Fast", FreqStart: 24, FramesPerTx: 6, BytesPerTx: 1, ECCLevel: 1},
	{ID: DualToneFastest, Name: "[DT] Fastest", FreqStart: 24, FramesPerTx: 3, BytesPerTx: 1, ECCLevel: 1},
	{ID: MonoToneNormal, Name: "[MT] Normal", FreqStart: 24, FramesPerTx: 9, BytesPerTx: 1, MonoTone: true, ECCLevel: 1},
	{ID: MonoToneFast, Name: "[MT] Fast", FreqStart: 24, FramesPerTx: 6, BytesPerTx: 1, MonoTone: true, ECCLevel: 1},
	{ID: MonoToneFastest, Name: "[MT] Fastest", FreqStart: 24, FramesPerTx: 3, BytesPerTx: 1, MonoTone: true, ECCLevel: 1},
}

// Lookup returns the descriptor registered under id.
func Lookup(id ID) (Descriptor, error) {
	if !id.Valid() {
		return Descriptor{}, fmt.Errorf("%w: %d", ErrUnknownProtocol, id)
	}
	return catalog[id], nil
}

// All returns a copy of the catalog ordered by ID.
func All() []Descriptor {
	ret := make([]Descriptor, Count)
	copy(ret, catalog[:])
	return ret
}

// DefaultTransmit is the protocol used when a caller does not pick one.
func DefaultTransmit() ID {
	return AudibleFast
}

func (id ID) Valid() bool {
	return id >= 0 && int(id) < Count
}

func (id ID) String() string {
	if !id.Valid() {
		return fmt.Sprintf("protocol(%d)", int(id))
	}
	return catalog[id].Name
}

// Parse accepts a numeric id or a catalog name. Names match ignoring case and
// punctuation, so "[U] Fast", "u-fast" and "ufast" are the same protocol.
func Parse(s string) (ID, error) {
	if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
		id := ID(n)
		if !id.Valid() {
			return 0, fmt.Errorf("%w: %d", ErrUnknownProtocol, n)
		}
		return id, nil
	}
	key := nameKey(s)
	for _, d := range catalog {
		if nameKey(d.Name) == key {
			return d.ID, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownProtocol, s)
}

func nameKey(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if r >= 'a' && r <= 'z' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
