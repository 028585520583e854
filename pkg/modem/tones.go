package modem

import (
	"math"

	"github.com/norasector/tonewire/pkg/protocol"
)

type GroupKind int

const (
	StartMarker GroupKind = iota
	Data
	EndMarker
)

func (k GroupKind) String() string {
	switch k {
	case StartMarker:
		return "start"
	case EndMarker:
		return "end"
	default:
		return "data"
	}
}

// ToneGroup is a run of identical frames. Offsets are FFT bins relative to
// the protocol's FreqStart.
type ToneGroup struct {
	Kind    GroupKind
	Offsets []int
	Frames  int
}

// startMarkerOffset is tone i of the start marker: the even bin of pair i
// for even i, the odd bin for odd i. The end marker swaps them.
func startMarkerOffset(i int) int {
	return 2*i + i%2
}

func endMarkerOffset(i int) int {
	return 2*i + 1 - i%2
}

func markerGroup(kind GroupKind) ToneGroup {
	g := ToneGroup{
		Kind:    kind,
		Offsets: make([]int, protocol.MarkerTones),
		Frames:  protocol.MarkerFrames,
	}
	for i := range g.Offsets {
		if kind == StartMarker {
			g.Offsets[i] = startMarkerOffset(i)
		} else {
			g.Offsets[i] = endMarkerOffset(i)
		}
	}
	return g
}

// DataSymbols is the number of data symbols needed for n encoded bytes.
func DataSymbols(n int, desc protocol.Descriptor) int {
	return desc.SymbolsPerByteGroup() * ((n + desc.BytesPerTx - 1) / desc.BytesPerTx)
}

// Plan lays out the tones carrying encoded. Fixed length frames have no
// markers.
func Plan(encoded []byte, desc protocol.Descriptor, fixed bool) []ToneGroup {
	byteAt := func(i int) byte {
		if i < len(encoded) {
			return encoded[i]
		}
		return 0
	}

	var ret []ToneGroup
	if !fixed {
		ret = append(ret, markerGroup(StartMarker))
	}

	extra := desc.SymbolsPerByteGroup()
	for g := 0; g < DataSymbols(len(encoded), desc); g++ {
		group := ToneGroup{Kind: Data, Frames: desc.FramesPerTx}
		first := (g / extra) * desc.BytesPerTx
		for j := 0; j < desc.BytesPerTx; j++ {
			b := byteAt(first + j)
			low, high := int(b&0x0f), int(b>>4)
			lowBase := 2 * j * protocol.BinsPerNibble
			switch {
			case !desc.MonoTone:
				group.Offsets = append(group.Offsets, lowBase+low, lowBase+protocol.BinsPerNibble+high)
			case g%2 == 0:
				group.Offsets = append(group.Offsets, lowBase+low)
			default:
				group.Offsets = append(group.Offsets, lowBase+high)
			}
		}
		ret = append(ret, group)
	}

	if !fixed {
		ret = append(ret, markerGroup(EndMarker))
	}
	return ret
}

// PlanFrames is the total frame count of a plan.
func PlanFrames(plan []ToneGroup) int {
	var n int
	for _, g := range plan {
		n += g.Frames
	}
	return n
}

// tonePhase spreads the starting phases of simultaneous tones to keep the
// peak amplitude of their sum down.
func tonePhase(offset int, desc protocol.Descriptor) float64 {
	return math.Pi * float64(offset/2) / float64(desc.DataBitsPerTx())
}
