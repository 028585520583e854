// Package wav reads and writes RIFF WAVE files holding 16-bit integer or
// 32-bit float PCM.
package wav

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

type Format uint16

const (
	PCM16   Format = 1
	Float32 Format = 3
)

func (f Format) String() string {
	switch f {
	case PCM16:
		return "pcm16"
	case Float32:
		return "float32"
	default:
		return fmt.Sprintf("format(%d)", uint16(f))
	}
}

func ParseFormat(s string) (Format, error) {
	switch s {
	case "pcm16", "s16", "":
		return PCM16, nil
	case "float32", "f32":
		return Float32, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupported, s)
}

func (f Format) bytesPerSample() int {
	if f == Float32 {
		return 4
	}
	return 2
}

var (
	ErrInvalid     = errors.New("invalid WAV data")
	ErrUnsupported = errors.New("unsupported WAV encoding")
)

type riffHeader struct {
	ChunkID   [4]byte // "RIFF"
	ChunkSize uint32
	Format    [4]byte // "WAVE"
}

type chunkHeader struct {
	ID   [4]byte
	Size uint32
}

type fmtChunk struct {
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
}

// Audio is interleaved samples in [-1, 1].
type Audio struct {
	Samples    []float32
	SampleRate int
	Channels   int
	Format     Format
}

// Frames is the number of samples per channel.
func (a *Audio) Frames() int {
	if a.Channels == 0 {
		return 0
	}
	return len(a.Samples) / a.Channels
}

// Mono returns the first channel.
func (a *Audio) Mono() []float32 {
	if a.Channels <= 1 {
		return a.Samples
	}
	ret := make([]float32, a.Frames())
	for i := range ret {
		ret[i] = a.Samples[i*a.Channels]
	}
	return ret
}

// Encode writes a complete WAV file. PCM16 samples are clipped to [-1, 1].
func Encode(w io.Writer, a *Audio) error {
	if a.SampleRate <= 0 || a.Channels <= 0 {
		return fmt.Errorf("%w: rate %d channels %d", ErrInvalid, a.SampleRate, a.Channels)
	}
	if a.Format != PCM16 && a.Format != Float32 {
		return fmt.Errorf("%w: %s", ErrUnsupported, a.Format)
	}

	bps := a.Format.bytesPerSample()
	dataSize := uint32(len(a.Samples) * bps)
	bw := bufio.NewWriter(w)

	if err := binary.Write(bw, binary.LittleEndian, riffHeader{
		ChunkID:   [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize: 4 + 8 + 16 + 8 + dataSize,
		Format:    [4]byte{'W', 'A', 'V', 'E'},
	}); err != nil {
		return fmt.Errorf("failed to write RIFF header: %w", err)
	}
	if err := binary.Write(bw, binary.LittleEndian, chunkHeader{ID: [4]byte{'f', 'm', 't', ' '}, Size: 16}); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, fmtChunk{
		AudioFormat:   uint16(a.Format),
		NumChannels:   uint16(a.Channels),
		SampleRate:    uint32(a.SampleRate),
		ByteRate:      uint32(a.SampleRate * a.Channels * bps),
		BlockAlign:    uint16(a.Channels * bps),
		BitsPerSample: uint16(8 * bps),
	}); err != nil {
		return fmt.Errorf("failed to write fmt chunk: %w", err)
	}
	if err := binary.Write(bw, binary.LittleEndian, chunkHeader{ID: [4]byte{'d', 'a', 't', 'a'}, Size: dataSize}); err != nil {
		return err
	}

	var err error
	if a.Format == Float32 {
		err = binary.Write(bw, binary.LittleEndian, a.Samples)
	} else {
		err = binary.Write(bw, binary.LittleEndian, ToPCM16(a.Samples))
	}
	if err != nil {
		return fmt.Errorf("failed to write audio data: %w", err)
	}
	return bw.Flush()
}

// Decode reads a WAV file, skipping chunks other than fmt and data.
func Decode(r io.Reader) (*Audio, error) {
	br := bufio.NewReader(r)

	var riff riffHeader
	if err := binary.Read(br, binary.LittleEndian, &riff); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if string(riff.ChunkID[:]) != "RIFF" || string(riff.Format[:]) != "WAVE" {
		return nil, fmt.Errorf("%w: missing RIFF/WAVE header", ErrInvalid)
	}

	var format *fmtChunk
	for {
		var ch chunkHeader
		if err := binary.Read(br, binary.LittleEndian, &ch); err != nil {
			return nil, fmt.Errorf("%w: no data chunk: %v", ErrInvalid, err)
		}

		switch string(ch.ID[:]) {
		case "fmt ":
			format = &fmtChunk{}
			if err := binary.Read(br, binary.LittleEndian, format); err != nil {
				return nil, fmt.Errorf("%w: fmt chunk: %v", ErrInvalid, err)
			}
			if _, err := br.Discard(int(ch.Size) - 16 + int(ch.Size%2)); err != nil {
				return nil, fmt.Errorf("%w: fmt chunk: %v", ErrInvalid, err)
			}
		case "data":
			if format == nil {
				return nil, fmt.Errorf("%w: data chunk before fmt chunk", ErrInvalid)
			}
			return decodeData(br, format, ch.Size)
		default:
			if _, err := br.Discard(int(ch.Size) + int(ch.Size%2)); err != nil {
				return nil, fmt.Errorf("%w: chunk %q: %v", ErrInvalid, ch.ID[:], err)
			}
		}
	}
}

func decodeData(r io.Reader, format *fmtChunk, size uint32) (*Audio, error) {
	f := Format(format.AudioFormat)
	switch {
	case f == PCM16 && format.BitsPerSample == 16:
	case f == Float32 && format.BitsPerSample == 32:
	default:
		return nil, fmt.Errorf("%w: format %d with %d bits", ErrUnsupported, format.AudioFormat, format.BitsPerSample)
	}
	if format.NumChannels == 0 || format.SampleRate == 0 {
		return nil, fmt.Errorf("%w: rate %d channels %d", ErrInvalid, format.SampleRate, format.NumChannels)
	}

	n := int(size) / f.bytesPerSample()
	a := &Audio{
		SampleRate: int(format.SampleRate),
		Channels:   int(format.NumChannels),
		Format:     f,
	}
	if f == Float32 {
		a.Samples = make([]float32, n)
		if err := binary.Read(r, binary.LittleEndian, a.Samples); err != nil {
			return nil, fmt.Errorf("%w: audio data: %v", ErrInvalid, err)
		}
		return a, nil
	}

	pcm := make([]int16, n)
	if err := binary.Read(r, binary.LittleEndian, pcm); err != nil {
		return nil, fmt.Errorf("%w: audio data: %v", ErrInvalid, err)
	}
	a.Samples = FromPCM16(pcm)
	return a, nil
}

func ToPCM16(samples []float32) []int16 {
	ret := make([]int16, len(samples))
	for i, v := range samples {
		ret[i] = int16(math.Round(math.Max(-1, math.Min(1, float64(v))) * math.MaxInt16))
	}
	return ret
}

func FromPCM16(samples []int16) []float32 {
	ret := make([]float32, len(samples))
	for i, v := range samples {
		ret[i] = float32(v) / math.MaxInt16
	}
	return ret
}
