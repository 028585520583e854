package wav

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func sine(n int) []float32 {
	ret := make([]float32, n)
	for i := range ret {
		ret[i] = float32(0.5 * math.Sin(2*math.Pi*440*float64(i)/8000))
	}
	return ret
}

func TestEncodeDecode(t *testing.T) {
	samples := sine(800)

	for _, tc := range []struct {
		format Format
		tol    float32
		size   int
	}{
		{PCM16, 1.0 / math.MaxInt16, 44 + 2*800},
		{Float32, 0, 44 + 4*800},
	} {
		t.Run(tc.format.String(), func(t *testing.T) {
			var buf bytes.Buffer
			if err := Encode(&buf, &Audio{Samples: samples, SampleRate: 8000, Channels: 1, Format: tc.format}); err != nil {
				t.Fatal(err)
			}
			if buf.Len() != tc.size {
				t.Errorf("file is %d bytes, want %d", buf.Len(), tc.size)
			}

			got, err := Decode(&buf)
			if err != nil {
				t.Fatal(err)
			}
			if got.SampleRate != 8000 || got.Channels != 1 || got.Format != tc.format {
				t.Errorf("header = %d Hz, %d channels, %s", got.SampleRate, got.Channels, got.Format)
			}
			if diff := cmp.Diff(samples, got.Samples, cmpopts.EquateApprox(0, float64(tc.tol))); diff != "" {
				t.Errorf("samples (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeSkipsUnknownChunks(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, &Audio{Samples: []float32{0.25, -0.25}, SampleRate: 48000, Channels: 2, Format: Float32}); err != nil {
		t.Fatal(err)
	}
	raw := buf.Bytes()

	// insert a LIST chunk with an odd size between fmt and data
	var list bytes.Buffer
	list.Write([]byte("LIST"))
	binary.Write(&list, binary.LittleEndian, uint32(3))
	list.Write([]byte{1, 2, 3, 0})

	withList := append(append(append([]byte{}, raw[:36]...), list.Bytes()...), raw[36:]...)
	got, err := Decode(bytes.NewReader(withList))
	if err != nil {
		t.Fatal(err)
	}
	if got.Frames() != 1 {
		t.Errorf("%d frames, want 1", got.Frames())
	}
	if diff := cmp.Diff([]float32{0.25}, got.Mono()); diff != "" {
		t.Errorf("mono (-want +got):\n%s", diff)
	}
}

func TestDecodeRejects(t *testing.T) {
	for name, data := range map[string][]byte{
		"empty":    nil,
		"not riff": []byte("RIFX\x00\x00\x00\x00WAVE"),
		"no data":  []byte("RIFF\x04\x00\x00\x00WAVE"),
	} {
		if _, err := Decode(bytes.NewReader(data)); !errors.Is(err, ErrInvalid) {
			t.Errorf("%s: err = %v", name, err)
		}
	}

	var buf bytes.Buffer
	if err := Encode(&buf, &Audio{Samples: []float32{0}, SampleRate: 8000, Channels: 1, Format: PCM16}); err != nil {
		t.Fatal(err)
	}
	raw := buf.Bytes()
	binary.LittleEndian.PutUint16(raw[34:], 8)
	if _, err := Decode(bytes.NewReader(raw)); !errors.Is(err, ErrUnsupported) {
		t.Errorf("8-bit: err = %v", err)
	}
}

func TestPCM16Clipping(t *testing.T) {
	got := ToPCM16([]float32{-2, -1, 0, 0.5, 1, 2})
	want := []int16{-math.MaxInt16, -math.MaxInt16, 0, 16384, math.MaxInt16, math.MaxInt16}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": PCM16, "pcm16": PCM16, "f32": Float32, "float32": Float32} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("mp3"); !errors.Is(err, ErrUnsupported) {
		t.Errorf("mp3: err = %v", err)
	}
}
