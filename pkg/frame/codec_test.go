package frame

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"

	"github.com/norasector/tonewire/pkg/fec"
	"github.com/norasector/tonewire/pkg/protocol"
)

func mustCodec(t *testing.T, opts ...CodecOption) *Codec {
	t.Helper()
	c, err := NewCodec(opts...)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestECCBytes(t *testing.T) {
	tests := []struct {
		n, level, want int
	}{
		{1, 1, 2},
		{3, 1, 2},
		{4, 1, 4},
		{12, 1, 4},
		{16, 1, 6},
		{144, 1, 56},
		{144, 2, 112},
	}
	for _, tt := range tests {
		if got := ECCBytes(tt.n, tt.level); got != tt.want {
			t.Errorf("ECCBytes(%d, %d) = %d, want %d", tt.n, tt.level, got, tt.want)
		}
	}
}

func TestMaxPayload(t *testing.T) {
	c := mustCodec(t)
	for _, desc := range protocol.All() {
		limit := c.MaxPayload(desc)
		if limit > MaxVariableLength {
			t.Errorf("%s: max payload %d", desc, limit)
		}
		if size := c.DataBlockSize(limit, desc); size > fec.MaxCodewordLength {
			t.Errorf("%s: data block %d does not fit one codeword", desc, size)
		}
	}

	normal, _ := protocol.Lookup(protocol.AudibleNormal)
	if got := c.MaxPayload(normal); got != MaxVariableLength {
		t.Errorf("MaxPayload(normal) = %d", got)
	}
}

func TestRoundTripAllProtocols(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	codecs := map[string]*Codec{
		"variable":     mustCodec(t),
		"variable dss": mustCodec(t, WithDSS()),
		"fixed":        mustCodec(t, WithFixedLength(16)),
		"fixed dss":    mustCodec(t, WithFixedLength(64), WithDSS()),
	}

	for name, c := range codecs {
		for _, desc := range protocol.All() {
			for _, n := range []int{1, 5, 16, c.MaxPayload(desc)} {
				if c.FixedLength() > 0 && n > c.FixedLength() {
					continue
				}
				payload := make([]byte, n)
				rng.Read(payload)

				enc, err := c.Encode(payload, desc)
				if err != nil {
					t.Fatalf("%s %s n=%d: %v", name, desc, n, err)
				}
				if len(enc) != c.EncodedSize(n, desc) {
					t.Errorf("%s %s n=%d: encoded %d bytes, EncodedSize %d", name, desc, n, len(enc), c.EncodedSize(n, desc))
				}

				got, err := c.Decode(enc, desc)
				if err != nil {
					t.Fatalf("%s %s n=%d: decode: %v", name, desc, n, err)
				}

				want := payload
				if c.FixedLength() > 0 {
					want = make([]byte, c.FixedLength())
					copy(want, payload)
				}
				if !bytes.Equal(got, want) {
					t.Errorf("%s %s n=%d: got %x want %x", name, desc, n, got, want)
				}
			}
		}
	}
}

func TestDSSChangesWireBytes(t *testing.T) {
	desc, _ := protocol.Lookup(protocol.AudibleFast)
	payload := []byte("aaaaaaaaaaaaaaaa")

	plain, _ := mustCodec(t).Encode(payload, desc)
	scrambled, _ := mustCodec(t, WithDSS()).Encode(payload, desc)

	if bytes.Equal(plain, scrambled) {
		t.Error("DSS did not change the encoded frame")
	}
	if !bytes.Equal(plain[:LengthBlockSize], scrambled[:LengthBlockSize]) {
		t.Error("DSS touched the length block")
	}
}

func TestEncodeErrors(t *testing.T) {
	c := mustCodec(t)
	desc, _ := protocol.Lookup(protocol.AudibleFast)

	if _, err := c.Encode(nil, desc); !errors.Is(err, ErrEmptyPayload) {
		t.Errorf("empty payload error = %v", err)
	}
	if _, err := c.Encode(make([]byte, MaxVariableLength+1), desc); !errors.Is(err, ErrPayloadTooLarge) {
		t.Errorf("oversized payload error = %v", err)
	}

	fixed := mustCodec(t, WithFixedLength(8))
	if _, err := fixed.Encode(make([]byte, 9), desc); !errors.Is(err, ErrPayloadTooLarge) {
		t.Errorf("fixed oversized payload error = %v", err)
	}

	if _, err := NewCodec(WithFixedLength(MaxFixedLength + 1)); err == nil {
		t.Error("accepted fixed length above the maximum")
	}
}

func lengthBlock(t *testing.T, n byte) []byte {
	t.Helper()
	rs, err := fec.New(LengthBlockSize - 1)
	if err != nil {
		t.Fatal(err)
	}
	b, err := rs.Encode([]byte{n})
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestDecodeMalformed(t *testing.T) {
	c := mustCodec(t)
	desc, _ := protocol.Lookup(protocol.AudibleFast)

	tests := []struct {
		name    string
		encoded []byte
	}{
		{"too short", []byte{1, 2}},
		{"zero length", append(lengthBlock(t, 0), make([]byte, 20)...)},
		{"length over maximum", append(lengthBlock(t, 200), make([]byte, 20)...)},
		{"truncated data", append(lengthBlock(t, 40), make([]byte, 10)...)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := c.Decode(tt.encoded, desc); !errors.Is(err, ErrMalformedFrame) {
				t.Errorf("Decode() error = %v, want %v", err, ErrMalformedFrame)
			}
		})
	}
}

func TestDecodeCorrectsWithinBound(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	c := mustCodec(t)

	for _, desc := range protocol.All() {
		for trial := 0; trial < 20; trial++ {
			payload := make([]byte, 1+rng.Intn(c.MaxPayload(desc)))
			rng.Read(payload)
			enc, err := c.Encode(payload, desc)
			if err != nil {
				t.Fatal(err)
			}

			bound := c.CorrectableErrors(len(payload), desc)
			header, data := enc[:LengthBlockSize], enc[LengthBlockSize:]
			for _, pos := range rng.Perm(len(header))[:rng.Intn(bound.LengthBlock+1)] {
				header[pos] ^= byte(1 + rng.Intn(255))
			}
			for _, pos := range rng.Perm(len(data))[:rng.Intn(bound.DataBlock+1)] {
				data[pos] ^= byte(1 + rng.Intn(255))
			}

			got, err := c.Decode(enc, desc)
			if err != nil {
				t.Fatalf("%s trial %d: %v", desc, trial, err)
			}
			if !bytes.Equal(got, payload) {
				t.Fatalf("%s trial %d: got %x want %x", desc, trial, got, payload)
			}
		}
	}
}

func TestDecodeUncorrectable(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	c := mustCodec(t)
	desc, _ := protocol.Lookup(protocol.AudibleNormal)
	payload := []byte("hello python")

	for trial := 0; trial < 50; trial++ {
		enc, _ := c.Encode(payload, desc)
		data := enc[LengthBlockSize:]
		bound := c.CorrectableErrors(len(payload), desc)
		for _, pos := range rng.Perm(len(data))[:bound.DataBlock+1] {
			data[pos] ^= byte(1 + rng.Intn(255))
		}

		if _, err := c.Decode(enc, desc); !errors.Is(err, ErrUncorrectableFrame) {
			t.Fatalf("trial %d: error = %v, want %v", trial, err, ErrUncorrectableFrame)
		}
	}
}
