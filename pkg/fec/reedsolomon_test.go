package fec

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"
)

func TestFieldTables(t *testing.T) {
	for a := 1; a < 256; a++ {
		if got := gfMul(byte(a), gfInv(byte(a))); got != 1 {
			t.Fatalf("%d * inv(%d) = %d", a, a, got)
		}
	}
	if gfPow(255) != 1 || gfPow(-1) != gfInv(2) {
		t.Error("gfPow does not wrap")
	}
}

func TestEncodeIsSystematic(t *testing.T) {
	c, err := New(4)
	if err != nil {
		t.Fatal(err)
	}
	msg := []byte("hello")
	out, err := c.Encode(msg)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != len(msg)+4 {
		t.Fatalf("codeword length %d", len(out))
	}
	if !bytes.Equal(out[:len(msg)], msg) {
		t.Errorf("message prefix changed: %q", out[:len(msg)])
	}
	if _, clean := c.syndromes(out); !clean {
		t.Error("fresh codeword has non-zero syndrome")
	}
}

func TestEncodeLengthLimits(t *testing.T) {
	c, _ := New(10)
	if _, err := c.Encode(nil); !errors.Is(err, ErrInvalidLength) {
		t.Errorf("empty message error = %v", err)
	}
	if _, err := c.Encode(make([]byte, 246)); !errors.Is(err, ErrInvalidLength) {
		t.Errorf("oversized message error = %v", err)
	}
	if _, err := c.Encode(make([]byte, 245)); err != nil {
		t.Errorf("max message error = %v", err)
	}
	if _, err := New(0); !errors.Is(err, ErrInvalidLength) {
		t.Errorf("New(0) error = %v", err)
	}
}

func corrupt(rng *rand.Rand, block []byte, n int) {
	for _, pos := range rng.Perm(len(block))[:n] {
		block[pos] ^= byte(1 + rng.Intn(255))
	}
}

func TestDecodeCorrectsUpToBound(t *testing.T) {
	tests := []struct {
		name   string
		msgLen int
		nsym   int
	}{
		{"length block", 1, 2},
		{"short", 3, 2},
		{"medium", 16, 6},
		{"long", 144, 56},
		{"full codeword", 143, 112},
	}
	rng := rand.New(rand.NewSource(1))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.nsym)
			if err != nil {
				t.Fatal(err)
			}
			for trial := 0; trial < 50; trial++ {
				msg := make([]byte, tt.msgLen)
				rng.Read(msg)
				enc, err := c.Encode(msg)
				if err != nil {
					t.Fatal(err)
				}
				nerr := rng.Intn(c.Correctable() + 1)
				corrupt(rng, enc, nerr)

				got, fixed, err := c.Decode(enc)
				if err != nil {
					t.Fatalf("trial %d: %d errors: %v", trial, nerr, err)
				}
				if !bytes.Equal(got, msg) {
					t.Fatalf("trial %d: decoded %x, want %x", trial, got, msg)
				}
				if fixed != nerr {
					t.Errorf("trial %d: reported %d fixes, want %d", trial, fixed, nerr)
				}
			}
		})
	}
}

func TestDecodeBeyondBoundNeverReturnsOriginal(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	c, _ := New(8)
	for trial := 0; trial < 200; trial++ {
		msg := make([]byte, 20)
		rng.Read(msg)
		enc, _ := c.Encode(msg)
		corrupt(rng, enc, c.Correctable()+1)

		got, _, err := c.Decode(enc)
		if err == nil && bytes.Equal(got, msg) {
			t.Fatalf("trial %d: corrected %d errors with %d parity", trial, c.Correctable()+1, c.ParitySymbols())
		}
		if err != nil && !errors.Is(err, ErrTooManyErrors) {
			t.Fatalf("trial %d: unexpected error %v", trial, err)
		}
	}
}
