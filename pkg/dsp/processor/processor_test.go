package processor

import (
	"errors"
	"math"
	"testing"

	"github.com/norasector/tonewire/pkg/dsp/filters/fir"
)

type gainBlock struct {
	gain   float32
	resets int
}

func (g *gainBlock) WorkBuffer(in, out []float32) int {
	for i, v := range in {
		out[i] = v * g.gain
	}
	return len(in)
}

func (g *gainBlock) PredictOutputSize(n int) int { return n }

func (g *gainBlock) Reset() { g.resets++ }

func TestProcessRunsBlocksInOrder(t *testing.T) {
	first := &gainBlock{gain: 2}
	second := &gainBlock{gain: -0.5}
	p := NewProcessor("test")
	p.AddBlock(NewDSPWorkerFF("double", 48000, 48000, first))
	p.AddBlock(NewDSPWorkerFF("negate_half", 48000, 48000, second))

	metrics := make(map[string]interface{})
	out, err := p.Process([]float32{1, 2, 3}, metrics)
	if err != nil {
		t.Fatal(err)
	}
	want := []float32{-1, -2, -3}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("out[%d] = %v, want %v", i, out[i], want[i])
		}
	}
	for _, key := range []string{"double_duration", "negate_half_duration"} {
		if _, ok := metrics[key]; !ok {
			t.Errorf("missing metric %s", key)
		}
	}

	p.Reset()
	if first.resets != 1 || second.resets != 1 {
		t.Errorf("Reset() reached %d and %d blocks", first.resets, second.resets)
	}
}

func TestProcessRejects(t *testing.T) {
	p := NewProcessor("test")
	p.AddBlock(NewDSPWorkerFF("a", 48000, 24000, &gainBlock{gain: 1}))
	p.AddBlock(NewDSPWorkerFF("b", 48000, 48000, &gainBlock{gain: 1}))

	if err := p.Initialize(); err == nil {
		t.Error("rate mismatch accepted")
	}
	if _, err := p.Process(nil, nil); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("empty input error = %v", err)
	}
}

func TestReceiveChain(t *testing.T) {
	empty, err := NewReceiveChain(48000, fir.Spec{}, false)
	if err != nil {
		t.Fatal(err)
	}
	if empty.Len() != 0 {
		t.Errorf("empty chain has %d blocks", empty.Len())
	}

	chain, err := NewReceiveChain(48000, fir.Spec{Kind: fir.HighPass, Low: 500, Window: fir.Hamming}, false)
	if err != nil {
		t.Fatal(err)
	}
	if chain.Len() != 1 {
		t.Fatalf("chain has %d blocks", chain.Len())
	}

	in := make([]float32, 8192)
	for i := range in {
		in[i] = 1
	}
	out, err := chain.Process(in, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != len(in) {
		t.Fatalf("chain changed length: %d", len(out))
	}
	if last := out[len(out)-1]; math.Abs(float64(last)) > 0.01 {
		t.Errorf("DC leaked through high-pass: %v", last)
	}

	if _, err := NewReceiveChain(48000, fir.Spec{Kind: fir.HighPass, Low: 40000}, false); err == nil {
		t.Error("accepted cutoff above Nyquist")
	}
}
