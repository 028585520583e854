package modem

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/norasector/tonewire/pkg/dsp/filters/fir"
	"github.com/norasector/tonewire/pkg/dsp/processor"
	"github.com/norasector/tonewire/pkg/frame"
	"github.com/norasector/tonewire/pkg/protocol"
)

const testFrame = 1024

// transmission modulates payload and pads it with silence that does not
// align with frame boundaries.
func transmission(t *testing.T, payload []byte, id protocol.ID, codec *frame.Codec, volume int) []float32 {
	t.Helper()
	desc := mustLookup(t, id)
	encoded, err := codec.Encode(payload, desc)
	if err != nil {
		t.Fatal(err)
	}
	audio, err := NewModulator(testFrame).Modulate(encoded, desc, volume, codec.FixedLength() > 0)
	if err != nil {
		t.Fatal(err)
	}

	out := make([]float32, 2*testFrame+300, 2*testFrame+300+len(audio)+40*testFrame)
	out = append(out, audio...)
	return append(out, make([]float32, 40*testFrame)...)
}

func newTestDemodulator(t *testing.T, cfg Config) *Demodulator {
	t.Helper()
	cfg.SamplesPerFrame = testFrame
	if cfg.Protocols == nil {
		cfg.Protocols = protocol.NewRegistry()
	}
	d, err := NewDemodulator(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func drain(d *Demodulator) []Message {
	var ret []Message
	for {
		m, ok := d.Next()
		if !ok {
			return ret
		}
		ret = append(ret, m)
	}
}

func writeChunked(t *testing.T, d *Demodulator, samples []float32, chunk int) {
	t.Helper()
	for len(samples) > 0 {
		n := chunk
		if n > len(samples) {
			n = len(samples)
		}
		if err := d.Write(samples[:n]); err != nil {
			t.Fatal(err)
		}
		samples = samples[n:]
	}
}

func TestDemodulateVariable(t *testing.T) {
	codec, err := frame.NewCodec()
	if err != nil {
		t.Fatal(err)
	}
	payload := []byte("hello python")

	for _, id := range []protocol.ID{
		protocol.AudibleNormal,
		protocol.AudibleFast,
		protocol.AudibleFastest,
		protocol.UltrasoundFast,
		protocol.DualToneFast,
	} {
		t.Run(id.String(), func(t *testing.T) {
			d := newTestDemodulator(t, Config{Codec: codec})
			writeChunked(t, d, transmission(t, payload, id, codec, 20), 4096)

			got := drain(d)
			if len(got) != 1 {
				t.Fatalf("decoded %d messages, want 1", len(got))
			}
			if got[0].Protocol != id {
				t.Errorf("protocol = %v, want %v", got[0].Protocol, id)
			}
			if diff := cmp.Diff(payload, got[0].Payload); diff != "" {
				t.Errorf("payload (-want +got):\n%s", diff)
			}

			stats := d.Stats()
			if stats.Decoded != 1 || stats.ByProtocol[id] != 1 || stats.Locks != 1 {
				t.Errorf("stats = %+v", stats)
			}
			if d.State() == Locked {
				t.Error("still locked after the frame ended")
			}
		})
	}
}

func TestDemodulateChunking(t *testing.T) {
	codec, err := frame.NewCodec()
	if err != nil {
		t.Fatal(err)
	}
	audio := transmission(t, []byte("chunk boundaries"), protocol.AudibleFastest, codec, 30)

	var results [][]Message
	for _, chunk := range []int{64, 1000, 4096, len(audio)} {
		d := newTestDemodulator(t, Config{Codec: codec})
		writeChunked(t, d, audio, chunk)
		results = append(results, drain(d))
	}
	if len(results[0]) != 1 {
		t.Fatalf("decoded %d messages, want 1", len(results[0]))
	}
	for i := 1; i < len(results); i++ {
		if diff := cmp.Diff(results[0], results[i]); diff != "" {
			t.Errorf("chunking changed the result (-64 +other):\n%s", diff)
		}
	}
}

func TestDemodulateDisabledProtocol(t *testing.T) {
	codec, err := frame.NewCodec()
	if err != nil {
		t.Fatal(err)
	}
	audio := transmission(t, []byte("hello python"), protocol.AudibleFast, codec, 20)

	disabled := protocol.NewRegistry()
	if err := disabled.SetEnabled(protocol.AudibleFast, false); err != nil {
		t.Fatal(err)
	}
	d := newTestDemodulator(t, Config{Codec: codec, Protocols: disabled})
	writeChunked(t, d, audio, 4096)
	if got := drain(d); len(got) != 0 {
		t.Errorf("decoded %d messages from a disabled protocol", len(got))
	}

	global := protocol.NewRegistry()
	local, err := protocol.NewRegistryOf(protocol.AudibleFast)
	if err != nil {
		t.Fatal(err)
	}
	d = newTestDemodulator(t, Config{Codec: codec, Protocols: protocol.Both{global, local}})
	writeChunked(t, d, audio, 4096)
	if got := drain(d); len(got) != 1 {
		t.Errorf("decoded %d messages with the protocol enabled in both sets", len(got))
	}

	if err := global.SetEnabled(protocol.AudibleFast, false); err != nil {
		t.Fatal(err)
	}
	d = newTestDemodulator(t, Config{Codec: codec, Protocols: protocol.Both{global, local}})
	writeChunked(t, d, audio, 4096)
	if got := drain(d); len(got) != 0 {
		t.Errorf("decoded %d messages with the protocol disabled globally", len(got))
	}
}

func TestDemodulateToggleWhileLocked(t *testing.T) {
	codec, err := frame.NewCodec()
	if err != nil {
		t.Fatal(err)
	}
	audio := transmission(t, []byte("hello python"), protocol.AudibleFast, codec, 20)

	reg := protocol.NewRegistry()
	d := newTestDemodulator(t, Config{Codec: codec, Protocols: reg})
	disabled := false
	for off := 0; off+testFrame <= len(audio); off += testFrame {
		if err := d.Write(audio[off : off+testFrame]); err != nil {
			t.Fatal(err)
		}
		if !disabled && d.State() == Locked {
			if err := reg.SetEnabled(protocol.AudibleFast, false); err != nil {
				t.Fatal(err)
			}
			disabled = true
		}
	}
	if !disabled {
		t.Fatal("never locked")
	}
	got := drain(d)
	if len(got) != 1 || string(got[0].Payload) != "hello python" {
		t.Fatalf("decoded %v, want the frame in progress", got)
	}

	writeChunked(t, d, audio, testFrame)
	if got := drain(d); len(got) != 0 {
		t.Errorf("decoded %d messages after the protocol was disabled", len(got))
	}
	if d.Stats().Decoded != 1 {
		t.Errorf("stats = %+v", d.Stats())
	}
}

func TestDemodulateBackToBack(t *testing.T) {
	codec, err := frame.NewCodec()
	if err != nil {
		t.Fatal(err)
	}

	d := newTestDemodulator(t, Config{Codec: codec})
	writeChunked(t, d, transmission(t, []byte("first"), protocol.AudibleFastest, codec, 20), 2048)
	writeChunked(t, d, transmission(t, []byte("second"), protocol.AudibleNormal, codec, 20), 2048)

	got := drain(d)
	if len(got) != 2 {
		t.Fatalf("decoded %d messages, want 2", len(got))
	}
	if string(got[0].Payload) != "first" || string(got[1].Payload) != "second" {
		t.Errorf("payloads = %q, %q", got[0].Payload, got[1].Payload)
	}
	if got[0].Frame >= got[1].Frame {
		t.Errorf("frames out of order: %d, %d", got[0].Frame, got[1].Frame)
	}
}

func TestDemodulateDSS(t *testing.T) {
	codec, err := frame.NewCodec(frame.WithDSS())
	if err != nil {
		t.Fatal(err)
	}
	payload := []byte{0, 0, 0, 0, 0, 0, 0, 0}

	d := newTestDemodulator(t, Config{Codec: codec})
	writeChunked(t, d, transmission(t, payload, protocol.AudibleFast, codec, 20), 4096)
	got := drain(d)
	if len(got) != 1 {
		t.Fatalf("decoded %d messages, want 1", len(got))
	}
	if diff := cmp.Diff(payload, got[0].Payload); diff != "" {
		t.Errorf("payload (-want +got):\n%s", diff)
	}
}

func TestDemodulateFiltered(t *testing.T) {
	codec, err := frame.NewCodec()
	if err != nil {
		t.Fatal(err)
	}
	chain, err := processor.NewReceiveChain(48000, fir.Spec{Kind: fir.HighPass, Low: 1000, Window: fir.Hamming}, false)
	if err != nil {
		t.Fatal(err)
	}

	d := newTestDemodulator(t, Config{Codec: codec, Conditioner: chain})
	writeChunked(t, d, transmission(t, []byte("filtered"), protocol.AudibleFast, codec, 20), 4096)
	got := drain(d)
	if len(got) != 1 || string(got[0].Payload) != "filtered" {
		t.Fatalf("decoded %v", got)
	}
	if _, ok := d.Timings()["highpass_duration"]; !ok {
		t.Error("no timing recorded for the filter")
	}
}

func TestDemodulateNoise(t *testing.T) {
	d := newTestDemodulator(t, Config{})
	rng := rand.New(rand.NewSource(1))
	noise := make([]float32, 300*testFrame)
	for i := range noise {
		noise[i] = float32(rng.NormFloat64() * 0.05)
	}
	writeChunked(t, d, noise, 4096)
	if got := drain(d); len(got) != 0 {
		t.Errorf("decoded %d messages from noise", len(got))
	}
	if d.Stats().FramesProcessed != 300 {
		t.Errorf("processed %d frames", d.Stats().FramesProcessed)
	}
}

func TestDemodulateFixed(t *testing.T) {
	codec, err := frame.NewCodec(frame.WithFixedLength(12))
	if err != nil {
		t.Fatal(err)
	}
	payload := []byte("hello python")

	for _, id := range []protocol.ID{protocol.AudibleFast, protocol.DualToneFastest, protocol.MonoToneNormal} {
		t.Run(id.String(), func(t *testing.T) {
			d := newTestDemodulator(t, Config{Codec: codec})
			writeChunked(t, d, transmission(t, payload, id, codec, 20), 4096)

			got := drain(d)
			if len(got) != 1 {
				t.Fatalf("decoded %d messages, want 1", len(got))
			}
			if got[0].Protocol != id {
				t.Errorf("protocol = %v, want %v", got[0].Protocol, id)
			}
			if diff := cmp.Diff(payload, got[0].Payload); diff != "" {
				t.Errorf("payload (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDemodulateFixedPadding(t *testing.T) {
	codec, err := frame.NewCodec(frame.WithFixedLength(8))
	if err != nil {
		t.Fatal(err)
	}

	d := newTestDemodulator(t, Config{Codec: codec})
	writeChunked(t, d, transmission(t, []byte("hi"), protocol.AudibleFastest, codec, 20), 4096)
	got := drain(d)
	if len(got) != 1 {
		t.Fatalf("decoded %d messages, want 1", len(got))
	}
	want := []byte{'h', 'i', 0, 0, 0, 0, 0, 0}
	if diff := cmp.Diff(want, got[0].Payload); diff != "" {
		t.Errorf("payload (-want +got):\n%s", diff)
	}
}

func TestDemodulatorStates(t *testing.T) {
	codec, err := frame.NewCodec()
	if err != nil {
		t.Fatal(err)
	}
	d := newTestDemodulator(t, Config{Codec: codec})
	if d.State() != Idle {
		t.Fatalf("initial state %v", d.State())
	}

	audio := transmission(t, []byte("state"), protocol.AudibleFastest, codec, 20)
	seen := make(map[State]bool)
	for len(audio) > 0 {
		if err := d.Write(audio[:testFrame]); err != nil {
			t.Fatal(err)
		}
		seen[d.State()] = true
		audio = audio[testFrame:]
		if len(audio) < testFrame {
			break
		}
	}
	if !seen[Seeking] || !seen[Locked] {
		t.Errorf("states seen: %v", seen)
	}
	if d.Queued() != 1 {
		t.Errorf("queued %d messages", d.Queued())
	}

	d.Reset()
	if d.Queued() != 0 || d.State() != Idle {
		t.Errorf("after reset: queued %d, state %v", d.Queued(), d.State())
	}
}

type passthrough struct{}

func (passthrough) WorkBuffer(in, out []float32) int { return copy(out, in) }

func (passthrough) PredictOutputSize(n int) int { return n }

func TestDemodulatorWriteErrorConsumesFrame(t *testing.T) {
	chain := processor.NewProcessor("broken")
	chain.AddBlock(processor.NewDSPWorkerFF("a", 48000, 48000, passthrough{}))
	chain.AddBlock(processor.NewDSPWorkerFF("b", 44100, 44100, passthrough{}))

	d := newTestDemodulator(t, Config{Conditioner: chain})
	if err := d.Write(make([]float32, 3*testFrame+100)); err == nil {
		t.Fatal("rate mismatch not reported")
	}
	if len(d.pending) != 2*testFrame+100 {
		t.Errorf("%d samples pending after the error, want %d", len(d.pending), 2*testFrame+100)
	}
	if d.Stats().FramesProcessed != 0 {
		t.Errorf("processed %d frames", d.Stats().FramesProcessed)
	}
}

func TestNewDemodulatorRejectsFrameSize(t *testing.T) {
	for _, spf := range []int{0, -16, 1000} {
		if _, err := NewDemodulator(Config{SamplesPerFrame: spf}); err == nil {
			t.Errorf("accepted %d samples per frame", spf)
		}
	}
}

func TestStateString(t *testing.T) {
	for state, want := range map[State]string{
		Idle:          "idle",
		Seeking:       "seeking",
		Locked:        "locked",
		FrameComplete: "frame_complete",
		State(9):      "state(9)",
	} {
		if got := state.String(); got != want {
			t.Errorf("%d: %q, want %q", int(state), got, want)
		}
	}
}
