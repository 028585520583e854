package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/norasector/tonewire/pkg/dsp/viz"
	"github.com/norasector/tonewire/pkg/modem"
	"github.com/norasector/tonewire/pkg/stream"
	"github.com/norasector/tonewire/pkg/tonewire"
	"github.com/norasector/tonewire/pkg/wav"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// readAudio loads a WAV file, or raw float32 samples at rate when the
// extension is not .wav. Only the first channel is kept.
func readAudio(path string, rate float64) ([]float32, float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	if !strings.EqualFold(filepath.Ext(path), ".wav") {
		samples, err := stream.ReadFloat32(f)
		return samples, rate, err
	}

	a, err := wav.Decode(f)
	if err != nil {
		return nil, 0, fmt.Errorf("error reading %s: %w", path, err)
	}
	return a.Mono(), float64(a.SampleRate), nil
}

func runDecode(ctx context.Context, env *environment, args []string) error {
	flags := flag.NewFlagSet("decode", flag.ContinueOnError)
	in := flags.String("in", "", "WAV or raw float32 recording")
	rate := flags.Float64("rate", 0, "sample rate of raw input, config value when zero")
	chunkSize := flags.Int("chunk", 1024, "samples per Decode call")
	realTime := flags.Bool("realtime", false, "pace input at the recording's sample rate")
	vizPort := flags.Int("viz", 0, "serve live spectrum and waveform plots on this port")
	printHex := flags.Bool("hex", false, "print payloads as hex")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		flags.Usage()
		return flag.ErrHelp
	}

	params, err := env.cfg.Parameters()
	if err != nil {
		return err
	}
	if *rate == 0 {
		*rate = params.SampleRateExternal
	}
	samples, sampleRate, err := readAudio(*in, *rate)
	if err != nil {
		return err
	}
	params.SampleRateExternal = sampleRate
	params.Mode &^= tonewire.ModeTx | tonewire.ModeTxOnlyTones
	params.Mode |= tonewire.ModeRx

	inst, err := env.newInstance(params)
	if err != nil {
		return err
	}
	defer inst.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	eg, ctx := errgroup.WithContext(ctx)

	var interval time.Duration
	if *realTime || *vizPort > 0 {
		interval = stream.RealTime(*chunkSize, sampleRate)
	}
	chunks := make(chan []float32)
	eg.Go(func() error {
		return stream.NewSliceSource(samples, *chunkSize, interval).Start(ctx, chunks)
	})

	var forwarder *stream.UDPForwarder
	if len(env.cfg.OutputDestinations) > 0 {
		forwarder = stream.NewUDPForwarder(env.cfg.OutputDestinations, env.writeAPI)
		eg.Go(func() error {
			return forwarder.Start(ctx)
		})
	}

	var spectrum *viz.SpectrumPlotter
	var waveform *viz.WaveformPlotter
	if *vizPort > 0 {
		spectrum = viz.NewSpectrumPlotter("spectrum", params.SamplesPerFrame, sampleRate)
		waveform = viz.NewWaveformPlotter("waveform", params.SamplesPerFrame)
		server := viz.NewServer(*vizPort, env.cfg.VizServer.UpdateInterval)
		server.Register("rx", spectrum)
		server.Register("rx", waveform)
		eg.Go(func() error {
			return server.Run(ctx)
		})
		log.Info().Int("port", *vizPort).Msg("viz server started")
	}

	emit := func(m modem.Message) error {
		if *printHex {
			fmt.Println(hex.EncodeToString(m.Payload))
		} else {
			fmt.Println(string(m.Payload))
		}
		log.Info().
			Str("protocol", m.Protocol.String()).
			Int("length", len(m.Payload)).
			Int64("frame", m.Frame).
			Msg("received")

		if forwarder == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case forwarder.Receive() <- &stream.Packet{Instance: inst.ID().String(), Message: m, Time: time.Now()}:
		}
		return nil
	}

	eg.Go(func() error {
		// services only live as long as the input
		defer cancel()
		if forwarder != nil {
			defer forwarder.Close()
		}

		for chunk := range chunks {
			if spectrum != nil {
				spectrum.AppendFloat(chunk)
				waveform.AppendFloat(chunk)
			}

			m, ok, err := inst.DecodeMessage(chunk)
			for ; ok && err == nil; m, ok = inst.NextMessage() {
				err = emit(m)
			}
			if err != nil {
				return err
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		m, ok, err := inst.FlushMessage()
		for ; ok && err == nil; m, ok = inst.NextMessage() {
			err = emit(m)
		}
		if err != nil {
			return err
		}

		stats := inst.Stats()
		log.Info().
			Int("decoded", stats.Decoded).
			Int("failed", stats.Failed).
			Int("locks", stats.Locks).
			Msg("input finished")
		return nil
	})

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
