package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/norasector/tonewire/pkg/dsp/viz"
	"github.com/norasector/tonewire/pkg/protocol"
	"github.com/norasector/tonewire/pkg/util"
	"github.com/rs/zerolog/log"
)

func runPlot(ctx context.Context, env *environment, args []string) error {
	flags := flag.NewFlagSet("plot", flag.ContinueOnError)
	text := flags.String("text", "", "plot the tone plan of this payload")
	in := flags.String("in", "", "plot the spectrum of this recording")
	at := flags.Float64("at", 0, "offset into the recording in seconds")
	waveform := flags.Bool("waveform", false, "plot the waveform instead of the spectrum")
	protoName := flags.String("protocol", "", "transmit protocol for -text")
	out := flags.String("o", "plot.png", "output PNG")
	if err := flags.Parse(args); err != nil {
		return err
	}

	params, err := env.cfg.Parameters()
	if err != nil {
		return err
	}
	if *protoName != "" {
		if params.TxProtocol, err = protocol.Parse(*protoName); err != nil {
			return err
		}
	}

	var img *viz.ImageContainer
	switch {
	case *text != "":
		inst, err := env.newInstance(params)
		if err != nil {
			return err
		}
		defer inst.Close()

		groups, err := inst.Tones([]byte(*text))
		if err != nil {
			return err
		}
		desc, err := protocol.Lookup(params.TxProtocol)
		if err != nil {
			return err
		}
		img, err = viz.PlotPlan(groups, desc, params.SampleRateInternal, params.SamplesPerFrame,
			viz.WithTitle(fmt.Sprintf("%s: %q", desc.Name, *text)))
		if err != nil {
			return err
		}

	case *in != "":
		samples, sampleRate, err := readAudio(*in, params.SampleRateExternal)
		if err != nil {
			return err
		}
		size := params.SamplesPerFrame
		start := int(*at * sampleRate)
		if start < 0 || start+size > len(samples) {
			return fmt.Errorf("offset %.3fs is outside the %.3fs recording", *at, float64(len(samples))/sampleRate)
		}
		window := samples[start : start+size]
		desc, err := protocol.Lookup(params.TxProtocol)
		if err != nil {
			return err
		}

		if *waveform {
			p := viz.NewWaveformPlotter(*in, size)
			p.AppendFloat(window)
			img, err = p.Render()
		} else {
			p := viz.NewSpectrumPlotter(*in, size, sampleRate)
			lo, hi := util.FrequencyRange(
				desc.BaseFrequency(sampleRate, size),
				float64(desc.HighestBin())*protocol.ToneSpacing(sampleRate, size))
			p.MarkBand(desc.Name, lo, hi)

			// settle the running average on this one window
			p.AppendFloat(window)
			for i := 0; i < 50; i++ {
				p.PowerDB()
			}
			img, err = p.Render()
		}
		if err != nil {
			return err
		}

	default:
		flags.Usage()
		return flag.ErrHelp
	}

	if err := os.WriteFile(*out, img.Data(), 0o644); err != nil {
		return err
	}
	log.Info().Str("file", *out).Int("bytes", len(img.Data())).Msg("plot written")
	return nil
}
