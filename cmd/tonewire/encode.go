package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/norasector/tonewire/pkg/protocol"
	"github.com/norasector/tonewire/pkg/stream"
	"github.com/norasector/tonewire/pkg/wav"
	"github.com/rs/zerolog/log"
)

// readPayload returns text when set, otherwise the whole of stdin.
func readPayload(text string) ([]byte, error) {
	if text != "" {
		return []byte(text), nil
	}
	return io.ReadAll(os.Stdin)
}

func runEncode(ctx context.Context, env *environment, args []string) error {
	flags := flag.NewFlagSet("encode", flag.ContinueOnError)
	text := flags.String("text", "", "payload; read from stdin when empty")
	out := flags.String("o", "out.wav", "output file, - for stdout")
	protoName := flags.String("protocol", "", "transmit protocol, by id or name")
	volume := flags.Int("volume", -1, "volume 0-100, config value when negative")
	raw := flags.Bool("raw", false, "write raw little-endian float32 instead of WAV")
	flags.StringVar(text, "t", "", "shorthand for -text")
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
	if *volume >= 0 {
		params.Volume = *volume
	}
	format, err := env.cfg.Format()
	if err != nil {
		return err
	}

	inst, err := env.newInstance(params)
	if err != nil {
		return err
	}
	defer inst.Close()

	payload, err := readPayload(strings.TrimSuffix(*text, "\n"))
	if err != nil {
		return fmt.Errorf("error reading payload: %w", err)
	}
	audio, err := inst.Encode(payload)
	if err != nil {
		return err
	}

	w := io.Writer(os.Stdout)
	if *out != "-" {
		f, err := os.Create(*out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	if *raw {
		err = stream.WriteFloat32(w, audio)
	} else {
		err = wav.Encode(w, &wav.Audio{
			Samples:    audio,
			SampleRate: int(params.SampleRateExternal),
			Channels:   params.OutputChannels,
			Format:     format,
		})
	}
	if err != nil {
		return fmt.Errorf("error writing %s: %w", *out, err)
	}

	log.Info().
		Str("protocol", params.TxProtocol.String()).
		Int("payload_length", len(payload)).
		Int("samples", len(audio)).
		Str("file", *out).
		Msg("encoded")
	return nil
}
