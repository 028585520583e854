package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
	"github.com/norasector/tonewire/pkg/config"
	"github.com/norasector/tonewire/pkg/protocol"
	"github.com/norasector/tonewire/pkg/tonewire"
	"github.com/norasector/tonewire/pkg/util"
)

type command struct {
	name  string
	usage string
	run   func(ctx context.Context, env *environment, args []string) error
}

var commands = []command{
	{"protocols", "list the protocol catalog", runProtocols},
	{"encode", "encode a payload to a WAV file", runEncode},
	{"decode", "decode payloads from a WAV or raw float32 file", runDecode},
	{"plot", "render a tone plan or the spectrum of a recording", runPlot},
}

// environment is shared by every subcommand.
type environment struct {
	cfg      *config.Config
	writeAPI api.WriteAPI
}

func (e *environment) newInstance(params tonewire.Parameters) (*tonewire.Instance, error) {
	return tonewire.New(params,
		tonewire.WithLogger(log.Logger),
		tonewire.WithMetrics(e.writeAPI))
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: tonewire [flags] <command> [command flags]\n\ncommands:\n")
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-10s %s\n", c.name, c.usage)
	}
	fmt.Fprintf(os.Stderr, "\nflags:\n")
	flag.PrintDefaults()
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.InfoLevel)

	configFile := flag.String("config", "", "YAML or TOML config file")
	envFile := flag.String("env", ".env", "dotenv file with TONEWIRE_* overrides")
	verbose := flag.Bool("v", false, "debug logging")
	quiet := flag.Bool("q", false, "disable engine diagnostics")
	flag.Usage = usage
	flag.Parse()

	if *verbose {
		log.Logger = log.Logger.Level(zerolog.DebugLevel)
	}
	tonewire.SetLogging(!*quiet)

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatal().Err(err).Str("file", *envFile).Msg("error loading env file")
	}

	ctx := context.Background()
	cfg, err := config.Load(ctx, *configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("error loading config")
	}

	env := &environment{cfg: cfg, writeAPI: &util.MockWriteAPI{}}
	if cfg.InfluxDB.Enabled() {
		client := influxdb2.NewClient(cfg.InfluxDB.Host, cfg.InfluxDB.Token)
		defer client.Close()
		env.writeAPI = client.WriteAPI(cfg.InfluxDB.Organization, cfg.InfluxDB.Bucket)
		defer env.writeAPI.Flush()
		log.Info().Str("host", cfg.InfluxDB.Host).Str("bucket", cfg.InfluxDB.Bucket).Msg("writing metrics")
	}

	name := flag.Arg(0)
	for _, c := range commands {
		if c.name != name {
			continue
		}
		if err := c.run(ctx, env, flag.Args()[1:]); err != nil {
			if errors.Is(err, flag.ErrHelp) {
				os.Exit(2)
			}
			log.Error().Err(err).Str("command", name).Msg("command failed")
			os.Exit(1)
		}
		return
	}

	fmt.Fprintf(os.Stderr, "unknown command %q\n\n", name)
	usage()
	os.Exit(2)
}

func runProtocols(ctx context.Context, env *environment, args []string) error {
	flags := flag.NewFlagSet("protocols", flag.ContinueOnError)
	if err := flags.Parse(args); err != nil {
		return err
	}

	params, err := env.cfg.Parameters()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tBAND\tBYTES/S\tRX\tTX")
	for _, d := range protocol.All() {
		lo, hi := util.FrequencyRange(
			d.BaseFrequency(params.SampleRateInternal, params.SamplesPerFrame),
			float64(d.HighestBin())*protocol.ToneSpacing(params.SampleRateInternal, params.SamplesPerFrame))
		symbolSeconds := float64(d.SymbolSamples(params.SamplesPerFrame)) / params.SampleRateInternal
		fmt.Fprintf(w, "%d\t%s\t%s - %s\t%.1f\t%v\t%v\n",
			d.ID, d.Name,
			util.FormatHz(lo), util.FormatHz(hi),
			float64(d.BytesPerTx)/symbolSeconds,
			protocol.Rx().Enabled(d.ID), protocol.Tx().Enabled(d.ID))
	}
	return w.Flush()
}
