// Package config loads tonewire settings from a YAML or TOML file and lets
// TONEWIRE_* environment variables override them.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/norasector/tonewire/pkg/dsp/filters/fir"
	"github.com/norasector/tonewire/pkg/protocol"
	"github.com/norasector/tonewire/pkg/stream"
	"github.com/norasector/tonewire/pkg/tonewire"
	"github.com/norasector/tonewire/pkg/wav"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v2"
)

var ErrUnknownFormat = errors.New("unknown config file format")

type Filter struct {
	Kind       string  `yaml:"kind" toml:"kind" env:"TONEWIRE_RX_FILTER, overwrite"`
	Low        float64 `yaml:"low" toml:"low" env:"TONEWIRE_RX_FILTER_LOW, overwrite"`
	High       float64 `yaml:"high" toml:"high" env:"TONEWIRE_RX_FILTER_HIGH, overwrite"`
	Transition float64 `yaml:"transition" toml:"transition" env:"TONEWIRE_RX_FILTER_TRANSITION, overwrite"`
}

type VizServer struct {
	Port           int           `yaml:"port" toml:"port" env:"TONEWIRE_VIZ_PORT, overwrite"`
	UpdateInterval time.Duration `yaml:"update_interval" toml:"update_interval" env:"TONEWIRE_VIZ_UPDATE_INTERVAL, overwrite"`
}

type InfluxDB struct {
	Host         string `yaml:"host" toml:"host" env:"TONEWIRE_INFLUXDB_HOST, overwrite"`
	Token        string `yaml:"token" toml:"token" env:"TONEWIRE_INFLUXDB_TOKEN, overwrite"`
	Organization string `yaml:"organization" toml:"organization" env:"TONEWIRE_INFLUXDB_ORG, overwrite"`
	Bucket       string `yaml:"bucket" toml:"bucket" env:"TONEWIRE_INFLUXDB_BUCKET, overwrite"`
}

// Enabled reports whether metrics should be written.
func (i InfluxDB) Enabled() bool {
	return i.Host != ""
}

type Config struct {
	SampleRate         float64  `yaml:"sample_rate" toml:"sample_rate" env:"TONEWIRE_SAMPLE_RATE, overwrite"`
	ExternalSampleRate float64  `yaml:"external_sample_rate" toml:"external_sample_rate" env:"TONEWIRE_EXTERNAL_SAMPLE_RATE, overwrite"`
	SamplesPerFrame    int      `yaml:"samples_per_frame" toml:"samples_per_frame" env:"TONEWIRE_SAMPLES_PER_FRAME, overwrite"`
	TxProtocol         string   `yaml:"tx_protocol" toml:"tx_protocol" env:"TONEWIRE_TX_PROTOCOL, overwrite"`
	RxProtocols        []string `yaml:"rx_protocols,flow" toml:"rx_protocols" env:"TONEWIRE_RX_PROTOCOLS, overwrite"`
	PayloadLength      int      `yaml:"payload_length" toml:"payload_length" env:"TONEWIRE_PAYLOAD_LENGTH, overwrite"`
	Volume             int      `yaml:"volume" toml:"volume" env:"TONEWIRE_VOLUME, overwrite"`
	DSS                bool     `yaml:"dss" toml:"dss" env:"TONEWIRE_DSS, overwrite"`
	MarkerThreshold    float64  `yaml:"marker_threshold" toml:"marker_threshold" env:"TONEWIRE_MARKER_THRESHOLD, overwrite"`
	MarkerDebounce     int      `yaml:"marker_debounce" toml:"marker_debounce" env:"TONEWIRE_MARKER_DEBOUNCE, overwrite"`
	OutputChannels     int      `yaml:"output_channels" toml:"output_channels" env:"TONEWIRE_OUTPUT_CHANNELS, overwrite"`
	RxFilter           Filter   `yaml:"rx_filter" toml:"rx_filter"`
	RxAGC              bool     `yaml:"rx_agc" toml:"rx_agc" env:"TONEWIRE_RX_AGC, overwrite"`
	WAVFormat          string   `yaml:"wav_format" toml:"wav_format" env:"TONEWIRE_WAV_FORMAT, overwrite"`

	OutputDestinations []stream.Destination `yaml:"output_destinations" toml:"output_destinations"`
	VizServer          VizServer            `yaml:"viz_server" toml:"viz_server"`
	InfluxDB           InfluxDB             `yaml:"influxdb" toml:"influxdb"`
}

// Default mirrors tonewire.DefaultParameters. ExternalSampleRate is left
// unset so it follows SampleRate.
func Default() *Config {
	p := tonewire.DefaultParameters()
	return &Config{
		SampleRate:         p.SampleRateInternal,
		SamplesPerFrame:    p.SamplesPerFrame,
		TxProtocol:         p.TxProtocol.String(),
		Volume:             p.Volume,
		MarkerThreshold:    p.MarkerThreshold,
		MarkerDebounce:     p.MarkerDebounce,
		OutputChannels:     p.OutputChannels,
		WAVFormat:          wav.PCM16.String(),
		VizServer: VizServer{
			UpdateInterval: 250 * time.Millisecond,
		},
	}
}

// Load reads path on top of the defaults, picking the decoder by extension,
// then applies environment overrides. An empty path only applies the
// environment.
func Load(ctx context.Context, path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		contents, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := cfg.unmarshal(filepath.Ext(path), contents); err != nil {
			return nil, fmt.Errorf("error parsing %s: %w", path, err)
		}
	}

	if err := envconfig.Process(ctx, cfg); err != nil {
		return nil, fmt.Errorf("error reading environment: %w", err)
	}
	return cfg, nil
}

func (c *Config) unmarshal(ext string, contents []byte) error {
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		return yaml.UnmarshalStrict(contents, c)
	case ".toml":
		_, err := toml.Decode(string(contents), c)
		return err
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, ext)
}

// Parameters converts the file settings to instance parameters. The mode is
// receive and transmit, plus DSS when enabled.
func (c *Config) Parameters() (tonewire.Parameters, error) {
	p := tonewire.DefaultParameters()
	p.SampleRateInternal = c.SampleRate
	p.SampleRateExternal = c.ExternalSampleRate
	if p.SampleRateExternal == 0 {
		p.SampleRateExternal = c.SampleRate
	}
	p.SamplesPerFrame = c.SamplesPerFrame
	p.PayloadLength = c.PayloadLength
	p.Volume = c.Volume
	p.MarkerThreshold = c.MarkerThreshold
	p.MarkerDebounce = c.MarkerDebounce
	p.OutputChannels = c.OutputChannels
	p.RxAGC = c.RxAGC
	if c.DSS {
		p.Mode |= tonewire.ModeDSS
	}

	if c.TxProtocol != "" {
		id, err := protocol.Parse(c.TxProtocol)
		if err != nil {
			return tonewire.Parameters{}, fmt.Errorf("tx_protocol: %w", err)
		}
		p.TxProtocol = id
	}
	for _, name := range c.RxProtocols {
		id, err := protocol.Parse(name)
		if err != nil {
			return tonewire.Parameters{}, fmt.Errorf("rx_protocols: %w", err)
		}
		p.RxProtocols = append(p.RxProtocols, id)
	}

	kind, err := fir.ParseKind(c.RxFilter.Kind)
	if err != nil {
		return tonewire.Parameters{}, fmt.Errorf("rx_filter: %w", err)
	}
	if kind != fir.None {
		p.RxFilter = fir.Spec{
			Kind:       kind,
			Low:        c.RxFilter.Low,
			High:       c.RxFilter.High,
			Transition: c.RxFilter.Transition,
		}
	}

	if err := p.Validate(); err != nil {
		return tonewire.Parameters{}, err
	}
	return p, nil
}

func (c *Config) Format() (wav.Format, error) {
	return wav.ParseFormat(c.WAVFormat)
}
