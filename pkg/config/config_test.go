package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/norasector/tonewire/pkg/dsp/filters/fir"
	"github.com/norasector/tonewire/pkg/protocol"
	"github.com/norasector/tonewire/pkg/stream"
	"github.com/norasector/tonewire/pkg/tonewire"
	"github.com/norasector/tonewire/pkg/wav"
)

const yamlConfig = `
sample_rate: 48000
external_sample_rate: 44100
tx_protocol: "[U] Fastest"
rx_protocols: [fast, "4"]
volume: 25
dss: true
rx_filter:
  kind: highpass
  low: 1000
  transition: 200
output_destinations:
  - host: 127.0.0.1
    port: 9000
viz_server:
  port: 8080
  update_interval: 500ms
influxdb:
  host: http://localhost:8086
  organization: lab
  bucket: tonewire
`

const tomlConfig = `
sample_rate = 48000
tx_protocol = "dt-fast"
payload_length = 16
wav_format = "float32"

[[output_destinations]]
host = "localhost"
port = 9001

[viz_server]
update_interval = "1s"
`

func writeConfig(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	cfg, err := Load(context.Background(), writeConfig(t, "tonewire.yaml", yamlConfig))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]stream.Destination{{Host: "127.0.0.1", Port: 9000}}, cfg.OutputDestinations); diff != "" {
		t.Errorf("destinations (-want +got):\n%s", diff)
	}
	if cfg.VizServer.UpdateInterval != 500*time.Millisecond || cfg.VizServer.Port != 8080 {
		t.Errorf("viz server = %+v", cfg.VizServer)
	}
	if !cfg.InfluxDB.Enabled() || cfg.InfluxDB.Bucket != "tonewire" {
		t.Errorf("influxdb = %+v", cfg.InfluxDB)
	}
	// unset keys keep their defaults
	if cfg.SamplesPerFrame != 1024 || cfg.OutputChannels != 1 {
		t.Errorf("defaults lost: spf %d channels %d", cfg.SamplesPerFrame, cfg.OutputChannels)
	}

	p, err := cfg.Parameters()
	if err != nil {
		t.Fatal(err)
	}
	want := tonewire.DefaultParameters()
	want.SampleRateExternal = 44100
	want.TxProtocol = protocol.UltrasoundFastest
	want.RxProtocols = []protocol.ID{protocol.AudibleFast, protocol.UltrasoundFast}
	want.Volume = 25
	want.Mode |= tonewire.ModeDSS
	want.RxFilter = fir.Spec{Kind: fir.HighPass, Low: 1000, Transition: 200}
	if diff := cmp.Diff(want, p); diff != "" {
		t.Errorf("parameters (-want +got):\n%s", diff)
	}
}

func TestLoadTOML(t *testing.T) {
	cfg, err := Load(context.Background(), writeConfig(t, "tonewire.toml", tomlConfig))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]stream.Destination{{Host: "localhost", Port: 9001}}, cfg.OutputDestinations); diff != "" {
		t.Errorf("destinations (-want +got):\n%s", diff)
	}
	if cfg.VizServer.UpdateInterval != time.Second {
		t.Errorf("update interval = %v", cfg.VizServer.UpdateInterval)
	}
	if f, err := cfg.Format(); err != nil || f != wav.Float32 {
		t.Errorf("Format() = %v, %v", f, err)
	}

	p, err := cfg.Parameters()
	if err != nil {
		t.Fatal(err)
	}
	if p.TxProtocol != protocol.DualToneFast || p.PayloadLength != 16 || p.SampleRateExternal != 48000 {
		t.Errorf("parameters = %+v", p)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("TONEWIRE_VOLUME", "50")
	t.Setenv("TONEWIRE_TX_PROTOCOL", "fastest")
	t.Setenv("TONEWIRE_RX_PROTOCOLS", "normal,ufast")
	t.Setenv("TONEWIRE_INFLUXDB_BUCKET", "override")

	cfg, err := Load(context.Background(), writeConfig(t, "tonewire.yml", yamlConfig))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Volume != 50 || cfg.TxProtocol != "fastest" || cfg.InfluxDB.Bucket != "override" {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if diff := cmp.Diff([]string{"normal", "ufast"}, cfg.RxProtocols); diff != "" {
		t.Errorf("rx protocols (-want +got):\n%s", diff)
	}
	// values absent from the environment stay as loaded
	if cfg.ExternalSampleRate != 44100 || !cfg.DSS {
		t.Errorf("file values lost: %+v", cfg)
	}
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	p, err := cfg.Parameters()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(tonewire.DefaultParameters(), p); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestExternalRateFollowsSampleRate(t *testing.T) {
	cfg, err := Load(context.Background(), writeConfig(t, "rate.yaml", "sample_rate: 44100\n"))
	if err != nil {
		t.Fatal(err)
	}
	p, err := cfg.Parameters()
	if err != nil {
		t.Fatal(err)
	}
	if p.SampleRateInternal != 44100 || p.SampleRateExternal != 44100 {
		t.Errorf("rates = %v internal, %v external", p.SampleRateInternal, p.SampleRateExternal)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(context.Background(), writeConfig(t, "tonewire.json", "{}")); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("json: err = %v", err)
	}
	if _, err := Load(context.Background(), writeConfig(t, "bad.yaml", "volume: [1, 2]")); err == nil {
		t.Error("bad yaml loaded")
	}
	if _, err := Load(context.Background(), writeConfig(t, "typo.yaml", "volumee: 3")); err == nil {
		t.Error("unknown yaml key loaded")
	}
	if _, err := Load(context.Background(), filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing: err = %v", err)
	}
}

func TestParametersErrors(t *testing.T) {
	for name, mutate := range map[string]func(c *Config){
		"tx protocol": func(c *Config) { c.TxProtocol = "warp" },
		"rx protocol": func(c *Config) { c.RxProtocols = []string{"fast", "99"} },
		"filter":      func(c *Config) { c.RxFilter.Kind = "notch" },
		"volume":      func(c *Config) { c.Volume = 101 },
	} {
		c := Default()
		mutate(c)
		if _, err := c.Parameters(); err == nil {
			t.Errorf("%s: no error", name)
		}
	}

	c := Default()
	c.TxProtocol = "warp"
	if _, err := c.Parameters(); !errors.Is(err, protocol.ErrUnknownProtocol) {
		t.Errorf("err = %v, want ErrUnknownProtocol", err)
	}
	c = Default()
	c.Volume = -1
	if _, err := c.Parameters(); !errors.Is(err, tonewire.ErrInvalidParameters) {
		t.Errorf("err = %v, want ErrInvalidParameters", err)
	}
}
