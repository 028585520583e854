package viz

import (
	"image/color"
	"math"
	"sync"

	"github.com/norasector/tonewire/pkg/dsp/filters/fir"
	"github.com/norasector/tonewire/pkg/dsp/spectrum"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
)

const (
	mixAvg  = 0.10
	floorDB = -120.0
)

type band struct {
	label  string
	lo, hi float64
}

// SpectrumPlotter keeps the most recent size samples and plots their
// Blackman-windowed power spectrum, smoothed across renders.
type SpectrumPlotter struct {
	mu           sync.Mutex
	name         string
	size         int
	sampleRate   float64
	analyzer     *spectrum.Analyzer
	window       []float32
	buf          []float32
	windowed     []float64
	averagePower []float64
	bands        []band
	plotOptions  []PlotOptions
}

func NewSpectrumPlotter(name string, size int, sampleRate float64) *SpectrumPlotter {
	return &SpectrumPlotter{
		name:         name,
		size:         size,
		sampleRate:   sampleRate,
		analyzer:     spectrum.NewAnalyzer(size),
		window:       fir.BlackmanWindow(size),
		buf:          make([]float32, size),
		windowed:     make([]float64, size),
		averagePower: make([]float64, size/2+1),
	}
}

func (p *SpectrumPlotter) Name() string {
	return p.name
}

func (p *SpectrumPlotter) AppendFloat(s []float32) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(s) >= p.size {
		copy(p.buf, s[len(s)-p.size:])
		return
	}
	copy(p.buf, p.buf[len(s):])
	copy(p.buf[p.size-len(s):], s)
}

// MarkBand outlines the frequency range [lo, hi] in Hz.
func (p *SpectrumPlotter) MarkBand(label string, lo, hi float64) {
	p.mu.Lock()
	p.bands = append(p.bands, band{label: label, lo: lo, hi: hi})
	p.mu.Unlock()
}

func (p *SpectrumPlotter) AddPlotOption(opt PlotOptions) {
	p.mu.Lock()
	p.plotOptions = append(p.plotOptions, opt)
	p.mu.Unlock()
}

// PowerDB updates the running average with the current buffer and returns it
// in dB relative to a full scale sine.
func (p *SpectrumPlotter) PowerDB() []float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.powerDB()
}

func (p *SpectrumPlotter) powerDB() []float64 {
	for i := range p.windowed {
		p.windowed[i] = float64(p.buf[i]) * float64(p.window[i])
	}
	power := p.analyzer.PowerFloat64(p.windowed)

	// a unit sine peaks at (0.42*N/2)^2 after the Blackman window
	fullScale := 0.21 * float64(p.size)
	fullScale *= fullScale

	ret := make([]float64, len(power))
	for k, v := range power {
		p.averagePower[k] = (1-mixAvg)*p.averagePower[k] + mixAvg*v
		db := floorDB
		if avg := p.averagePower[k] / fullScale; avg > 1e-12 {
			db = 10 * math.Log10(avg)
		}
		ret[k] = db
	}
	return ret
}

func (p *SpectrumPlotter) GetImage() *ImageContainer {
	img, err := p.Render()
	if err != nil {
		log.Warn().Err(err).Str("plot", p.name).Msg("error rendering spectrum")
		return nil
	}
	return img
}

func (p *SpectrumPlotter) Render() (*ImageContainer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pl := plotWithDefaults()
	pl.Title.Text = p.name
	pl.Y.Label.Text = "Power (dB)"
	pl.X.Label.Text = "Frequency (Hz)"
	pl.Y.Min = -100
	pl.Y.Max = 0
	pl.X.Min = 0
	pl.X.Max = p.sampleRate / 2

	for _, opt := range p.plotOptions {
		opt(pl)
	}

	pl.Add(plotter.NewGrid())

	db := p.powerDB()
	xys := make(plotter.XYs, len(db))
	for k, v := range db {
		xys[k] = plotter.XY{X: p.analyzer.Freq(k) * p.sampleRate, Y: v}
	}

	line, err := plotter.NewLine(xys)
	if err != nil {
		return nil, err
	}
	line.Color = color.RGBA{G: 255, A: 255}
	pl.Add(line)
	pl.Legend.Add("power", line)

	for i, b := range p.bands {
		outline := plotter.XYs{
			{X: b.lo, Y: pl.Y.Min},
			{X: b.lo, Y: pl.Y.Max},
			{X: b.hi, Y: pl.Y.Max},
			{X: b.hi, Y: pl.Y.Min},
		}
		l, err := plotter.NewLine(outline)
		if err != nil {
			return nil, err
		}
		l.Color = plotutil.Color(i + 1)
		l.Dashes = plotutil.Dashes(1)
		pl.Add(l)
		pl.Legend.Add(b.label, l)
	}

	return render(pl, p.name)
}
