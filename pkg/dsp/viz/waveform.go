package viz

import (
	"sync"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
)

type PlotType int

const (
	PlotTypeDefault PlotType = iota
	PlotTypeScatter
	PlotTypeLines
)

// WaveformPlotter plots the last size samples against sample index.
type WaveformPlotter struct {
	mu          sync.Mutex
	bufFloat    []float32
	size        int
	name        string
	plotFunc    func(*plot.Plot, ...interface{}) error
	plotOptions []PlotOptions
}

func NewWaveformPlotter(name string, size int) *WaveformPlotter {
	return &WaveformPlotter{
		bufFloat: make([]float32, 0, size),
		size:     size,
		name:     name,
		plotFunc: plotutil.AddLines,
	}
}

func (t *WaveformPlotter) Name() string {
	return t.name
}

func (t *WaveformPlotter) SetPlotType(tp PlotType) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch tp {
	case PlotTypeScatter:
		t.plotFunc = plotutil.AddScatters
	default:
		t.plotFunc = plotutil.AddLines
	}
}

func (t *WaveformPlotter) AppendFloat(f []float32) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.bufFloat = append(t.bufFloat, f...)
	if len(t.bufFloat) > t.size {
		t.bufFloat = append(t.bufFloat[:0], t.bufFloat[len(t.bufFloat)-t.size:]...)
	}
}

func (t *WaveformPlotter) AddPlotOption(opt PlotOptions) {
	t.mu.Lock()
	t.plotOptions = append(t.plotOptions, opt)
	t.mu.Unlock()
}

// GetImage returns nil until size samples have been appended.
func (t *WaveformPlotter) GetImage() *ImageContainer {
	img, err := t.Render()
	if err != nil {
		log.Warn().Err(err).Str("plot", t.name).Msg("error rendering waveform")
		return nil
	}
	return img
}

func (t *WaveformPlotter) Render() (*ImageContainer, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.bufFloat) < t.size {
		return nil, nil
	}

	p := plotWithDefaults()
	p.Title.Text = t.name
	p.Y.Label.Text = "Amplitude"
	p.Y.Min = -1
	p.Y.Max = 1
	p.X.Label.Text = "Sample"

	for _, opt := range t.plotOptions {
		opt(p)
	}

	p.Add(plotter.NewGrid())

	xys := make(plotter.XYs, t.size)
	for i := range xys {
		xys[i] = plotter.XY{X: float64(i), Y: float64(t.bufFloat[i])}
	}
	if err := t.plotFunc(p, "f(t)", xys); err != nil {
		return nil, err
	}

	return render(p, t.name)
}
