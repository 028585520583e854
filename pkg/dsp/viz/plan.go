package viz

import (
	"fmt"

	"github.com/norasector/tonewire/pkg/modem"
	"github.com/norasector/tonewire/pkg/protocol"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
)

// PlotPlan draws a tone plan as frequency over frame index, one series per
// group kind.
func PlotPlan(groups []modem.ToneGroup, desc protocol.Descriptor, sampleRate float64, samplesPerFrame int, opts ...PlotOptions) (*ImageContainer, error) {
	base := desc.BaseFrequency(sampleRate, samplesPerFrame)
	spacing := protocol.ToneSpacing(sampleRate, samplesPerFrame)

	series := map[modem.GroupKind]plotter.XYs{}
	frame := 0
	for _, g := range groups {
		for f := 0; f < g.Frames; f++ {
			for _, off := range g.Offsets {
				series[g.Kind] = append(series[g.Kind], plotter.XY{
					X: float64(frame + f),
					Y: base + float64(off)*spacing,
				})
			}
		}
		frame += g.Frames
	}

	p := plotWithDefaults()
	p.Title.Text = fmt.Sprintf("%s, %d frames", desc.Name, frame)
	p.X.Label.Text = "Frame"
	p.Y.Label.Text = "Frequency (Hz)"

	for _, opt := range opts {
		opt(p)
	}

	p.Add(plotter.NewGrid())

	var args []interface{}
	for _, kind := range []modem.GroupKind{modem.StartMarker, modem.Data, modem.EndMarker} {
		if xys, ok := series[kind]; ok {
			args = append(args, kind.String(), xys)
		}
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("empty tone plan")
	}
	if err := plotutil.AddScatters(p, args...); err != nil {
		return nil, err
	}

	return render(p, desc.Name)
}
