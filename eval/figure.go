package eval

import (
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/vddddds/decent-clustering/datasets"
	"github.com/vddddds/decent-clustering/setpred"
)

// SaveDiagnostic writes a PNG visualizing one episode: agents (grey),
// ground-truth centers (blue) and predicted centers (red, glyph radius scaled
// by predicted weight).
func SaveDiagnostic(path string, ep *datasets.Episode, preds []setpred.Triple) error {
	p := plot.New()
	p.Title.Text = "Episode: agents (grey), truth (blue), predicted (red)"
	p.X.Label.Text = "x"
	p.Y.Label.Text = "y"

	agentXY := make(plotter.XYs, 0, len(ep.Agents))
	for _, a := range ep.Agents {
		agentXY = append(agentXY, plotter.XY{X: float64(a.X), Y: float64(a.Y)})
	}
	ag, err := plotter.NewScatter(agentXY)
	if err != nil {
		return err
	}
	ag.GlyphStyle.Color = color.RGBA{R: 120, G: 120, B: 120, A: 180}
	ag.GlyphStyle.Radius = vg.Points(1.4)
	p.Add(ag)
	p.Legend.Add("agents", ag)

	truthXY := make(plotter.XYs, 0, len(ep.Centers))
	for i, c := range ep.Centers {
		if ep.Mask[i] {
			truthXY = append(truthXY, plotter.XY{X: float64(c.X), Y: float64(c.Y)})
		}
	}
	tr, err := plotter.NewScatter(truthXY)
	if err != nil {
		return err
	}
	tr.GlyphStyle.Color = color.RGBA{R: 20, G: 80, B: 200, A: 220}
	tr.GlyphStyle.Radius = vg.Points(4.0)
	p.Add(tr)
	p.Legend.Add("truth", tr)

	// Predicted centers, sized by weight so null placeholders stay small.
	maxW := float64(0)
	for _, pr := range preds {
		if float64(pr.W) > maxW {
			maxW = float64(pr.W)
		}
	}
	for i, pr := range preds {
		one := plotter.XYs{{X: float64(pr.X), Y: float64(pr.Y)}}
		sc, err := plotter.NewScatter(one)
		if err != nil {
			return err
		}
		radius := 2.0
		if maxW > 0 {
			radius = 2.0 + 4.0*float64(pr.W)/maxW
		}
		sc.GlyphStyle.Color = color.RGBA{R: 200, G: 30, B: 30, A: 200}
		sc.GlyphStyle.Radius = vg.Points(radius)
		p.Add(sc)
		if i == 0 {
			p.Legend.Add("predicted", sc)
		}
	}

	p.Add(plotter.NewGrid())
	p.X.Min, p.X.Max = -0.05, 1.05
	p.Y.Min, p.Y.Max = -0.05, 1.05

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return p.Save(6*vg.Inch, 6*vg.Inch, path)
}
