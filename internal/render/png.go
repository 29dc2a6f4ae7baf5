package render

import (
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/nagasawakenji/WalkFInd-sub000/internal/plotmodel"
)

// PNG draws r with gonum/plot. One screen unit maps to one point, and
// plot coordinates keep the screen layout with Y flipped upward.
func PNG(w io.Writer, r Report) error {
	p, err := newPlot(r)
	if err != nil {
		return err
	}
	c := r.Model.Canvas
	wt, err := p.WriterTo(vg.Points(c.Width), vg.Points(c.Height), "png")
	if err != nil {
		return fmt.Errorf("failed to render png: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write png: %w", err)
	}
	return nil
}

func newPlot(r Report) (*plot.Plot, error) {
	if r.Model == nil {
		return nil, ErrNoPlot
	}
	m := r.Model
	h := m.Canvas.Height
	flip := func(pt plotmodel.Point) plotter.XY { return plotter.XY{X: pt.X, Y: h - pt.Y} }

	p := plot.New()
	p.Title.Text = m.Caption
	p.X.Label.Text = m.XLabel.Text
	p.Y.Label.Text = m.YLabel.Text

	fr := m.Frame
	frame, err := plotter.NewPolygon(plotter.XYs{
		flip(plotmodel.Point{X: fr.X, Y: fr.Y}),
		flip(plotmodel.Point{X: fr.X + fr.Width, Y: fr.Y}),
		flip(plotmodel.Point{X: fr.X + fr.Width, Y: fr.Y + fr.Height}),
		flip(plotmodel.Point{X: fr.X, Y: fr.Y + fr.Height}),
	})
	if err != nil {
		return nil, err
	}
	frame.Color = FrameFill
	frame.LineStyle.Color = StrokeColor
	frame.LineStyle.Width = vg.Points(1)
	p.Add(frame)

	if m.Grid != nil {
		lines := append(append([]plotmodel.Line(nil), m.Grid.Vertical...), m.Grid.Horizontal...)
		for _, l := range lines {
			gl, err := plotter.NewLine(plotter.XYs{flip(l.From), flip(l.To)})
			if err != nil {
				return nil, err
			}
			gl.Color = GridColor
			gl.Width = vg.Points(1)
			p.Add(gl)
		}
	}

	models := m.Models()
	if len(models) > 0 {
		s, err := circleScatter(models, h, ModelColor)
		if err != nil {
			return nil, err
		}
		p.Add(s)
		p.Legend.Add(legendModel, s)
	}

	var tags plotter.XYLabels
	for _, c := range models {
		tags.XYs = append(tags.XYs, flip(c.TagAt))
		tags.Labels = append(tags.Labels, c.Tag)
	}
	if u := m.User(); u != nil {
		s, err := circleScatter([]plotmodel.Circle{*u}, h, UserColor)
		if err != nil {
			return nil, err
		}
		p.Add(s)
		p.Legend.Add(legendUser, s)
		tags.XYs = append(tags.XYs, flip(u.TagAt))
		tags.Labels = append(tags.Labels, u.Tag)
	}
	if len(tags.Labels) > 0 {
		labels, err := plotter.NewLabels(tags)
		if err != nil {
			return nil, err
		}
		p.Add(labels)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	// Fix the ranges after adding so glyph extents do not widen them.
	p.X.Min, p.X.Max = 0, m.Canvas.Width
	p.Y.Min, p.Y.Max = 0, m.Canvas.Height
	return p, nil
}

func circleScatter(circles []plotmodel.Circle, height float64, fill color.Color) (*plotter.Scatter, error) {
	xys := make(plotter.XYs, len(circles))
	for i, c := range circles {
		xys[i] = plotter.XY{X: c.CX, Y: height - c.CY}
	}
	s, err := plotter.NewScatter(xys)
	if err != nil {
		return nil, err
	}
	s.GlyphStyle.Shape = draw.CircleGlyph{}
	s.GlyphStyle.Color = fill
	s.GlyphStyle.Radius = vg.Points(circles[0].Radius)
	return s, nil
}
