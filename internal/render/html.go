package render

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/nagasawakenji/WalkFInd-sub000/internal/plotmodel"
)

// DefaultAssetsHost serves the echarts javascript.
const DefaultAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// HTML renders r as a self-contained echarts scatter page. Screen Y grows
// downward, so it is flipped back for the chart's upward Y axis.
func HTML(w io.Writer, r Report, assetsHost string) error {
	if r.Model == nil {
		return ErrNoPlot
	}
	if assetsHost == "" {
		assetsHost = DefaultAssetsHost
	}
	m := r.Model
	c := m.Canvas

	subtitle := []string{m.Caption}
	if line := r.SummaryLine(); line != "" {
		subtitle = append(subtitle, line)
	}
	if r.Comment != "" {
		subtitle = append(subtitle, r.Comment)
	}
	subtitle = append(subtitle, r.Notes()...)

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle:  r.Title(),
			Width:      fmt.Sprintf("%dpx", int(c.Width)+2*int(c.Margin)),
			Height:     fmt.Sprintf("%dpx", int(c.Height)+4*int(c.Margin)),
			AssetsHost: assetsHost,
		}),
		charts.WithTitleOpts(opts.Title{Title: r.Title(), Subtitle: strings.Join(subtitle, "\n")}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10"}),
		charts.WithXAxisOpts(opts.XAxis{Min: 0, Max: c.Width, Name: m.XLabel.Text, NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: c.Height, Name: m.YLabel.Text, NameLocation: "middle", NameGap: 30}),
	)

	scatter.AddSeries(legendModel, scatterData(m.Models(), c.Height),
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: int(2 * plotmodel.ModelRadius)}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: hexColor(ModelColor)}),
	)
	var user []plotmodel.Circle
	if u := m.User(); u != nil {
		user = append(user, *u)
	}
	scatter.AddSeries(legendUser, scatterData(user, c.Height),
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: int(2 * plotmodel.UserRadius)}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: hexColor(UserColor), BorderColor: hexColor(StrokeColor), BorderWidth: 1}),
	)

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}

func scatterData(circles []plotmodel.Circle, height float64) []opts.ScatterData {
	data := make([]opts.ScatterData, 0, len(circles))
	for _, c := range circles {
		data = append(data, opts.ScatterData{
			Name:  c.Tooltip,
			Value: []interface{}{c.CX, height - c.CY},
		})
	}
	return data
}
