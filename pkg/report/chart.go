package report

import (
	"bytes"
	"encoding/base64"
	"image/color"
	"math"

	"github.com/Chris-P-15B/CDR-Exception-Analyser/pkg/exception"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

const (
	chartMinWidth  = 320 // points
	chartBarPitch  = 40  // points per date
	chartHeight    = 320 // points
	chartBarWidth  = 24  // points
	chartDPI       = 72  // one pixel per point
	chartLabelTilt = math.Pi / 4
)

var chartBar = color.RGBA{0x1f, 0x6f, 0xb4, 0xff}

// datePlot builds the per-day bar chart, one bar per date in counter order.
// The bar chart is nil when there are no dates.
func datePlot(title string, dates []exception.Count) (*plot.Plot, *plotter.BarChart, error) {
	p := plot.New()
	p.Title.Text = title
	p.Y.Label.Text = "Exceptions"
	p.Y.Min = 0

	if len(dates) == 0 {
		return p, nil, nil
	}

	values := make(plotter.Values, len(dates))
	names := make([]string, len(dates))
	for i, d := range dates {
		values[i] = float64(d.Count)
		names[i] = d.Name
	}

	bars, err := plotter.NewBarChart(values, vg.Points(chartBarWidth))
	if err != nil {
		return nil, nil, err
	}
	bars.Color = chartBar
	bars.LineStyle.Width = 0

	p.Add(bars)
	p.NominalX(names...)
	p.X.Tick.Label.Rotation = chartLabelTilt
	p.X.Tick.Label.XAlign = draw.XRight
	p.X.Tick.Label.YAlign = draw.YCenter

	return p, bars, nil
}

// DateChart renders the per-day exception counter as a PNG bar chart.
func DateChart(title string, dates []exception.Count) ([]byte, error) {
	p, _, err := datePlot(title, dates)
	if err != nil {
		return nil, err
	}

	width := vg.Length(chartMinWidth)
	if w := vg.Length(chartBarPitch*len(dates) + 80); w > width {
		width = w
	}

	canvas := vgimg.NewWith(
		vgimg.UseWH(width, vg.Length(chartHeight)),
		vgimg.UseDPI(chartDPI),
		vgimg.UseBackgroundColor(color.White),
	)
	p.Draw(draw.New(canvas))

	var buf bytes.Buffer
	if _, err := (vgimg.PngCanvas{Canvas: canvas}).WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DataURI wraps PNG bytes for use as an <img> src
func DataURI(pngData []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngData)
}
