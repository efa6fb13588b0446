package trajectory

import (
	"fmt"
	"image/color"
	"io"

	"github.com/san-kum/shot-tracer/server/models"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

var (
	detectedColor  = color.RGBA{R: 220, G: 60, B: 40, A: 255}
	projectedColor = color.RGBA{R: 40, G: 110, B: 220, A: 255}
	smoothedColor  = color.RGBA{R: 30, G: 160, B: 80, A: 255}
)

// ChartOptions sizes the rendered chart.
type ChartOptions struct {
	Width  vg.Length
	Height vg.Length
	Title  string
}

func DefaultChartOptions() ChartOptions {
	return ChartOptions{Width: 6 * vg.Inch, Height: 4 * vg.Inch, Title: "Shot trajectory"}
}

// WriteChart renders a trajectory as a PNG in display coordinates, with y
// growing downward like the frame.
func WriteChart(w io.Writer, t models.Trajectory, opts ChartOptions) error {
	p := plot.New()
	p.Title.Text = opts.Title
	p.X.Label.Text = "x (normalized)"
	p.Y.Label.Text = "y (normalized)"
	p.X.Min, p.X.Max = 0, 1
	p.Y.Min, p.Y.Max = 0, 1
	p.Y.Scale = plot.InvertedScale{Normalizer: plot.LinearScale{}}
	p.Add(plotter.NewGrid())

	if len(t.ProjectedPoints) > 1 {
		line, err := plotter.NewLine(chartXYs(t.ProjectedPoints, t.Convention))
		if err != nil {
			return fmt.Errorf("projected line: %w", err)
		}
		line.Color = projectedColor
		line.Width = vg.Points(1.5)
		line.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
		p.Add(line)
		p.Legend.Add("projected", line)
	}

	if len(t.SmoothedPoints) > 1 {
		line, err := plotter.NewLine(chartXYs(t.SmoothedPoints, t.Convention))
		if err != nil {
			return fmt.Errorf("smoothed line: %w", err)
		}
		line.Color = smoothedColor
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add("smoothed", line)
	}

	if len(t.DetectedPoints) > 0 {
		scatter, err := plotter.NewScatter(chartXYs(t.DetectedPoints, t.Convention))
		if err != nil {
			return fmt.Errorf("detected points: %w", err)
		}
		scatter.GlyphStyle.Color = detectedColor
		scatter.GlyphStyle.Shape = draw.CircleGlyph{}
		scatter.GlyphStyle.Radius = vg.Points(2)
		p.Add(scatter)
		p.Legend.Add("detected", scatter)
	}

	wt, err := p.WriterTo(opts.Width, opts.Height, "png")
	if err != nil {
		return fmt.Errorf("create chart writer: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("write chart: %w", err)
	}
	return nil
}

func chartXYs(points []models.TrackedPoint, conv models.Convention) plotter.XYs {
	xys := make(plotter.XYs, len(points))
	for i, pt := range points {
		pos := conv.ToTopLeft(pt.Position)
		xys[i] = plotter.XY{X: pos.X, Y: pos.Y}
	}
	return xys
}
