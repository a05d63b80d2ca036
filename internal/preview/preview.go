// Package preview renders top-down (X/Y) views of a cloud before and after
// downsampling, as a static PNG (gonum/plot) or an interactive HTML page
// (go-echarts). Previews are for eyeballing voxel size choices; they play
// no part in the downsampled output.
package preview

import (
	"fmt"
	"image/color"
	"io"
	"math"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/voxeldown/internal/pointcloud"
)

// MaxPreviewPoints caps how many points of each series are drawn. Larger
// clouds are strided down to stay within it.
const MaxPreviewPoints = 20000

var (
	inputColor  = color.RGBA{R: 160, G: 160, B: 160, A: 255}
	outputColor = color.RGBA{R: 220, G: 40, B: 40, A: 255}
)

// Stride returns the step that keeps n points within max.
func Stride(n, max int) int {
	if max <= 0 || n <= max {
		return 1
	}
	return int(math.Ceil(float64(n) / float64(max)))
}

// WritePNG renders input (grey) and output (red) as an X/Y scatter.
func WritePNG(w io.Writer, title string, input, output []pointcloud.Point3) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "X"
	p.Y.Label.Text = "Y"
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	series := []struct {
		name   string
		points []pointcloud.Point3
		c      color.Color
		radius vg.Length
	}{
		{fmt.Sprintf("input (%d)", len(input)), input, inputColor, vg.Points(1)},
		{fmt.Sprintf("downsampled (%d)", len(output)), output, outputColor, vg.Points(1.5)},
	}
	for _, s := range series {
		if len(s.points) == 0 {
			continue
		}
		sc, err := plotter.NewScatter(toXYs(s.points))
		if err != nil {
			return fmt.Errorf("failed to build %s scatter: %w", s.name, err)
		}
		sc.GlyphStyle.Color = s.c
		sc.GlyphStyle.Radius = s.radius
		p.Add(sc)
		p.Legend.Add(s.name, sc)
	}

	wt, err := p.WriterTo(8*vg.Inch, 8*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("failed to render plot: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write plot: %w", err)
	}
	return nil
}

func toXYs(points []pointcloud.Point3) plotter.XYs {
	stride := Stride(len(points), MaxPreviewPoints)
	xys := make(plotter.XYs, 0, len(points)/stride+1)
	for i := 0; i < len(points); i += stride {
		xys = append(xys, plotter.XY{X: points[i].X, Y: points[i].Y})
	}
	return xys
}

// RenderHTML writes an interactive scatter page with one series per cloud.
// Z is carried as the third value so it shows in tooltips.
func RenderHTML(w io.Writer, title string, input, output []pointcloud.Point3) error {
	bounds := pointcloud.Summarize(input)
	if bounds.Count == 0 {
		bounds = pointcloud.Summarize(output)
	}
	pad := 0.05 * math.Max(bounds.Extent().X, bounds.Extent().Y)
	if pad == 0 {
		pad = 1.0
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("input=%d downsampled=%d", len(input), len(output))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: bounds.Min.X - pad, Max: bounds.Max.X + pad, Name: "X", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: bounds.Min.Y - pad, Max: bounds.Max.Y + pad, Name: "Y", NameLocation: "middle", NameGap: 30}),
	)

	scatter.AddSeries("input", toScatterData(input), charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 2}))
	scatter.AddSeries("downsampled", toScatterData(output), charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))

	if err := scatter.Render(w); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	return nil
}

func toScatterData(points []pointcloud.Point3) []opts.ScatterData {
	stride := Stride(len(points), MaxPreviewPoints)
	data := make([]opts.ScatterData, 0, len(points)/stride+1)
	for i := 0; i < len(points); i += stride {
		p := points[i]
		data = append(data, opts.ScatterData{Value: []interface{}{p.X, p.Y, p.Z}})
	}
	return data
}
