// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Plot generation related functionality.

package analysis

import (
	"errors"
	"fmt"
	"image/color"
	"log"
	"os"
	"sort"

	"github.com/evolution-gaming/nrmos/internal/mos"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// ErrNoScores is returned when there is nothing to plot.
var ErrNoScores = errors.New("no frame scores")

var (
	defaultPlotWidth  = vg.Centimeter * 24
	defaultPlotHeight = vg.Centimeter * 7
)

// Upper bound of histogram bin count.
const maxHistogramBins = 50

// A custom color palette: color1 as base color and color2 as a darker variant.
var ColorPalette = []color.RGBA{
	// red1
	{R: 230, G: 57, B: 70, A: 255},
	// red2
	{R: 143, G: 35, B: 43, A: 255},
	// green1
	{R: 84, G: 184, B: 50, A: 255},
	// green2
	{R: 50, G: 110, B: 30, A: 255},
	// blue1
	{R: 63, G: 55, B: 201, A: 255},
	// blue2
	{R: 51, G: 45, B: 163, A: 255},
	// purple1
	{R: 86, G: 11, B: 173, A: 255},
	// purple2
	{R: 62, G: 8, B: 125, A: 255},
	// cyan1
	{R: 31, G: 180, B: 206, A: 255},
	// cyan2
	{R: 11, G: 123, B: 143, A: 255},
	// orange1
	{R: 255, G: 174, B: 0, A: 255},
	// orange2
	{R: 173, G: 118, B: 0, A: 255},
}

// CreateCDFPlot creates Cumulative Distribution Function plot for given score values.
func CreateCDFPlot(values []float64, name string) (*plot.Plot, error) {
	p := plot.New()
	p.X.Label.Text = name
	p.Y.Label.Text = "Probability"
	p.Y.Min = 0

	if len(values) == 0 {
		return p, fmt.Errorf("CreateCDFPlot(): %w", ErrNoScores)
	}

	// Sorting mutates, work on a copy.
	lValues := make([]float64, len(values))
	copy(lValues, values)
	sort.Float64s(lValues)

	cdfValues := make(plotter.XYs, len(lValues))
	for i, v := range lValues {
		cdfValues[i].X = v
		cdfValues[i].Y = stat.CDF(v, stat.Empirical, lValues, nil)
	}

	cdfLine, err := plotter.NewLine(cdfValues)
	if err != nil {
		return p, fmt.Errorf("CreateCDFPlot() creating new Line: %w", err)
	}
	cdfLine.Color = ColorPalette[2]

	p.Add(cdfLine, plotter.NewGrid())
	p.Add(createQuantileLines(lValues, 0.05, 0.5, 0.95)...)

	return p, nil
}

// CreateHistogramPlot creates histogram plot for given score values.
func CreateHistogramPlot(values []float64, name string) (*plot.Plot, error) {
	p := plot.New()
	p.X.Label.Text = name
	p.Y.Label.Text = "N"

	if len(values) == 0 {
		return p, fmt.Errorf("CreateHistogramPlot(): %w", ErrNoScores)
	}

	pHist, err := plotter.NewHist(plotter.Values(values), histogramBins(len(values)))
	if err != nil {
		return p, fmt.Errorf("CreateHistogramPlot() creating new histogram: %w", err)
	}
	pHist.Color = color.Transparent
	pHist.FillColor = ColorPalette[7]

	p.Add(pHist)
	p.Add(plotter.NewGrid())

	return p, nil
}

// histogramBins picks a bin count for n samples: one bin per two samples,
// capped at maxHistogramBins.
func histogramBins(n int) int {
	bins := n / 2
	if bins < 1 {
		bins = 1
	}
	if bins > maxHistogramBins {
		bins = maxHistogramBins
	}
	return bins
}

// CreateScorePlot creates a plot of frame scores over the decoded stream.
//
// With positive fps the X axis is time in seconds, otherwise it is the
// frame position.
func CreateScorePlot(scores mos.FrameScores, fps float64, name string) (*plot.Plot, error) {
	p := plot.New()
	p.Y.Label.Text = name
	p.X.Label.Text = "Frame #"
	if fps > 0 {
		p.X.Label.Text = "Time (seconds)"
	}

	if len(scores) == 0 {
		return p, fmt.Errorf("CreateScorePlot(): %w", ErrNoScores)
	}

	xys := make(plotter.XYs, len(scores))
	for i, s := range scores {
		xys[i].X = float64(s.Position)
		if fps > 0 {
			xys[i].X /= fps
		}
		xys[i].Y = s.Score
	}

	scoreLine, scorePoints, err := plotter.NewLinePoints(xys)
	if err != nil {
		return p, fmt.Errorf("CreateScorePlot() creating new line: %w", err)
	}
	scoreLine.Color = ColorPalette[0]
	scorePoints.Color = ColorPalette[1]
	scorePoints.Radius = vg.Points(1.5)

	values := scores.Values()
	mean := stat.Mean(values, nil)
	xMin, xMax := xys[0].X, xys[len(xys)-1].X
	meanLine, meanLabel := horizontalLineWithLabel(mean, xMin, xMax, fmt.Sprintf("mean=%.3f", mean))

	p.Y.Min = floats.Min(values) - 0.1
	p.Y.Max = floats.Max(values) + 0.1

	p.Add(scoreLine, scorePoints, meanLine, meanLabel, plotter.NewGrid())

	return p, nil
}

// MultiPlotScores will create frame score multi plot and save it to a file.
//
// Resulting plot will include frame scores over time, their histogram and
// CDF plot all in one canvas.
func MultiPlotScores(scores mos.FrameScores, fps float64, title, outFile string) (err error) {
	if len(scores) == 0 {
		return fmt.Errorf("MultiPlotScores(): %w", ErrNoScores)
	}
	const metric = "Frame score"
	values := scores.Values()

	// Create a 2D slice to hold subplots. This is the sad state of gonum's API
	// at this point unfortunately.
	const rows, cols = 3, 1
	plots := make([][]*plot.Plot, rows)
	for i := range plots {
		plots[i] = make([]*plot.Plot, cols)
	}

	plots[0][0], err = CreateScorePlot(scores, fps, metric)
	if err != nil {
		return err
	}

	plots[1][0], err = CreateHistogramPlot(values, metric)
	if err != nil {
		return err
	}

	plots[2][0], err = CreateCDFPlot(values, metric)
	if err != nil {
		return err
	}

	// Tweak titles and labels to have better layout and make plots less busy.
	plots[0][0].Title.Text = title + "\n\nPer frame score"
	plots[1][0].Title.Text = metric + " Histogram"
	plots[1][0].X.Label.Text = ""
	plots[2][0].Title.Text = "Cumulative Distribution Function (CDF)"

	img := vgimg.New(defaultPlotWidth, defaultPlotHeight*rows)
	dc := draw.New(img)

	t := draw.Tiles{
		Rows: rows,
		Cols: cols,
		PadY: vg.Points(10),
	}

	canvases := plot.Align(plots, t, dc)
	for j := 0; j < rows; j++ {
		for i := 0; i < cols; i++ {
			if plots[j][i] != nil {
				plots[j][i].Draw(canvases[j][i])
			}
		}
	}

	w, err := os.Create(outFile)
	if err != nil {
		return fmt.Errorf("MultiPlotScores() error from os.Create(): %w", err)
	}
	defer w.Close()

	png := vgimg.PngCanvas{Canvas: img}
	if _, err := png.WriteTo(w); err != nil {
		return fmt.Errorf("MultiPlotScores() failed writing png file: %w", err)
	}

	return nil
}

// PlotScoresFile reads frame scores JSON file and plots it into outFile.
func PlotScoresFile(scoresFile string, fps float64, outFile string) error {
	f, err := os.Open(scoresFile)
	if err != nil {
		return fmt.Errorf("PlotScoresFile() opening scores: %w", err)
	}
	defer f.Close()

	var scores mos.FrameScores
	if err := scores.FromJSON(f); err != nil {
		return fmt.Errorf("PlotScoresFile(): %w", err)
	}

	return MultiPlotScores(scores, fps, scoresFile, outFile)
}

// verticalLine is helper to create a vertical line.
func verticalLine(x, ymin, ymax float64) *plotter.Line {
	line, err := plotter.NewLine(plotter.XYs{
		{X: x, Y: ymin},
		{X: x, Y: ymax},
	})
	// Unlikely to have error here - so just panic in that case.
	if err != nil {
		log.Panic(err)
	}
	return line
}

// horizontalLine is helper to create a horizontal line.
func horizontalLine(y, xmin, xmax float64) *plotter.Line {
	line, err := plotter.NewLine(plotter.XYs{
		{X: xmin, Y: y},
		{X: xmax, Y: y},
	})
	if err != nil {
		log.Panic(err)
	}
	return line
}

// horizontalLineWithLabel wraps horizontalLine and adds label.
func horizontalLineWithLabel(y, xMin, xMax float64, label string) (*plotter.Line, *plotter.Labels) {
	hLine := horizontalLine(y, xMin, xMax)
	hLine.Color = color.RGBA{156, 67, 162, 255}
	hLine.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
	hLabel, _ := plotter.NewLabels(plotter.XYLabels{
		XYs: plotter.XYs{
			{X: xMin, Y: y},
		},
		Labels: []string{
			label,
		},
	})
	hLabel.Offset.X = 5
	hLabel.Offset.Y = 5

	return hLine, hLabel
}

// createQuantileLines is helper to create vertical Quantile lines, values
// must be sorted.
func createQuantileLines(values []float64, quantiles ...float64) []plot.Plotter {
	var plotters []plot.Plotter
	colorCount := len(ColorPalette)
	for i, q := range quantiles {
		qVal := stat.Quantile(q, stat.Empirical, values, nil)
		qLine := verticalLine(qVal, 0, 1)
		qLine.LineStyle.Width = vg.Points(1)
		qLine.LineStyle.Dashes = []vg.Length{vg.Points(5), vg.Points(5)}
		// Step through palette with wrap-around.
		qLine.Color = ColorPalette[i*5%colorCount]

		labels, _ := plotter.NewLabels(plotter.XYLabels{
			XYs: plotter.XYs{
				{X: qVal, Y: q},
			},
			Labels: []string{
				fmt.Sprintf("q(%.2f)=%.3f", q, qVal),
			},
		})
		labels.Offset.X = 5
		labels.Offset.Y = -5

		plotters = append(plotters, qLine, labels)
	}
	meanVal := stat.Mean(values, nil)
	meanLine := verticalLine(meanVal, 0, 1)
	meanLine.Color = ColorPalette[len(ColorPalette)-1]
	qValMean := stat.CDF(meanVal, stat.Empirical, values, nil)
	meanLabel, _ := plotter.NewLabels(plotter.XYLabels{
		XYs: plotter.XYs{
			{X: meanVal, Y: qValMean},
		},
		Labels: []string{
			fmt.Sprintf("mean=%.3f", meanVal),
		},
	})
	meanLabel.Offset.X = 5
	meanLabel.Offset.Y = -5
	plotters = append(plotters, meanLine, meanLabel)

	return plotters
}
