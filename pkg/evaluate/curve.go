package evaluate

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"

	chart "github.com/wcharczuk/go-chart"
)

// MetricFunc computes one axis of a curve from the running totals
type MetricFunc func(c Counts) float64

func Recall(c Counts) float64    { return c.Recall() }
func Precision(c Counts) float64 { return c.Precision() }
func FPPI(c Counts) float64      { return c.FPPI() }
func MissRate(c Counts) float64  { return c.MissRate() }

func FalsePositives(c Counts) float64 {
	return float64(c.FalsePositives)
}

type CurvePoint struct {
	X     float64
	Y     float64
	Score float64
}

// Curve emits one point per detection, in descending score order.
// Each point reflects the totals with a threshold just below that detection's score.
func (e *Evaluator) Curve(x, y MetricFunc) []CurvePoint {
	points := make([]CurvePoint, 0, len(e.scores))
	counts := e.initialCounts()
	for _, s := range e.scores {
		counts.add(s)
		points = append(points, CurvePoint{X: x(counts), Y: y(counts), Score: s.Score})
	}
	return points
}

// PrecisionRecall has recall on X and precision on Y
func (e *Evaluator) PrecisionRecall() []CurvePoint {
	return e.Curve(Recall, Precision)
}

// ROC has the number of false positives on X and recall on Y
func (e *Evaluator) ROC() []CurvePoint {
	return e.Curve(FalsePositives, Recall)
}

// DET has FPPI on X and miss rate on Y
func (e *Evaluator) DET() []CurvePoint {
	return e.Curve(FPPI, MissRate)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// WriteCurve writes one "x y score" line per point
func WriteCurve(w io.Writer, points []CurvePoint) error {
	bw := bufio.NewWriter(w)
	for _, p := range points {
		if _, err := fmt.Fprintf(bw, "%v %v %v\n", formatFloat(p.X), formatFloat(p.Y), formatFloat(p.Score)); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func SaveCurveFile(filename string, points []CurvePoint) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := WriteCurve(f, points); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// NamedCurve is one line on a chart
type NamedCurve struct {
	Name   string
	Points []CurvePoint
}

// RenderCurvePNG draws curves into a PNG image.
// Curves with fewer than 2 points are skipped, because they can't be drawn as a line.
func RenderCurvePNG(w io.Writer, title, xName, yName string, curves ...NamedCurve) error {
	series := []chart.Series{}
	for i, c := range curves {
		if len(c.Points) < 2 {
			continue
		}
		xs := make([]float64, len(c.Points))
		ys := make([]float64, len(c.Points))
		for j, p := range c.Points {
			xs[j] = p.X
			ys[j] = p.Y
		}
		series = append(series, chart.ContinuousSeries{
			Name:    c.Name,
			XValues: xs,
			YValues: ys,
			Style: chart.Style{
				Show:        true,
				StrokeColor: chart.GetAlternateColor(i),
			},
		})
	}
	if len(series) == 0 {
		return fmt.Errorf("Not enough points to draw %v", title)
	}

	graph := chart.Chart{
		Title:      title,
		TitleStyle: chart.StyleShow(),
		XAxis: chart.XAxis{
			Name:      xName,
			NameStyle: chart.StyleShow(),
			Style:     chart.StyleShow(),
		},
		YAxis: chart.YAxis{
			Name:      yName,
			NameStyle: chart.StyleShow(),
			Style:     chart.StyleShow(),
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{
		chart.LegendLeft(&graph),
	}
	return graph.Render(chart.PNG, w)
}

func SaveCurvePNG(filename, title, xName, yName string, curves ...NamedCurve) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := RenderCurvePNG(f, title, xName, yName, curves...); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
