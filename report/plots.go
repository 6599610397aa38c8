package report

import (
	"math"
	"os"
	"path/filepath"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/YuminosukeSato/gbforecast/gbt"
	"github.com/YuminosukeSato/gbforecast/pkg/errors"
)

// timeXYs pairs times with values, skipping missing values.
func timeXYs(times []time.Time, values []float64) plotter.XYs {
	pts := make(plotter.XYs, 0, len(values))
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		pts = append(pts, plotter.XY{X: float64(times[i].Unix()), Y: v})
	}
	return pts
}

// PlotPredictions draws actual and predicted values over time and saves the
// chart as a PNG at path.
func PlotPredictions(path string, times []time.Time, actual, predicted []float64) error {
	if len(times) != len(actual) || len(times) != len(predicted) {
		return errors.NewDimensionError("PlotPredictions", len(times), len(predicted), 0)
	}
	if len(times) == 0 {
		return errors.NewValueError("PlotPredictions", "nothing to plot")
	}

	p := plot.New()
	p.Title.Text = "Actual vs predicted"
	p.X.Label.Text = "time"
	p.Y.Label.Text = "value"
	p.X.Tick.Marker = plot.TimeTicks{Format: "2006-01-02\n15:04"}
	p.Add(plotter.NewGrid())

	actualLine, err := plotter.NewLine(timeXYs(times, actual))
	if err != nil {
		return errors.Wrap(err, "actual series")
	}
	actualLine.Color = plotutil.Color(0)
	predLine, err := plotter.NewLine(timeXYs(times, predicted))
	if err != nil {
		return errors.Wrap(err, "predicted series")
	}
	predLine.Color = plotutil.Color(1)
	predLine.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}

	p.Add(actualLine, predLine)
	p.Legend.Add("actual", actualLine)
	p.Legend.Add("predicted", predLine)
	p.Legend.Top = true

	return save(p, 10*vg.Inch, 4*vg.Inch, path)
}

// PlotImportance draws a horizontal bar chart of feature importances, the most
// important feature on top.
func PlotImportance(path string, scores []gbt.FeatureScore) error {
	if len(scores) == 0 {
		return errors.NewValueError("PlotImportance", "nothing to plot")
	}
	values := make(plotter.Values, len(scores))
	names := make([]string, len(scores))
	for i, s := range scores {
		// bars are laid out bottom-up
		j := len(scores) - 1 - i
		values[j] = s.Score
		names[j] = s.Name
	}

	p := plot.New()
	p.Title.Text = "Feature importance"
	p.X.Label.Text = "importance"

	bars, err := plotter.NewBarChart(values, vg.Points(12))
	if err != nil {
		return errors.Wrap(err, "importance bars")
	}
	bars.Horizontal = true
	bars.Color = plotutil.Color(2)
	bars.LineStyle.Width = 0
	p.Add(bars)
	p.NominalY(names...)

	height := vg.Length(len(scores))*vg.Points(18) + 1.5*vg.Inch
	return save(p, 7*vg.Inch, height, path)
}

func save(p *plot.Plot, w, h vg.Length, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "create plot dir for %s", path)
	}
	if err := p.Save(w, h, path); err != nil {
		return errors.Wrapf(err, "save plot %s", path)
	}
	return nil
}
