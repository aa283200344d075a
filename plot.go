package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"charlm/IO"
)

// renderCurves is an offline diagnostic: it reads train.csv back and
// writes loss.png and accuracy.png next to it. Not part of the durable
// interface.
func renderCurves(resultsDir string) error {
	rows, err := readMetricsCSV(filepath.Join(resultsDir, "train.csv"))
	if err != nil {
		return err
	}

	var trainXY, valXY, accXY plotter.XYs
	for i, r := range rows {
		x := float64(i)
		if r.TrainLoss != nil {
			trainXY = append(trainXY, plotter.XY{X: x, Y: *r.TrainLoss})
		}
		if r.ValLoss != nil {
			valXY = append(valXY, plotter.XY{X: x, Y: *r.ValLoss})
		}
		if r.Accuracy != nil {
			accXY = append(accXY, plotter.XY{X: x, Y: *r.Accuracy})
		}
	}

	lossPlot := plot.New()
	lossPlot.Title.Text = "loss"
	lossPlot.X.Label.Text = "step"
	trainLine, err := plotter.NewLine(trainXY)
	if err != nil {
		return fmt.Errorf("plot: %w", err)
	}
	valLine, err := plotter.NewLine(valXY)
	if err != nil {
		return fmt.Errorf("plot: %w", err)
	}
	valLine.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	lossPlot.Add(trainLine, valLine)
	lossPlot.Legend.Add("train_loss", trainLine)
	lossPlot.Legend.Add("val_loss", valLine)
	if err := lossPlot.Save(8*vg.Inch, 5*vg.Inch, filepath.Join(resultsDir, "loss.png")); err != nil {
		return fmt.Errorf("plot: %w", err)
	}

	accPlot := plot.New()
	accPlot.Title.Text = "accuracy"
	accPlot.X.Label.Text = "step"
	accLine, err := plotter.NewLine(accXY)
	if err != nil {
		return fmt.Errorf("plot: %w", err)
	}
	accPlot.Add(accLine)
	if err := accPlot.Save(8*vg.Inch, 5*vg.Inch, filepath.Join(resultsDir, "accuracy.png")); err != nil {
		return fmt.Errorf("plot: %w", err)
	}
	return nil
}

// readMetricsCSV parses a metrics log written by WriteMetricsCSV.
func readMetricsCSV(path string) ([]IO.MetricsRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read metrics: %w", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read metrics: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("read metrics: %s is empty", path)
	}

	cell := func(s string) (*float64, error) {
		if s == "" {
			return nil, nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, err
		}
		return &v, nil
	}

	var rows []IO.MetricsRow
	for _, rec := range records[1:] { // skip header
		if len(rec) != 3 {
			return nil, fmt.Errorf("read metrics: expected 3 columns, got %d", len(rec))
		}
		var row IO.MetricsRow
		if row.TrainLoss, err = cell(rec[0]); err != nil {
			return nil, fmt.Errorf("read metrics: %w", err)
		}
		if row.ValLoss, err = cell(rec[1]); err != nil {
			return nil, fmt.Errorf("read metrics: %w", err)
		}
		if row.Accuracy, err = cell(rec[2]); err != nil {
			return nil, fmt.Errorf("read metrics: %w", err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}
