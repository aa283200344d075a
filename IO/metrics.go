package IO

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
)

// MetricsRow is one observation in the training log: either a
// per-batch training loss or a validation (loss, accuracy) pair.
// Nil fields are written as empty CSV cells.
type MetricsRow struct {
	TrainLoss *float64
	ValLoss   *float64
	Accuracy  *float64
}

func TrainRow(loss float64) MetricsRow {
	return MetricsRow{TrainLoss: &loss}
}

func ValRow(loss, accuracy float64) MetricsRow {
	return MetricsRow{ValLoss: &loss, Accuracy: &accuracy}
}

// WriteMetricsCSV flushes the whole metrics log to path with the
// header train_loss,val_loss,accuracy.
func WriteMetricsCSV(path string, rows []MetricsRow) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"train_loss", "val_loss", "accuracy"}); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	cell := func(v *float64) string {
		if v == nil {
			return ""
		}
		return strconv.FormatFloat(*v, 'g', -1, 64)
	}
	for _, r := range rows {
		if err := w.Write([]string{cell(r.TrainLoss), cell(r.ValLoss), cell(r.Accuracy)}); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}
