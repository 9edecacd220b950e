// Package stats contains latency calculations and reporting.
package stats

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/PLSysSec/callstats/internal/intervals"
	"github.com/PLSysSec/callstats/internal/model"
)

// Micros converts a duration to fractional microseconds.
func Micros(d time.Duration) float64 {
	return float64(d) / float64(time.Microsecond)
}

// Mean returns the arithmetic mean of values, or 0 when empty.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Summarize reduces every duration list in the table to its mean, keeping table order.
func Summarize(table *intervals.Table) []model.CallStats {
	names := table.Names()
	rows := make([]model.CallStats, 0, len(names))
	for _, name := range names {
		spans := table.Durations(name)
		micros := make([]float64, len(spans))
		var total float64
		for i, d := range spans {
			micros[i] = Micros(d)
			total += micros[i]
		}
		rows = append(rows, model.CallStats{
			Name:        name,
			Calls:       len(spans),
			MeanMicros:  Mean(micros),
			TotalMicros: total,
		})
	}
	return rows
}

// FormatMicros renders a microsecond value as the shortest exact decimal.
func FormatMicros(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// PrintAverages writes one "<name> <mean>" line per row.
func PrintAverages(w io.Writer, rows []model.CallStats) error {
	for _, row := range rows {
		if _, err := fmt.Fprintf(w, "%s %s\n", row.Name, FormatMicros(row.MeanMicros)); err != nil {
			return err
		}
	}
	return nil
}
