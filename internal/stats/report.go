package stats

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/PLSysSec/callstats/internal/model"
	"github.com/PLSysSec/callstats/internal/store"
)

// Report contains precomputed data for history rendering.
type Report struct {
	Runs  []model.RunAggregate
	Calls []model.CallStats
}

// BuildReport loads stored runs and combines their per-call stats.
func BuildReport(ctx context.Context, st *store.Store, cfg model.HistoryConfig) (Report, error) {
	runs, err := st.ListRuns(ctx, cfg)
	if err != nil {
		return Report{}, err
	}
	calls, err := st.ListCallStatsForRuns(ctx, runIDs(runs), cfg.Call)
	if err != nil {
		return Report{}, err
	}
	return Report{Runs: runs, Calls: calls}, nil
}

func runIDs(runs []model.RunAggregate) []int64 {
	ids := make([]int64, len(runs))
	for i, r := range runs {
		ids[i] = r.RunID
	}
	return ids
}

// RenderReport prints the stored runs followed by their combined averages.
func RenderReport(w io.Writer, report Report, useColor bool) error {
	if len(report.Runs) == 0 {
		_, err := fmt.Fprintln(w, "No runs found.")
		return err
	}
	headers := []string{"Run", "When", "Events", "Pairs", "Files"}
	rows := make([][]string, 0, len(report.Runs))
	for _, r := range report.Runs {
		rows = append(rows, []string{
			fmt.Sprintf("%d", r.RunID),
			r.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			humanize.Comma(int64(r.EventCount)),
			humanize.Comma(int64(r.PairCount)),
			strings.Join(r.Files, ", "),
		})
	}
	if err := writeTable(w, headers, rows, map[int]bool{0: true, 2: true, 3: true}, useColor); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, ""); err != nil {
		return err
	}
	return RenderTable(w, report.Calls, useColor)
}
