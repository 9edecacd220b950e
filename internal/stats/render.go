package stats

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"golang.org/x/term"

	"github.com/PLSysSec/callstats/internal/model"
)

// Color modes accepted by ResolveColor.
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

var headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#C89A3A"))

// ResolveColor decides whether to style output written to f.
func ResolveColor(mode string, f *os.File) (bool, error) {
	switch strings.ToLower(mode) {
	case "", ColorAuto:
		return f != nil && term.IsTerminal(int(f.Fd())), nil
	case ColorAlways:
		return true, nil
	case ColorNever:
		return false, nil
	default:
		return false, fmt.Errorf("invalid color mode %q (want auto, always or never)", mode)
	}
}

// RenderTable prints an aligned table of per-call averages.
func RenderTable(w io.Writer, rows []model.CallStats, useColor bool) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "No calls found.")
		return err
	}
	headers := []string{"Call", "Calls", "Avg (us)"}
	tableRows := make([][]string, 0, len(rows))
	for _, r := range rows {
		tableRows = append(tableRows, []string{
			r.Name,
			humanize.Comma(int64(r.Calls)),
			fmt.Sprintf("%.3f", r.MeanMicros),
		})
	}
	return writeTable(w, headers, tableRows, map[int]bool{1: true, 2: true}, useColor)
}

func writeTable(w io.Writer, headers []string, rows [][]string, rightAlign map[int]bool, useColor bool) error {
	lines := formatTable(headers, rows, rightAlign)
	for i, line := range lines {
		if i == 0 && useColor {
			line = headerStyle.Render(line)
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
