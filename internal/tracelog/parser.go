// Package tracelog parses enter/exit events out of trace log lines.
package tracelog

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PLSysSec/callstats/internal/model"
)

const (
	// DefaultEnterMarker tags a call-entry line.
	DefaultEnterMarker = "[+]"
	// DefaultExitMarker tags a call-exit line.
	DefaultExitMarker = "[-]"

	// TimestampLayout matches stamps such as 2021-11-19T00:09:58.366356392Z.
	TimestampLayout = "2006-01-02T15:04:05.999999999Z"
)

// stampPattern requires a dot and 1 to 9 fractional digits before the Z.
var stampPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{1,9}Z$`)

// Parser extracts events from lines using a pair of markers.
type Parser struct {
	EnterMarker string
	ExitMarker  string
}

// DefaultParser returns a Parser using the "[+]" and "[-]" markers.
func DefaultParser() *Parser {
	return &Parser{EnterMarker: DefaultEnterMarker, ExitMarker: DefaultExitMarker}
}

// Validate checks that both markers are usable.
func (p *Parser) Validate() error {
	if p.EnterMarker == "" {
		return fmt.Errorf("enter marker must not be empty")
	}
	if p.ExitMarker == "" {
		return fmt.Errorf("exit marker must not be empty")
	}
	if p.EnterMarker == p.ExitMarker {
		return fmt.Errorf("enter and exit markers must differ (both %q)", p.EnterMarker)
	}
	return nil
}

// ParseLine converts one line into an event. It returns ok=false when the line
// carries neither marker. The enter marker is checked first.
func (p *Parser) ParseLine(line string) (model.Event, bool, error) {
	var (
		marker string
		enter  bool
	)
	switch {
	case strings.Contains(line, p.EnterMarker):
		marker, enter = p.EnterMarker, true
	case strings.Contains(line, p.ExitMarker):
		marker, enter = p.ExitMarker, false
	default:
		return model.Event{}, false, nil
	}
	lhs, rhs, _ := strings.Cut(line, marker)

	fields := strings.Fields(rhs)
	if len(fields) < 2 {
		return model.Event{}, false, fmt.Errorf("missing call name after %q", marker)
	}
	name := fields[1]
	// Enter lines read "Entering name(first_arg, ...".
	if enter {
		name, _, _ = strings.Cut(name, "(")
	}

	stamp, err := parseTimestamp(lhs)
	if err != nil {
		return model.Event{}, false, err
	}
	return model.Event{Name: name, Timestamp: stamp, Enter: enter}, true, nil
}

func parseTimestamp(lhs string) (time.Time, error) {
	fields := strings.Fields(lhs)
	if len(fields) == 0 {
		return time.Time{}, fmt.Errorf("missing timestamp before marker")
	}
	raw := strings.TrimLeft(fields[0], "[")
	if !stampPattern.MatchString(raw) {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: want YYYY-MM-DDTHH:MM:SS.fffffffffZ", raw)
	}
	stamp, err := time.Parse(TimestampLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", raw, err)
	}
	return stamp, nil
}
