package tracelog

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/PLSysSec/callstats/internal/model"
)

// StdinName is the path that selects standard input.
const StdinName = "-"

const maxLineSize = 1024 * 1024

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// LineError reports a marker line that could not be turned into an event.
type LineError struct {
	Pos  model.Position
	Text string
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("%s:%d: %v: %q", e.Pos.File, e.Pos.Line, e.Err, e.Text)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// ReadFiles reads events from every path in order. All events of one file
// precede those of the next.
func (p *Parser) ReadFiles(paths []string) ([]model.Event, error) {
	var events []model.Event
	for _, path := range paths {
		fileEvents, err := p.ReadFile(path)
		if err != nil {
			return nil, err
		}
		events = append(events, fileEvents...)
	}
	return events, nil
}

// ReadFile reads events from one path. StdinName reads standard input.
func (p *Parser) ReadFile(path string) ([]model.Event, error) {
	if path == StdinName {
		return p.ReadEvents(os.Stdin, "<stdin>")
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := file.Close(); cerr != nil {
			// Best-effort close for read-only trace file.
			_ = cerr
		}
	}()
	return p.ReadEvents(file, path)
}

// ReadEvents scans r line by line. A leading UTF-8 byte-order mark is ignored.
func (p *Parser) ReadEvents(r io.Reader, name string) ([]model.Event, error) {
	var events []model.Event
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	lineNo := 0
	skipped := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if lineNo == 1 {
			line = bytes.TrimPrefix(line, utf8BOM)
		}
		text := string(line)
		event, ok, err := p.ParseLine(text)
		if err != nil {
			return nil, &LineError{
				Pos:  model.Position{File: name, Line: lineNo},
				Text: text,
				Err:  err,
			}
		}
		if !ok {
			skipped++
			continue
		}
		event.Source = model.Position{File: name, Line: lineNo}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	logrus.WithFields(logrus.Fields{
		"file":    name,
		"lines":   lineNo,
		"events":  len(events),
		"skipped": skipped,
	}).Debug("read trace file")
	return events, nil
}
