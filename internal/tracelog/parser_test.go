package tracelog

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	enterLine = "[2021-11-19T00:09:58.366356392Z TRACE m] [+] Entering foo(x,y)"
	exitLine  = "[2021-11-19T00:09:58.400000000Z TRACE m] [-] Exiting foo = 0x1"
)

func TestParseLineEnter(t *testing.T) {
	event, ok, err := DefaultParser().ParseLine(enterLine)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "foo", event.Name)
	assert.True(t, event.Enter)
	want := time.Date(2021, 11, 19, 0, 9, 58, 366356392, time.UTC)
	assert.True(t, event.Timestamp.Equal(want), "got %s", event.Timestamp)
}

func TestParseLineExit(t *testing.T) {
	event, ok, err := DefaultParser().ParseLine(exitLine)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "foo", event.Name)
	assert.False(t, event.Enter)
	want := time.Date(2021, 11, 19, 0, 9, 58, 400000000, time.UTC)
	assert.True(t, event.Timestamp.Equal(want), "got %s", event.Timestamp)
}

func TestParseLineExitKeepsParens(t *testing.T) {
	event, ok, err := DefaultParser().ParseLine("[2021-11-19T00:09:58.4Z T m] [-] Exiting foo(x) = 0")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "foo(x)", event.Name)
}

func TestParseLineIgnoresUnmarkedLines(t *testing.T) {
	for _, line := range []string{
		"",
		"[2021-11-19T00:09:58.366356392Z INFO m] starting up",
		"nothing to see [+ here -]",
	} {
		_, ok, err := DefaultParser().ParseLine(line)
		require.NoError(t, err, line)
		assert.False(t, ok, line)
	}
}

func TestParseLineEnterMarkerWins(t *testing.T) {
	event, ok, err := DefaultParser().ParseLine("[2021-11-19T00:09:58.1Z T m] [+] Entering bar(a) [-]")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, event.Enter)
	assert.Equal(t, "bar", event.Name)
}

func TestParseLineMicrosecondStamp(t *testing.T) {
	event, ok, err := DefaultParser().ParseLine("[2021-11-19T00:09:58.366356Z T m] [+] Entering foo(")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 366356000, event.Timestamp.Nanosecond())
}

func TestParseLineBadTimestamp(t *testing.T) {
	_, _, err := DefaultParser().ParseLine("[2021/11/19 00:09:58 T m] [+] Entering foo(")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid timestamp")
}

func TestParseLineRejectsStampWithoutDotFraction(t *testing.T) {
	for _, stamp := range []string{
		"2021-11-19T00:09:58Z",
		"2021-11-19T00:09:58,366356Z",
		"2021-11-19T00:09:58.Z",
		"2021-11-19T00:09:58.3663563920Z",
		"2021-11-19T00:09:58.366356",
	} {
		_, ok, err := DefaultParser().ParseLine("[" + stamp + " T m] [+] Entering foo(")
		require.Error(t, err, stamp)
		assert.False(t, ok, stamp)
		assert.Contains(t, err.Error(), "invalid timestamp", stamp)
	}
}

func TestParseLineMissingName(t *testing.T) {
	_, _, err := DefaultParser().ParseLine("[2021-11-19T00:09:58.1Z T m] [-] Exiting")
	require.Error(t, err)
}

func TestParseLineCustomMarkers(t *testing.T) {
	p := &Parser{EnterMarker: ">>", ExitMarker: "<<"}
	require.NoError(t, p.Validate())
	event, ok, err := p.ParseLine("[2021-11-19T00:09:58.1Z T m] >> call baz(1)")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "baz", event.Name)

	_, ok, err = p.ParseLine(enterLine)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestValidateMarkers(t *testing.T) {
	assert.Error(t, (&Parser{EnterMarker: "", ExitMarker: "x"}).Validate())
	assert.Error(t, (&Parser{EnterMarker: "x", ExitMarker: ""}).Validate())
	assert.Error(t, (&Parser{EnterMarker: "x", ExitMarker: "x"}).Validate())
	assert.NoError(t, DefaultParser().Validate())
}

func TestReadEventsStripsBOMAndRecordsSource(t *testing.T) {
	input := "\ufeff" + enterLine + "\nnoise\n" + exitLine + "\n"
	events, err := DefaultParser().ReadEvents(strings.NewReader(input), "trace.log")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, 1, events[0].Source.Line)
	assert.Equal(t, 3, events[1].Source.Line)
	assert.Equal(t, "trace.log", events[1].Source.File)
}

func TestReadEventsBOMOnlyStrippedAtStart(t *testing.T) {
	events, err := DefaultParser().ReadEvents(strings.NewReader("\ufeff"+enterLine), "a")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 2021, events[0].Timestamp.Year())
}

func TestReadEventsReportsLine(t *testing.T) {
	input := enterLine + "\n[garbage T m] [-] Exiting foo = 0\n"
	_, err := DefaultParser().ReadEvents(strings.NewReader(input), "bad.log")
	require.Error(t, err)

	var lineErr *LineError
	require.True(t, errors.As(err, &lineErr))
	assert.Equal(t, "bad.log", lineErr.Pos.File)
	assert.Equal(t, 2, lineErr.Pos.Line)
	assert.Contains(t, err.Error(), "bad.log:2")
}

func TestReadFilesKeepsArgumentOrder(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "b.log")
	second := filepath.Join(dir, "a.log")
	require.NoError(t, os.WriteFile(first, []byte(enterLine+"\n"), 0o644))
	require.NoError(t, os.WriteFile(second, []byte(exitLine+"\n"), 0o644))

	events, err := DefaultParser().ReadFiles([]string{first, second})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.True(t, events[0].Enter)
	assert.Equal(t, first, events[0].Source.File)
	assert.False(t, events[1].Enter)
	assert.Equal(t, second, events[1].Source.File)
}

func TestReadFilesMissingFile(t *testing.T) {
	_, err := DefaultParser().ReadFiles([]string{filepath.Join(t.TempDir(), "missing.log")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestReadFilesNoPaths(t *testing.T) {
	events, err := DefaultParser().ReadFiles(nil)
	require.NoError(t, err)
	assert.Empty(t, events)
}
