// Package model defines shared data structures.
package model

import "time"

// Position locates a line in an input file.
type Position struct {
	File string
	Line int
}

// Event is a single enter or exit marker read from one trace line.
type Event struct {
	Name      string
	Timestamp time.Time
	Enter     bool
	Source    Position
}

// Kind returns "enter" or "exit".
func (e Event) Kind() string {
	if e.Enter {
		return "enter"
	}
	return "exit"
}

// CallStats is the reduced latency of one call name.
type CallStats struct {
	Name        string
	Calls       int
	MeanMicros  float64
	TotalMicros float64
}

// RunStats captures a completed analysis run for the history store.
type RunStats struct {
	CreatedAt  time.Time
	Files      []string
	EventCount int
	PairCount  int
}

// HistoryConfig defines filters for the history view.
type HistoryConfig struct {
	Last int
	Call string
}

// RunAggregate summarizes a stored run for reporting.
type RunAggregate struct {
	RunID      int64
	CreatedAt  time.Time
	Files      []string
	EventCount int
	PairCount  int
}
