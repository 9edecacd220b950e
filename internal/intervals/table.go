// Package intervals pairs enter/exit events into per-call durations.
package intervals

import "time"

// Table maps call names to durations, iterating in first-insertion order.
type Table struct {
	names []string
	index map[string]int
	spans [][]time.Duration
}

// NewTable returns an empty Table.
func NewTable() *Table {
	return &Table{index: map[string]int{}}
}

// Append records a duration for name, creating the entry on first use.
func (t *Table) Append(name string, d time.Duration) {
	i, ok := t.index[name]
	if !ok {
		i = len(t.names)
		t.index[name] = i
		t.names = append(t.names, name)
		t.spans = append(t.spans, nil)
	}
	t.spans[i] = append(t.spans[i], d)
}

// Names returns the call names in first-insertion order.
func (t *Table) Names() []string {
	out := make([]string, len(t.names))
	copy(out, t.names)
	return out
}

// Durations returns the durations recorded for name in pairing order.
func (t *Table) Durations(name string) []time.Duration {
	i, ok := t.index[name]
	if !ok {
		return nil
	}
	out := make([]time.Duration, len(t.spans[i]))
	copy(out, t.spans[i])
	return out
}

// Len returns the number of distinct names.
func (t *Table) Len() int {
	return len(t.names)
}

// Pairs returns the total number of recorded durations.
func (t *Table) Pairs() int {
	n := 0
	for _, spans := range t.spans {
		n += len(spans)
	}
	return n
}
