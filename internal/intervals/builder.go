package intervals

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/PLSysSec/callstats/internal/model"
)

// Options tunes Build.
type Options struct {
	// RejectNegative fails the build when an exit precedes its enter.
	RejectNegative bool
}

// Reason names the check a pair failed.
type Reason int

const (
	ReasonNotEnter Reason = iota + 1
	ReasonNotExit
	ReasonNameMismatch
)

func (r Reason) String() string {
	switch r {
	case ReasonNotEnter:
		return "first event of pair is not an enter"
	case ReasonNotExit:
		return "second event of pair is not an exit"
	case ReasonNameMismatch:
		return "enter and exit names differ"
	default:
		return "unknown pairing violation"
	}
}

// StrictPairingError reports an adjacent pair that is not a matching enter/exit.
type StrictPairingError struct {
	Pair   int
	Enter  model.Event
	Exit   model.Event
	Reason Reason
}

func (e *StrictPairingError) Error() string {
	return fmt.Sprintf("pair %d: %s: %s %q at %s:%d, %s %q at %s:%d",
		e.Pair, e.Reason,
		e.Enter.Kind(), e.Enter.Name, e.Enter.Source.File, e.Enter.Source.Line,
		e.Exit.Kind(), e.Exit.Name, e.Exit.Source.File, e.Exit.Source.Line)
}

// TruncatedPairError reports an event left without a partner after trimming.
type TruncatedPairError struct {
	Event model.Event
	Count int
}

func (e *TruncatedPairError) Error() string {
	return fmt.Sprintf("odd number of events (%d) after trimming: %s %q at %s:%d has no partner",
		e.Count, e.Event.Kind(), e.Event.Name, e.Event.Source.File, e.Event.Source.Line)
}

// NegativeDurationError reports an exit stamped before its enter.
type NegativeDurationError struct {
	Pair     int
	Name     string
	Duration time.Duration
	Exit     model.Position
}

func (e *NegativeDurationError) Error() string {
	return fmt.Sprintf("pair %d: %q exits %s before it enters (%s:%d)",
		e.Pair, e.Name, -e.Duration, e.Exit.File, e.Exit.Line)
}

// Trim drops a leading exit and a trailing enter, at most one of each.
func Trim(events []model.Event) []model.Event {
	if len(events) > 0 && !events[0].Enter {
		logrus.WithField("name", events[0].Name).Debug("dropping leading exit")
		events = events[1:]
	}
	if len(events) > 0 && events[len(events)-1].Enter {
		logrus.WithField("name", events[len(events)-1].Name).Debug("dropping trailing enter")
		events = events[:len(events)-1]
	}
	return events
}

// Build pairs adjacent events into durations keyed by call name. Any
// violation aborts the build and no table is returned.
func Build(events []model.Event, opts Options) (*Table, error) {
	events = Trim(events)
	if len(events)%2 != 0 {
		return nil, &TruncatedPairError{Event: events[len(events)-1], Count: len(events)}
	}

	table := NewTable()
	for i := 0; i < len(events); i += 2 {
		enter, exit := events[i], events[i+1]
		pair := i / 2
		switch {
		case !enter.Enter:
			return nil, &StrictPairingError{Pair: pair, Enter: enter, Exit: exit, Reason: ReasonNotEnter}
		case exit.Enter:
			return nil, &StrictPairingError{Pair: pair, Enter: enter, Exit: exit, Reason: ReasonNotExit}
		case enter.Name != exit.Name:
			return nil, &StrictPairingError{Pair: pair, Enter: enter, Exit: exit, Reason: ReasonNameMismatch}
		}
		d := exit.Timestamp.Sub(enter.Timestamp)
		if d < 0 && opts.RejectNegative {
			return nil, &NegativeDurationError{Pair: pair, Name: enter.Name, Duration: d, Exit: exit.Source}
		}
		table.Append(enter.Name, d)
	}
	logrus.WithFields(logrus.Fields{
		"pairs": table.Pairs(),
		"calls": table.Len(),
	}).Debug("built intervals")
	return table, nil
}
