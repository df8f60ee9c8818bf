package batch

import "fmt"

// EventKind discriminates Event.
type EventKind int

const (
	EventProgress EventKind = iota + 1
	EventDiagnostic
	EventFinished
)

func (k EventKind) String() string {
	switch k {
	case EventProgress:
		return "progress"
	case EventDiagnostic:
		return "diagnostic"
	case EventFinished:
		return "finished"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Outcome is what happened to one image.
type Outcome int

const (
	OutcomeTagged Outcome = iota + 1
	// OutcomeSkipped is a tagger decision: the image has no timestamp or
	// falls outside the track.
	OutcomeSkipped
	// OutcomeFailed is an I/O or metadata failure on this image only.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeTagged:
		return "tagged"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Event is one item of a run's stream.
//
// Progress events carry Completed, Total, Path and Outcome. Diagnostic
// events carry Message. The single Finished event carries Summary and is
// always the last value before the channel closes.
type Event struct {
	Kind      EventKind
	Completed int
	Total     int
	Path      string
	Outcome   Outcome
	Message   string
	Summary   *Summary
}

// Summary is the state of a run when it finished. Skipped counts every
// image that produced no output, failures included.
type Summary struct {
	RunID       string
	ImportDir   string
	ExportDir   string
	Total       int
	Completed   int
	Tagged      int
	Skipped     int
	Diagnostics []string
	Done        bool
	Canceled    bool
}

// Collect drains events and returns the final summary. It returns the zero
// Summary if the stream closes without a Finished event.
func Collect(events <-chan Event) Summary {
	var s Summary
	for e := range events {
		if e.Kind == EventFinished && e.Summary != nil {
			s = *e.Summary
		}
	}
	return s
}
