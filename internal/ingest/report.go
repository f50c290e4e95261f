package ingest

import (
	"fmt"
	"time"
)

// Status is the terminal state of one candidate or source.
type Status string

const (
	StatusCommitted   Status = "committed"
	StatusSkippedSeen Status = "skipped_seen"
	StatusAbandoned   Status = "abandoned" // retryable next scan
	StatusFailed      Status = "failed"
)

// Outcome describes what happened to one candidate, or to a source that
// could not be listed.
type Outcome struct {
	Location  string
	Identity  string
	Title     string
	Status    Status
	Delivered bool
	Degraded  bool
	Err       *StageError   // why the item stopped short of commit
	Warnings  []*StageError // degraded steps of a committed item
}

// Report summarizes one scan.
type Report struct {
	ScanID    string
	Started   time.Time
	Finished  time.Time
	Sources   int
	Listed    int
	Committed int // reached Committed
	Delivered int // delivered without a channel error
	Skipped   int
	Failed    int
	Seen      int // seen-set size when the scan finished
	Outcomes  []Outcome
}

func (r *Report) add(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
	switch o.Status {
	case StatusCommitted:
		r.Committed++
	case StatusSkippedSeen:
		r.Skipped++
	case StatusAbandoned, StatusFailed:
		r.Failed++
	}
	if o.Delivered {
		r.Delivered++
	}
}

// Errors returns the stage errors of every item that stopped short of commit.
func (r Report) Errors() []*StageError {
	var out []*StageError
	for _, o := range r.Outcomes {
		if o.Err != nil {
			out = append(out, o.Err)
		}
	}
	return out
}

// Notice is the completion message sent to the user after a scan.
func (r Report) Notice() string {
	return fmt.Sprintf("Scan complete — %d new article(s)", r.Delivered)
}
