package pipeline

import (
	"errors"
	"time"

	"github.com/Ramsey-B/fern/pkg/loader"
	"github.com/Ramsey-B/fern/pkg/ocds"
	"github.com/Ramsey-B/fern/pkg/report"
	"github.com/Ramsey-B/fern/pkg/window"
)

// ErrStorageUnavailable aborts a run when storage stops answering pings.
var ErrStorageUnavailable = errors.New("storage unavailable")

// Outcome classifies how a window ended.
type Outcome string

const (
	// OutcomeLoaded means the window committed and every table loaded.
	OutcomeLoaded Outcome = "loaded"
	// OutcomePartial means the window committed but at least one table was rolled back.
	OutcomePartial Outcome = "partial"
	// OutcomeLocked means another process holds the window.
	OutcomeLocked Outcome = "locked"
	// OutcomeLockFailed means the lock service could not be reached.
	OutcomeLockFailed Outcome = "lock_failed"
	// OutcomeAcquireFailed means the archive could not be downloaded or extracted.
	OutcomeAcquireFailed Outcome = "acquire_failed"
	// OutcomeNoDocument means the archive held no document.
	OutcomeNoDocument Outcome = "no_document"
	// OutcomeAmbiguousDocument means the archive held more than one document.
	OutcomeAmbiguousDocument Outcome = "ambiguous_document"
	// OutcomeDecodeFailed means the document could not be read.
	OutcomeDecodeFailed Outcome = "decode_failed"
	// OutcomeStorageFailed means the window transaction was rolled back.
	OutcomeStorageFailed Outcome = "storage_failed"
	// OutcomeCanceled means the run was interrupted during the window.
	OutcomeCanceled Outcome = "canceled"
)

// Committed reports whether the window's rows were written.
func (o Outcome) Committed() bool {
	return o == OutcomeLoaded || o == OutcomePartial
}

// WindowOutcome is the result of processing one window.
type WindowOutcome struct {
	Window   window.Window
	Outcome  Outcome
	Document string
	Stats    ocds.Stats
	Load     loader.Result
	Err      error
	Duration time.Duration
}

func (o WindowOutcome) summary() report.WindowSummary {
	ws := report.WindowSummary{
		Window:   o.Window.String(),
		Outcome:  string(o.Outcome),
		Records:  o.Stats.Records,
		Duration: o.Duration,
	}
	if o.Outcome.Committed() {
		ws.Inserted = make(map[string]int64, len(o.Load.Tables))
		for _, t := range o.Load.Tables {
			if !t.Failed() {
				ws.Inserted[t.Table] = t.Inserted
			}
		}
	}
	for _, t := range o.Load.FailedTables() {
		ws.Errors = append(ws.Errors, t.Err.Error())
	}
	if o.Err != nil {
		ws.Errors = append(ws.Errors, o.Err.Error())
	}
	return ws
}

// Report is the result of a run.
type Report struct {
	RunID   string
	Windows []WindowOutcome
	Summary *report.Summary
	// Aborted is set when the run stopped before processing every window.
	Aborted bool
}

// Outcomes returns the outcome of each processed window in order.
func (r *Report) Outcomes() []Outcome {
	out := make([]Outcome, 0, len(r.Windows))
	for _, w := range r.Windows {
		out = append(out, w.Outcome)
	}
	return out
}
