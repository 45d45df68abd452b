// Package progress owns the per-job lifecycle state machine and the
// externally visible progress records.
package progress

import (
	"fmt"
	"time"

	"forgeplane/internal/store"

	"github.com/google/uuid"
)

// ErrInvalidTransition is returned when an event is inconsistent with the
// job's current state. Such events are logged and dropped; they never
// change job state and never stop the event loop.
type ErrInvalidTransition struct {
	JobID  uuid.UUID
	From   store.JobStatus
	To     store.JobStatus
	Detail string
}

func (e *ErrInvalidTransition) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("invalid transition for job %s: %s -> %s (%s)", e.JobID, e.From, e.To, e.Detail)
	}
	return fmt.Sprintf("invalid transition for job %s: %s -> %s", e.JobID, e.From, e.To)
}

// Record is the scheduling-visible progress projection of a job.
// Readers only ever see copies; the tracker's map is owned by the
// scheduler loop.
type Record struct {
	JobID              uuid.UUID
	Status             store.JobStatus
	PercentComplete    int
	Step               string
	EstimatedRemaining time.Duration
	UpdatedAt          time.Time
}

// allowed maps each status to the set of statuses reachable from it.
var allowed = map[store.JobStatus][]store.JobStatus{
	store.JobStatusQueued:     {store.JobStatusAllocated, store.JobStatusCancelled},
	store.JobStatusAllocated:  {store.JobStatusInProgress, store.JobStatusQueued, store.JobStatusError, store.JobStatusCancelled},
	store.JobStatusInProgress: {store.JobStatusFinishing, store.JobStatusQueued, store.JobStatusError, store.JobStatusCancelled},
	store.JobStatusFinishing:  {store.JobStatusComplete, store.JobStatusQueued, store.JobStatusError},
	store.JobStatusComplete:   nil,
	store.JobStatusError:      nil,
	store.JobStatusCancelled:  nil,
}

// CanTransition reports whether from -> to is a legal lifecycle step.
// The Allocated/InProgress/Finishing -> Queued edges cover reroutes after
// a unit failure.
func CanTransition(from, to store.JobStatus) bool {
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Tracker holds the progress record for every live job. It is mutated
// exclusively by the scheduler loop.
type Tracker struct {
	records map[uuid.UUID]*Record
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{records: make(map[uuid.UUID]*Record)}
}

// Track registers a newly admitted job in Queued state.
func (t *Tracker) Track(jobID uuid.UUID, now time.Time, remaining time.Duration) {
	t.records[jobID] = &Record{
		JobID:              jobID,
		Status:             store.JobStatusQueued,
		EstimatedRemaining: remaining,
		UpdatedAt:          now,
	}
}

// Transition moves a job to a new status, enforcing the state machine.
func (t *Tracker) Transition(jobID uuid.UUID, to store.JobStatus, now time.Time) (prior store.JobStatus, err error) {
	r, ok := t.records[jobID]
	if !ok {
		return "", &ErrInvalidTransition{JobID: jobID, To: to, Detail: "unknown job"}
	}
	if !CanTransition(r.Status, to) {
		return r.Status, &ErrInvalidTransition{JobID: jobID, From: r.Status, To: to}
	}
	prior = r.Status
	r.Status = to
	r.UpdatedAt = now

	switch to {
	case store.JobStatusQueued:
		// Reroute: percentage restarts with the next allocation.
		r.PercentComplete = 0
		r.Step = ""
	case store.JobStatusComplete:
		r.PercentComplete = 100
		r.EstimatedRemaining = 0
	}
	return prior, nil
}

// ReportProgress applies a percent/step update from the unit. Percent must
// be monotonically non-decreasing within a single allocation; a regression
// is an invalid transition.
func (t *Tracker) ReportProgress(jobID uuid.UUID, percent int, step string, remaining time.Duration, now time.Time) error {
	r, ok := t.records[jobID]
	if !ok {
		return &ErrInvalidTransition{JobID: jobID, Detail: "unknown job"}
	}
	if r.Status != store.JobStatusInProgress && r.Status != store.JobStatusFinishing {
		return &ErrInvalidTransition{JobID: jobID, From: r.Status, To: r.Status, Detail: "progress outside active allocation"}
	}
	if percent < 0 || percent > 100 {
		return &ErrInvalidTransition{JobID: jobID, From: r.Status, To: r.Status, Detail: fmt.Sprintf("percent %d out of range", percent)}
	}
	if percent < r.PercentComplete {
		return &ErrInvalidTransition{JobID: jobID, From: r.Status, To: r.Status,
			Detail: fmt.Sprintf("percent regression %d -> %d", r.PercentComplete, percent)}
	}
	r.PercentComplete = percent
	r.Step = step
	r.EstimatedRemaining = remaining
	r.UpdatedAt = now
	return nil
}

// Get returns a copy of the record for a job.
func (t *Tracker) Get(jobID uuid.UUID) (Record, bool) {
	r, ok := t.records[jobID]
	if !ok {
		return Record{}, false
	}
	return *r, true
}

// Snapshot returns copies of all records, for publication to readers.
func (t *Tracker) Snapshot() map[uuid.UUID]Record {
	out := make(map[uuid.UUID]Record, len(t.records))
	for id, r := range t.records {
		out[id] = *r
	}
	return out
}
