package sched

import (
	"time"

	"forgeplane/internal/progress"
	"forgeplane/internal/store"

	"github.com/google/uuid"
)

// JobView pairs a job with its progress record in a published snapshot.
type JobView struct {
	Job    store.Job
	Record progress.Record
}

// Assignment is what a unit agent sees when it polls for work.
type Assignment struct {
	JobID             uuid.UUID
	CADRef            string
	EstimatedDuration time.Duration
	StopRequested     bool
}

// Snapshot is an immutable copy of scheduler state, published after every
// processed event. Readers never touch live structures and never observe
// a torn state.
type Snapshot struct {
	// Version increments once per processed event.
	Version int64
	Tick    int64

	// Jobs holds every job the scheduler knows about, terminal ones
	// included (they stay queryable after retirement).
	Jobs  map[uuid.UUID]JobView
	Units []store.Unit

	// Estimates caches the per-capability wait estimate.
	Estimates map[store.Capability]time.Duration

	// Assignments maps unit id to its current work, for agent polls.
	Assignments map[string]Assignment
}

// WaitEstimate returns the cached estimate for a capability.
func (s *Snapshot) WaitEstimate(capability store.Capability) time.Duration {
	return s.Estimates[capability]
}

// Job returns the view of one job.
func (s *Snapshot) Job(id uuid.UUID) (JobView, bool) {
	v, ok := s.Jobs[id]
	return v, ok
}

// ActiveJobs returns the non-terminal jobs for a customer, every job if
// customerID is uuid.Nil. Order is unspecified.
func (s *Snapshot) ActiveJobs(customerID uuid.UUID) []JobView {
	var out []JobView
	for _, v := range s.Jobs {
		if v.Job.Status.Terminal() {
			continue
		}
		if customerID != uuid.Nil && v.Job.CustomerID != customerID {
			continue
		}
		out = append(out, v)
	}
	return out
}

// UnitAssignment returns the current assignment of a unit.
func (s *Snapshot) UnitAssignment(unitID string) (Assignment, bool) {
	a, ok := s.Assignments[unitID]
	return a, ok
}

// QueueDepth returns the number of queued jobs per capability, for the
// metrics gauges.
func (s *Snapshot) QueueDepth() map[store.Capability]int {
	out := make(map[store.Capability]int)
	for _, v := range s.Jobs {
		if v.Job.Status == store.JobStatusQueued {
			out[v.Job.Capability]++
		}
	}
	return out
}
