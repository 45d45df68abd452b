// Package sched contains the scheduler: the single serializing event loop
// that owns all mutable job, unit and queue state, the matching engine,
// the wait-time estimator and the failure/rerouting handler.
package sched

import (
	"time"

	"forgeplane/internal/store"

	"github.com/google/uuid"
)

// Event is an inbound scheduler event. The set of variants is closed:
// external collaborators only ever interact with the scheduler through
// these shapes, never through direct calls into its state.
type Event interface {
	isEvent()
}

// JobSubmitted enters a job that admission has already validated and
// logged. The scheduler never sees a job without its admission log entry.
type JobSubmitted struct {
	Job store.Job
}

// RegisterUnit adds a fabrication unit to the pool. Reply, when non-nil,
// receives the registration result (DuplicateUnit on id collision).
type RegisterUnit struct {
	UnitID     string
	Capability store.Capability
	Reply      chan error
}

// UnitHeartbeat refreshes a unit's liveness timestamp.
type UnitHeartbeat struct {
	UnitID    string
	Timestamp time.Time
}

// UnitFailed reports a hardware fault on a unit.
type UnitFailed struct {
	UnitID     string
	Diagnostic string
}

// UnitRestored returns a repaired unit to service.
type UnitRestored struct {
	UnitID string
	Reply  chan error
}

// ProgressReported carries a percent/step update from the unit driving a
// job. The first report moves the job Allocated -> InProgress; a report
// with step StepFinishing moves it to Finishing; percent 100 completes it.
type ProgressReported struct {
	JobID           uuid.UUID
	PercentComplete int
	Step            string
}

// StopAcknowledged confirms that a unit halted a cancelled job at a safe
// checkpoint.
type StopAcknowledged struct {
	JobID  uuid.UUID
	UnitID string
}

// CancelRequested asks for a job to be cancelled. Queued jobs are removed
// immediately; running jobs are stopped cooperatively.
type CancelRequested struct {
	JobID uuid.UUID
}

// MaterialAvailabilityChanged flips the materials gate for a held job.
type MaterialAvailabilityChanged struct {
	JobID uuid.UUID
	Ready bool
}

// SweepTick advances the scheduler's logical clock. It drives queue aging,
// the heartbeat staleness sweep and cancellation timeouts.
type SweepTick struct {
	Now time.Time
}

func (JobSubmitted) isEvent()                {}
func (RegisterUnit) isEvent()                {}
func (UnitHeartbeat) isEvent()               {}
func (UnitFailed) isEvent()                  {}
func (UnitRestored) isEvent()                {}
func (ProgressReported) isEvent()            {}
func (StopAcknowledged) isEvent()            {}
func (CancelRequested) isEvent()             {}
func (MaterialAvailabilityChanged) isEvent() {}
func (SweepTick) isEvent()                   {}

// StepFinishing is the step label a unit reports when it enters its final
// fabrication phase.
const StepFinishing = "finishing"

// Outbound is an event emitted by the scheduler for external collaborators.
type Outbound interface {
	isOutbound()
}

// JobAllocated is emitted when a queued job is matched to a unit.
type JobAllocated struct {
	JobID  uuid.UUID
	UnitID string
}

// JobProgress mirrors a validated progress update.
type JobProgress struct {
	JobID              uuid.UUID
	PercentComplete    int
	EstimatedRemaining time.Duration
	Step               string
}

// JobComplete is emitted when a job finishes fabrication.
type JobComplete struct {
	JobID uuid.UUID
}

// JobFailed is emitted when a job reaches terminal Error.
type JobFailed struct {
	JobID  uuid.UUID
	Reason string
}

// JobCancelled is emitted when a cancellation takes effect.
type JobCancelled struct {
	JobID uuid.UUID
}

// JobReroute is informational: the job was re-queued after its unit
// failed. ToUnit is filled only once the job is re-matched; at requeue
// time no replacement unit has been chosen yet.
type JobReroute struct {
	JobID    uuid.UUID
	FromUnit string
	ToUnit   string
}

// AlertSeverity classifies staff alerts.
type AlertSeverity string

const (
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// StaffAlert asks a human to intervene.
type StaffAlert struct {
	Severity  AlertSeverity
	Subsystem string
	JobID     uuid.UUID // Nil when the alert is not job-scoped
	Message   string
}

func (JobAllocated) isOutbound() {}
func (JobProgress) isOutbound()  {}
func (JobComplete) isOutbound()  {}
func (JobFailed) isOutbound()    {}
func (JobCancelled) isOutbound() {}
func (JobReroute) isOutbound()   {}
func (StaffAlert) isOutbound()   {}
