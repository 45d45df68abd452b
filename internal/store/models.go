// Package store contains the shared data model and the persistence
// contracts for forgeplane.
package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Capability is the capability class of a fabrication unit or job.
// A job can only run on a unit of the same class.
type Capability string

const (
	CapabilityTextile  Capability = "textile"
	CapabilityAdditive Capability = "additive"
	CapabilityHybrid   Capability = "hybrid"
)

// ParseCapability validates a capability string from an external request.
func ParseCapability(s string) (Capability, error) {
	switch Capability(s) {
	case CapabilityTextile, CapabilityAdditive, CapabilityHybrid:
		return Capability(s), nil
	}
	return "", fmt.Errorf("unknown capability %q", s)
}

// JobStatus represents the lifecycle state of a job.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "QUEUED"
	JobStatusAllocated  JobStatus = "ALLOCATED"
	JobStatusInProgress JobStatus = "IN_PROGRESS"
	JobStatusFinishing  JobStatus = "FINISHING"
	JobStatusComplete   JobStatus = "COMPLETE"
	JobStatusError      JobStatus = "ERROR"
	JobStatusCancelled  JobStatus = "CANCELLED"
)

// Terminal reports whether a job in this status can never change again.
func (s JobStatus) Terminal() bool {
	return s == JobStatusComplete || s == JobStatusError || s == JobStatusCancelled
}

// Job is a unit of fabrication work as seen by the scheduler.
type Job struct {
	ID         uuid.UUID
	CustomerID uuid.UUID
	Capability Capability

	// EstimatedDuration is the fabrication time supplied at submission.
	// Always positive for an admitted job.
	EstimatedDuration time.Duration

	// ArrivalOrder is assigned once at admission and never reused,
	// including across reroutes.
	ArrivalOrder int64

	Status       JobStatus
	AssignedUnit string // empty unless Allocated/InProgress/Finishing
	RerouteCount int

	// LastFailedUnit is the unit whose failure caused the most recent
	// reroute, reported in the JobReroute event on re-allocation.
	LastFailedUnit string

	// MaterialsReady gates schedulability. A job admitted with materials
	// pending is held out of the queue until the availability event
	// arrives.
	MaterialsReady bool

	CADRef      string
	SubmittedAt time.Time
	CompletedAt *time.Time

	// EnqueueTick is the scheduler tick at which the job first entered
	// the queue, negative until then. Reroutes preserve it so a unit
	// failure never costs the job its accrued age credit.
	EnqueueTick int64

	// CancelRequested is set when a cancellation arrives while the job
	// is on a unit; the scheduler waits for a safe-stop acknowledgement.
	CancelRequested bool
}

// UnitStatus represents the health state of a fabrication unit.
type UnitStatus string

const (
	UnitStatusIdle    UnitStatus = "IDLE"
	UnitStatusBusy    UnitStatus = "BUSY"
	UnitStatusOffline UnitStatus = "OFFLINE"
	UnitStatusFaulted UnitStatus = "FAULTED"
)

// Unit is a physical fabrication resource.
type Unit struct {
	ID         string
	Capability Capability
	Status     UnitStatus

	// CurrentJob is non-nil iff Status is Busy.
	CurrentJob    uuid.UUID
	LastHeartbeat time.Time
}

// Entry is one append-only Transaction Log record. The log is written
// synchronously before any externally visible effect and replayed in
// sequence order on restart.
type Entry struct {
	Seq       int64
	Kind      string // originating event, e.g. "job_submitted"
	JobID     uuid.UUID
	UnitID    string
	Prior     JobStatus
	New       JobStatus
	Payload   json.RawMessage
	Timestamp time.Time
}

// Log entry kinds.
const (
	EntryJobSubmitted   = "job_submitted"
	EntryJobTransition  = "job_transition"
	EntryJobReroute     = "job_reroute"
	EntryUnitRegistered = "unit_registered"
	EntryUnitOffline    = "unit_offline"
	EntryUnitOnline     = "unit_online"
	EntryMaterialsReady = "materials_ready"
)

// Customer represents a customer account. Customer identity is opaque to
// the scheduler; it only scopes jobs and API access.
type Customer struct {
	ID             uuid.UUID
	Name           string
	RateLimit      float64 // submissions per second, 0 = unlimited
	RateLimitBurst int
	CreatedAt      time.Time
}
