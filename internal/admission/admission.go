// Package admission validates job submissions and assigns arrival order.
// A job is never visible to the scheduler without its admission entry in
// the Transaction Log, which is the crash-recovery anchor.
package admission

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"forgeplane/internal/store"

	"github.com/google/uuid"
)

// ValidationReason names why a submission was rejected.
type ValidationReason string

const (
	ReasonMissingCAD          ValidationReason = "missing_cad"
	ReasonUnknownCapability   ValidationReason = "unknown_capability"
	ReasonNonPositiveDuration ValidationReason = "non_positive_duration"
)

// ValidationError rejects a submission at admission time. The job never
// enters scheduler state and the caller is notified synchronously.
type ValidationError struct {
	Reason ValidationReason
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed (%s): %s", e.Reason, e.Detail)
}

// Request is a job submission as received from the upstream collaborators.
// Content correctness (the CAD data itself) is validated before it gets
// here; admission checks schedulability only.
type Request struct {
	CustomerID        uuid.UUID
	Capability        string
	EstimatedDuration time.Duration
	CADRef            string
	MaterialsReady    bool
}

// Validator admits jobs: validates, assigns the monotonic arrival order
// and writes the admission log entry before the job becomes visible.
type Validator struct {
	log     store.TxLog
	arrival atomic.Int64
}

// New creates a Validator. lastArrival seeds the counter after a log
// replay so arrival orders are never reused.
func New(log store.TxLog, lastArrival int64) *Validator {
	v := &Validator{log: log}
	v.arrival.Store(lastArrival)
	return v
}

// Submit validates the request and returns the admitted job. The caller
// dispatches the job into the scheduler only after Submit returns.
func (v *Validator) Submit(ctx context.Context, req Request) (store.Job, error) {
	capability, err := store.ParseCapability(req.Capability)
	if err != nil {
		return store.Job{}, &ValidationError{Reason: ReasonUnknownCapability, Detail: err.Error()}
	}
	if req.EstimatedDuration <= 0 {
		return store.Job{}, &ValidationError{
			Reason: ReasonNonPositiveDuration,
			Detail: fmt.Sprintf("estimated duration %v must be positive", req.EstimatedDuration),
		}
	}
	if req.CADRef == "" {
		return store.Job{}, &ValidationError{Reason: ReasonMissingCAD, Detail: "cad reference is required"}
	}

	job := store.Job{
		ID:                uuid.New(),
		CustomerID:        req.CustomerID,
		Capability:        capability,
		EstimatedDuration: req.EstimatedDuration,
		ArrivalOrder:      v.arrival.Add(1),
		Status:            store.JobStatusQueued,
		MaterialsReady:    req.MaterialsReady,
		CADRef:            req.CADRef,
		SubmittedAt:       time.Now().UTC(),
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return store.Job{}, fmt.Errorf("encode admission payload: %w", err)
	}
	entry := &store.Entry{
		Kind:      store.EntryJobSubmitted,
		JobID:     job.ID,
		New:       store.JobStatusQueued,
		Payload:   payload,
		Timestamp: job.SubmittedAt,
	}
	if err := v.log.Append(ctx, entry); err != nil {
		return store.Job{}, fmt.Errorf("write admission entry: %w", err)
	}
	return job, nil
}
