// Package api contains shared JSON request/response structs.
// This package is shared between the CLI, Controller and the unit agent.
package api

import "time"

// CreateCustomerRequest is the request body for registering a new customer.
type CreateCustomerRequest struct {
	Name string `json:"name"`
}

// CreateCustomerResponse is the response body after registering a customer.
type CreateCustomerResponse struct {
	ID     string `json:"customer_id"`
	Name   string `json:"name"`
	ApiKey string `json:"api_key"`
}

// SubmitJobRequest is the request body for submitting a fabrication job.
type SubmitJobRequest struct {
	RequiredCapability string `json:"required_capability"`
	// EstimatedDuration is the expected fabrication time in seconds.
	EstimatedDurationSec int64 `json:"estimated_duration_sec"`
	// CADRef points at the already-validated pattern file for the job.
	CADRef         string `json:"cad_ref"`
	MaterialsReady bool   `json:"materials_ready"`
}

// SubmitJobResponse is the response body after submitting a job.
type SubmitJobResponse struct {
	JobID string `json:"job_id"`
	// WaitEstimateSec is the wait estimate for the job's capability class
	// at admission time.
	WaitEstimateSec int64 `json:"wait_estimate_sec"`
}

// ProgressResponse is the externally visible progress record of a job.
type ProgressResponse struct {
	JobID                 string     `json:"job_id"`
	Status                string     `json:"status"`
	PercentComplete       int        `json:"percent_complete"`
	Step                  string     `json:"step,omitempty"`
	AssignedUnit          string     `json:"assigned_unit,omitempty"`
	RerouteCount          int        `json:"reroute_count"`
	EstimatedRemainingSec int64      `json:"estimated_remaining_sec"`
	SubmittedAt           time.Time  `json:"submitted_at"`
	CompletedAt           *time.Time `json:"completed_at,omitempty"`
}

// ListJobsResponse is the response body for listing a customer's active jobs.
type ListJobsResponse struct {
	Jobs []ProgressResponse `json:"jobs"`
}

// CancelResponse is the response body for a cancellation request.
type CancelResponse struct {
	JobID string `json:"job_id"`
	// Accepted indicates the cancellation was admitted into the event
	// stream. Cancellation of a running job completes asynchronously.
	Accepted bool `json:"accepted"`
}

// WaitEstimateResponse is the response body for a capability wait estimate.
type WaitEstimateResponse struct {
	Capability      string `json:"capability"`
	WaitEstimateSec int64  `json:"wait_estimate_sec"`
	QueuedJobs      int    `json:"queued_jobs"`
	Units           int    `json:"units"`
}

// RegisterUnitRequest is the request body for registering a fabrication unit.
type RegisterUnitRequest struct {
	UnitID          string `json:"unit_id"`
	CapabilityClass string `json:"capability_class"`
}

// UnitResponse describes one fabrication unit in pool listings.
type UnitResponse struct {
	UnitID          string     `json:"unit_id"`
	CapabilityClass string     `json:"capability_class"`
	Status          string     `json:"status"`
	CurrentJob      string     `json:"current_job,omitempty"`
	LastHeartbeat   *time.Time `json:"last_heartbeat,omitempty"`
}

// ListUnitsResponse is the response body for the pool snapshot.
type ListUnitsResponse struct {
	Units []UnitResponse `json:"units"`
}

// AssignmentResponse is polled by the unit agent. When no job is assigned
// the JobID is empty.
type AssignmentResponse struct {
	JobID  string `json:"job_id,omitempty"`
	CADRef string `json:"cad_ref,omitempty"`
	// EstimatedDurationSec is forwarded so the driver can pace itself.
	EstimatedDurationSec int64 `json:"estimated_duration_sec,omitempty"`
	// StopRequested tells the agent to halt the job at the next safe
	// checkpoint and acknowledge via the stop-ack endpoint.
	StopRequested bool `json:"stop_requested,omitempty"`
}

// HeartbeatRequest is sent periodically by the unit agent.
type HeartbeatRequest struct {
	Timestamp time.Time `json:"timestamp"`
}

// ProgressReport is the payload sent by the unit agent as fabrication
// advances. PercentComplete must be non-decreasing within one allocation.
type ProgressReport struct {
	JobID           string `json:"job_id"`
	PercentComplete int    `json:"percent_complete"`
	Step            string `json:"step"`
}

// UnitFailureReport is sent when the driver detects a hardware fault.
type UnitFailureReport struct {
	Diagnostic string `json:"diagnostic"`
}

// StopAck is sent by the unit agent once a cancelled job reached a safe
// stopping checkpoint.
type StopAck struct {
	JobID string `json:"job_id"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// Capability classes understood by the scheduler.
const (
	CapabilityTextile  = "textile"
	CapabilityAdditive = "additive"
	CapabilityHybrid   = "hybrid"
)
