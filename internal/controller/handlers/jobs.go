package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"forgeplane/internal/admission"
	"forgeplane/internal/controller/middleware"
	"forgeplane/internal/logger"
	"forgeplane/internal/sched"
	"forgeplane/internal/store"
	"forgeplane/pkg/api"

	"github.com/google/uuid"
)

// SubmitJob admits a fabrication job for the authenticated customer.
// The admission entry is written to the transaction log before the job
// is dispatched into the scheduler.
func (h *Handlers) SubmitJob(w http.ResponseWriter, r *http.Request) {
	customer, ok := middleware.CustomerFromContext(r.Context())
	if !ok {
		httpError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req api.SubmitJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	job, err := h.admission.Submit(r.Context(), admission.Request{
		CustomerID:        customer.ID,
		Capability:        req.RequiredCapability,
		EstimatedDuration: time.Duration(req.EstimatedDurationSec) * time.Second,
		CADRef:            req.CADRef,
		MaterialsReady:    req.MaterialsReady,
	})
	if err != nil {
		var verr *admission.ValidationError
		if errors.As(err, &verr) {
			respondJson(w, http.StatusBadRequest, api.ErrorResponse{
				Error:   "validation failed",
				Code:    string(verr.Reason),
				Details: verr.Detail,
			})
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to admit job", "error", err)
		httpError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	ctx := logger.WithJobID(r.Context(), job.ID)
	if err := h.sched.Dispatch(ctx, sched.JobSubmitted{Job: job}); err != nil {
		h.logger.ErrorContext(ctx, "failed to dispatch job", "error", err)
		httpError(w, http.StatusServiceUnavailable, "scheduler unavailable")
		return
	}
	h.logger.InfoContext(ctx, "job submitted",
		"customer_id", customer.ID,
		"capability", job.Capability,
	)

	estimate := h.sched.Snapshot().WaitEstimate(job.Capability)
	respondJson(w, http.StatusCreated, api.SubmitJobResponse{
		JobID:           job.ID.String(),
		WaitEstimateSec: int64(estimate / time.Second),
	})
}

// GetJob returns the progress record of one job.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	customer, ok := middleware.CustomerFromContext(r.Context())
	if !ok {
		httpError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	view, found := h.sched.Snapshot().Job(id)
	if !found || view.Job.CustomerID != customer.ID {
		httpError(w, http.StatusNotFound, "job not found")
		return
	}

	respondJson(w, http.StatusOK, progressResponse(view))
}

// ListJobs returns the customer's non-terminal jobs, oldest first.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	customer, ok := middleware.CustomerFromContext(r.Context())
	if !ok {
		httpError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	views := h.sched.Snapshot().ActiveJobs(customer.ID)
	sort.Slice(views, func(i, j int) bool {
		return views[i].Job.ArrivalOrder < views[j].Job.ArrivalOrder
	})

	resp := api.ListJobsResponse{Jobs: make([]api.ProgressResponse, 0, len(views))}
	for _, v := range views {
		resp.Jobs = append(resp.Jobs, progressResponse(v))
	}
	respondJson(w, http.StatusOK, resp)
}

// CancelJob requests cancellation of a job. Queued jobs are cancelled
// immediately; running jobs stop at the next safe checkpoint.
func (h *Handlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	customer, ok := middleware.CustomerFromContext(r.Context())
	if !ok {
		httpError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	view, found := h.sched.Snapshot().Job(id)
	if !found || view.Job.CustomerID != customer.ID {
		httpError(w, http.StatusNotFound, "job not found")
		return
	}
	if view.Job.Status.Terminal() {
		httpError(w, http.StatusConflict, "job already finished")
		return
	}

	ctx := logger.WithJobID(r.Context(), id)
	if err := h.sched.Dispatch(ctx, sched.CancelRequested{JobID: id}); err != nil {
		h.logger.ErrorContext(ctx, "failed to dispatch cancellation", "error", err)
		httpError(w, http.StatusServiceUnavailable, "scheduler unavailable")
		return
	}
	h.logger.InfoContext(ctx, "cancellation requested", "status", view.Job.Status)

	respondJson(w, http.StatusAccepted, api.CancelResponse{
		JobID:    id.String(),
		Accepted: true,
	})
}

// GetEstimate returns the wait estimate for a capability class.
func (h *Handlers) GetEstimate(w http.ResponseWriter, r *http.Request) {
	capability, err := store.ParseCapability(r.URL.Query().Get("capability"))
	if err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}

	snap := h.sched.Snapshot()
	units := 0
	for _, u := range snap.Units {
		if u.Capability == capability && u.Status != store.UnitStatusOffline && u.Status != store.UnitStatusFaulted {
			units++
		}
	}

	respondJson(w, http.StatusOK, api.WaitEstimateResponse{
		Capability:      string(capability),
		WaitEstimateSec: int64(snap.WaitEstimate(capability) / time.Second),
		QueuedJobs:      snap.QueueDepth()[capability],
		Units:           units,
	})
}

func progressResponse(v sched.JobView) api.ProgressResponse {
	return api.ProgressResponse{
		JobID:                 v.Job.ID.String(),
		Status:                string(v.Job.Status),
		PercentComplete:       v.Record.PercentComplete,
		Step:                  v.Record.Step,
		AssignedUnit:          v.Job.AssignedUnit,
		RerouteCount:          v.Job.RerouteCount,
		EstimatedRemainingSec: int64(v.Record.EstimatedRemaining / time.Second),
		SubmittedAt:           v.Job.SubmittedAt,
		CompletedAt:           v.Job.CompletedAt,
	}
}
