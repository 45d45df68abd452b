package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"forgeplane/internal/registry"
	"forgeplane/internal/sched"
	"forgeplane/internal/store"
	"forgeplane/pkg/api"

	"github.com/google/uuid"
)

// replyTimeout bounds how long a handler waits for the scheduler to
// answer a registration or restore event.
const replyTimeout = 5 * time.Second

// ListUnits returns the fabrication pool snapshot.
func (h *Handlers) ListUnits(w http.ResponseWriter, r *http.Request) {
	snap := h.sched.Snapshot()

	resp := api.ListUnitsResponse{Units: make([]api.UnitResponse, 0, len(snap.Units))}
	for _, u := range snap.Units {
		unit := api.UnitResponse{
			UnitID:          u.ID,
			CapabilityClass: string(u.Capability),
			Status:          string(u.Status),
		}
		if u.CurrentJob != uuid.Nil {
			unit.CurrentJob = u.CurrentJob.String()
		}
		if !u.LastHeartbeat.IsZero() {
			hb := u.LastHeartbeat
			unit.LastHeartbeat = &hb
		}
		resp.Units = append(resp.Units, unit)
	}
	respondJson(w, http.StatusOK, resp)
}

// RegisterUnit adds a fabrication unit to the pool.
func (h *Handlers) RegisterUnit(w http.ResponseWriter, r *http.Request) {
	var req api.RegisterUnitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UnitID == "" {
		httpError(w, http.StatusBadRequest, "unit_id is required")
		return
	}
	capability, err := store.ParseCapability(req.CapabilityClass)
	if err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}

	reply := make(chan error, 1)
	ev := sched.RegisterUnit{UnitID: req.UnitID, Capability: capability, Reply: reply}
	if err := h.awaitReply(r, ev, reply); err != nil {
		if errors.Is(err, registry.ErrDuplicateUnit) {
			httpError(w, http.StatusConflict, err.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to register unit", "unit_id", req.UnitID, "error", err)
		httpError(w, http.StatusServiceUnavailable, "scheduler unavailable")
		return
	}
	h.logger.InfoContext(r.Context(), "unit registered", "unit_id", req.UnitID, "capability", capability)

	respondJson(w, http.StatusCreated, api.UnitResponse{
		UnitID:          req.UnitID,
		CapabilityClass: string(capability),
		Status:          string(store.UnitStatusIdle),
	})
}

// RestoreUnit returns a repaired unit to service.
func (h *Handlers) RestoreUnit(w http.ResponseWriter, r *http.Request) {
	unitID := r.PathValue("id")

	reply := make(chan error, 1)
	ev := sched.UnitRestored{UnitID: unitID, Reply: reply}
	if err := h.awaitReply(r, ev, reply); err != nil {
		if errors.Is(err, registry.ErrUnknownUnit) {
			httpError(w, http.StatusNotFound, err.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to restore unit", "unit_id", unitID, "error", err)
		httpError(w, http.StatusServiceUnavailable, "scheduler unavailable")
		return
	}
	h.logger.InfoContext(r.Context(), "unit restored", "unit_id", unitID)

	respondJson(w, http.StatusOK, api.UnitResponse{
		UnitID: unitID,
		Status: string(store.UnitStatusIdle),
	})
}

func (h *Handlers) awaitReply(r *http.Request, ev sched.Event, reply chan error) error {
	ctx := r.Context()
	if err := h.sched.Dispatch(ctx, ev); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-time.After(replyTimeout):
		return errors.New("timed out waiting for scheduler")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UnitAssignment is polled by the unit agent for its current work.
func (h *Handlers) UnitAssignment(w http.ResponseWriter, r *http.Request) {
	unitID := r.PathValue("id")

	assignment, ok := h.sched.Snapshot().UnitAssignment(unitID)
	if !ok {
		respondJson(w, http.StatusOK, api.AssignmentResponse{})
		return
	}
	respondJson(w, http.StatusOK, api.AssignmentResponse{
		JobID:                assignment.JobID.String(),
		CADRef:               assignment.CADRef,
		EstimatedDurationSec: int64(assignment.EstimatedDuration / time.Second),
		StopRequested:        assignment.StopRequested,
	})
}

// UnitHeartbeat refreshes a unit's liveness timestamp.
func (h *Handlers) UnitHeartbeat(w http.ResponseWriter, r *http.Request) {
	unitID := r.PathValue("id")

	var req api.HeartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ts := req.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	if err := h.sched.Dispatch(r.Context(), sched.UnitHeartbeat{UnitID: unitID, Timestamp: ts}); err != nil {
		httpError(w, http.StatusServiceUnavailable, "scheduler unavailable")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UnitProgress ingests a progress report from the unit agent.
func (h *Handlers) UnitProgress(w http.ResponseWriter, r *http.Request) {
	var req api.ProgressReport
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	jobID, err := uuid.Parse(req.JobID)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	ev := sched.ProgressReported{
		JobID:           jobID,
		PercentComplete: req.PercentComplete,
		Step:            req.Step,
	}
	if err := h.sched.Dispatch(r.Context(), ev); err != nil {
		httpError(w, http.StatusServiceUnavailable, "scheduler unavailable")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// UnitFailed reports a hardware fault detected by the unit driver.
func (h *Handlers) UnitFailed(w http.ResponseWriter, r *http.Request) {
	unitID := r.PathValue("id")

	var req api.UnitFailureReport
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ev := sched.UnitFailed{UnitID: unitID, Diagnostic: req.Diagnostic}
	if err := h.sched.Dispatch(r.Context(), ev); err != nil {
		httpError(w, http.StatusServiceUnavailable, "scheduler unavailable")
		return
	}
	h.logger.WarnContext(r.Context(), "unit failure reported", "unit_id", unitID, "diagnostic", req.Diagnostic)
	w.WriteHeader(http.StatusAccepted)
}

// UnitStopAck confirms that a cancelled job was halted at a safe
// checkpoint.
func (h *Handlers) UnitStopAck(w http.ResponseWriter, r *http.Request) {
	unitID := r.PathValue("id")

	var req api.StopAck
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	jobID, err := uuid.Parse(req.JobID)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	if err := h.sched.Dispatch(r.Context(), sched.StopAcknowledged{JobID: jobID, UnitID: unitID}); err != nil {
		httpError(w, http.StatusServiceUnavailable, "scheduler unavailable")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
