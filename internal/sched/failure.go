package sched

import (
	"fmt"

	"forgeplane/internal/store"

	"github.com/google/uuid"
)

// AlertSubsystem is the subsystem tag carried by scheduler staff alerts.
const AlertSubsystem = "forge"

// handleUnitFailure takes a unit out of service and reroutes whatever it
// was running. All of it happens inside a single event-processing step,
// so no other event can race a double assignment of the displaced job.
func (s *Scheduler) handleUnitFailure(unitID string, to store.UnitStatus, diagnostic string) {
	displaced, err := s.reg.MarkOffline(unitID, to)
	if err != nil {
		s.logger.Warn("failure report for unknown unit dropped", "unit_id", unitID)
		return
	}
	if err := s.append(&store.Entry{
		Kind:    store.EntryUnitOffline,
		UnitID:  unitID,
		Payload: mustJSON(unitPayload{Status: to}),
	}); err != nil {
		return
	}
	s.logger.Info("unit out of service", "unit_id", unitID, "status", to, "diagnostic", diagnostic)

	if j, ok := s.jobs[displaced]; ok && displaced != uuid.Nil {
		s.reroute(j, unitID, diagnostic)
	}

	if u, ok := s.reg.Get(unitID); ok && s.reg.AllOffline(u.Capability) && !s.classDown[u.Capability] {
		s.classDown[u.Capability] = true
		s.emit(StaffAlert{
			Severity:  SeverityCritical,
			Subsystem: AlertSubsystem,
			Message:   fmt.Sprintf("all %s units offline, class cannot schedule", u.Capability),
		})
	}
}

// reroute handles the job displaced by a failed unit. Within budget, the
// job returns to the queue with its original arrival order and age credit
// intact; past the budget it goes to terminal Error with exactly one
// critical staff alert.
func (s *Scheduler) reroute(j *store.Job, fromUnit, diagnostic string) {
	j.AssignedUnit = ""
	j.LastFailedUnit = fromUnit

	// A cancellation that was waiting on this unit is now trivially
	// safe: the unit stopped on its own.
	if j.CancelRequested {
		if err := s.transition(j, store.JobStatusCancelled, store.EntryJobTransition, fromUnit); err != nil {
			s.logger.Warn("invalid transition dropped", "job_id", j.ID, "err", err)
			return
		}
		s.retire(j)
		s.emit(JobCancelled{JobID: j.ID})
		return
	}

	if j.RerouteCount < s.cfg.MaxReroutes {
		if err := s.transition(j, store.JobStatusQueued, store.EntryJobReroute, fromUnit); err != nil {
			s.logger.Warn("invalid transition dropped", "job_id", j.ID, "err", err)
			return
		}
		j.RerouteCount++
		s.enqueue(j)
		s.emit(JobReroute{JobID: j.ID, FromUnit: fromUnit})
		s.match()
		return
	}

	// Budget exhausted.
	if err := s.transition(j, store.JobStatusError, store.EntryJobTransition, fromUnit); err != nil {
		s.logger.Warn("invalid transition dropped", "job_id", j.ID, "err", err)
		return
	}
	s.retire(j)
	reason := fmt.Sprintf("reroute budget exhausted after %d attempts: %s", j.RerouteCount, diagnostic)
	s.emit(JobFailed{JobID: j.ID, Reason: reason})
	s.emit(StaffAlert{
		Severity:  SeverityCritical,
		Subsystem: AlertSubsystem,
		JobID:     j.ID,
		Message:   reason,
	})
}
