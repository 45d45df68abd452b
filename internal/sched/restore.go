package sched

import (
	"context"
	"encoding/json"
	"fmt"

	"forgeplane/internal/store"
)

// Restore rebuilds scheduler state by replaying the Transaction Log in
// sequence order. Replay is idempotent: entries at or below the highest
// already-applied sequence are no-ops, so calling Restore twice yields
// identical state. It returns the highest arrival order seen, which seeds
// the admission counter.
//
// Queue age credit does not survive a restart: restored jobs re-enter the
// queue with a zero enqueue tick, which orders them by duration and
// arrival until new ticks accrue.
func (s *Scheduler) Restore(ctx context.Context) (maxArrival int64, err error) {
	err = s.txlog.Replay(ctx, func(e store.Entry) error {
		if e.Seq <= s.applied {
			return nil
		}
		if err := s.applyEntry(e); err != nil {
			// A malformed entry is logged and skipped; one bad record
			// must not block recovery of everything behind it.
			s.logger.Error("skipping unreplayable log entry", "seq", e.Seq, "kind", e.Kind, "err", err)
		}
		s.applied = e.Seq
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("replay transaction log: %w", err)
	}
	for _, j := range s.jobs {
		if j.ArrivalOrder > maxArrival {
			maxArrival = j.ArrivalOrder
		}
	}
	s.publish()
	return maxArrival, nil
}

func (s *Scheduler) applyEntry(e store.Entry) error {
	switch e.Kind {
	case store.EntryJobSubmitted:
		var j store.Job
		if err := json.Unmarshal(e.Payload, &j); err != nil {
			return fmt.Errorf("decode job payload: %w", err)
		}
		if _, ok := s.jobs[j.ID]; ok {
			return nil
		}
		j.Status = store.JobStatusQueued
		s.jobs[j.ID] = &j
		s.tracker.Track(j.ID, e.Timestamp, j.EstimatedDuration)
		if j.MaterialsReady {
			j.EnqueueTick = 0
			s.queue.push(&j, s.scoreOf(&j))
		} else {
			// Held jobs get their tick when materials arrive.
			j.EnqueueTick = -1
			s.held[j.ID] = true
		}

	case store.EntryJobTransition, store.EntryJobReroute:
		j, ok := s.jobs[e.JobID]
		if !ok {
			return fmt.Errorf("transition for unknown job %s", e.JobID)
		}
		return s.replayTransition(j, e)

	case store.EntryUnitRegistered:
		var p unitPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return fmt.Errorf("decode unit payload: %w", err)
		}
		return s.reg.RegisterUnit(e.UnitID, p.Capability, e.Timestamp)

	case store.EntryUnitOffline:
		var p unitPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return fmt.Errorf("decode unit payload: %w", err)
		}
		// The displaced job's own reroute entry follows in the log.
		_, err := s.reg.MarkOffline(e.UnitID, p.Status)
		return err

	case store.EntryUnitOnline:
		return s.reg.MarkOnline(e.UnitID, e.Timestamp)

	case store.EntryMaterialsReady:
		j, ok := s.jobs[e.JobID]
		if !ok {
			return fmt.Errorf("materials update for unknown job %s", e.JobID)
		}
		var p materialsPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return fmt.Errorf("decode materials payload: %w", err)
		}
		j.MaterialsReady = p.Ready
		if p.Ready && s.held[j.ID] {
			delete(s.held, j.ID)
			s.queue.push(j, s.scoreOf(j))
		} else if !p.Ready && s.queue.remove(j.ID) {
			s.held[j.ID] = true
		}

	default:
		return fmt.Errorf("unknown entry kind %q", e.Kind)
	}
	return nil
}

func (s *Scheduler) replayTransition(j *store.Job, e store.Entry) error {
	if _, err := s.tracker.Transition(j.ID, e.New, e.Timestamp); err != nil {
		return err
	}
	j.Status = e.New

	switch e.New {
	case store.JobStatusAllocated:
		s.queue.remove(j.ID)
		j.AssignedUnit = e.UnitID
		if err := s.reg.Assign(e.UnitID, j.ID); err != nil {
			return err
		}

	case store.JobStatusQueued:
		// A reroute off a failed unit spends budget; a rolled-back
		// allocation does not.
		if e.Kind == store.EntryJobReroute {
			j.RerouteCount++
			j.LastFailedUnit = e.UnitID
		}
		if j.AssignedUnit != "" {
			if err := s.reg.Release(j.AssignedUnit); err != nil {
				return err
			}
		}
		j.AssignedUnit = ""
		s.queue.push(j, s.scoreOf(j))

	case store.JobStatusComplete, store.JobStatusError, store.JobStatusCancelled:
		if j.AssignedUnit != "" {
			if err := s.reg.Release(j.AssignedUnit); err != nil {
				return err
			}
		}
		ts := e.Timestamp
		j.CompletedAt = &ts
		j.AssignedUnit = ""
		s.queue.remove(j.ID)
		delete(s.held, j.ID)
	}
	return nil
}
