package sched

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"forgeplane/internal/admission"
	"forgeplane/internal/store"

	"github.com/google/uuid"
)

// admitJob runs a submission through admission so the log carries the
// entry that replay rebuilds the job from, then hands it to the scheduler.
func admitJob(t *testing.T, adm *admission.Validator, s *Scheduler, capability string, d time.Duration, materials bool) store.Job {
	t.Helper()
	job, err := adm.Submit(context.Background(), admission.Request{
		CustomerID:        uuid.New(),
		Capability:        capability,
		EstimatedDuration: d,
		CADRef:            "cad://pattern",
		MaterialsReady:    materials,
	})
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	s.Process(JobSubmitted{Job: job})
	return job
}

// Build a log with the full lifecycle spread: a completed job, a rerouted
// job back on a unit, a queued job, a failed unit. Then replay it into a
// fresh scheduler and check the two agree.
func TestRestore_RebuildsStateFromLog(t *testing.T) {
	logStore := store.NewMemoryLog()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	adm := admission.New(logStore, 0)

	s1 := New(Config{}, logStore, logger)
	registerUnit(t, s1, "unit-01", store.CapabilityTextile)
	registerUnit(t, s1, "unit-02", store.CapabilityTextile)

	j1 := admitJob(t, adm, s1, "textile", 600*time.Second, true)
	j2 := admitJob(t, adm, s1, "textile", 300*time.Second, true)
	j3 := admitJob(t, adm, s1, "textile", 900*time.Second, true)
	s1.Process(ProgressReported{JobID: j1.ID, PercentComplete: 50, Step: "cutting"})
	s1.Process(UnitFailed{UnitID: "unit-01", Diagnostic: "thread break"})
	s1.Process(ProgressReported{JobID: j2.ID, PercentComplete: 100, Step: StepFinishing})

	s2 := New(Config{}, logStore, logger)
	maxArrival, err := s2.Restore(context.Background())
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if maxArrival != 3 {
		t.Errorf("got max arrival %d, want 3", maxArrival)
	}

	snap := s2.Snapshot()

	v1, ok := snap.Job(j1.ID)
	if !ok {
		t.Fatal("j1 missing after replay")
	}
	if v1.Job.Status != store.JobStatusAllocated || v1.Job.AssignedUnit != "unit-02" {
		t.Errorf("j1 replayed as %s on %q, want ALLOCATED on unit-02", v1.Job.Status, v1.Job.AssignedUnit)
	}
	if v1.Job.RerouteCount != 1 || v1.Job.LastFailedUnit != "unit-01" {
		t.Errorf("j1 reroute bookkeeping lost: count=%d last=%q", v1.Job.RerouteCount, v1.Job.LastFailedUnit)
	}

	v2, _ := snap.Job(j2.ID)
	if v2.Job.Status != store.JobStatusComplete || v2.Job.CompletedAt == nil {
		t.Errorf("j2 replayed as %s, want COMPLETE with timestamp", v2.Job.Status)
	}

	v3, _ := snap.Job(j3.ID)
	if v3.Job.Status != store.JobStatusQueued {
		t.Errorf("j3 replayed as %s, want QUEUED", v3.Job.Status)
	}

	units := map[string]store.Unit{}
	for _, u := range snap.Units {
		units[u.ID] = u
	}
	if got := units["unit-01"].Status; got != store.UnitStatusFaulted {
		t.Errorf("unit-01 replayed as %s, want FAULTED", got)
	}
	if u := units["unit-02"]; u.Status != store.UnitStatusBusy || u.CurrentJob != j1.ID {
		t.Errorf("unit-02 replayed as %s carrying %s, want BUSY with j1", u.Status, u.CurrentJob)
	}
}

// Replaying entries that are already applied is a no-op: a second Restore
// on the same scheduler changes nothing.
func TestRestore_ReplayIsIdempotent(t *testing.T) {
	logStore := store.NewMemoryLog()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	adm := admission.New(logStore, 0)

	s1 := New(Config{}, logStore, logger)
	registerUnit(t, s1, "unit-01", store.CapabilityAdditive)
	j := admitJob(t, adm, s1, "additive", 300*time.Second, true)
	s1.Process(ProgressReported{JobID: j.ID, PercentComplete: 30, Step: "printing"})

	s2 := New(Config{}, logStore, logger)
	if _, err := s2.Restore(context.Background()); err != nil {
		t.Fatalf("first restore: %v", err)
	}
	before, _ := s2.Snapshot().Job(j.ID)

	if _, err := s2.Restore(context.Background()); err != nil {
		t.Fatalf("second restore: %v", err)
	}
	after, _ := s2.Snapshot().Job(j.ID)

	if before.Job != after.Job {
		t.Errorf("second replay changed the job:\nbefore %+v\nafter  %+v", before.Job, after.Job)
	}
	if n := len(s2.Snapshot().Units); n != 1 {
		t.Errorf("second replay duplicated units: %d", n)
	}
}

// A restored scheduler keeps scheduling: the queued job lands on the unit
// freed by the next completion.
func TestRestore_SchedulingContinuesAfterReplay(t *testing.T) {
	logStore := store.NewMemoryLog()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	adm := admission.New(logStore, 0)

	s1 := New(Config{}, logStore, logger)
	registerUnit(t, s1, "unit-01", store.CapabilityTextile)
	running := admitJob(t, adm, s1, "textile", 600*time.Second, true)
	waiting := admitJob(t, adm, s1, "textile", 300*time.Second, true)

	s2 := New(Config{}, logStore, logger)
	if _, err := s2.Restore(context.Background()); err != nil {
		t.Fatalf("restore: %v", err)
	}
	drain(s2)

	s2.Process(ProgressReported{JobID: running.ID, PercentComplete: 100, Step: StepFinishing})
	got := allocations(drain(s2))
	if len(got) != 1 || got[0].JobID != waiting.ID {
		t.Errorf("queued job not picked up after replay: %+v", got)
	}
}

// Held jobs are replayed back into the held set, not the queue.
func TestRestore_MaterialsGateSurvivesReplay(t *testing.T) {
	logStore := store.NewMemoryLog()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	adm := admission.New(logStore, 0)

	s1 := New(Config{}, logStore, logger)
	registerUnit(t, s1, "unit-01", store.CapabilityTextile)
	j := admitJob(t, adm, s1, "textile", 600*time.Second, false)

	s2 := New(Config{}, logStore, logger)
	if _, err := s2.Restore(context.Background()); err != nil {
		t.Fatalf("restore: %v", err)
	}
	drain(s2)

	if got := jobStatus(t, s2, j.ID); got != store.JobStatusQueued {
		t.Fatalf("held job replayed as %s", got)
	}
	if got := allocations(drain(s2)); len(got) != 0 {
		t.Fatalf("held job allocated after replay: %+v", got)
	}

	s2.Process(MaterialAvailabilityChanged{JobID: j.ID, Ready: true})
	got := allocations(drain(s2))
	if len(got) != 1 || got[0].JobID != j.ID {
		t.Errorf("held job not released after replay: %+v", got)
	}
}

// An allocation rolled back with a plain transition entry replays as a
// requeue without touching the reroute budget; only reroute entries
// spend it.
func TestRestore_RolledBackAllocationSpendsNoBudget(t *testing.T) {
	logStore := store.NewMemoryLog()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	adm := admission.New(logStore, 0)

	s1 := New(Config{}, logStore, logger)
	registerUnit(t, s1, "unit-01", store.CapabilityTextile)
	j := admitJob(t, adm, s1, "textile", 600*time.Second, true)

	if err := logStore.Append(context.Background(), &store.Entry{
		Kind:  store.EntryJobTransition,
		JobID: j.ID,
		Prior: store.JobStatusAllocated,
		New:   store.JobStatusQueued,
	}); err != nil {
		t.Fatalf("append: %v", err)
	}

	s2 := New(Config{}, logStore, logger)
	if _, err := s2.Restore(context.Background()); err != nil {
		t.Fatalf("restore: %v", err)
	}

	v, _ := s2.Snapshot().Job(j.ID)
	if v.Job.Status != store.JobStatusQueued || v.Job.RerouteCount != 0 {
		t.Errorf("got %s with %d reroutes, want QUEUED with 0", v.Job.Status, v.Job.RerouteCount)
	}
	for _, u := range s2.Snapshot().Units {
		if u.ID == "unit-01" && u.Status != store.UnitStatusIdle {
			t.Errorf("unit not freed by the rollback replay, status %s", u.Status)
		}
	}
}

// A corrupt entry is skipped; everything behind it still replays.
func TestRestore_SkipsMalformedEntry(t *testing.T) {
	logStore := store.NewMemoryLog()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	adm := admission.New(logStore, 0)

	s1 := New(Config{}, logStore, logger)
	if err := logStore.Append(context.Background(), &store.Entry{
		Kind:    store.EntryJobSubmitted,
		JobID:   uuid.New(),
		Payload: []byte("{not json"),
	}); err != nil {
		t.Fatalf("append: %v", err)
	}
	good := admitJob(t, adm, s1, "textile", 300*time.Second, true)

	s2 := New(Config{}, logStore, logger)
	if _, err := s2.Restore(context.Background()); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if _, ok := s2.Snapshot().Job(good.ID); !ok {
		t.Error("entry behind the malformed one was not replayed")
	}
}
