package sched

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"forgeplane/internal/progress"
	"forgeplane/internal/registry"
	"forgeplane/internal/store"

	"github.com/google/uuid"
)

// Config holds the scheduler's tunable parameters.
type Config struct {
	// AgeWeight is the K in priorityScore = duration - K*ageBonus. Each
	// tick a job spends queued is worth AgeWeight seconds of duration.
	AgeWeight float64

	// MaxReroutes bounds how often a job is re-queued after unit
	// failures before it goes to terminal Error.
	MaxReroutes int

	// HeartbeatInterval is the expected cadence of unit heartbeats;
	// HeartbeatMisses of them without news marks the unit Offline.
	HeartbeatInterval time.Duration
	HeartbeatMisses   int

	// CancelTimeoutTicks is how many ticks a cancelled job's unit gets
	// to acknowledge a safe stop before the job is forced to Error.
	CancelTimeoutTicks int64

	// SweepInterval is the cadence of the internal sweep tick.
	SweepInterval time.Duration

	InboxSize  int
	OutboxSize int
}

func (c *Config) applyDefaults() {
	if c.AgeWeight <= 0 {
		c.AgeWeight = 5.0
	}
	if c.MaxReroutes <= 0 {
		c.MaxReroutes = 2
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 1 * time.Second
	}
	if c.HeartbeatMisses <= 0 {
		c.HeartbeatMisses = 5
	}
	if c.CancelTimeoutTicks <= 0 {
		c.CancelTimeoutTicks = 30
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 1 * time.Second
	}
	if c.InboxSize <= 0 {
		c.InboxSize = 1024
	}
	if c.OutboxSize <= 0 {
		c.OutboxSize = 1024
	}
}

// Scheduler is the single serializer that owns all mutable scheduling
// state. Producers enqueue events through Dispatch; Run drains them one
// at a time, so none of the state here needs a lock. Readers use the
// snapshot published after every event.
type Scheduler struct {
	cfg    Config
	txlog  store.TxLog
	logger *slog.Logger
	clock  func() time.Time

	reg     *registry.Registry
	tracker *progress.Tracker
	jobs    map[uuid.UUID]*store.Job
	queue   *jobQueue
	held    map[uuid.UUID]bool // admitted, materials pending

	// cancelDeadline maps a job awaiting a safe stop to the tick at
	// which the stop is forced to Error.
	cancelDeadline map[uuid.UUID]int64

	// classDown remembers which capability classes already raised the
	// cannot-schedule alert (every unit offline, or none registered), so
	// the condition is not re-reported until a unit comes online.
	classDown map[store.Capability]bool

	tick    int64
	version int64
	applied int64 // highest replayed log seq

	inbox  chan Event
	outbox chan Outbound
	snap   atomic.Pointer[Snapshot]

	droppedOutbound atomic.Int64
}

// New creates a Scheduler. It is inert until Run is called; tests drive
// it synchronously through Process.
func New(cfg Config, txlog store.TxLog, logger *slog.Logger) *Scheduler {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		cfg:            cfg,
		txlog:          txlog,
		logger:         logger,
		clock:          time.Now,
		reg:            registry.New(),
		tracker:        progress.NewTracker(),
		jobs:           make(map[uuid.UUID]*store.Job),
		queue:          newJobQueue(),
		held:           make(map[uuid.UUID]bool),
		cancelDeadline: make(map[uuid.UUID]int64),
		classDown:      make(map[store.Capability]bool),
		inbox:          make(chan Event, cfg.InboxSize),
		outbox:         make(chan Outbound, cfg.OutboxSize),
	}
	s.publish()
	return s
}

// Dispatch enqueues an event into the ordered inbound stream. It blocks
// only when the inbox is full.
func (s *Scheduler) Dispatch(ctx context.Context, ev Event) error {
	select {
	case s.inbox <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Events exposes the outbound event stream.
func (s *Scheduler) Events() <-chan Outbound {
	return s.outbox
}

// Snapshot returns the latest published state snapshot.
func (s *Scheduler) Snapshot() *Snapshot {
	return s.snap.Load()
}

// Run drains the inbox until the context is cancelled. It is the only
// goroutine that may call Process.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-s.inbox:
			s.Process(ev)
		case now := <-ticker.C:
			s.Process(SweepTick{Now: now})
		}
	}
}

// Process applies one event and publishes a fresh snapshot. It must only
// be called from the goroutine that owns the scheduler (Run, or a test
// driving the loop directly). A failure while processing one job's event
// never stops the stream for other jobs.
func (s *Scheduler) Process(ev Event) {
	switch e := ev.(type) {
	case JobSubmitted:
		s.handleJobSubmitted(e)
	case RegisterUnit:
		s.handleRegisterUnit(e)
	case UnitHeartbeat:
		if err := s.reg.RecordHeartbeat(e.UnitID, e.Timestamp); err != nil {
			s.logger.Warn("heartbeat for unknown unit", "unit_id", e.UnitID)
		}
	case UnitFailed:
		s.handleUnitFailure(e.UnitID, store.UnitStatusFaulted, e.Diagnostic)
	case UnitRestored:
		s.handleUnitRestored(e)
	case ProgressReported:
		s.handleProgress(e)
	case StopAcknowledged:
		s.handleStopAck(e)
	case CancelRequested:
		s.handleCancel(e)
	case MaterialAvailabilityChanged:
		s.handleMaterials(e)
	case SweepTick:
		s.handleSweep(e)
	}
	s.version++
	s.publish()
}

func (s *Scheduler) handleJobSubmitted(e JobSubmitted) {
	if _, ok := s.jobs[e.Job.ID]; ok {
		s.logger.Warn("duplicate job submission ignored", "job_id", e.Job.ID)
		return
	}
	j := e.Job
	j.Status = store.JobStatusQueued
	j.EnqueueTick = -1
	s.jobs[j.ID] = &j
	s.tracker.Track(j.ID, s.clock(), j.EstimatedDuration)

	if j.MaterialsReady {
		s.enqueue(&j)
		s.match()
	} else {
		s.held[j.ID] = true
	}

	// A class with no registered units can never serve this job; staff
	// have to bring hardware online. Alert once until that happens.
	if s.reg.CountByCapability(j.Capability) == 0 && !s.classDown[j.Capability] {
		s.classDown[j.Capability] = true
		s.emit(StaffAlert{
			Severity:  SeverityCritical,
			Subsystem: AlertSubsystem,
			Message:   fmt.Sprintf("no %s units registered, jobs of this class cannot schedule", j.Capability),
		})
	}
}

func (s *Scheduler) handleRegisterUnit(e RegisterUnit) {
	err := s.reg.RegisterUnit(e.UnitID, e.Capability, s.clock())
	if err == nil {
		err = s.append(&store.Entry{
			Kind:    store.EntryUnitRegistered,
			UnitID:  e.UnitID,
			Payload: mustJSON(unitPayload{Capability: e.Capability}),
		})
	}
	if e.Reply != nil {
		e.Reply <- err
	}
	if err != nil {
		return
	}
	delete(s.classDown, e.Capability)
	s.match()
}

func (s *Scheduler) handleUnitRestored(e UnitRestored) {
	err := s.reg.MarkOnline(e.UnitID, s.clock())
	if err == nil {
		err = s.append(&store.Entry{Kind: store.EntryUnitOnline, UnitID: e.UnitID})
	}
	if e.Reply != nil {
		e.Reply <- err
	}
	if err != nil {
		s.logger.Warn("unit restore rejected", "unit_id", e.UnitID, "err", err)
		return
	}
	if u, ok := s.reg.Get(e.UnitID); ok {
		delete(s.classDown, u.Capability)
	}
	s.match()
}

func (s *Scheduler) handleProgress(e ProgressReported) {
	j, ok := s.jobs[e.JobID]
	if !ok || j.Status.Terminal() {
		s.logger.Warn("progress for unknown or finished job dropped", "job_id", e.JobID)
		return
	}

	// First report moves the job onto the unit for real.
	if j.Status == store.JobStatusAllocated {
		if err := s.transition(j, store.JobStatusInProgress, store.EntryJobTransition, j.AssignedUnit); err != nil {
			s.logger.Warn("invalid transition dropped", "job_id", j.ID, "err", err)
			return
		}
	}

	// A unit entering its final phase reports the finishing step.
	if e.Step == StepFinishing && j.Status == store.JobStatusInProgress {
		if err := s.transition(j, store.JobStatusFinishing, store.EntryJobTransition, j.AssignedUnit); err != nil {
			s.logger.Warn("invalid transition dropped", "job_id", j.ID, "err", err)
			return
		}
	}

	remaining := remainingFor(j, e.PercentComplete)
	if err := s.tracker.ReportProgress(j.ID, e.PercentComplete, e.Step, remaining, s.clock()); err != nil {
		s.logger.Warn("invalid progress dropped", "job_id", j.ID, "err", err)
		return
	}
	s.emit(JobProgress{JobID: j.ID, PercentComplete: e.PercentComplete, EstimatedRemaining: remaining, Step: e.Step})

	if e.PercentComplete >= 100 {
		s.complete(j)
	}
}

// complete walks a job through Finishing to Complete and frees its unit.
func (s *Scheduler) complete(j *store.Job) {
	if j.Status == store.JobStatusInProgress {
		if err := s.transition(j, store.JobStatusFinishing, store.EntryJobTransition, j.AssignedUnit); err != nil {
			s.logger.Warn("invalid transition dropped", "job_id", j.ID, "err", err)
			return
		}
	}
	unitID := j.AssignedUnit
	if err := s.transition(j, store.JobStatusComplete, store.EntryJobTransition, unitID); err != nil {
		s.logger.Warn("invalid transition dropped", "job_id", j.ID, "err", err)
		return
	}
	s.retire(j)
	if unitID != "" {
		if err := s.reg.Release(unitID); err != nil {
			s.logger.Error("release failed", "unit_id", unitID, "err", err)
		}
	}
	s.emit(JobComplete{JobID: j.ID})
	s.match()
}

func (s *Scheduler) handleStopAck(e StopAcknowledged) {
	j, ok := s.jobs[e.JobID]
	if !ok || !j.CancelRequested || j.Status.Terminal() {
		s.logger.Warn("unexpected stop ack dropped", "job_id", e.JobID)
		return
	}
	unitID := j.AssignedUnit
	if err := s.transition(j, store.JobStatusCancelled, store.EntryJobTransition, unitID); err != nil {
		s.logger.Warn("invalid transition dropped", "job_id", j.ID, "err", err)
		return
	}
	s.retire(j)
	if unitID != "" {
		if err := s.reg.Release(unitID); err != nil {
			s.logger.Error("release failed", "unit_id", unitID, "err", err)
		}
	}
	s.emit(JobCancelled{JobID: j.ID})
	s.match()
}

func (s *Scheduler) handleCancel(e CancelRequested) {
	j, ok := s.jobs[e.JobID]
	if !ok || j.Status.Terminal() {
		s.logger.Warn("cancel for unknown or finished job dropped", "job_id", e.JobID)
		return
	}

	switch j.Status {
	case store.JobStatusQueued:
		s.queue.remove(j.ID)
		delete(s.held, j.ID)
		if err := s.transition(j, store.JobStatusCancelled, store.EntryJobTransition, ""); err != nil {
			s.logger.Warn("invalid transition dropped", "job_id", j.ID, "err", err)
			return
		}
		s.retire(j)
		s.emit(JobCancelled{JobID: j.ID})
	case store.JobStatusAllocated, store.JobStatusInProgress:
		// Cooperative: the unit sees StopRequested on its next poll and
		// acknowledges a safe stop; the sweep forces Error past the
		// deadline.
		j.CancelRequested = true
		s.cancelDeadline[j.ID] = s.tick + s.cfg.CancelTimeoutTicks
	default:
		s.logger.Warn("cancel dropped, job finishing", "job_id", j.ID, "status", j.Status)
	}
}

func (s *Scheduler) handleMaterials(e MaterialAvailabilityChanged) {
	j, ok := s.jobs[e.JobID]
	if !ok || j.Status.Terminal() {
		s.logger.Warn("materials update for unknown or finished job dropped", "job_id", e.JobID)
		return
	}
	if j.MaterialsReady == e.Ready {
		return
	}
	if err := s.append(&store.Entry{
		Kind:    store.EntryMaterialsReady,
		JobID:   j.ID,
		Prior:   j.Status,
		New:     j.Status,
		Payload: mustJSON(materialsPayload{Ready: e.Ready}),
	}); err != nil {
		return
	}
	j.MaterialsReady = e.Ready

	if e.Ready {
		if s.held[j.ID] {
			delete(s.held, j.ID)
			s.enqueue(j)
			s.match()
		}
	} else if j.Status == store.JobStatusQueued && s.queue.remove(j.ID) {
		s.held[j.ID] = true
	}
}

func (s *Scheduler) handleSweep(e SweepTick) {
	s.tick++

	// Heartbeat staleness: units that went quiet are taken Offline, and
	// any job they carried is rerouted inside this same event step.
	threshold := time.Duration(s.cfg.HeartbeatMisses) * s.cfg.HeartbeatInterval
	for _, unitID := range s.reg.Stale(e.Now, threshold) {
		s.handleUnitFailure(unitID, store.UnitStatusOffline, "heartbeat stale")
	}

	// Cancellation timeouts: no safe stop within the window forces Error.
	for jobID, deadline := range s.cancelDeadline {
		if s.tick <= deadline {
			continue
		}
		j, ok := s.jobs[jobID]
		if !ok || j.Status.Terminal() {
			delete(s.cancelDeadline, jobID)
			continue
		}
		unitID := j.AssignedUnit
		if err := s.transition(j, store.JobStatusError, store.EntryJobTransition, unitID); err != nil {
			s.logger.Warn("invalid transition dropped", "job_id", j.ID, "err", err)
			continue
		}
		s.retire(j)
		if unitID != "" {
			if err := s.reg.Release(unitID); err != nil {
				s.logger.Error("release failed", "unit_id", unitID, "err", err)
			}
		}
		s.emit(JobFailed{JobID: j.ID, Reason: "no stoppable checkpoint within cancellation timeout"})
		s.match()
	}
}

// enqueue inserts a job into the priority queue, assigning its enqueue
// tick on first entry. Reroutes keep the original tick and arrival order,
// so accrued age credit survives a unit failure. Tick 0 is a real tick,
// hence the negative sentinel for "never enqueued".
func (s *Scheduler) enqueue(j *store.Job) {
	if j.EnqueueTick < 0 {
		j.EnqueueTick = s.tick
	}
	s.queue.push(j, s.scoreOf(j))
}

// scoreOf computes the priority sort key. Aging subtracts the same bonus
// per tick from every queued job simultaneously, so relative order is
// fully captured by the static key duration + K*enqueueTick: a later
// arrival carries a larger tick and yields to jobs that have been
// waiting, which is what makes starvation impossible.
func (s *Scheduler) scoreOf(j *store.Job) float64 {
	return j.EstimatedDuration.Seconds() + s.cfg.AgeWeight*float64(j.EnqueueTick)
}

// match runs the matching pass: walk the queue in priority order and
// allocate every job that has an Idle unit of its capability, lowest unit
// id first. Jobs without a compatible idle unit stay queued. Allocation
// is non-preemptive: nothing here ever displaces running work.
func (s *Scheduler) match() {
	var skipped []*store.Job
	for s.queue.Len() > 0 {
		j := s.queue.pop()
		units := s.reg.QueryAvailable(j.Capability)
		if len(units) == 0 {
			skipped = append(skipped, j)
			continue
		}
		unit := units[0]
		if err := s.transition(j, store.JobStatusAllocated, store.EntryJobTransition, unit.ID); err != nil {
			s.logger.Warn("invalid transition dropped", "job_id", j.ID, "err", err)
			skipped = append(skipped, j)
			continue
		}
		if err := s.reg.Assign(unit.ID, j.ID); err != nil {
			// Roll the logged allocation back so the job is not stranded
			// Allocated without a unit.
			s.logger.Error("assign failed, requeueing job", "unit_id", unit.ID, "job_id", j.ID, "err", err)
			if terr := s.transition(j, store.JobStatusQueued, store.EntryJobTransition, ""); terr != nil {
				s.logger.Error("allocation rollback failed", "job_id", j.ID, "err", terr)
			}
			skipped = append(skipped, j)
			continue
		}
		j.AssignedUnit = unit.ID
		s.emit(JobAllocated{JobID: j.ID, UnitID: unit.ID})
		if j.RerouteCount > 0 {
			s.emit(JobReroute{JobID: j.ID, FromUnit: j.LastFailedUnit, ToUnit: unit.ID})
		}
	}
	for _, j := range skipped {
		s.queue.push(j, s.scoreOf(j))
	}
}

// transition writes the log entry and then applies the state change.
// Nothing externally visible happens unless the append succeeded.
func (s *Scheduler) transition(j *store.Job, to store.JobStatus, kind, unitID string) error {
	prior := j.Status
	if !progress.CanTransition(prior, to) {
		return &progress.ErrInvalidTransition{JobID: j.ID, From: prior, To: to}
	}
	if err := s.append(&store.Entry{
		Kind:   kind,
		JobID:  j.ID,
		UnitID: unitID,
		Prior:  prior,
		New:    to,
	}); err != nil {
		return err
	}
	if _, err := s.tracker.Transition(j.ID, to, s.clock()); err != nil {
		return err
	}
	j.Status = to
	return nil
}

// retire finalizes a terminal job. The record stays queryable; the job
// just leaves every scheduling structure.
func (s *Scheduler) retire(j *store.Job) {
	now := s.clock()
	j.CompletedAt = &now
	j.AssignedUnit = ""
	delete(s.held, j.ID)
	delete(s.cancelDeadline, j.ID)
	s.queue.remove(j.ID)
}

// append writes one entry to the Transaction Log, synchronously, before
// any externally visible effect of the event it records.
func (s *Scheduler) append(e *store.Entry) error {
	e.Timestamp = s.clock()
	if err := s.txlog.Append(context.Background(), e); err != nil {
		s.logger.Error("transaction log append failed", "kind", e.Kind, "err", err)
		return fmt.Errorf("txlog append: %w", err)
	}
	s.applied = e.Seq
	return nil
}

// emit sends an outbound event without ever blocking the loop. When the
// outbox is full the event is dropped and counted.
func (s *Scheduler) emit(ev Outbound) {
	select {
	case s.outbox <- ev:
	default:
		s.droppedOutbound.Add(1)
		s.logger.Warn("outbox full, event dropped", "event", fmt.Sprintf("%T", ev))
	}
}

// DroppedOutbound reports how many outbound events were dropped on a full
// outbox.
func (s *Scheduler) DroppedOutbound() int64 {
	return s.droppedOutbound.Load()
}

// publish builds and swaps in a fresh immutable snapshot.
func (s *Scheduler) publish() {
	records := s.tracker.Snapshot()
	queued := s.queue.ordered()
	active := make([]*store.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		active = append(active, j)
	}

	snap := &Snapshot{
		Version:     s.version,
		Tick:        s.tick,
		Jobs:        make(map[uuid.UUID]JobView, len(s.jobs)),
		Units:       s.reg.Snapshot(),
		Estimates:   make(map[store.Capability]time.Duration, 3),
		Assignments: make(map[string]Assignment),
	}

	for _, capability := range []store.Capability{store.CapabilityTextile, store.CapabilityAdditive, store.CapabilityHybrid} {
		snap.Estimates[capability] = estimateCapability(capability, active, s.reg.CountByCapability(capability))
	}

	for id, j := range s.jobs {
		rec := records[id]
		if j.Status == store.JobStatusQueued {
			rec.EstimatedRemaining = j.EstimatedDuration +
				estimateForQueued(id, queued, active, s.reg.CountByCapability(j.Capability))
		}
		snap.Jobs[id] = JobView{Job: *j, Record: rec}
		if j.AssignedUnit != "" {
			snap.Assignments[j.AssignedUnit] = Assignment{
				JobID:             j.ID,
				CADRef:            j.CADRef,
				EstimatedDuration: j.EstimatedDuration,
				StopRequested:     j.CancelRequested,
			}
		}
	}

	s.snap.Store(snap)
}

func remainingFor(j *store.Job, percent int) time.Duration {
	if percent >= 100 {
		return 0
	}
	return j.EstimatedDuration * time.Duration(100-percent) / 100
}

type unitPayload struct {
	Capability store.Capability `json:"capability"`
	Status     store.UnitStatus `json:"status,omitempty"`
}

type materialsPayload struct {
	Ready bool `json:"ready"`
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
