package sched

import (
	"container/heap"

	"forgeplane/internal/store"

	"github.com/google/uuid"
)

// queueEntry is the scheduling-visible projection of a queued job.
type queueEntry struct {
	job   *store.Job
	score float64
	index int // heap index, maintained by the heap interface
}

// jobQueue is a priority queue over queued jobs. Lower score pops first;
// arrivalOrder breaks ties, so the order is always total and replaying
// the same event sequence pops jobs in the same order.
type jobQueue struct {
	entries []*queueEntry
	byJob   map[uuid.UUID]*queueEntry
}

func newJobQueue() *jobQueue {
	q := &jobQueue{byJob: make(map[uuid.UUID]*queueEntry)}
	heap.Init(q)
	return q
}

func (q *jobQueue) Len() int { return len(q.entries) }

func (q *jobQueue) Less(i, j int) bool {
	a, b := q.entries[i], q.entries[j]
	if a.score != b.score {
		return a.score < b.score
	}
	return a.job.ArrivalOrder < b.job.ArrivalOrder
}

func (q *jobQueue) Swap(i, j int) {
	q.entries[i], q.entries[j] = q.entries[j], q.entries[i]
	q.entries[i].index = i
	q.entries[j].index = j
}

// Push is called by heap.Push. Do not call directly.
func (q *jobQueue) Push(x any) {
	e := x.(*queueEntry)
	e.index = len(q.entries)
	q.entries = append(q.entries, e)
}

// Pop is called by heap.Pop. Do not call directly.
func (q *jobQueue) Pop() any {
	old := q.entries
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	q.entries = old[:n-1]
	return e
}

// push enqueues a job with its priority score.
func (q *jobQueue) push(j *store.Job, score float64) {
	e := &queueEntry{job: j, score: score}
	q.byJob[j.ID] = e
	heap.Push(q, e)
}

// pop removes and returns the lowest-score job.
func (q *jobQueue) pop() *store.Job {
	e := heap.Pop(q).(*queueEntry)
	delete(q.byJob, e.job.ID)
	return e.job
}

// remove takes a specific job out of the queue (cancellation, materials
// becoming unavailable). Returns false if the job is not queued.
func (q *jobQueue) remove(jobID uuid.UUID) bool {
	e, ok := q.byJob[jobID]
	if !ok {
		return false
	}
	heap.Remove(q, e.index)
	delete(q.byJob, jobID)
	return true
}

// contains reports whether a job is currently queued.
func (q *jobQueue) contains(jobID uuid.UUID) bool {
	_, ok := q.byJob[jobID]
	return ok
}

// ordered returns the queued jobs in pop order without disturbing the
// queue. Used by the estimator and the matching pass.
func (q *jobQueue) ordered() []*store.Job {
	tmp := &jobQueue{
		entries: make([]*queueEntry, len(q.entries)),
		byJob:   map[uuid.UUID]*queueEntry{},
	}
	for i, e := range q.entries {
		cp := *e
		tmp.entries[i] = &cp
	}
	out := make([]*store.Job, 0, len(tmp.entries))
	for tmp.Len() > 0 {
		out = append(out, heap.Pop(tmp).(*queueEntry).job)
	}
	return out
}
