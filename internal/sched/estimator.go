package sched

import (
	"time"

	"forgeplane/internal/store"

	"github.com/google/uuid"
)

// The wait-time estimator is a pure function over queue contents and pool
// state. It deliberately looks at one capability class at a time: a delay
// to a job of one class can never move the estimate of a job of another
// class, because the inputs simply do not overlap.

// estimateCapability returns the expected wait before a newly submitted
// job of the given capability would be allocated: the summed estimated
// duration of every active (Queued, Allocated, InProgress, Finishing) job
// of that capability, divided by the number of units of the class.
func estimateCapability(capability store.Capability, active []*store.Job, unitCount int) time.Duration {
	if unitCount < 1 {
		unitCount = 1
	}
	var sum time.Duration
	for _, j := range active {
		if j.Capability != capability {
			continue
		}
		switch j.Status {
		case store.JobStatusQueued, store.JobStatusAllocated, store.JobStatusInProgress, store.JobStatusFinishing:
			sum += j.EstimatedDuration
		}
	}
	return sum / time.Duration(unitCount)
}

// estimateForQueued returns the expected wait for one specific queued job:
// the summed duration of the jobs that would be scheduled ahead of it on a
// compatible unit, divided by the unit count of its capability. queued
// must already be in pop order.
func estimateForQueued(jobID uuid.UUID, queued []*store.Job, active []*store.Job, unitCount int) time.Duration {
	if unitCount < 1 {
		unitCount = 1
	}

	var target *store.Job
	for _, j := range queued {
		if j.ID == jobID {
			target = j
			break
		}
	}
	if target == nil {
		return 0
	}

	var sum time.Duration

	// Everything already on a unit of this class is ahead by definition.
	for _, j := range active {
		if j.Capability != target.Capability {
			continue
		}
		switch j.Status {
		case store.JobStatusAllocated, store.JobStatusInProgress, store.JobStatusFinishing:
			sum += j.EstimatedDuration
		}
	}

	// Queued jobs of the same class that pop earlier.
	for _, j := range queued {
		if j.ID == jobID {
			break
		}
		if j.Capability == target.Capability {
			sum += j.EstimatedDuration
		}
	}

	return sum / time.Duration(unitCount)
}
