package controller

import (
	"context"
	"log/slog"

	"forgeplane/internal/observability"
	"forgeplane/internal/sched"
)

// PumpEvents drains the scheduler's outbound stream into the structured
// log and the metrics counters. It returns when the context is
// cancelled or the stream closes.
func PumpEvents(ctx context.Context, events <-chan sched.Outbound, m *observability.SchedulerMetrics, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			record(ctx, ev, m, logger)
		}
	}
}

func record(ctx context.Context, ev sched.Outbound, m *observability.SchedulerMetrics, logger *slog.Logger) {
	switch e := ev.(type) {
	case sched.JobAllocated:
		logger.Info("job allocated", "job_id", e.JobID, "unit_id", e.UnitID)
		if m != nil {
			m.Allocations.Add(ctx, 1)
		}
	case sched.JobProgress:
		logger.Debug("job progress",
			"job_id", e.JobID,
			"percent", e.PercentComplete,
			"step", e.Step,
		)
	case sched.JobComplete:
		logger.Info("job complete", "job_id", e.JobID)
		if m != nil {
			m.Completions.Add(ctx, 1)
		}
	case sched.JobFailed:
		logger.Error("job failed", "job_id", e.JobID, "reason", e.Reason)
		if m != nil {
			m.Failures.Add(ctx, 1)
		}
	case sched.JobCancelled:
		logger.Info("job cancelled", "job_id", e.JobID)
	case sched.JobReroute:
		logger.Warn("job rerouted",
			"job_id", e.JobID,
			"from_unit", e.FromUnit,
			"to_unit", e.ToUnit,
		)
		if m != nil {
			m.Reroutes.Add(ctx, 1)
		}
	case sched.StaffAlert:
		logger.Error("staff alert",
			"severity", e.Severity,
			"subsystem", e.Subsystem,
			"job_id", e.JobID,
			"message", e.Message,
		)
		if m != nil {
			m.Alerts.Add(ctx, 1)
		}
	}
}
