package driver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrStopped is the Wait result of a run halted through Stop.
var ErrStopped = errors.New("run stopped")

// SimConfig tunes the simulated driver.
type SimConfig struct {
	// Speedup divides the job's estimated duration, so a 10 minute job
	// simulates in seconds. Defaults to 60.
	Speedup int

	// Steps are reported in order across the run. The last step is held
	// until percent 100. Defaults to cutting, assembling, finishing.
	Steps []string

	// FailAtPercent injects a hardware fault once progress reaches the
	// given percent. Zero disables injection.
	FailAtPercent int
}

// Sim is a simulated fabrication driver. It paces a run across the
// job's estimated duration and emits progress in 5% increments.
type Sim struct {
	cfg SimConfig
}

// NewSim creates a simulated driver.
func NewSim(cfg SimConfig) *Sim {
	if cfg.Speedup <= 0 {
		cfg.Speedup = 60
	}
	if len(cfg.Steps) == 0 {
		cfg.Steps = []string{"cutting", "assembling", "finishing"}
	}
	return &Sim{cfg: cfg}
}

// Start begins a simulated run.
func (s *Sim) Start(_ context.Context, job Job) (Handle, error) {
	if job.EstimatedDuration <= 0 {
		return nil, fmt.Errorf("job %s has no duration", job.ID)
	}

	h := &simHandle{
		progress: make(chan Progress, 32),
		done:     make(chan struct{}),
		stop:     make(chan struct{}),
	}
	go h.run(job, s.cfg)
	return h, nil
}

type simHandle struct {
	progress chan Progress
	done     chan struct{}
	stop     chan struct{}

	stopOnce sync.Once
	err      error
}

func (h *simHandle) run(job Job, cfg SimConfig) {
	defer close(h.done)
	defer close(h.progress)

	const increment = 5
	pace := job.EstimatedDuration / time.Duration(cfg.Speedup) / (100 / increment)
	if pace <= 0 {
		pace = time.Millisecond
	}

	for percent := increment; percent <= 100; percent += increment {
		select {
		case <-h.stop:
			h.err = ErrStopped
			return
		case <-time.After(pace):
		}

		if cfg.FailAtPercent > 0 && percent >= cfg.FailAtPercent {
			h.err = fmt.Errorf("spindle stall at %d%%", percent)
			return
		}

		h.progress <- Progress{
			PercentComplete: percent,
			Step:            stepFor(percent, cfg.Steps),
		}
	}
}

func stepFor(percent int, steps []string) string {
	idx := percent * len(steps) / 101
	return steps[idx]
}

func (h *simHandle) Progress() <-chan Progress {
	return h.progress
}

func (h *simHandle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *simHandle) Stop(ctx context.Context) error {
	h.stopOnce.Do(func() { close(h.stop) })
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
