// Package driver defines the interface between the unit agent and the
// fabrication hardware.
package driver

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Job is the work handed to the hardware.
type Job struct {
	ID                uuid.UUID
	CADRef            string
	EstimatedDuration time.Duration
}

// Progress is one update from the hardware as fabrication advances.
// PercentComplete is non-decreasing within a run.
type Progress struct {
	PercentComplete int
	Step            string
}

// Driver starts fabrication runs on a unit.
type Driver interface {
	// Start begins fabrication and returns a handle. The context bounds
	// startup only, not the run itself.
	Start(ctx context.Context, job Job) (Handle, error)
}

// Handle represents a fabrication run in flight.
type Handle interface {
	// Progress returns the update stream. The channel is closed when the
	// run ends.
	Progress() <-chan Progress

	// Wait blocks until the run ends. A nil error means fabrication
	// finished; a non-nil error is a hardware fault diagnostic.
	Wait(ctx context.Context) error

	// Stop halts the run at the next safe checkpoint.
	Stop(ctx context.Context) error
}
