package logger

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestWithJobID_And_JobIDFromContext(t *testing.T) {
	ctx := context.Background()
	jobID := uuid.New()

	// Initially absent
	if _, ok := JobIDFromContext(ctx); ok {
		t.Error("JobIDFromContext() on empty ctx reported a job ID")
	}

	// After setting
	ctx = WithJobID(ctx, jobID)
	got, ok := JobIDFromContext(ctx)
	if !ok || got != jobID {
		t.Errorf("JobIDFromContext() = %v, %v, want %v, true", got, ok, jobID)
	}
}

func TestFromContext_WithJobID(t *testing.T) {
	base := New()
	ctx := context.Background()

	// Without job ID - should return base logger (not nil)
	if FromContext(ctx, base) == nil {
		t.Error("FromContext() returned nil")
	}

	// With job ID - should return logger with job_id attached
	ctx = WithJobID(ctx, uuid.New())
	if FromContext(ctx, base) == nil {
		t.Error("FromContext() with job ID returned nil")
	}
}

func TestNew_ReturnsLogger(t *testing.T) {
	if New() == nil {
		t.Error("New() returned nil")
	}
}
