package admission

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"forgeplane/internal/store"

	"github.com/google/uuid"
)

func TestSubmit_Valid(t *testing.T) {
	log := store.NewMemoryLog()
	v := New(log, 0)

	job, err := v.Submit(context.Background(), Request{
		CustomerID:        uuid.New(),
		Capability:        "textile",
		EstimatedDuration: 600 * time.Second,
		CADRef:            "cad://dress-07",
		MaterialsReady:    true,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if job.Status != store.JobStatusQueued || job.ArrivalOrder != 1 {
		t.Errorf("unexpected job %+v", job)
	}

	// The admission entry is in the log before the job is visible.
	var entries []store.Entry
	log.Replay(context.Background(), func(e store.Entry) error {
		entries = append(entries, e)
		return nil
	})
	if len(entries) != 1 || entries[0].Kind != store.EntryJobSubmitted || entries[0].JobID != job.ID {
		t.Errorf("unexpected log contents %+v", entries)
	}
}

func TestSubmit_Validation(t *testing.T) {
	v := New(store.NewMemoryLog(), 0)
	base := Request{
		CustomerID:        uuid.New(),
		Capability:        "textile",
		EstimatedDuration: 600 * time.Second,
		CADRef:            "cad://x",
	}

	tests := []struct {
		name   string
		mutate func(*Request)
		reason ValidationReason
	}{
		{"unknown capability", func(r *Request) { r.Capability = "quantum" }, ReasonUnknownCapability},
		{"zero duration", func(r *Request) { r.EstimatedDuration = 0 }, ReasonNonPositiveDuration},
		{"negative duration", func(r *Request) { r.EstimatedDuration = -time.Second }, ReasonNonPositiveDuration},
		{"missing cad", func(r *Request) { r.CADRef = "" }, ReasonMissingCAD},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := base
			tt.mutate(&req)
			_, err := v.Submit(context.Background(), req)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("got %v, want ValidationError", err)
			}
			if verr.Reason != tt.reason {
				t.Errorf("got reason %s, want %s", verr.Reason, tt.reason)
			}
		})
	}

	// Nothing invalid reaches the log.
	n, _ := v.log.LastSeq(context.Background())
	if n != 0 {
		t.Errorf("rejected submissions wrote %d log entries", n)
	}
}

func TestSubmit_ArrivalOrderMonotonic(t *testing.T) {
	v := New(store.NewMemoryLog(), 41)

	var mu sync.Mutex
	seen := map[int64]bool{}
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			job, err := v.Submit(context.Background(), Request{
				CustomerID:        uuid.New(),
				Capability:        "additive",
				EstimatedDuration: time.Minute,
				CADRef:            "cad://x",
			})
			if err != nil {
				t.Errorf("submit: %v", err)
				return
			}
			mu.Lock()
			seen[job.ArrivalOrder] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(seen) != 20 {
		t.Fatalf("arrival orders reused: %d distinct of 20", len(seen))
	}
	for order := int64(42); order < 62; order++ {
		if !seen[order] {
			t.Errorf("missing arrival order %d", order)
		}
	}
}
