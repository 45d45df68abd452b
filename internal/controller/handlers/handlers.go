// Package handlers contains the HTTP handlers for the controller API.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"forgeplane/internal/admission"
	"forgeplane/internal/sched"
	"forgeplane/internal/store"
	"forgeplane/pkg/api"
)

// SchedulerAPI is the slice of the scheduler the handlers use.
type SchedulerAPI interface {
	Dispatch(ctx context.Context, ev sched.Event) error
	Snapshot() *sched.Snapshot
}

// AdmissionAPI validates and logs job submissions.
type AdmissionAPI interface {
	Submit(ctx context.Context, req admission.Request) (store.Job, error)
}

// Handlers holds the dependencies of the controller API.
type Handlers struct {
	sched     SchedulerAPI
	admission AdmissionAPI
	customers store.CustomerStore
	logger    *slog.Logger

	// ping reports storage health for the readiness probe. Nil when the
	// controller runs on the in-memory log.
	ping func(ctx context.Context) error
}

// New creates the handler set.
func New(s SchedulerAPI, a AdmissionAPI, cs store.CustomerStore, logger *slog.Logger, ping func(ctx context.Context) error) *Handlers {
	return &Handlers{
		sched:     s,
		admission: a,
		customers: cs,
		logger:    logger,
		ping:      ping,
	}
}

func respondJson(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

func httpError(w http.ResponseWriter, status int, message string) {
	respondJson(w, status, api.ErrorResponse{Error: message})
}
