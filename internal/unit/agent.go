// Package unit contains the unit agent: the process that sits next to
// one fabrication unit, polls the controller for work and drives the
// hardware through the driver interface.
package unit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"forgeplane/internal/unit/driver"
	"forgeplane/pkg/api"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Config holds the unit agent configuration.
type Config struct {
	UnitID        string
	Capability    string
	ControllerURL string

	// Token is the shared secret for the controller's unit endpoints.
	Token string

	PollInterval      time.Duration // base assignment poll interval (default 1s)
	MaxBackoff        time.Duration // poll backoff cap when idle (default 15s)
	HeartbeatInterval time.Duration // liveness report interval (default 1s)
}

// Agent runs the poll loop for one fabrication unit.
type Agent struct {
	cfg        Config
	driver     driver.Driver
	logger     *slog.Logger
	httpClient *http.Client
	done       chan struct{}
}

// New creates a unit agent.
func New(cfg Config, d driver.Driver, logger *slog.Logger) *Agent {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 15 * time.Second
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = time.Second
	}
	cfg.ControllerURL = strings.TrimRight(cfg.ControllerURL, "/")
	if logger == nil {
		logger = slog.Default()
	}

	return &Agent{
		cfg:    cfg,
		driver: d,
		logger: logger,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		done: make(chan struct{}),
	}
}

// Run registers the unit, starts the heartbeat and polls for work until
// the context is cancelled. An in-flight run is stopped on shutdown.
func (a *Agent) Run(ctx context.Context) error {
	defer close(a.done)

	if err := a.register(ctx); err != nil {
		return fmt.Errorf("register unit: %w", err)
	}
	a.logger.Info("unit agent started", "unit_id", a.cfg.UnitID, "capability", a.cfg.Capability)

	go a.runHeartbeat(ctx)

	backoff := a.cfg.PollInterval
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		assignment, err := a.fetchAssignment(ctx)
		if err != nil {
			a.logger.Warn("assignment poll failed", "error", err)
			backoff = minDuration(backoff*2, a.cfg.MaxBackoff)
			continue
		}
		if assignment.JobID == "" {
			backoff = minDuration(backoff*2, a.cfg.MaxBackoff)
			continue
		}

		backoff = a.cfg.PollInterval
		a.runJob(ctx, assignment)
	}
}

// Done returns a channel closed when the agent has fully stopped.
func (a *Agent) Done() <-chan struct{} {
	return a.done
}

// register announces the unit to the controller. A conflict means the
// unit is already in the pool, which happens on agent restart.
func (a *Agent) register(ctx context.Context) error {
	status, err := a.doJSON(ctx, http.MethodPost, "/units", api.RegisterUnitRequest{
		UnitID:          a.cfg.UnitID,
		CapabilityClass: a.cfg.Capability,
	}, nil)
	if err != nil {
		return err
	}
	if status != http.StatusCreated && status != http.StatusConflict {
		return fmt.Errorf("controller returned status %d", status)
	}
	return nil
}

func (a *Agent) runHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.HeartbeatInterval)
	defer ticker.Stop()

	path := fmt.Sprintf("/internal/units/%s/heartbeat", a.cfg.UnitID)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			req := api.HeartbeatRequest{Timestamp: time.Now().UTC()}
			if _, err := a.doJSON(ctx, http.MethodPut, path, req, nil); err != nil {
				a.logger.Warn("heartbeat failed", "error", err)
			}
		}
	}
}

func (a *Agent) fetchAssignment(ctx context.Context) (api.AssignmentResponse, error) {
	var assignment api.AssignmentResponse
	path := fmt.Sprintf("/internal/units/%s/assignment", a.cfg.UnitID)
	status, err := a.doJSON(ctx, http.MethodGet, path, nil, &assignment)
	if err != nil {
		return assignment, err
	}
	if status != http.StatusOK {
		return assignment, fmt.Errorf("controller returned status %d", status)
	}
	return assignment, nil
}

// runJob drives one fabrication run to its end: completion, fault or a
// stop acknowledgement.
func (a *Agent) runJob(ctx context.Context, assignment api.AssignmentResponse) {
	tracer := otel.Tracer("unit-agent")
	ctx, span := tracer.Start(ctx, "fabricate",
		trace.WithAttributes(
			attribute.String("job.id", assignment.JobID),
			attribute.String("unit.id", a.cfg.UnitID),
		),
	)
	defer span.End()

	jobID, err := uuid.Parse(assignment.JobID)
	if err != nil {
		a.logger.Error("controller sent malformed job id", "job_id", assignment.JobID)
		return
	}
	job := driver.Job{
		ID:                jobID,
		CADRef:            assignment.CADRef,
		EstimatedDuration: time.Duration(assignment.EstimatedDurationSec) * time.Second,
	}
	handle, err := a.driver.Start(ctx, job)
	if err != nil {
		span.RecordError(err)
		a.reportFailure(ctx, fmt.Sprintf("start: %v", err))
		return
	}
	a.logger.Info("fabrication started", "job_id", assignment.JobID)

	// Watch for a stop request while the run is in flight.
	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	go a.watchStop(watchCtx, assignment.JobID, handle)

	for p := range handle.Progress() {
		a.reportProgress(ctx, assignment.JobID, p)
	}

	// The run context must not die with the poll context mid-checkpoint,
	// so the final reports use a short detached context.
	finalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	switch err := handle.Wait(finalCtx); {
	case err == nil:
		a.logger.Info("fabrication finished", "job_id", assignment.JobID)
	case errors.Is(err, driver.ErrStopped):
		a.logger.Info("fabrication stopped", "job_id", assignment.JobID)
		a.acknowledgeStop(finalCtx, assignment.JobID)
	default:
		span.RecordError(err)
		a.logger.Error("fabrication fault", "job_id", assignment.JobID, "error", err)
		a.reportFailure(finalCtx, err.Error())
	}
}

// watchStop polls the assignment until the controller flags a stop, the
// assignment moves away from this job, or the run ends.
func (a *Agent) watchStop(ctx context.Context, jobID string, handle driver.Handle) {
	ticker := time.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			assignment, err := a.fetchAssignment(ctx)
			if err != nil {
				continue
			}
			if assignment.JobID == jobID && assignment.StopRequested {
				stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
				handle.Stop(stopCtx)
				cancel()
				return
			}
		}
	}
}

func (a *Agent) reportProgress(ctx context.Context, jobID string, p driver.Progress) {
	path := fmt.Sprintf("/internal/units/%s/progress", a.cfg.UnitID)
	report := api.ProgressReport{
		JobID:           jobID,
		PercentComplete: p.PercentComplete,
		Step:            p.Step,
	}
	if _, err := a.doJSON(ctx, http.MethodPost, path, report, nil); err != nil {
		a.logger.Warn("progress report failed", "job_id", jobID, "error", err)
	}
}

func (a *Agent) reportFailure(ctx context.Context, diagnostic string) {
	path := fmt.Sprintf("/internal/units/%s/failed", a.cfg.UnitID)
	if _, err := a.doJSON(ctx, http.MethodPost, path, api.UnitFailureReport{Diagnostic: diagnostic}, nil); err != nil {
		a.logger.Error("failure report failed", "error", err)
	}
}

func (a *Agent) acknowledgeStop(ctx context.Context, jobID string) {
	path := fmt.Sprintf("/internal/units/%s/stop-ack", a.cfg.UnitID)
	if _, err := a.doJSON(ctx, http.MethodPost, path, api.StopAck{JobID: jobID}, nil); err != nil {
		a.logger.Error("stop acknowledgement failed", "job_id", jobID, "error", err)
	}
}

// doJSON performs one controller request, decoding the response into
// out when non-nil. It returns the HTTP status code.
func (a *Agent) doJSON(ctx context.Context, method, path string, body, out any) (int, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return 0, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, a.cfg.ControllerURL+path, &buf)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if a.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+a.cfg.Token)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
