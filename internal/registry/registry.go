// Package registry tracks the fabrication unit pool: capability classes,
// live/offline health and current assignments. The registry is owned by
// the scheduler loop; every mutation happens on that single goroutine and
// readers only ever see snapshot copies.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"forgeplane/internal/store"

	"github.com/google/uuid"
)

// ErrDuplicateUnit is returned when registering a unit id that exists.
var ErrDuplicateUnit = errors.New("duplicate unit")

// ErrUnknownUnit is returned for operations on an unregistered unit.
var ErrUnknownUnit = errors.New("unknown unit")

// Registry owns the fabrication unit pool.
type Registry struct {
	units map[string]*store.Unit
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{units: make(map[string]*store.Unit)}
}

// RegisterUnit adds a unit in Idle status.
func (r *Registry) RegisterUnit(id string, capability store.Capability, now time.Time) error {
	if _, ok := r.units[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateUnit, id)
	}
	r.units[id] = &store.Unit{
		ID:            id,
		Capability:    capability,
		Status:        store.UnitStatusIdle,
		LastHeartbeat: now,
	}
	return nil
}

// QueryAvailable returns the Idle units of a capability, ordered by unit
// id. The ordering carries no quality ranking; it exists so matching is
// deterministic.
func (r *Registry) QueryAvailable(capability store.Capability) []*store.Unit {
	var out []*store.Unit
	for _, u := range r.units {
		if u.Status == store.UnitStatusIdle && u.Capability == capability {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Assign marks an Idle unit Busy with the given job.
func (r *Registry) Assign(unitID string, jobID uuid.UUID) error {
	u, ok := r.units[unitID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownUnit, unitID)
	}
	if u.Status != store.UnitStatusIdle {
		return fmt.Errorf("unit %s not idle (%s)", unitID, u.Status)
	}
	u.Status = store.UnitStatusBusy
	u.CurrentJob = jobID
	return nil
}

// Release frees a Busy unit back to Idle after its job finished.
func (r *Registry) Release(unitID string) error {
	u, ok := r.units[unitID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownUnit, unitID)
	}
	u.CurrentJob = uuid.Nil
	if u.Status == store.UnitStatusBusy {
		u.Status = store.UnitStatusIdle
	}
	return nil
}

// MarkOffline transitions a unit to the given unhealthy status (Offline or
// Faulted). If the unit was Busy, the id of the displaced job is returned
// and the caller must reroute it before processing any further event.
func (r *Registry) MarkOffline(unitID string, to store.UnitStatus) (displaced uuid.UUID, err error) {
	u, ok := r.units[unitID]
	if !ok {
		return uuid.Nil, fmt.Errorf("%w: %s", ErrUnknownUnit, unitID)
	}
	displaced = uuid.Nil
	if u.Status == store.UnitStatusBusy {
		displaced = u.CurrentJob
	}
	u.Status = to
	u.CurrentJob = uuid.Nil
	return displaced, nil
}

// MarkOnline returns a repaired Offline/Faulted unit to Idle.
func (r *Registry) MarkOnline(unitID string, now time.Time) error {
	u, ok := r.units[unitID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownUnit, unitID)
	}
	if u.Status == store.UnitStatusBusy || u.Status == store.UnitStatusIdle {
		return fmt.Errorf("unit %s already online (%s)", unitID, u.Status)
	}
	u.Status = store.UnitStatusIdle
	u.CurrentJob = uuid.Nil
	u.LastHeartbeat = now
	return nil
}

// RecordHeartbeat updates a unit's liveness timestamp.
func (r *Registry) RecordHeartbeat(unitID string, ts time.Time) error {
	u, ok := r.units[unitID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownUnit, unitID)
	}
	if ts.After(u.LastHeartbeat) {
		u.LastHeartbeat = ts
	}
	return nil
}

// Stale returns the ids of online units whose last heartbeat is older
// than the threshold, ordered by unit id.
func (r *Registry) Stale(now time.Time, threshold time.Duration) []string {
	var out []string
	for id, u := range r.units {
		if u.Status == store.UnitStatusOffline || u.Status == store.UnitStatusFaulted {
			continue
		}
		if now.Sub(u.LastHeartbeat) > threshold {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Get returns a copy of one unit.
func (r *Registry) Get(unitID string) (store.Unit, bool) {
	u, ok := r.units[unitID]
	if !ok {
		return store.Unit{}, false
	}
	return *u, true
}

// CountByCapability returns the number of registered units of a
// capability class, regardless of health. The estimator divides by this.
func (r *Registry) CountByCapability(capability store.Capability) int {
	n := 0
	for _, u := range r.units {
		if u.Capability == capability {
			n++
		}
	}
	return n
}

// AllOffline reports whether every unit of a capability class is
// currently Offline or Faulted. Used to raise the fatal-class alert.
func (r *Registry) AllOffline(capability store.Capability) bool {
	any := false
	for _, u := range r.units {
		if u.Capability != capability {
			continue
		}
		any = true
		if u.Status == store.UnitStatusIdle || u.Status == store.UnitStatusBusy {
			return false
		}
	}
	return any
}

// Snapshot returns copies of all units ordered by id.
func (r *Registry) Snapshot() []store.Unit {
	out := make([]store.Unit, 0, len(r.units))
	for _, u := range r.units {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
