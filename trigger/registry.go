package trigger

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/c360/triggerkit/errors"
)

// Patch describes a partial trigger update. Nil fields are left untouched.
// Conditions and actions are replaced wholesale, never merged.
type Patch struct {
	Name               *string
	Description        *string
	Conditions         *[]Condition
	Actions            *[]Action
	IsActive           *bool
	Settings           *Settings
	Metadata           *Metadata
	ClearLastTriggered bool
}

// fireDay tracks fires for a single local calendar day
type fireDay struct {
	day   string // "2006-01-02"
	count int
}

// Registry exclusively owns the set of memory triggers for the engine
// process. All mutation goes through its API under one lock, so concurrent
// add/update/remove from the rule-management side never races with an
// in-flight evaluation cycle. When a store is configured the registry
// saves on every mutation and can load on start.
type Registry struct {
	mu       sync.RWMutex
	triggers map[string]*MemoryTrigger
	fires    map[string]*fireDay
	store    Store // may be nil
	logger   *slog.Logger
}

// NewRegistry creates an empty trigger registry. The store may be nil for
// a purely in-memory registry.
func NewRegistry(store Store, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		triggers: make(map[string]*MemoryTrigger),
		fires:    make(map[string]*fireDay),
		store:    store,
		logger:   logger.With("component", "trigger-registry"),
	}
}

// LoadFromStore replaces the registry contents with the store's triggers.
// Invalid stored triggers are skipped and logged rather than aborting the
// load.
func (r *Registry) LoadFromStore(ctx context.Context) error {
	if r.store == nil {
		return nil
	}

	triggers, err := r.store.Load(ctx)
	if err != nil {
		return errors.Wrap(err, "Registry", "LoadFromStore", "load triggers")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.triggers = make(map[string]*MemoryTrigger, len(triggers))
	for i := range triggers {
		t := triggers[i].Clone()
		if err := t.Validate(); err != nil {
			r.logger.Warn("skipping invalid stored trigger", "id", t.ID, "error", err)
			continue
		}
		r.triggers[t.ID] = &t
	}

	r.logger.Info("loaded triggers from store", "count", len(r.triggers))
	return nil
}

// Add registers a new trigger. An empty ID is assigned a UUID; a zero
// CreatedAt is stamped with the current time.
func (r *Registry) Add(ctx context.Context, t MemoryTrigger) (MemoryTrigger, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}

	if err := t.Validate(); err != nil {
		return MemoryTrigger{}, errors.Wrap(err, "Registry", "Add", "validate trigger")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.triggers[t.ID]; exists {
		return MemoryTrigger{}, errors.WrapInvalid(errors.ErrTriggerExists, "Registry", "Add",
			"duplicate trigger id "+t.ID)
	}

	stored := t.Clone()
	r.triggers[stored.ID] = &stored

	if err := r.save(ctx, stored); err != nil {
		delete(r.triggers, stored.ID)
		return MemoryTrigger{}, err
	}

	r.logger.Info("trigger added", "id", stored.ID, "name", stored.Name)
	return stored.Clone(), nil
}

// Update applies a partial update. The patch is applied to a copy which is
// validated before being swapped in, so a failed update leaves the prior
// state fully intact.
func (r *Registry) Update(ctx context.Context, id string, patch Patch) (MemoryTrigger, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.triggers[id]
	if !ok {
		return MemoryTrigger{}, errors.WrapInvalid(errors.ErrTriggerNotFound, "Registry", "Update",
			"trigger "+id)
	}

	updated := existing.Clone()
	if patch.Name != nil {
		updated.Name = *patch.Name
	}
	if patch.Description != nil {
		updated.Description = *patch.Description
	}
	if patch.Conditions != nil {
		updated.Conditions = *patch.Conditions
	}
	if patch.Actions != nil {
		updated.Actions = *patch.Actions
	}
	if patch.IsActive != nil {
		updated.IsActive = *patch.IsActive
	}
	if patch.Settings != nil {
		updated.Settings = *patch.Settings
	}
	if patch.Metadata != nil {
		updated.Metadata = *patch.Metadata
	}
	if patch.ClearLastTriggered {
		// FiredOnce is deliberately preserved so a one-time condition
		// cannot be resurrected by clearing its last fire
		updated.LastTriggered = nil
	}

	if err := updated.Validate(); err != nil {
		return MemoryTrigger{}, errors.Wrap(err, "Registry", "Update", "validate updated trigger")
	}

	stored := updated.Clone()
	r.triggers[id] = &stored

	if err := r.save(ctx, stored); err != nil {
		r.triggers[id] = existing
		return MemoryTrigger{}, err
	}

	return stored.Clone(), nil
}

// Remove deletes a trigger and its fire history
func (r *Registry) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.triggers[id]
	if !ok {
		return errors.WrapInvalid(errors.ErrTriggerNotFound, "Registry", "Remove", "trigger "+id)
	}

	delete(r.triggers, id)
	delete(r.fires, id)

	if r.store != nil {
		if err := r.store.Delete(ctx, id); err != nil {
			r.triggers[id] = existing
			return errors.Wrap(err, "Registry", "Remove", "delete from store")
		}
	}

	r.logger.Info("trigger removed", "id", id)
	return nil
}

// Get returns a copy of the trigger with the given id
func (r *Registry) Get(id string) (MemoryTrigger, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.triggers[id]
	if !ok {
		return MemoryTrigger{}, errors.WrapInvalid(errors.ErrTriggerNotFound, "Registry", "Get",
			"trigger "+id)
	}
	return t.Clone(), nil
}

// List returns copies of all triggers ordered by creation time
func (r *Registry) List() []MemoryTrigger {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.collect(func(*MemoryTrigger) bool { return true })
}

// ListActive returns copies of all armed triggers ordered by creation time
func (r *Registry) ListActive() []MemoryTrigger {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.collect(func(t *MemoryTrigger) bool { return t.IsActive })
}

// collect gathers matching triggers; callers hold at least a read lock
func (r *Registry) collect(match func(*MemoryTrigger) bool) []MemoryTrigger {
	result := make([]MemoryTrigger, 0, len(r.triggers))
	for _, t := range r.triggers {
		if match(t) {
			result = append(result, t.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

// Count returns the number of registered triggers
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.triggers)
}

// MarkFired stamps lastTriggered, increments the trigger count and the
// per-day fire counter, and sets the one-time exhaustion marker. It is
// called before dispatch so overlapping evaluation cycles cannot fire the
// same trigger twice.
func (r *Registry) MarkFired(ctx context.Context, id string, now time.Time) (MemoryTrigger, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.triggers[id]
	if !ok {
		return MemoryTrigger{}, errors.WrapInvalid(errors.ErrTriggerNotFound, "Registry", "MarkFired",
			"trigger "+id)
	}

	fired := now
	t.LastTriggered = &fired
	t.TriggerCount++
	t.FiredOnce = true

	day := now.Format("2006-01-02")
	fd := r.fires[id]
	if fd == nil || fd.day != day {
		fd = &fireDay{day: day}
		r.fires[id] = fd
	}
	fd.count++

	if err := r.save(ctx, t.Clone()); err != nil {
		// Fire already happened; persistence failure is logged, not fatal
		r.logger.Warn("failed to persist fire", "id", id, "error", err)
	}

	return t.Clone(), nil
}

// FiresToday returns the number of fires recorded for the trigger on now's
// local calendar day
func (r *Registry) FiresToday(id string, now time.Time) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fd := r.fires[id]
	if fd == nil || fd.day != now.Format("2006-01-02") {
		return 0
	}
	return fd.count
}

// FireStateOf returns the recurrence-relevant history for a trigger
func (r *Registry) FireStateOf(id string) (FireState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.triggers[id]
	if !ok {
		return FireState{}, errors.WrapInvalid(errors.ErrTriggerNotFound, "Registry", "FireStateOf",
			"trigger "+id)
	}

	state := FireState{FiredOnce: t.FiredOnce, TriggerCount: t.TriggerCount}
	if t.LastTriggered != nil {
		lt := *t.LastTriggered
		state.LastTriggered = &lt
	}
	return state, nil
}

// save persists a trigger when a store is configured; callers hold the lock
func (r *Registry) save(ctx context.Context, t MemoryTrigger) error {
	if r.store == nil {
		return nil
	}
	if err := r.store.Save(ctx, t); err != nil {
		return errors.Wrap(err, "Registry", "save", "persist trigger "+t.ID)
	}
	return nil
}
