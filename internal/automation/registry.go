package automation

import (
	"context"
	"sort"
	"sync"
)

// Logger defines the logging interface used by the Registry and Evaluator.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry provides trigger management with caching and thread safety.
// It wraps a Repository and adds an in-memory cache indexed by address,
// so matching an event never touches the database.
//
// The cache is populated on startup via RefreshCache() and kept in sync
// by cache-invalidating CRUD operations.
//
// All public methods are thread-safe.
type Registry struct {
	repo    Repository
	cache   map[string]*Trigger // Cached triggers by ID
	cacheMu sync.RWMutex        // Protects cache
	logger  Logger
}

// NewRegistry creates a new trigger registry.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[string]*Trigger),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache reloads all triggers from the repository into the cache.
// This should be called on application startup.
func (r *Registry) RefreshCache(ctx context.Context) error {
	triggers, err := r.repo.List(ctx)
	if err != nil {
		return err
	}

	cache := make(map[string]*Trigger, len(triggers))
	for i := range triggers {
		t := triggers[i]
		cache[t.ID] = &t
	}

	r.cacheMu.Lock()
	r.cache = cache
	r.cacheMu.Unlock()

	r.logger.Info("trigger cache refreshed", "count", len(cache))
	return nil
}

// GetTrigger returns a copy of a cached trigger.
func (r *Registry) GetTrigger(_ context.Context, id string) (*Trigger, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	t, ok := r.cache[id]
	if !ok {
		return nil, ErrTriggerNotFound
	}
	cp := *t
	return &cp, nil
}

// ListTriggers returns every cached trigger sorted by name.
func (r *Registry) ListTriggers(_ context.Context) ([]Trigger, error) {
	r.cacheMu.RLock()
	triggers := make([]Trigger, 0, len(r.cache))
	for _, t := range r.cache {
		triggers = append(triggers, *t)
	}
	r.cacheMu.RUnlock()

	sortTriggers(triggers)
	return triggers, nil
}

// Match returns the enabled triggers that apply to ev, sorted by name.
func (r *Registry) Match(ev Event) []Trigger {
	r.cacheMu.RLock()
	var matched []Trigger
	for _, t := range r.cache {
		if t.Matches(ev) {
			matched = append(matched, *t)
		}
	}
	r.cacheMu.RUnlock()

	sortTriggers(matched)
	return matched
}

func sortTriggers(triggers []Trigger) {
	sort.Slice(triggers, func(i, j int) bool {
		if triggers[i].Name != triggers[j].Name {
			return triggers[i].Name < triggers[j].Name
		}
		return triggers[i].ID < triggers[j].ID
	})
}

// CreateTrigger validates, persists, and caches a new trigger.
// New triggers are enabled.
func (r *Registry) CreateTrigger(ctx context.Context, t *Trigger) error {
	if t.ID == "" {
		t.ID = GenerateID()
	}
	t.Enabled = true

	if err := ValidateTrigger(t); err != nil {
		return err
	}
	if err := r.repo.Create(ctx, t); err != nil {
		return err
	}

	r.cacheMu.Lock()
	cp := *t
	r.cache[t.ID] = &cp
	r.cacheMu.Unlock()

	r.logger.Info("trigger created", "id", t.ID, "name", t.Name, "type", t.Type)
	return nil
}

// UpdateTrigger validates, persists, and updates the cached trigger.
func (r *Registry) UpdateTrigger(ctx context.Context, t *Trigger) error {
	if err := ValidateTrigger(t); err != nil {
		return err
	}
	if err := r.repo.Update(ctx, t); err != nil {
		return err
	}

	r.cacheMu.Lock()
	if old, ok := r.cache[t.ID]; ok && t.CreatedAt.IsZero() {
		t.CreatedAt = old.CreatedAt
	}
	cp := *t
	r.cache[t.ID] = &cp
	r.cacheMu.Unlock()

	r.logger.Info("trigger updated", "id", t.ID, "name", t.Name)
	return nil
}

// SetEnabled starts or stops processing for one trigger. A disabled
// trigger stays stored but never matches.
func (r *Registry) SetEnabled(ctx context.Context, id string, enabled bool) (*Trigger, error) {
	t, err := r.GetTrigger(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Enabled == enabled {
		return t, nil
	}

	t.Enabled = enabled
	if err := r.repo.Update(ctx, t); err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	cp := *t
	r.cache[id] = &cp
	r.cacheMu.Unlock()

	r.logger.Info("trigger processing changed", "id", id, "enabled", enabled)
	return t, nil
}

// DeleteTrigger removes a trigger from persistence and cache.
func (r *Registry) DeleteTrigger(ctx context.Context, id string) error {
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}

	r.cacheMu.Lock()
	delete(r.cache, id)
	r.cacheMu.Unlock()

	r.logger.Info("trigger deleted", "id", id)
	return nil
}

// GetTriggerCount returns the number of cached triggers.
func (r *Registry) GetTriggerCount() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}
