package device

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Registry.
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

// Registry provides device management with caching and thread safety.
// It wraps a Repository and adds an in-memory cache for fast lookups.
//
// The cache is populated on startup via RefreshCache() and kept in sync
// by cache-invalidating CRUD operations.
//
// All public methods are thread-safe.
type Registry struct {
	repo    Repository
	history StateHistoryRepository
	cache   map[string]*Device // Cached devices by ID
	cacheMu sync.RWMutex       // Protects cache
	stateMu sync.Mutex         // Serialises read-merge-write in ApplyState
	logger  Logger
	now     func() time.Time
}

// NewRegistry creates a new device registry.
// The repository is used for persistence; the registry adds caching.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[string]*Device),
		logger: noopLogger{},
		now:    time.Now,
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// SetStateHistory enables state history recording. Without it ApplyState
// only keeps the latest state.
func (r *Registry) SetStateHistory(history StateHistoryRepository) {
	r.history = history
}

// RefreshCache reloads all devices from the repository into the cache.
// This should be called on application startup.
func (r *Registry) RefreshCache(ctx context.Context) error {
	devices, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	r.cache = make(map[string]*Device, len(devices))
	for i := range devices {
		d := devices[i]
		r.cache[d.ID] = d.DeepCopy()
	}

	r.logger.Info("device cache refreshed", "count", len(devices))
	return nil
}

// GetDevice retrieves a device by ID.
// Returns ErrDeviceNotFound if the device does not exist.
// The returned device is a deep copy; callers can safely modify it.
func (r *Registry) GetDevice(ctx context.Context, id string) (*Device, error) {
	r.cacheMu.RLock()
	cached, ok := r.cache[id]
	r.cacheMu.RUnlock()

	if ok {
		return cached.DeepCopy(), nil
	}

	// Fall back to repository (might be a new device not yet cached)
	device, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.cache[id] = device.DeepCopy()
	r.cacheMu.Unlock()

	return device, nil
}

// ListDevices retrieves all devices ordered by ID.
// The returned devices are deep copies; callers can safely modify them.
func (r *Registry) ListDevices(ctx context.Context) ([]Device, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	if len(r.cache) == 0 {
		return r.repo.List(ctx)
	}

	devices := make([]Device, 0, len(r.cache))
	for _, d := range r.cache {
		devices = append(devices, *d.DeepCopy())
	}
	sortDevices(devices)
	return devices, nil
}

// ListByBridge retrieves the devices attached to one bridge.
// The returned devices are deep copies; callers can safely modify them.
func (r *Registry) ListByBridge(ctx context.Context, bridgeID string) ([]Device, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	if len(r.cache) == 0 {
		return r.repo.ListByBridge(ctx, bridgeID)
	}

	var devices []Device
	for _, d := range r.cache {
		if d.BridgeID == bridgeID {
			devices = append(devices, *d.DeepCopy())
		}
	}
	sortDevices(devices)
	return devices, nil
}

// CreateDevice validates and persists a new device.
func (r *Registry) CreateDevice(ctx context.Context, device *Device) error {
	if device.Name == "" {
		device.Name = device.ID
	}
	if device.State == nil {
		device.State = State{}
	}

	if err := ValidateDevice(device); err != nil {
		return err
	}

	if err := r.repo.Create(ctx, device); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.cache[device.ID] = device.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("device created", "id", device.ID, "kind", device.Kind)
	return nil
}

// UpdateDevice updates the identity and bridge linkage of an existing
// device. The stored state is kept.
func (r *Registry) UpdateDevice(ctx context.Context, device *Device) error {
	existing, err := r.GetDevice(ctx, device.ID)
	if err != nil {
		return err
	}
	device.State = existing.State
	device.StateUpdatedAt = existing.StateUpdatedAt
	device.CreatedAt = existing.CreatedAt

	if err := ValidateDevice(device); err != nil {
		return err
	}

	if err := r.repo.Update(ctx, device); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.cache[device.ID] = device.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("device updated", "id", device.ID, "kind", device.Kind)
	return nil
}

// DeleteDevice removes a device.
func (r *Registry) DeleteDevice(ctx context.Context, id string) error {
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}

	r.cacheMu.Lock()
	delete(r.cache, id)
	r.cacheMu.Unlock()

	r.logger.Info("device deleted", "id", id)
	return nil
}

// Seed makes the store match the configured devices. Missing devices are
// created; devices whose name, kind or linkage changed are updated.
// Devices that are not in the list are left alone so their history
// survives a temporary config edit.
//
// Returns the number of devices created.
func (r *Registry) Seed(ctx context.Context, devices []Device) (int, error) {
	created := 0
	for i := range devices {
		want := devices[i]
		if want.Name == "" {
			want.Name = want.ID
		}

		existing, err := r.GetDevice(ctx, want.ID)
		switch {
		case errors.Is(err, ErrDeviceNotFound):
			if err := r.CreateDevice(ctx, &want); err != nil {
				return created, fmt.Errorf("seeding device %s: %w", want.ID, err)
			}
			created++
		case err != nil:
			return created, fmt.Errorf("seeding device %s: %w", want.ID, err)
		case existing.Name != want.Name || existing.Kind != want.Kind ||
			existing.BridgeID != want.BridgeID || existing.NativeID != want.NativeID:
			if err := r.UpdateDevice(ctx, &want); err != nil {
				return created, fmt.Errorf("seeding device %s: %w", want.ID, err)
			}
		}
	}

	r.logger.Info("devices seeded", "configured", len(devices), "created", created)
	return created, nil
}

// ApplyState merges update into the stored state of a device, persists the
// result and records it in the state history.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - id: Device identifier
//   - update: Fields to overwrite; keys not present keep their value
//   - source: Origin of the change, recorded in the history
//
// Returns:
//   - map[string]any: The merged state (a copy)
//   - error: ErrDeviceNotFound, ErrInvalidState or a persistence error
//
// Thread Safety:
//
//	Concurrent calls are serialised so no update is lost.
func (r *Registry) ApplyState(ctx context.Context, id string, update map[string]any, source string) (map[string]any, error) {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()

	device, err := r.GetDevice(ctx, id)
	if err != nil {
		return nil, err
	}

	merged := device.State.Merge(update)
	if err := ValidateState(merged); err != nil {
		return nil, err
	}

	now := r.now().UTC()
	if err := r.repo.UpdateState(ctx, id, merged, now); err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	if cached, ok := r.cache[id]; ok {
		updated := cached.DeepCopy()
		updated.State = deepCopyMap(merged)
		updated.StateUpdatedAt = &now
		updated.UpdatedAt = now
		r.cache[id] = updated
	}
	r.cacheMu.Unlock()

	if r.history != nil {
		if err := r.history.RecordStateChange(ctx, id, merged, source); err != nil {
			// The state itself is stored; a missing history row is not fatal.
			r.logger.Warn("recording state history failed", "id", id, "error", err)
		}
	}

	r.logger.Debug("device state updated", "id", id, "source", source)
	return deepCopyMap(merged), nil
}

// State returns a copy of the current state of a device.
func (r *Registry) State(ctx context.Context, id string) (map[string]any, error) {
	device, err := r.GetDevice(ctx, id)
	if err != nil {
		return nil, err
	}
	if device.State == nil {
		return map[string]any{}, nil
	}
	return device.State, nil
}

// History returns recent state changes for a device, newest first.
// It returns an empty slice when history recording is disabled.
func (r *Registry) History(ctx context.Context, id string, limit int) ([]StateHistoryEntry, error) {
	if _, err := r.GetDevice(ctx, id); err != nil {
		return nil, err
	}
	if r.history == nil {
		return []StateHistoryEntry{}, nil
	}
	return r.history.GetHistory(ctx, id, limit)
}

// PruneHistory removes state history older than retain.
func (r *Registry) PruneHistory(ctx context.Context, retain time.Duration) (int64, error) {
	if r.history == nil {
		return 0, nil
	}
	n, err := r.history.PruneHistory(ctx, retain)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		r.logger.Info("state history pruned", "rows", n, "retain", retain.String())
	}
	return n, nil
}

// RunPruner prunes history every interval until ctx is cancelled.
// A non-positive retain disables pruning.
func (r *Registry) RunPruner(ctx context.Context, retain, interval time.Duration) {
	if retain <= 0 || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := r.PruneHistory(ctx, retain); err != nil {
			r.logger.Warn("pruning state history failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// GetDeviceCount returns the number of cached devices.
func (r *Registry) GetDeviceCount() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}

// Stats returns registry statistics for monitoring.
type Stats struct {
	TotalDevices int            `json:"total_devices"`
	ByKind       map[string]int `json:"by_kind"`
	ByBridge     map[string]int `json:"by_bridge"`
}

// GetStats returns current registry statistics.
func (r *Registry) GetStats() Stats {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	stats := Stats{
		TotalDevices: len(r.cache),
		ByKind:       make(map[string]int),
		ByBridge:     make(map[string]int),
	}

	for _, d := range r.cache {
		stats.ByKind[d.Kind]++
		if d.BridgeID != "" {
			stats.ByBridge[d.BridgeID]++
		}
	}

	return stats
}

func sortDevices(devices []Device) {
	sort.Slice(devices, func(i, j int) bool { return devices[i].ID < devices[j].ID })
}
