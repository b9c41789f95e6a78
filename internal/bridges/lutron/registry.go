package lutron

import (
	"fmt"
	"maps"
	"sort"
	"sync"
)

// Entity is a bridge-native device or occupancy group mapped to a host
// device.
type Entity struct {
	Address      string
	BridgeID     string
	NativeID     string
	HostDeviceID string
	Kind         Kind
	LastState    map[string]any
}

// EntityRegistry maps engine addresses to host devices.
//
// Thread Safety:
//   - All methods are safe for concurrent use. Unregister may race with
//     event delivery; the late event resolves to ErrUnresolvedAddress.
type EntityRegistry struct {
	mu       sync.RWMutex
	entities map[string]*Entity
	byHost   map[string]string
}

// NewEntityRegistry returns an empty registry.
func NewEntityRegistry() *EntityRegistry {
	return &EntityRegistry{
		entities: make(map[string]*Entity),
		byHost:   make(map[string]string),
	}
}

// Register maps e.Address to e.HostDeviceID.
//
// Re-registering the same host device refreshes the entity kind and keeps
// its last state. An address already held by another host device is left
// untouched.
//
// Returns:
//   - error: ErrDuplicateRegistration if the address belongs to another device
func (r *EntityRegistry) Register(e Entity) error {
	if e.Address == "" || e.HostDeviceID == "" {
		return fmt.Errorf("%w: address and host device id are required", ErrInvalidParameters)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.entities[e.Address]; ok {
		if existing.HostDeviceID != e.HostDeviceID {
			return fmt.Errorf("%w: %s already maps to %s, not %s",
				ErrDuplicateRegistration, e.Address, existing.HostDeviceID, e.HostDeviceID)
		}
		existing.Kind = e.Kind
		return nil
	}

	// A host device moving to a new address drops its old mapping.
	if old, ok := r.byHost[e.HostDeviceID]; ok {
		delete(r.entities, old)
	}

	stored := e
	stored.LastState = maps.Clone(e.LastState)
	r.entities[e.Address] = &stored
	r.byHost[e.HostDeviceID] = e.Address
	return nil
}

// Resolve returns a copy of the entity registered at address.
func (r *EntityRegistry) Resolve(address string) (Entity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entities[address]
	if !ok {
		return Entity{}, fmt.Errorf("%w: %s", ErrUnresolvedAddress, address)
	}
	return copyEntity(e), nil
}

// ByHostID returns the entity mapped to a host device.
func (r *EntityRegistry) ByHostID(hostDeviceID string) (Entity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	address, ok := r.byHost[hostDeviceID]
	if !ok {
		return Entity{}, false
	}
	return copyEntity(r.entities[address]), true
}

// Unregister removes the mapping for address. It reports whether one existed.
func (r *EntityRegistry) Unregister(address string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entities[address]
	if !ok {
		return false
	}
	delete(r.entities, address)
	delete(r.byHost, e.HostDeviceID)
	return true
}

// UnregisterBridge removes every entity of a bridge and returns their
// addresses.
func (r *EntityRegistry) UnregisterBridge(bridgeID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []string
	for address, e := range r.entities {
		if e.BridgeID != bridgeID {
			continue
		}
		delete(r.entities, address)
		delete(r.byHost, e.HostDeviceID)
		removed = append(removed, address)
	}
	sort.Strings(removed)
	return removed
}

// SetLastState records the latest raw payload for an entity.
func (r *EntityRegistry) SetLastState(address string, state map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entities[address]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnresolvedAddress, address)
	}
	e.LastState = maps.Clone(state)
	return nil
}

// Entities returns copies of all entities ordered by address.
func (r *EntityRegistry) Entities() []Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entity, 0, len(r.entities))
	for _, e := range r.entities {
		out = append(out, copyEntity(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// Len returns the number of registered entities.
func (r *EntityRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entities)
}

func copyEntity(e *Entity) Entity {
	cp := *e
	cp.LastState = maps.Clone(e.LastState)
	return cp
}
