package lutron

import (
	"context"
	"errors"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/nerrad567/gray-logic-leap/internal/leap"
)

// unresolvedWarnInterval limits unresolved-address warnings to one per
// address per interval.
const unresolvedWarnInterval = time.Minute

// Event kinds published to the host.
const (
	EventButton    = "button"
	EventGesture   = "gesture"
	EventOccupancy = "occupancy"
	EventTrigger   = "trigger"
)

// Host receives state updates and events from the router.
type Host interface {
	// ApplyState merges update into the host device's state.
	ApplyState(ctx context.Context, hostDeviceID string, update map[string]any)

	// Toggle flips a host device on or off. The device need not be
	// managed by this engine.
	Toggle(ctx context.Context, hostDeviceID string)

	// PublishEvent announces a transient event of the given kind.
	PublishEvent(ctx context.Context, kind string, payload map[string]any)
}

// TriggerEvaluator matches events against configured triggers and runs
// those that match.
type TriggerEvaluator interface {
	EvaluateButton(ctx context.Context, address, eventType string)
	EvaluateMultiPress(ctx context.Context, address string, count int)
	EvaluateOccupancy(ctx context.Context, address, status string)
}

// LinkedRules returns the host devices a button press toggles.
type LinkedRules interface {
	Targets(controllerAddress string) []string
}

// RouterOptions configures a Router.
type RouterOptions struct {
	Registry  *EntityRegistry
	Links     func(bridgeID string) (Link, bool)
	Host      Host
	Triggers  TriggerEvaluator
	Linked    LinkedRules
	Gestures  *GestureDetector
	Projector Projector
	Logger    Logger
}

// Router translates bridge events into host updates.
//
// Thread Safety:
//   - Not safe for concurrent use. All methods run on the engine's event
//     loop, which also owns the gesture detector.
type Router struct {
	registry  *EntityRegistry
	links     func(bridgeID string) (Link, bool)
	host      Host
	triggers  TriggerEvaluator
	linked    LinkedRules
	gestures  *GestureDetector
	projector Projector
	warned    *ttlcache.Cache[string, struct{}]
	logger    Logger
}

// NewRouter builds a router. Triggers and Linked may be nil.
func NewRouter(opts RouterOptions) *Router {
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	gestures := opts.Gestures
	if gestures == nil {
		gestures = NewGestureDetector(GestureOptions{})
	}
	return &Router{
		registry:  opts.Registry,
		links:     opts.Links,
		host:      opts.Host,
		triggers:  opts.Triggers,
		linked:    opts.Linked,
		gestures:  gestures,
		projector: opts.Projector,
		warned: ttlcache.New[string, struct{}](
			ttlcache.WithTTL[string, struct{}](unresolvedWarnInterval),
			ttlcache.WithDisableTouchOnHit[string, struct{}](),
		),
		logger: logger,
	}
}

// OnDeviceEvent reads the device's cached state from its link and applies
// the entity's projection.
func (r *Router) OnDeviceEvent(ctx context.Context, bridgeID, deviceID string) error {
	address := MakeAddress(bridgeID, deviceID)

	entity, err := r.registry.Resolve(address)
	if err != nil {
		r.warnUnresolved(address)
		return err
	}

	link, ok := r.links(bridgeID)
	if !ok {
		return ErrUnknownBridge
	}
	dev, ok := link.DeviceByID(deviceID)
	if !ok {
		r.warnUnresolved(address)
		return ErrUnresolvedAddress
	}

	update, projErr := r.projector.Project(entity.Kind, dev.State)
	if projErr != nil {
		r.logger.Warn("skipping malformed fields", "address", address, "kind", string(entity.Kind), "error", projErr)
	}
	if err := r.registry.SetLastState(address, dev.State); err != nil {
		// Unregistered between Resolve and now.
		return err
	}
	if len(update) > 0 {
		r.host.ApplyState(ctx, entity.HostDeviceID, update)
	}
	return projErr
}

// OnOccupancyEvent updates the group's sensor and evaluates occupancy
// triggers. Triggers are evaluated even when no host device is bound to
// the group.
func (r *Router) OnOccupancyEvent(ctx context.Context, bridgeID, groupID string, status leap.OccupancyStatus) error {
	address := OccupancyAddress(bridgeID, groupID)

	update, err := ProjectOccupancy(status)
	if err != nil {
		r.logger.Warn("ignoring occupancy status", "address", address, "error", err)
		return err
	}

	if r.triggers != nil {
		r.triggers.EvaluateOccupancy(ctx, address, string(status))
	}
	r.host.PublishEvent(ctx, EventOccupancy, map[string]any{
		"address": address,
		"status":  string(status),
	})

	entity, err := r.registry.Resolve(address)
	if err != nil {
		r.warnUnresolved(address)
		return err
	}
	if err := r.registry.SetLastState(address, map[string]any{"status": string(status)}); err != nil {
		return err
	}
	r.host.ApplyState(ctx, entity.HostDeviceID, update)
	return nil
}

// OnButtonEvent evaluates direct button triggers. Presses additionally
// feed the gesture detector and toggle linked devices.
func (r *Router) OnButtonEvent(ctx context.Context, bridgeID, buttonID string, event leap.ButtonEventType, at time.Time) {
	address := MakeAddress(bridgeID, buttonID)

	if r.triggers != nil {
		r.triggers.EvaluateButton(ctx, address, string(event))
	}
	r.host.PublishEvent(ctx, EventButton, map[string]any{
		"address":    address,
		"event_type": string(event),
	})

	if event != leap.ButtonPress {
		return
	}

	r.emitGestures(ctx, r.gestures.Press(address, at))

	if r.linked == nil {
		return
	}
	for _, target := range r.linked.Targets(address) {
		r.logger.Debug("toggling linked device", "controller", address, "target", target)
		r.host.Toggle(ctx, target)
	}
}

// TickGestures finalizes expired gesture windows.
func (r *Router) TickGestures(ctx context.Context, now time.Time) {
	r.emitGestures(ctx, r.gestures.Tick(now))
}

// ActiveGestures returns the number of open gesture windows.
func (r *Router) ActiveGestures() int {
	return r.gestures.Active()
}

func (r *Router) emitGestures(ctx context.Context, gestures []Gesture) {
	for _, g := range gestures {
		r.logger.Debug("gesture", "address", g.Address, "count", g.Count)
		if r.triggers != nil {
			r.triggers.EvaluateMultiPress(ctx, g.Address, g.Count)
		}
		r.host.PublishEvent(ctx, EventGesture, map[string]any{
			"address":     g.Address,
			"count":       g.Count,
			"duration_ms": g.End.Sub(g.Start).Milliseconds(),
		})
	}
}

// warnUnresolved logs at most one warning per address per interval.
func (r *Router) warnUnresolved(address string) {
	if r.warned.Get(address) != nil {
		return
	}
	r.warned.Set(address, struct{}{}, ttlcache.DefaultTTL)
	r.logger.Warn("dropping event for unresolved address", "address", address)
}

// Close releases the warning cache.
func (r *Router) Close() {
	r.warned.DeleteAll()
}

// isMalformed reports whether err only describes skipped fields.
func isMalformed(err error) bool {
	return errors.Is(err, ErrMalformedPayload)
}
