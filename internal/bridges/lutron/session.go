package lutron

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-leap/internal/leap"
)

// SessionState is the lifecycle state of a bridge session.
type SessionState int

// Session states. Failed and Closed are terminal.
const (
	StateIdle SessionState = iota
	StateConnecting
	StateDiscovering
	StateReady
	StateClosed
	StateFailed
)

// String returns the lowercase state name.
func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateDiscovering:
		return "discovering"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// EventSink receives push events from a session's subscriptions. Calls
// arrive on the link's goroutine and must not block.
type EventSink interface {
	DeviceEvent(bridgeID, deviceID string)
	ButtonEvent(bridgeID, buttonID string, event leap.ButtonEventType)
	OccupancyEvent(bridgeID, groupID string, status leap.OccupancyStatus)
}

// Discovery is the snapshot read from a bridge after connecting.
type Discovery struct {
	Devices         []leap.Device
	Buttons         []leap.Button
	Scenes          []leap.Scene
	Areas           []leap.Area
	OccupancyGroups []leap.OccupancyGroup
	CompletedAt     time.Time
}

// SessionOptions configures a Session.
type SessionOptions struct {
	Spec   BridgeSpec
	Link   Link
	Sink   EventSink
	Logger Logger
}

// Session sequences connect and discovery for one bridge and exposes a
// readiness signal.
//
// States run Idle → Connecting → Discovering → Ready → Closed. A connect
// or discovery error moves to Failed, which is never retried here.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Session struct {
	spec BridgeSpec
	link Link
	sink EventSink

	mu        sync.Mutex
	state     SessionState
	err       error
	discovery Discovery
	unsubs    []func()

	ready    *Signal
	terminal *Signal
	stopOnce sync.Once

	logger Logger
}

// NewSession returns an Idle session.
func NewSession(opts SessionOptions) (*Session, error) {
	if opts.Spec.ID == "" {
		return nil, fmt.Errorf("%w: bridge id is required", ErrInvalidParameters)
	}
	if opts.Link == nil || opts.Sink == nil {
		return nil, fmt.Errorf("%w: link and sink are required", ErrInvalidParameters)
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Session{
		spec:     opts.Spec,
		link:     opts.Link,
		sink:     opts.Sink,
		ready:    NewSignal(),
		terminal: NewSignal(),
		logger:   logger,
	}, nil
}

// Start connects, runs discovery and registers subscriptions, then fires
// readiness. It blocks until the session is Ready or has failed.
//
// Returns:
//   - error: ErrTransportFailure on connect or discovery failure,
//     ErrSessionClosed if Stop ran meanwhile
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("session %s cannot start from %s", s.spec.ID, state)
	}
	s.state = StateConnecting
	s.mu.Unlock()

	s.logger.Info("connecting to bridge", "bridge", s.spec.ID, "address", s.spec.Address)
	if err := s.link.Connect(ctx); err != nil {
		return s.fail(fmt.Errorf("connecting: %w", err))
	}

	if !s.transition(StateConnecting, StateDiscovering) {
		return ErrSessionClosed
	}

	d, err := s.discover(ctx)
	if err != nil {
		return s.fail(err)
	}

	if err := s.subscribe(d); err != nil {
		return err
	}

	s.mu.Lock()
	if s.state != StateDiscovering {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.state = StateReady
	s.discovery = d
	s.mu.Unlock()

	s.ready.Fire()
	s.logger.Info("bridge ready",
		"bridge", s.spec.ID,
		"devices", len(d.Devices),
		"buttons", len(d.Buttons),
		"scenes", len(d.Scenes),
		"areas", len(d.Areas),
		"occupancy_groups", len(d.OccupancyGroups),
	)
	return nil
}

// discover performs the five bulk reads in order. Areas precede occupancy
// groups so groups can be named after their area.
func (s *Session) discover(ctx context.Context) (Discovery, error) {
	var d Discovery
	var err error

	if d.Devices, err = s.link.Devices(ctx); err != nil {
		return d, fmt.Errorf("discovering devices: %w", err)
	}
	if d.Buttons, err = s.link.Buttons(ctx); err != nil {
		return d, fmt.Errorf("discovering buttons: %w", err)
	}
	if d.Scenes, err = s.link.Scenes(ctx); err != nil {
		return d, fmt.Errorf("discovering scenes: %w", err)
	}
	if d.Areas, err = s.link.Areas(ctx); err != nil {
		return d, fmt.Errorf("discovering areas: %w", err)
	}
	if d.OccupancyGroups, err = s.link.OccupancyGroups(ctx); err != nil {
		return d, fmt.Errorf("discovering occupancy groups: %w", err)
	}
	d.CompletedAt = time.Now()
	return d, nil
}

// subscribe registers one callback per device, button and occupancy group.
// It runs before readiness so no event can beat the registry.
func (s *Session) subscribe(d Discovery) error {
	bridgeID := s.spec.ID
	unsubs := make([]func(), 0, len(d.Devices)+len(d.Buttons)+len(d.OccupancyGroups))

	for _, dev := range d.Devices {
		id := dev.ID
		unsubs = append(unsubs, s.link.AddSubscriber(id, func() {
			s.sink.DeviceEvent(bridgeID, id)
		}))
	}
	for _, b := range d.Buttons {
		id := b.ID
		unsubs = append(unsubs, s.link.AddButtonSubscriber(id, func(ev leap.ButtonEventType) {
			s.sink.ButtonEvent(bridgeID, id, ev)
		}))
	}
	for _, g := range d.OccupancyGroups {
		id := g.ID
		unsubs = append(unsubs, s.link.AddOccupancySubscriber(id, func(st leap.OccupancyStatus) {
			s.sink.OccupancyEvent(bridgeID, id, st)
		}))
	}

	s.mu.Lock()
	if s.state != StateDiscovering {
		s.mu.Unlock()
		for _, u := range unsubs {
			u()
		}
		return ErrSessionClosed
	}
	s.unsubs = unsubs
	s.mu.Unlock()
	return nil
}

func (s *Session) transition(from, to SessionState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != from {
		return false
	}
	s.state = to
	return true
}

// fail moves a connecting or discovering session to Failed and releases
// the link.
func (s *Session) fail(cause error) error {
	s.mu.Lock()
	if s.state != StateConnecting && s.state != StateDiscovering {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.state = StateFailed
	s.err = cause
	unsubs := s.unsubs
	s.unsubs = nil
	s.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
	if err := s.link.Close(); err != nil {
		s.logger.Debug("closing failed link", "bridge", s.spec.ID, "error", err)
	}
	s.terminal.Fire()

	s.logger.Error("bridge session failed", "bridge", s.spec.ID, "error", cause)
	return fmt.Errorf("%w: bridge %s: %w", ErrTransportFailure, s.spec.ID, cause)
}

// Stop removes subscriptions, then closes the link. Safe to call more than
// once; only the first call has effects.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		prev := s.state
		s.state = StateClosed
		unsubs := s.unsubs
		s.unsubs = nil
		s.mu.Unlock()

		for _, u := range unsubs {
			u()
		}
		if prev != StateFailed {
			if err := s.link.Close(); err != nil {
				s.logger.Warn("closing bridge link", "bridge", s.spec.ID, "error", err)
			}
		}
		s.terminal.Fire()
		s.logger.Info("bridge session stopped", "bridge", s.spec.ID, "previous_state", prev.String())
	})
}

// WaitReady blocks until the session is Ready.
//
// Returns:
//   - nil once Ready (immediately if already Ready)
//   - ErrTransportFailure if the session failed
//   - ErrSessionClosed if the session was stopped
//   - ctx.Err() if ctx ends first
func (s *Session) WaitReady(ctx context.Context) error {
	select {
	case <-s.ready.Done():
	case <-s.terminal.Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateReady:
		return nil
	case StateFailed:
		return fmt.Errorf("%w: bridge %s: %w", ErrTransportFailure, s.spec.ID, s.err)
	default:
		return ErrSessionClosed
	}
}

// Ready returns a channel closed when the session first becomes Ready.
func (s *Session) Ready() <-chan struct{} {
	return s.ready.Done()
}

// Done returns a channel closed when the session fails or is stopped.
func (s *Session) Done() <-chan struct{} {
	return s.terminal.Done()
}

// State returns the current state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the failure cause, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Discovery returns the snapshot taken when the session became Ready.
func (s *Session) Discovery() Discovery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.discovery
}

// Spec returns the bridge description the session was created with.
func (s *Session) Spec() BridgeSpec {
	return s.spec
}

// Link returns the session's link.
func (s *Session) Link() Link {
	return s.link
}

// Subscriptions returns the number of live subscriptions.
func (s *Session) Subscriptions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.unsubs)
}
