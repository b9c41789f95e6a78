package lutron

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-leap/internal/leap"
)

// Default engine settings.
const (
	// defaultQueueSize is the capacity of the event queue.
	defaultQueueSize = 256

	// defaultTickInterval is how often gesture windows are checked.
	defaultTickInterval = 100 * time.Millisecond

	// defaultCommandTimeout bounds a single bridge command.
	defaultCommandTimeout = 5 * time.Second

	// defaultRestartInterval is the first delay before restarting a bridge.
	defaultRestartInterval = 5 * time.Second

	// maxRestartInterval caps the restart backoff.
	maxRestartInterval = 2 * time.Minute
)

// EngineOptions configures an Engine.
type EngineOptions struct {
	Bridges []BridgeSpec

	// QueueSize is the event queue capacity. Default: 256.
	QueueSize int

	Gesture GestureOptions

	// TickInterval is the gesture check interval. Default: 100ms.
	TickInterval time.Duration

	// ResyncInterval refreshes every entity periodically. Zero disables.
	ResyncInterval time.Duration

	// CommandTimeout bounds each bridge command. Default: 5s.
	CommandTimeout time.Duration

	// RestartInterval is the initial backoff before a failed or lost bridge
	// is restarted. Default: 5s. Negative disables restarts.
	RestartInterval time.Duration

	Host      Host
	Triggers  TriggerEvaluator
	Linked    LinkedRules
	Projector Projector

	// LinkFactory builds bridge links. Default: NewLEAPLink.
	LinkFactory LinkFactory

	Logger Logger

	// Clock supplies event timestamps. Default: time.Now.
	Clock func() time.Time
}

type eventKind int

const (
	evDevice eventKind = iota
	evButton
	evOccupancy
)

// event is a push event handed from a link goroutine to the loop.
type event struct {
	kind      eventKind
	bridgeID  string
	nativeID  string
	button    leap.ButtonEventType
	occupancy leap.OccupancyStatus
	at        time.Time
}

// EngineStats reports loop and command counters.
type EngineStats struct {
	EventsQueued      uint64 `json:"events_queued"`
	EventsDropped     uint64 `json:"events_dropped"`
	EventsProcessed   uint64 `json:"events_processed"`
	PanicsRecovered   uint64 `json:"panics_recovered"`
	CommandsSubmitted uint64 `json:"commands_submitted"`
	CommandsFailed    uint64 `json:"commands_failed"`
	BridgeRestarts    uint64 `json:"bridge_restarts"`
	QueueDepth        int    `json:"queue_depth"`
	Entities          int    `json:"entities"`
}

// SessionStatus describes one configured bridge.
type SessionStatus struct {
	BridgeID        string      `json:"bridge_id"`
	Name            string      `json:"name"`
	Address         string      `json:"address"`
	State           string      `json:"state"`
	Error           string      `json:"error,omitempty"`
	Connected       bool        `json:"connected"`
	Devices         int         `json:"devices"`
	Buttons         int         `json:"buttons"`
	Scenes          int         `json:"scenes"`
	Areas           int         `json:"areas"`
	OccupancyGroups int         `json:"occupancy_groups"`
	Subscriptions   int         `json:"subscriptions"`
	ReadyAt         *time.Time  `json:"ready_at,omitempty"`
	Link            *leap.Stats `json:"link,omitempty"`
}

// Engine owns the bridge sessions, the entity registry and the single
// event loop that routes bridge events.
//
// Thread Safety:
//   - Public methods are safe for concurrent use.
//   - Routing and gesture detection run only on the loop goroutine.
//
// Restarts:
//   - A bridge that fails to start or loses its link is restarted with
//     backoff from RestartInterval up to maxRestartInterval, for as long as
//     the host wants it running. Sessions themselves never retry.
type Engine struct {
	registry *EntityRegistry
	router   *Router
	queue    chan event

	tickInterval    time.Duration
	resyncInterval  time.Duration
	commandTimeout  time.Duration
	restartInterval time.Duration
	linkFactory     LinkFactory
	now             func() time.Time

	mu         sync.RWMutex
	bridges    map[string]BridgeSpec
	sessions   map[string]*Session
	failures   map[string]error
	wanted     map[string]bool
	restarting map[string]bool
	devices    map[string]HostDevice
	closing    bool

	runCtx  context.Context
	cancel  context.CancelFunc
	started atomic.Bool
	stopped atomic.Bool

	stopOnce sync.Once
	loopWG   sync.WaitGroup
	workWG   sync.WaitGroup

	eventsQueued      atomic.Uint64
	eventsDropped     atomic.Uint64
	eventsProcessed   atomic.Uint64
	panicsRecovered   atomic.Uint64
	commandsSubmitted atomic.Uint64
	commandsFailed    atomic.Uint64
	bridgeRestarts    atomic.Uint64

	logger Logger
}

// Ensure Engine is a session event sink.
var _ EventSink = (*Engine)(nil)

// NewEngine validates opts and builds an engine. Call Start to run it.
func NewEngine(opts EngineOptions) (*Engine, error) {
	if opts.Host == nil {
		return nil, fmt.Errorf("%w: host is required", ErrInvalidParameters)
	}

	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	bridges := make(map[string]BridgeSpec, len(opts.Bridges))
	for _, b := range opts.Bridges {
		if b.ID == "" {
			return nil, fmt.Errorf("%w: bridge id is required", ErrInvalidParameters)
		}
		if _, dup := bridges[b.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate bridge id %q", ErrInvalidParameters, b.ID)
		}
		bridges[b.ID] = b
	}

	e := &Engine{
		registry:        NewEntityRegistry(),
		queue:           make(chan event, orDefault(opts.QueueSize, defaultQueueSize)),
		tickInterval:    orDefault(opts.TickInterval, defaultTickInterval),
		resyncInterval:  opts.ResyncInterval,
		commandTimeout:  orDefault(opts.CommandTimeout, defaultCommandTimeout),
		restartInterval: opts.RestartInterval,
		linkFactory:     opts.LinkFactory,
		now:             opts.Clock,
		bridges:         bridges,
		sessions:        make(map[string]*Session),
		failures:        make(map[string]error),
		wanted:          make(map[string]bool),
		restarting:      make(map[string]bool),
		devices:         make(map[string]HostDevice),
		logger:          logger,
	}
	if e.restartInterval == 0 {
		e.restartInterval = defaultRestartInterval
	}
	if e.linkFactory == nil {
		e.linkFactory = NewLEAPLink(logger)
	}
	if e.now == nil {
		e.now = time.Now
	}

	e.router = NewRouter(RouterOptions{
		Registry:  e.registry,
		Links:     e.linkFor,
		Host:      opts.Host,
		Triggers:  opts.Triggers,
		Linked:    opts.Linked,
		Gestures:  NewGestureDetector(opts.Gesture),
		Projector: opts.Projector,
		Logger:    logger,
	})
	return e, nil
}

func orDefault[T int | time.Duration](v, def T) T {
	if v <= 0 {
		return def
	}
	return v
}

// Start launches the event loop. Sessions and entities are started by the
// host through StartDevice.
func (e *Engine) Start(ctx context.Context) error {
	if e.stopped.Load() {
		return ErrEngineStopped
	}
	if !e.started.CompareAndSwap(false, true) {
		return errors.New("lutron: engine already started")
	}

	e.runCtx, e.cancel = context.WithCancel(ctx)

	e.loopWG.Add(1)
	go e.loop(e.runCtx)

	e.logger.Info("lutron engine started",
		"bridges", len(e.bridges),
		"queue_size", cap(e.queue),
		"click_timeout", e.router.gestures.Timeout().String(),
	)
	return nil
}

// Stop halts the loop, stops every session (unsubscribing before closing
// each link) and waits for in-flight commands and restarts. Safe to call
// more than once.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.stopped.Store(true)

		e.mu.Lock()
		e.closing = true
		sessions := make([]*Session, 0, len(e.sessions))
		for _, s := range e.sessions {
			sessions = append(sessions, s)
		}
		e.sessions = make(map[string]*Session)
		e.wanted = make(map[string]bool)
		e.mu.Unlock()

		if e.cancel != nil {
			e.cancel()
		}
		e.loopWG.Wait()

		for _, s := range sessions {
			s.Stop()
			e.registry.UnregisterBridge(s.Spec().ID)
		}

		e.workWG.Wait()
		e.router.Close()
		e.logger.Info("lutron engine stopped")
	})
}

// loop is the single goroutine that routes events and ticks gestures.
func (e *Engine) loop(ctx context.Context) {
	defer e.loopWG.Done()

	tick := time.NewTicker(e.tickInterval)
	defer tick.Stop()

	var resync <-chan time.Time
	if e.resyncInterval > 0 {
		t := time.NewTicker(e.resyncInterval)
		defer t.Stop()
		resync = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-e.queue:
			e.dispatch(ctx, ev)
		case <-tick.C:
			// Presses already queued may be stamped before the deadline
			// of an open window, so they are routed before it expires.
			for n := len(e.queue); n > 0; n-- {
				e.dispatch(ctx, <-e.queue)
			}
			e.safely("gesture tick", func() {
				e.router.TickGestures(ctx, e.now())
			})
		case <-resync:
			n := e.queueRefresh()
			e.logger.Debug("periodic resync", "entities", n)
		}
	}
}

func (e *Engine) dispatch(ctx context.Context, ev event) {
	defer e.eventsProcessed.Add(1)

	e.safely("event routing", func() {
		switch ev.kind {
		case evDevice:
			err := e.router.OnDeviceEvent(ctx, ev.bridgeID, ev.nativeID)
			if err != nil && !errors.Is(err, ErrUnresolvedAddress) && !isMalformed(err) {
				e.logger.Warn("device event not applied", "bridge", ev.bridgeID, "device", ev.nativeID, "error", err)
			}
		case evButton:
			e.router.OnButtonEvent(ctx, ev.bridgeID, ev.nativeID, ev.button, ev.at)
		case evOccupancy:
			_ = e.router.OnOccupancyEvent(ctx, ev.bridgeID, ev.nativeID, ev.occupancy)
		}
	})
}

// safely runs fn and converts a panic into a logged, counted error.
func (e *Engine) safely(where string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.panicsRecovered.Add(1)
			e.logger.Error("recovered panic", "where", where, "panic", r, "stack", string(debug.Stack()))
		}
	}()
	fn()
}

// enqueue hands an event to the loop without blocking. A full queue
// drops the event.
func (e *Engine) enqueue(ev event) bool {
	if e.stopped.Load() {
		return false
	}
	select {
	case e.queue <- ev:
		e.eventsQueued.Add(1)
		return true
	default:
		e.eventsDropped.Add(1)
		e.logger.Warn("event queue full, dropping event", "bridge", ev.bridgeID, "id", ev.nativeID)
		return false
	}
}

// DeviceEvent implements EventSink.
func (e *Engine) DeviceEvent(bridgeID, deviceID string) {
	e.safely("device callback", func() {
		e.enqueue(event{kind: evDevice, bridgeID: bridgeID, nativeID: deviceID, at: e.now()})
	})
}

// ButtonEvent implements EventSink. The press time is taken on arrival.
func (e *Engine) ButtonEvent(bridgeID, buttonID string, ev leap.ButtonEventType) {
	e.safely("button callback", func() {
		e.enqueue(event{kind: evButton, bridgeID: bridgeID, nativeID: buttonID, button: ev, at: e.now()})
	})
}

// OccupancyEvent implements EventSink.
func (e *Engine) OccupancyEvent(bridgeID, groupID string, status leap.OccupancyStatus) {
	e.safely("occupancy callback", func() {
		e.enqueue(event{kind: evOccupancy, bridgeID: bridgeID, nativeID: groupID, occupancy: status, at: e.now()})
	})
}

// StartDevice is the host's start hook.
//
// For a bridge it creates a session and connects in the background. For
// an entity it blocks until the bridge is Ready, then registers the
// address and queues an initial refresh.
//
// Returns:
//   - error: ErrUnknownBridge, ErrTransportFailure, ErrSessionClosed,
//     ErrDuplicateRegistration or ctx.Err()
func (e *Engine) StartDevice(ctx context.Context, dev HostDevice) error {
	if e.stopped.Load() || !e.started.Load() {
		return ErrEngineStopped
	}

	switch {
	case dev.Kind == KindBridge:
		return e.startBridge(dev.ID)
	case dev.Kind.IsEntity():
		return e.startEntity(ctx, dev)
	default:
		return fmt.Errorf("%w: unknown device kind %q", ErrInvalidParameters, dev.Kind)
	}
}

func (e *Engine) startBridge(id string) error {
	e.mu.Lock()
	spec, ok := e.bridges[id]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownBridge, id)
	}
	e.wanted[id] = true
	if s, running := e.sessions[id]; running && !isDone(s) {
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	session, err := e.newSession(spec)
	if err != nil {
		e.scheduleRestart(id)
		return err
	}

	if !e.track() {
		session.Stop()
		return ErrEngineStopped
	}
	go func() {
		defer e.workWG.Done()
		if err := session.Start(e.runCtx); err != nil && !errors.Is(err, ErrSessionClosed) {
			e.scheduleRestart(id)
		}
	}()
	return nil
}

// newSession builds a link and session for spec and installs it,
// replacing any previous session for the bridge.
func (e *Engine) newSession(spec BridgeSpec) (*Session, error) {
	link, err := e.linkFactory(spec)
	if err != nil {
		err = fmt.Errorf("%w: bridge %s: %w", ErrTransportFailure, spec.ID, err)
		e.mu.Lock()
		e.failures[spec.ID] = err
		e.mu.Unlock()
		e.logger.Error("bridge not started", "bridge", spec.ID, "error", err)
		return nil, err
	}

	session, err := NewSession(SessionOptions{Spec: spec, Link: link, Sink: e, Logger: e.logger})
	if err != nil {
		return nil, err
	}
	link.SetOnDisconnect(func(err error) { e.linkLost(spec.ID, session, err) })

	e.mu.Lock()
	if e.closing || !e.wanted[spec.ID] {
		e.mu.Unlock()
		session.Stop()
		return nil, fmt.Errorf("%w: bridge %s no longer wanted", ErrSessionClosed, spec.ID)
	}
	old := e.sessions[spec.ID]
	e.sessions[spec.ID] = session
	delete(e.failures, spec.ID)
	e.mu.Unlock()

	if old != nil {
		old.Stop()
	}
	return session, nil
}

func isDone(s *Session) bool {
	st := s.State()
	return st == StateFailed || st == StateClosed
}

// track registers background work unless the engine is stopping.
func (e *Engine) track() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closing {
		return false
	}
	e.workWG.Add(1)
	return true
}

func (e *Engine) startEntity(ctx context.Context, dev HostDevice) error {
	if dev.BridgeID == "" || dev.NativeID == "" {
		return fmt.Errorf("%w: device %s needs a bridge and native id", ErrInvalidParameters, dev.ID)
	}

	e.mu.Lock()
	if _, ok := e.bridges[dev.BridgeID]; !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownBridge, dev.BridgeID)
	}
	e.devices[dev.ID] = dev
	session := e.sessions[dev.BridgeID]
	e.mu.Unlock()

	if session == nil {
		return fmt.Errorf("%w: bridge %s has no session", ErrTransportFailure, dev.BridgeID)
	}
	if err := session.WaitReady(ctx); err != nil {
		return fmt.Errorf("starting %s: %w", dev.ID, err)
	}
	return e.registerEntity(dev, session)
}

// registerEntity maps a started device into the registry and queues its
// initial state. The session must be Ready.
func (e *Engine) registerEntity(dev HostDevice, session *Session) error {
	kind := dev.Kind
	if kind == KindAuto {
		d, ok := session.Link().DeviceByID(dev.NativeID)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnresolvedAddress, MakeAddress(dev.BridgeID, dev.NativeID))
		}
		kind = KindForDeviceType(d.Type)
		if kind == "" {
			return fmt.Errorf("%w: cannot infer kind of %s from type %q", ErrInvalidParameters, dev.ID, d.Type)
		}
	}

	resolved := dev
	resolved.Kind = kind
	entity := Entity{
		Address:      EntityAddress(resolved),
		BridgeID:     dev.BridgeID,
		NativeID:     dev.NativeID,
		HostDeviceID: dev.ID,
		Kind:         kind,
	}
	if err := e.registry.Register(entity); err != nil {
		e.logger.Warn("entity registration rejected", "device", dev.ID, "address", entity.Address, "error", err)
		return err
	}

	// Stopped while waiting for readiness.
	e.mu.RLock()
	_, stillWanted := e.devices[dev.ID]
	e.mu.RUnlock()
	if !stillWanted {
		e.registry.Unregister(entity.Address)
		return ErrSessionClosed
	}

	if kind == KindOccupancy {
		for _, g := range session.Discovery().OccupancyGroups {
			if g.ID == dev.NativeID && (g.Status == leap.Occupied || g.Status == leap.Unoccupied) {
				e.enqueue(event{kind: evOccupancy, bridgeID: dev.BridgeID, nativeID: g.ID, occupancy: g.Status, at: e.now()})
			}
		}
	} else {
		e.enqueue(event{kind: evDevice, bridgeID: dev.BridgeID, nativeID: dev.NativeID, at: e.now()})
	}

	e.logger.Info("entity started", "device", dev.ID, "address", entity.Address, "kind", string(kind))
	return nil
}

// StopDevice is the host's stop hook. Stopping a bridge stops its session
// and unregisters its entities; stopping an entity unregisters its address.
func (e *Engine) StopDevice(_ context.Context, dev HostDevice) error {
	if dev.Kind == KindBridge {
		e.mu.Lock()
		delete(e.wanted, dev.ID)
		delete(e.failures, dev.ID)
		session := e.sessions[dev.ID]
		delete(e.sessions, dev.ID)
		e.mu.Unlock()

		if session != nil {
			session.Stop()
		}
		removed := e.registry.UnregisterBridge(dev.ID)
		e.logger.Info("bridge stopped", "bridge", dev.ID, "entities_removed", len(removed))
		return nil
	}

	e.mu.Lock()
	delete(e.devices, dev.ID)
	e.mu.Unlock()

	if entity, ok := e.registry.ByHostID(dev.ID); ok {
		e.registry.Unregister(entity.Address)
	}
	return nil
}

// linkLost is called on the link's goroutine when a live connection drops.
func (e *Engine) linkLost(bridgeID string, session *Session, err error) {
	e.mu.RLock()
	current := e.sessions[bridgeID] == session
	e.mu.RUnlock()
	if !current {
		return
	}
	e.logger.Warn("bridge link lost", "bridge", bridgeID, "error", err)
	e.scheduleRestart(bridgeID)
}

// scheduleRestart starts the restart loop for a bridge unless one is
// already running or the host no longer wants the bridge.
func (e *Engine) scheduleRestart(bridgeID string) {
	if e.restartInterval < 0 {
		return
	}

	e.mu.Lock()
	if e.closing || !e.wanted[bridgeID] || e.restarting[bridgeID] {
		e.mu.Unlock()
		return
	}
	e.restarting[bridgeID] = true
	e.workWG.Add(1)
	e.mu.Unlock()

	go e.restartLoop(bridgeID)
}

func (e *Engine) restartLoop(bridgeID string) {
	defer e.workWG.Done()
	defer func() {
		e.mu.Lock()
		delete(e.restarting, bridgeID)
		e.mu.Unlock()
	}()

	backoff := e.restartInterval
	for {
		timer := time.NewTimer(backoff)
		select {
		case <-e.runCtx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		e.mu.RLock()
		wanted := e.wanted[bridgeID]
		spec := e.bridges[bridgeID]
		e.mu.RUnlock()
		if !wanted {
			return
		}

		e.bridgeRestarts.Add(1)
		e.logger.Info("restarting bridge", "bridge", bridgeID, "backoff", backoff.String())
		e.registry.UnregisterBridge(bridgeID)

		err := e.restartOnce(spec)
		if err == nil || errors.Is(err, ErrSessionClosed) {
			return
		}
		e.logger.Warn("bridge restart failed", "bridge", bridgeID, "error", err)

		backoff = time.Duration(float64(backoff) * 1.5)
		if backoff > maxRestartInterval {
			backoff = maxRestartInterval
		}
	}
}

// restartOnce brings a bridge back and re-registers its started entities.
func (e *Engine) restartOnce(spec BridgeSpec) error {
	session, err := e.newSession(spec)
	if err != nil {
		return err
	}
	if err := session.Start(e.runCtx); err != nil {
		return err
	}

	e.mu.RLock()
	var devs []HostDevice
	for _, d := range e.devices {
		if d.BridgeID == spec.ID {
			devs = append(devs, d)
		}
	}
	e.mu.RUnlock()

	for _, d := range devs {
		if err := e.registerEntity(d, session); err != nil {
			e.logger.Warn("re-registering entity after restart", "device", d.ID, "error", err)
		}
	}
	return nil
}

// linkFor returns the link of a Ready session.
func (e *Engine) linkFor(bridgeID string) (Link, bool) {
	e.mu.RLock()
	s, ok := e.sessions[bridgeID]
	e.mu.RUnlock()
	if !ok || s.State() != StateReady {
		return nil, false
	}
	return s.Link(), true
}

// Submit validates a command and runs it in the background. Completion is
// not awaited; a failed command is only logged.
//
// Returns:
//   - error: ErrUnknownDevice, ErrUnsupportedCommand, ErrInvalidParameters
//     or ErrTransportFailure when the bridge is not ready
func (e *Engine) Submit(cmd Command) error {
	if e.stopped.Load() || !e.started.Load() {
		return ErrEngineStopped
	}

	var (
		kind     Kind
		bridgeID string
		nativeID string
		last     map[string]any
	)

	e.mu.RLock()
	_, isBridge := e.bridges[cmd.DeviceID]
	e.mu.RUnlock()

	if isBridge {
		kind, bridgeID = KindBridge, cmd.DeviceID
	} else {
		entity, ok := e.registry.ByHostID(cmd.DeviceID)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownDevice, cmd.DeviceID)
		}
		kind, bridgeID, nativeID, last = entity.Kind, entity.BridgeID, entity.NativeID, entity.LastState
	}

	if err := cmd.validate(kind); err != nil {
		return err
	}
	link, ok := e.linkFor(bridgeID)
	if !ok {
		return fmt.Errorf("%w: bridge %s not ready", ErrTransportFailure, bridgeID)
	}
	run := cmd.bind(kind, nativeID, last)

	if !e.track() {
		return ErrEngineStopped
	}
	e.commandsSubmitted.Add(1)

	go func() {
		defer e.workWG.Done()
		e.safely("command", func() {
			ctx, cancel := context.WithTimeout(e.runCtx, e.commandTimeout)
			defer cancel()
			if err := run(ctx, link); err != nil {
				e.commandsFailed.Add(1)
				e.logger.Warn("bridge command failed",
					"device", cmd.DeviceID, "command", cmd.Action, "bridge", bridgeID, "error", err)
			}
		})
	}()
	return nil
}

// Resync queues a refresh of every registered device entity. Occupancy
// groups are push-only and keep their last status.
func (e *Engine) Resync(_ context.Context) int {
	return e.queueRefresh()
}

func (e *Engine) queueRefresh() int {
	n := 0
	for _, ent := range e.registry.Entities() {
		if ent.Kind == KindOccupancy {
			continue
		}
		if e.enqueue(event{kind: evDevice, bridgeID: ent.BridgeID, nativeID: ent.NativeID, at: e.now()}) {
			n++
		}
	}
	return n
}

// Manages reports whether deviceID is a bridge or a started entity.
func (e *Engine) Manages(deviceID string) bool {
	e.mu.RLock()
	_, isBridge := e.bridges[deviceID]
	_, isDevice := e.devices[deviceID]
	e.mu.RUnlock()
	return isBridge || isDevice
}

// Registry returns the entity registry.
func (e *Engine) Registry() *EntityRegistry {
	return e.registry
}

// Discovery returns the discovery snapshot of a Ready bridge.
func (e *Engine) Discovery(bridgeID string) (Discovery, bool) {
	e.mu.RLock()
	s, ok := e.sessions[bridgeID]
	e.mu.RUnlock()
	if !ok || s.State() != StateReady {
		return Discovery{}, false
	}
	return s.Discovery(), true
}

// Sessions returns the status of every configured bridge, ordered by id.
func (e *Engine) Sessions() []SessionStatus {
	e.mu.RLock()
	out := make([]SessionStatus, 0, len(e.bridges))
	for id, spec := range e.bridges {
		st := SessionStatus{BridgeID: id, Name: spec.Name, Address: spec.Address, State: StateIdle.String()}
		if err, failed := e.failures[id]; failed {
			st.State = StateFailed.String()
			st.Error = err.Error()
		}
		if s, ok := e.sessions[id]; ok {
			fillSessionStatus(&st, s)
		}
		out = append(out, st)
	}
	e.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].BridgeID < out[j].BridgeID })
	return out
}

func fillSessionStatus(st *SessionStatus, s *Session) {
	state := s.State()
	st.State = state.String()
	if err := s.Err(); err != nil {
		st.Error = err.Error()
	}
	st.Connected = s.Link().IsConnected()
	st.Subscriptions = s.Subscriptions()

	if state == StateReady {
		d := s.Discovery()
		st.Devices = len(d.Devices)
		st.Buttons = len(d.Buttons)
		st.Scenes = len(d.Scenes)
		st.Areas = len(d.Areas)
		st.OccupancyGroups = len(d.OccupancyGroups)
		readyAt := d.CompletedAt
		st.ReadyAt = &readyAt
	}
	if ls, ok := s.Link().(linkStatter); ok {
		stats := ls.Stats()
		st.Link = &stats
	}
}

// Stats returns loop and command counters.
func (e *Engine) Stats() EngineStats {
	return EngineStats{
		EventsQueued:      e.eventsQueued.Load(),
		EventsDropped:     e.eventsDropped.Load(),
		EventsProcessed:   e.eventsProcessed.Load(),
		PanicsRecovered:   e.panicsRecovered.Load(),
		CommandsSubmitted: e.commandsSubmitted.Load(),
		CommandsFailed:    e.commandsFailed.Load(),
		BridgeRestarts:    e.bridgeRestarts.Load(),
		QueueDepth:        len(e.queue),
		Entities:          e.registry.Len(),
	}
}
