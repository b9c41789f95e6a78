package lutron

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"

	"github.com/nerrad567/gray-logic-leap/internal/automation"
	"github.com/nerrad567/gray-logic-leap/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-leap/internal/leap"
)

// Gateway settings.
const (
	// commandDedupeWindow is how long a command id is remembered, so a
	// QoS 1 redelivery is not executed twice.
	commandDedupeWindow = time.Minute

	// stateSource tags state history written by the engine.
	stateSource = "lutron"

	// qosAtLeastOnce is used for everything except transient events.
	qosAtLeastOnce byte = 1
)

// MQTTClient is the subset of the MQTT client the gateway needs.
// *mqtt.Client satisfies it.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	IsConnected() bool
}

// DeviceStore holds the host's device state.
type DeviceStore interface {
	// ApplyState merges update into the stored state and returns the
	// merged result.
	ApplyState(ctx context.Context, deviceID string, update map[string]any, source string) (map[string]any, error)

	// State returns the current stored state of a device.
	State(ctx context.Context, deviceID string) (map[string]any, error)
}

// Telemetry records time-series points. *influxdb.Client satisfies it.
type Telemetry interface {
	WriteEntityState(deviceID, kind string, fields map[string]any)
	WriteOccupancy(deviceID string, occupied bool)
	WriteButtonEvent(address, eventType string)
	WriteGesture(address string, taps int, duration time.Duration)
}

// EventListener receives every state change and event, e.g. a WebSocket hub.
type EventListener interface {
	Broadcast(channel string, payload any)
}

// LevelSetter changes the log level at runtime.
type LevelSetter interface {
	SetLevel(level string) error
}

// GatewayOptions configures a Gateway.
type GatewayOptions struct {
	// Engine options. Host, Triggers and Linked are supplied by the gateway.
	Engine EngineOptions

	// Devices are started in order: bridges first, then entities.
	Devices []HostDevice

	MQTT  MQTTClient
	Store DeviceStore

	// Triggers and Linked are optional.
	Triggers *automation.Registry
	Linked   *automation.LinkedRuleSet

	Telemetry Telemetry
	Events    EventListener
	Levels    LevelSetter

	Version        string
	HealthInterval time.Duration
	Logger         Logger
}

// Gateway connects the engine to the host: it applies state to the device
// store, publishes state and events over MQTT, and serves commands and
// requests from MQTT.
//
// Thread Safety: all public methods are safe for concurrent use.
type Gateway struct {
	engine    *Engine
	evaluator *automation.Evaluator
	health    *HealthReporter

	mqtt      MQTTClient
	store     DeviceStore
	triggers  *automation.Registry
	linked    *automation.LinkedRuleSet
	telemetry Telemetry
	events    EventListener
	levels    LevelSetter
	devices   []HostDevice
	topics    mqtt.Topics

	seen *ttlcache.Cache[string, struct{}]

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	started  atomic.Bool
	stopOnce sync.Once

	subscribed []string
	logger     Logger
}

// Ensure Gateway is the engine's host and the trigger executor.
var (
	_ Host                = (*Gateway)(nil)
	_ automation.Executor = (*Gateway)(nil)
)

// NewGateway builds the gateway and its engine.
//
// Returns:
//   - error: ErrInvalidParameters if MQTT or Store is missing, or any
//     engine option error
func NewGateway(opts GatewayOptions) (*Gateway, error) {
	if opts.MQTT == nil {
		return nil, fmt.Errorf("%w: mqtt client is required", ErrInvalidParameters)
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("%w: device store is required", ErrInvalidParameters)
	}

	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	g := &Gateway{
		mqtt:      opts.MQTT,
		store:     opts.Store,
		triggers:  opts.Triggers,
		linked:    opts.Linked,
		telemetry: opts.Telemetry,
		events:    opts.Events,
		levels:    opts.Levels,
		devices:   opts.Devices,
		seen: ttlcache.New[string, struct{}](
			ttlcache.WithTTL[string, struct{}](commandDedupeWindow),
			ttlcache.WithDisableTouchOnHit[string, struct{}](),
		),
		logger: logger,
	}

	engineOpts := opts.Engine
	engineOpts.Host = g
	engineOpts.Logger = logger
	if g.triggers != nil {
		g.evaluator = automation.NewEvaluator(g.triggers, g, logger)
		engineOpts.Triggers = g.evaluator
	}
	if g.linked != nil {
		engineOpts.Linked = g.linked
	}

	engine, err := NewEngine(engineOpts)
	if err != nil {
		return nil, err
	}
	g.engine = engine

	g.health = NewHealthReporter(HealthReporterConfig{
		Version:   opts.Version,
		Interval:  opts.HealthInterval,
		Publisher: opts.MQTT,
		Source:    engine,
	})
	g.health.SetLogger(logger)

	entities := 0
	for _, d := range opts.Devices {
		if d.Kind != KindBridge {
			entities++
		}
	}
	g.health.SetDeviceCount(entities)

	return g, nil
}

// Start runs the engine, subscribes to commands and requests, starts every
// bridge and then starts entities in the background as their bridges
// become ready.
func (g *Gateway) Start(ctx context.Context) error {
	if !g.started.CompareAndSwap(false, true) {
		return errors.New("lutron: gateway already started")
	}
	g.ctx, g.cancel = context.WithCancel(ctx)
	go g.seen.Start()

	if err := g.engine.Start(g.ctx); err != nil {
		return err
	}

	//nolint:errcheck // Best-effort, the report loop publishes again
	g.health.PublishStarting()

	subs := []struct {
		topic   string
		handler mqtt.MessageHandler
	}{
		{g.topics.BridgeCommand(Protocol, "+"), g.handleCommand},
		{g.topics.BridgeRequest(Protocol, "+"), g.handleRequest},
	}
	for _, s := range subs {
		if err := g.mqtt.Subscribe(s.topic, qosAtLeastOnce, s.handler); err != nil {
			return fmt.Errorf("subscribing to %s: %w", s.topic, err)
		}
		g.subscribed = append(g.subscribed, s.topic)
	}

	for _, d := range g.devices {
		if d.Kind != KindBridge {
			continue
		}
		if err := g.engine.StartDevice(g.ctx, d); err != nil {
			// A failed bridge is retried by the engine.
			g.logger.Error("bridge start failed", "bridge", d.ID, "error", err)
		}
	}
	for _, d := range g.devices {
		if d.Kind == KindBridge {
			continue
		}
		g.wg.Add(1)
		go func(dev HostDevice) {
			defer g.wg.Done()
			if err := g.engine.StartDevice(g.ctx, dev); err != nil && g.ctx.Err() == nil {
				g.logger.Warn("device not started", "device", dev.ID, "bridge", dev.BridgeID, "error", err)
			}
		}(d)
	}

	g.health.Start(g.ctx)
	g.logger.Info("lutron gateway started", "devices", len(g.devices))
	return nil
}

// Stop unsubscribes, stops the engine and publishes a final health
// status. Safe to call more than once.
func (g *Gateway) Stop() {
	g.stopOnce.Do(func() {
		if !g.started.Load() {
			return
		}
		g.cancel()
		g.wg.Wait()

		for _, topic := range g.subscribed {
			if err := g.mqtt.Unsubscribe(topic); err != nil {
				g.logger.Warn("unsubscribe failed", "topic", topic, "error", err)
			}
		}

		g.engine.Stop()
		g.health.Stop()
		g.seen.Stop()
		g.logger.Info("lutron gateway stopped")
	})
}

// Engine returns the engine.
func (g *Gateway) Engine() *Engine {
	return g.engine
}

// Sessions reports the state of every configured bridge.
func (g *Gateway) Sessions() []SessionStatus {
	return g.engine.Sessions()
}

// Stats returns the engine counters.
func (g *Gateway) Stats() EngineStats {
	return g.engine.Stats()
}

// Resync queues a state refresh for every entity and returns how many
// were queued.
func (g *Gateway) Resync(ctx context.Context) int {
	return g.engine.Resync(ctx)
}

// EvaluatorStats returns trigger counters, or zero values without triggers.
func (g *Gateway) EvaluatorStats() automation.EvaluatorStats {
	if g.evaluator == nil {
		return automation.EvaluatorStats{}
	}
	return g.evaluator.Stats()
}

// ─── Host ───────────────────────────────────────────────────────────────────

// ApplyState merges a projected update into the device store and publishes
// the merged state.
func (g *Gateway) ApplyState(ctx context.Context, hostDeviceID string, update map[string]any) {
	state, err := g.store.ApplyState(ctx, hostDeviceID, update, stateSource)
	if err != nil {
		g.logger.Warn("storing device state failed", "device", hostDeviceID, "error", err)
		state = update
	}

	var address string
	kind := KindAuto
	if entity, ok := g.engine.Registry().ByHostID(hostDeviceID); ok {
		address, kind = entity.Address, entity.Kind
	}

	msg := NewStateMessage(hostDeviceID, address, state)
	g.publishJSON(g.topics.BridgeState(Protocol, hostDeviceID), msg, qosAtLeastOnce, true)
	g.broadcast("state", msg)

	if g.telemetry != nil {
		if occupied, ok := update[FieldOccupied].(bool); ok {
			g.telemetry.WriteOccupancy(hostDeviceID, occupied)
		} else {
			g.telemetry.WriteEntityState(hostDeviceID, string(kind), update)
		}
	}
}

// Toggle flips a linked target. Devices this engine manages are toggled
// on their bridge; any other device gets a toggle command on the core
// device topic.
func (g *Gateway) Toggle(ctx context.Context, hostDeviceID string) {
	if g.engine.Manages(hostDeviceID) {
		if err := g.engine.Submit(Command{DeviceID: hostDeviceID, Action: CmdToggle}); err != nil {
			g.logger.Warn("linked toggle failed", "device", hostDeviceID, "error", err)
		}
		return
	}

	msg := CommandMessage{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		DeviceID:  hostDeviceID,
		Command:   CmdToggle,
		Source:    "linked_device",
	}
	g.publishJSON(g.topics.CoreDeviceCommand(hostDeviceID), msg, qosAtLeastOnce, false)
}

// PublishEvent publishes a transient event and records it.
func (g *Gateway) PublishEvent(_ context.Context, kind string, payload map[string]any) {
	msg := NewEventMessage(kind, payload)
	g.publishJSON(g.topics.BridgeEvent(Protocol, kind), msg, 0, false)
	g.broadcast(kind, msg)

	if g.telemetry == nil {
		return
	}
	address, _ := payload["address"].(string)
	switch kind {
	case EventButton:
		eventType, _ := payload["event_type"].(string)
		g.telemetry.WriteButtonEvent(address, eventType)
	case EventGesture:
		count, _ := payload["count"].(int)
		ms, _ := payload["duration_ms"].(int64)
		g.telemetry.WriteGesture(address, count, time.Duration(ms)*time.Millisecond)
	}
}

// ExecuteTrigger announces a fired trigger. What the trigger does is up
// to the host listening on the trigger event topic.
func (g *Gateway) ExecuteTrigger(_ context.Context, t automation.Trigger, ev automation.Event) error {
	payload := map[string]any{
		"trigger_id": t.ID,
		"name":       t.Name,
		"type":       string(t.Type),
		"address":    ev.Address,
	}
	switch ev.Type {
	case automation.TriggerButtonEvent:
		payload["event_type"] = ev.EventType
	case automation.TriggerMultiPress:
		payload["count"] = ev.Count
	case automation.TriggerOccupancy:
		payload["status"] = ev.Status
	}

	msg := NewEventMessage(EventTrigger, payload)
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	g.broadcast(EventTrigger, msg)
	return g.mqtt.Publish(g.topics.BridgeEvent(Protocol, EventTrigger), data, qosAtLeastOnce, false)
}

// ─── Commands ───────────────────────────────────────────────────────────────

// handleCommand acknowledges and submits one command. It never returns
// an error; failures are reported on the ack topic.
func (g *Gateway) handleCommand(topic string, payload []byte) error {
	var msg CommandMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		g.logger.Warn("invalid command message", "topic", topic, "error", err)
		return nil
	}
	if msg.DeviceID == "" {
		msg.DeviceID = topic[strings.LastIndex(topic, "/")+1:]
	}

	if msg.ID != "" {
		if g.seen.Get(msg.ID) != nil {
			g.logger.Debug("ignoring duplicate command", "command_id", msg.ID)
			return nil
		}
		g.seen.Set(msg.ID, struct{}{}, ttlcache.DefaultTTL)
	}

	address := ""
	if entity, ok := g.engine.Registry().ByHostID(msg.DeviceID); ok {
		address = entity.Address
	}

	var ack AckMessage
	if err := g.SubmitCommand(msg); err != nil {
		g.logger.Warn("command rejected", "device", msg.DeviceID, "command", msg.Command, "error", err)
		ack = NewAckError(msg, address, ackCode(err), err.Error())
	} else {
		ack = NewAckMessage(msg, AckAccepted, address)
	}
	g.publishJSON(g.topics.BridgeAck(Protocol, msg.DeviceID), ack, qosAtLeastOnce, false)
	return nil
}

// SubmitCommand converts a command message and hands it to the engine.
func (g *Gateway) SubmitCommand(msg CommandMessage) error {
	cmd, err := toCommand(msg)
	if err != nil {
		return err
	}
	return g.engine.Submit(cmd)
}

// toCommand extracts the typed parameters of a command message.
func toCommand(msg CommandMessage) (Command, error) {
	cmd := Command{DeviceID: msg.DeviceID, Action: msg.Command}
	p := msg.Parameters

	var err error
	switch msg.Command {
	case CmdSetLevel:
		cmd.Level, err = intParam(p, "level")
	case CmdSetTilt:
		cmd.Tilt, err = intParam(p, "tilt")
	case CmdSetFan:
		speed, _ := p["speed"].(string)
		cmd.FanSpeed = leap.FanSpeed(speed)
	case CmdActivateScene:
		cmd.SceneID = idParam(p, "scene_id")
	case CmdTapButton:
		cmd.ButtonID = idParam(p, "button_id")
	}
	return cmd, err
}

// intParam reads a whole number sent as a JSON number.
func intParam(params map[string]any, key string) (int, error) {
	switch v := params[key].(type) {
	case float64:
		if v != float64(int(v)) {
			return 0, fmt.Errorf("%w: %s must be a whole number", ErrInvalidParameters, key)
		}
		return int(v), nil
	case int:
		return v, nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %w", ErrInvalidParameters, key, err)
		}
		return int(n), nil
	case nil:
		return 0, fmt.Errorf("%w: %s is required", ErrInvalidParameters, key)
	default:
		return 0, fmt.Errorf("%w: %s must be a number", ErrInvalidParameters, key)
	}
}

// idParam reads a native id sent as either a string or a number.
func idParam(params map[string]any, key string) string {
	switch v := params[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

// ackCode maps a submit error onto an ack error code.
func ackCode(err error) string {
	switch {
	case errors.Is(err, ErrUnknownDevice):
		return ErrCodeNotConfigured
	case errors.Is(err, ErrUnsupportedCommand):
		return ErrCodeInvalidCommand
	case errors.Is(err, ErrInvalidParameters):
		return ErrCodeInvalidParameters
	case errors.Is(err, ErrTransportFailure):
		return ErrCodeDeviceUnreachable
	default:
		return ErrCodeBridgeError
	}
}

// ─── Requests ───────────────────────────────────────────────────────────────

// handleRequest answers one request on its response topic.
func (g *Gateway) handleRequest(topic string, payload []byte) error {
	var req RequestMessage
	if err := json.Unmarshal(payload, &req); err != nil {
		g.logger.Warn("invalid request message", "topic", topic, "error", err)
		return nil
	}
	if req.RequestID == "" {
		req.RequestID = topic[strings.LastIndex(topic, "/")+1:]
	}

	ctx := g.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	data, err := g.dispatchRequest(ctx, req)
	var resp ResponseMessage
	if err != nil {
		g.logger.Debug("request failed", "action", req.Action, "request_id", req.RequestID, "error", err)
		resp = NewErrorResponse(req, requestCode(err), err.Error())
	} else {
		resp = NewResponse(req, data)
	}
	g.publishJSON(g.topics.BridgeResponse(Protocol, req.RequestID), resp, qosAtLeastOnce, false)
	return nil
}

// errUnknownAction is returned for unsupported request actions.
var errUnknownAction = errors.New("lutron: unknown action")

// errFeatureDisabled is returned when triggers or rules are not configured.
var errFeatureDisabled = errors.New("lutron: feature not configured")

func (g *Gateway) dispatchRequest(ctx context.Context, req RequestMessage) (map[string]any, error) {
	switch req.Action {
	case ActionReadState:
		if req.DeviceID == "" {
			return nil, fmt.Errorf("%w: device_id is required", ErrInvalidParameters)
		}
		state, err := g.store.State(ctx, req.DeviceID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"device_id": req.DeviceID, "state": state}, nil

	case ActionResync:
		return map[string]any{"queued": g.engine.Resync(ctx)}, nil

	case ActionBridgeStatus:
		return map[string]any{
			"bridges":  g.engine.Sessions(),
			"engine":   g.engine.Stats(),
			"triggers": g.EvaluatorStats(),
		}, nil

	case ActionListLinkedDevices:
		if g.linked == nil {
			return nil, errFeatureDisabled
		}
		return map[string]any{"rules": g.linked.List()}, nil

	case ActionAddLinkedDevice:
		if g.linked == nil {
			return nil, errFeatureDisabled
		}
		var rule automation.LinkedDeviceRule
		if err := decodeParams(req.Parameters, &rule); err != nil {
			return nil, err
		}
		added, err := g.linked.Add(ctx, rule)
		if err != nil {
			return nil, err
		}
		return map[string]any{"rule": added}, nil

	case ActionRemoveLinkedDevice:
		if g.linked == nil {
			return nil, errFeatureDisabled
		}
		id := idParam(req.Parameters, "id")
		if err := g.linked.Remove(ctx, id); err != nil {
			return nil, err
		}
		return map[string]any{"removed": id}, nil

	case ActionListTriggers:
		if g.triggers == nil {
			return nil, errFeatureDisabled
		}
		triggers, err := g.triggers.ListTriggers(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"triggers": triggers}, nil

	case ActionAddTrigger:
		if g.triggers == nil {
			return nil, errFeatureDisabled
		}
		var t automation.Trigger
		if err := decodeParams(req.Parameters, &t); err != nil {
			return nil, err
		}
		t.ID = ""
		if err := g.triggers.CreateTrigger(ctx, &t); err != nil {
			return nil, err
		}
		return map[string]any{"trigger": t}, nil

	case ActionRemoveTrigger:
		if g.triggers == nil {
			return nil, errFeatureDisabled
		}
		id := idParam(req.Parameters, "id")
		if err := g.triggers.DeleteTrigger(ctx, id); err != nil {
			return nil, err
		}
		return map[string]any{"removed": id}, nil

	case ActionSetLogLevel:
		if g.levels == nil {
			return nil, errFeatureDisabled
		}
		level, _ := req.Parameters["level"].(string)
		if err := g.levels.SetLevel(level); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidParameters, err)
		}
		g.logger.Info("log level changed", "level", level)
		return map[string]any{"level": level}, nil

	default:
		return nil, fmt.Errorf("%w: %q", errUnknownAction, req.Action)
	}
}

// decodeParams re-decodes free-form parameters into a typed value.
func decodeParams(params map[string]any, v any) error {
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidParameters, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidParameters, err)
	}
	return nil
}

// requestCode maps a request error onto a response error code.
func requestCode(err error) string {
	switch {
	case errors.Is(err, errUnknownAction):
		return ErrCodeUnknownAction
	case errors.Is(err, automation.ErrTriggerNotFound),
		errors.Is(err, automation.ErrRuleNotFound):
		return ErrCodeNotFound
	case errors.Is(err, automation.ErrTriggerExists),
		errors.Is(err, automation.ErrRuleExists):
		return ErrCodeConflict
	case errors.Is(err, automation.ErrInvalidTrigger),
		errors.Is(err, automation.ErrInvalidRule),
		errors.Is(err, automation.ErrInvalidName),
		errors.Is(err, automation.ErrInvalidAddress),
		errors.Is(err, ErrInvalidParameters):
		return ErrCodeInvalidParameters
	case errors.Is(err, errFeatureDisabled):
		return ErrCodeNotConfigured
	default:
		return ErrCodeBridgeError
	}
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func (g *Gateway) publishJSON(topic string, v any, qos byte, retained bool) {
	data, err := json.Marshal(v)
	if err != nil {
		g.logger.Error("encoding mqtt message failed", "topic", topic, "error", err)
		return
	}
	if err := g.mqtt.Publish(topic, data, qos, retained); err != nil {
		g.logger.Warn("mqtt publish failed", "topic", topic, "error", err)
	}
}

func (g *Gateway) broadcast(channel string, payload any) {
	if g.events != nil {
		g.events.Broadcast(channel, payload)
	}
}
