package lutron

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-leap/internal/leap"
)

// MockLink is an in-memory Link. Discovery returns the configured records
// and subscriber callbacks can be fired from tests.
type MockLink struct {
	mu sync.Mutex

	// ConnectGate, when set, holds Connect until it is closed.
	ConnectGate chan struct{}
	ConnectErr  error
	DiscoverErr map[string]error
	CommandErr  error

	devices []leap.Device
	buttons []leap.Button
	scenes  []leap.Scene
	areas   []leap.Area
	groups  []leap.OccupancyGroup

	steps        []string
	commands     []string
	subs         map[string]func()
	buttonSubs   map[string]func(leap.ButtonEventType)
	occSubs      map[string]func(leap.OccupancyStatus)
	unsubscribed int
	closed       int
	connected    bool
	onDisconnect func(error)
}

func NewMockLink() *MockLink {
	return &MockLink{
		DiscoverErr: make(map[string]error),
		subs:        make(map[string]func()),
		buttonSubs:  make(map[string]func(leap.ButtonEventType)),
		occSubs:     make(map[string]func(leap.OccupancyStatus)),
	}
}

// standardMockLink has a dimmer (5), a fan (6), a keypad button (101)
// and an occupancy group (4).
func standardMockLink() *MockLink {
	m := NewMockLink()
	m.devices = []leap.Device{
		{ID: "5", Name: "Kitchen Pendants", Type: "WallDimmer", State: map[string]any{leap.StateCurrent: 42}},
		{ID: "6", Name: "Bedroom Fan", Type: "CasetaFanSpeedController", State: map[string]any{leap.StateFanSpeed: "Off"}},
	}
	m.buttons = []leap.Button{{ID: "101", Name: "On", Number: 1, ParentDeviceID: "7"}}
	m.scenes = []leap.Scene{{ID: "1", Name: "Evening"}}
	m.areas = []leap.Area{{ID: "3", Name: "Kitchen"}}
	m.groups = []leap.OccupancyGroup{{ID: "4", Name: "Kitchen Occupancy", AreaID: "3", Status: leap.Unoccupied}}
	return m
}

func (m *MockLink) step(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, name)
	return m.DiscoverErr[name]
}

func (m *MockLink) Connect(ctx context.Context) error {
	m.mu.Lock()
	gate := m.ConnectGate
	m.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, "connect")
	if m.ConnectErr != nil {
		return m.ConnectErr
	}
	m.connected = true
	return nil
}

func (m *MockLink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	m.connected = false
	return nil
}

func (m *MockLink) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockLink) SetOnDisconnect(fn func(error)) {
	m.mu.Lock()
	m.onDisconnect = fn
	m.mu.Unlock()
}

func (m *MockLink) Devices(context.Context) ([]leap.Device, error) {
	if err := m.step("devices"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]leap.Device(nil), m.devices...), nil
}

func (m *MockLink) Buttons(context.Context) ([]leap.Button, error) {
	if err := m.step("buttons"); err != nil {
		return nil, err
	}
	return append([]leap.Button(nil), m.buttons...), nil
}

func (m *MockLink) Scenes(context.Context) ([]leap.Scene, error) {
	if err := m.step("scenes"); err != nil {
		return nil, err
	}
	return append([]leap.Scene(nil), m.scenes...), nil
}

func (m *MockLink) Areas(context.Context) ([]leap.Area, error) {
	if err := m.step("areas"); err != nil {
		return nil, err
	}
	return append([]leap.Area(nil), m.areas...), nil
}

func (m *MockLink) OccupancyGroups(context.Context) ([]leap.OccupancyGroup, error) {
	if err := m.step("occupancy"); err != nil {
		return nil, err
	}
	return append([]leap.OccupancyGroup(nil), m.groups...), nil
}

func (m *MockLink) DeviceByID(id string) (leap.Device, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.devices {
		if d.ID == id {
			d.State = maps.Clone(d.State)
			return d, true
		}
	}
	return leap.Device{}, false
}

func (m *MockLink) AddSubscriber(id string, fn func()) func() {
	m.mu.Lock()
	m.subs[id] = fn
	m.mu.Unlock()
	return func() { m.unsubscribe(func() { delete(m.subs, id) }) }
}

func (m *MockLink) AddButtonSubscriber(id string, fn func(leap.ButtonEventType)) func() {
	m.mu.Lock()
	m.buttonSubs[id] = fn
	m.mu.Unlock()
	return func() { m.unsubscribe(func() { delete(m.buttonSubs, id) }) }
}

func (m *MockLink) AddOccupancySubscriber(id string, fn func(leap.OccupancyStatus)) func() {
	m.mu.Lock()
	m.occSubs[id] = fn
	m.mu.Unlock()
	return func() { m.unsubscribe(func() { delete(m.occSubs, id) }) }
}

func (m *MockLink) unsubscribe(remove func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	remove()
	m.unsubscribed++
}

func (m *MockLink) command(format string, args ...any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands = append(m.commands, fmt.Sprintf(format, args...))
	return m.CommandErr
}

func (m *MockLink) TurnOn(_ context.Context, id string) error  { return m.command("on %s", id) }
func (m *MockLink) TurnOff(_ context.Context, id string) error { return m.command("off %s", id) }
func (m *MockLink) SetValue(_ context.Context, id string, level int) error {
	return m.command("level %s %d", id, level)
}
func (m *MockLink) SetFan(_ context.Context, id string, speed leap.FanSpeed) error {
	return m.command("fan %s %s", id, speed)
}
func (m *MockLink) SetTilt(_ context.Context, id string, tilt int) error {
	return m.command("tilt %s %d", id, tilt)
}
func (m *MockLink) RaiseCover(_ context.Context, id string) error { return m.command("raise %s", id) }
func (m *MockLink) LowerCover(_ context.Context, id string) error { return m.command("lower %s", id) }
func (m *MockLink) StopCover(_ context.Context, id string) error  { return m.command("stop %s", id) }
func (m *MockLink) ActivateScene(_ context.Context, id string) error {
	return m.command("scene %s", id)
}
func (m *MockLink) TapButton(_ context.Context, id string) error { return m.command("tap %s", id) }

// SetDeviceState replaces a device's cached state.
func (m *MockLink) SetDeviceState(id string, state map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.devices {
		if m.devices[i].ID == id {
			m.devices[i].State = state
		}
	}
}

// FireDevice invokes the device's subscriber as the reader goroutine would.
func (m *MockLink) FireDevice(id string) {
	m.mu.Lock()
	fn := m.subs[id]
	m.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (m *MockLink) FireButton(id string, ev leap.ButtonEventType) {
	m.mu.Lock()
	fn := m.buttonSubs[id]
	m.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

func (m *MockLink) FireOccupancy(id string, st leap.OccupancyStatus) {
	m.mu.Lock()
	fn := m.occSubs[id]
	m.mu.Unlock()
	if fn != nil {
		fn(st)
	}
}

// Drop simulates a lost connection.
func (m *MockLink) Drop() {
	m.mu.Lock()
	m.connected = false
	fn := m.onDisconnect
	m.mu.Unlock()
	if fn != nil {
		fn(errors.New("connection reset"))
	}
}

func (m *MockLink) Steps() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.steps...)
}

func (m *MockLink) Commands() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.commands...)
}

func (m *MockLink) Counts() (subs, unsubscribed, closed int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs) + len(m.buttonSubs) + len(m.occSubs), m.unsubscribed, m.closed
}

// MockHost records everything the router sends to the host.
type MockHost struct {
	mu      sync.Mutex
	states  map[string][]map[string]any
	toggles []string
	events  []hostEvent
}

type hostEvent struct {
	kind    string
	payload map[string]any
}

func NewMockHost() *MockHost {
	return &MockHost{states: make(map[string][]map[string]any)}
}

func (h *MockHost) ApplyState(_ context.Context, id string, update map[string]any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.states[id] = append(h.states[id], maps.Clone(update))
}

func (h *MockHost) Toggle(_ context.Context, id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.toggles = append(h.toggles, id)
}

func (h *MockHost) PublishEvent(_ context.Context, kind string, payload map[string]any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, hostEvent{kind: kind, payload: maps.Clone(payload)})
}

// LastState returns the latest update applied to a device.
func (h *MockHost) LastState(id string) (map[string]any, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	updates := h.states[id]
	if len(updates) == 0 {
		return nil, false
	}
	return updates[len(updates)-1], true
}

func (h *MockHost) Toggles() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.toggles...)
}

func (h *MockHost) Events(kind string) []map[string]any {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []map[string]any
	for _, e := range h.events {
		if e.kind == kind {
			out = append(out, e.payload)
		}
	}
	return out
}

// MockTriggers records trigger evaluations.
type MockTriggers struct {
	mu    sync.Mutex
	calls []string
}

func (m *MockTriggers) EvaluateButton(_ context.Context, address, eventType string) {
	m.record("button %s %s", address, eventType)
}

func (m *MockTriggers) EvaluateMultiPress(_ context.Context, address string, count int) {
	m.record("multi %s %d", address, count)
}

func (m *MockTriggers) EvaluateOccupancy(_ context.Context, address, status string) {
	m.record("occupancy %s %s", address, status)
}

func (m *MockTriggers) record(format string, args ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, fmt.Sprintf(format, args...))
}

func (m *MockTriggers) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// staticLinked is a fixed LinkedRules set.
type staticLinked map[string][]string

func (s staticLinked) Targets(address string) []string {
	return s[address]
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
