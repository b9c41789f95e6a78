package lutron

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-leap/internal/leap"
)

var (
	testBridge  = HostDevice{ID: "hub", Name: "Main Repeater", Kind: KindBridge}
	testDimmer  = HostDevice{ID: "kitchen-pendants", Kind: KindDimmer, BridgeID: "hub", NativeID: "5"}
	testFan     = HostDevice{ID: "bedroom-fan", Kind: KindAuto, BridgeID: "hub", NativeID: "6"}
	testMotion  = HostDevice{ID: "kitchen-motion", Kind: KindOccupancy, BridgeID: "hub", NativeID: "4"}
	testUnknown = HostDevice{ID: "ghost", Kind: KindDimmer, BridgeID: "nowhere", NativeID: "1"}
)

// linkSequence hands out links in order, repeating the last one.
type linkSequence struct {
	mu     sync.Mutex
	links  []*MockLink
	made   int
	err    error
	onMake func(n int) // runs after the nth link is handed out, outside the lock
}

func (s *linkSequence) factory(BridgeSpec) (Link, error) {
	s.mu.Lock()
	if s.err != nil {
		s.mu.Unlock()
		return nil, s.err
	}
	i := s.made
	if i >= len(s.links) {
		i = len(s.links) - 1
	}
	s.made++
	n, hook := s.made, s.onMake
	s.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	return s.links[i], nil
}

func (s *linkSequence) OnMake(fn func(n int)) {
	s.mu.Lock()
	s.onMake = fn
	s.mu.Unlock()
}

func (s *linkSequence) Made() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.made
}

func newTestEngine(t *testing.T, host Host, opts EngineOptions, links ...*MockLink) (*Engine, *linkSequence) {
	t.Helper()
	if len(links) == 0 {
		links = []*MockLink{standardMockLink()}
	}
	seq := &linkSequence{links: links}
	opts.Bridges = []BridgeSpec{{ID: "hub", Name: "Main Repeater", Address: "192.168.1.20"}}
	opts.Host = host
	opts.LinkFactory = seq.factory
	if opts.TickInterval == 0 {
		opts.TickInterval = 10 * time.Millisecond
	}
	if opts.RestartInterval == 0 {
		opts.RestartInterval = 10 * time.Millisecond
	}
	e, err := NewEngine(opts)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	t.Cleanup(e.Stop)
	return e, seq
}

func startEngine(t *testing.T, e *Engine, devices ...HostDevice) {
	t.Helper()
	ctx := context.Background()
	if err := e.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	for _, d := range devices {
		if err := e.StartDevice(ctx, d); err != nil {
			t.Fatalf("StartDevice(%s) error = %v", d.ID, err)
		}
	}
}

func TestNewEngine_Validation(t *testing.T) {
	if _, err := NewEngine(EngineOptions{}); !errors.Is(err, ErrInvalidParameters) {
		t.Errorf("missing host error = %v", err)
	}
	_, err := NewEngine(EngineOptions{
		Host:    NewMockHost(),
		Bridges: []BridgeSpec{{ID: "hub"}, {ID: "hub"}},
	})
	if !errors.Is(err, ErrInvalidParameters) {
		t.Errorf("duplicate bridge error = %v", err)
	}
}

func TestEngine_StartDeviceBeforeStart(t *testing.T) {
	e, _ := newTestEngine(t, NewMockHost(), EngineOptions{})
	if err := e.StartDevice(context.Background(), testBridge); !errors.Is(err, ErrEngineStopped) {
		t.Errorf("StartDevice() error = %v", err)
	}
	if err := e.Submit(Command{DeviceID: "hub", Action: CmdActivateScene, SceneID: "1"}); !errors.Is(err, ErrEngineStopped) {
		t.Errorf("Submit() error = %v", err)
	}
}

func TestEngine_EntityStartAppliesInitialState(t *testing.T) {
	host := NewMockHost()
	e, _ := newTestEngine(t, host, EngineOptions{})
	startEngine(t, e, testBridge, testDimmer, testFan, testMotion)

	waitFor(t, "dimmer state", func() bool {
		s, ok := host.LastState("kitchen-pendants")
		return ok && s[FieldBrightness] == 42
	})
	waitFor(t, "fan state", func() bool {
		s, ok := host.LastState("bedroom-fan")
		return ok && s[FieldSpeed] == "Off"
	})
	waitFor(t, "motion state", func() bool {
		s, ok := host.LastState("kitchen-motion")
		return ok && s[FieldOccupied] == false
	})

	fan, err := e.Registry().Resolve("hub:6")
	if err != nil || fan.Kind != KindFan {
		t.Errorf("auto kind resolved to %+v, %v", fan, err)
	}
	if !e.Manages("kitchen-pendants") || !e.Manages("hub") || e.Manages("porch") {
		t.Error("Manages() mismatch")
	}

	d, ok := e.Discovery("hub")
	if !ok || len(d.Devices) != 2 {
		t.Errorf("Discovery() = %+v, %v", d, ok)
	}
}

func TestEngine_PushEventsRouted(t *testing.T) {
	host := NewMockHost()
	link := standardMockLink()
	e, _ := newTestEngine(t, host, EngineOptions{Gesture: GestureOptions{Timeout: 50 * time.Millisecond}}, link)
	startEngine(t, e, testBridge, testDimmer)

	link.SetDeviceState("5", map[string]any{leap.StateCurrent: 75})
	link.FireDevice("5")
	waitFor(t, "pushed level", func() bool {
		s, _ := host.LastState("kitchen-pendants")
		return s[FieldBrightness] == 75
	})

	link.FireButton("101", leap.ButtonPress)
	link.FireButton("101", leap.ButtonPress)
	waitFor(t, "double tap", func() bool {
		g := host.Events(EventGesture)
		return len(g) == 1 && g[0]["count"] == 2
	})
}

func TestEngine_UnknownBridgeEntity(t *testing.T) {
	e, _ := newTestEngine(t, NewMockHost(), EngineOptions{})
	startEngine(t, e)

	if err := e.StartDevice(context.Background(), testUnknown); !errors.Is(err, ErrUnknownBridge) {
		t.Errorf("StartDevice() error = %v", err)
	}
	if err := e.StartDevice(context.Background(), HostDevice{ID: "x", Kind: "toaster"}); !errors.Is(err, ErrInvalidParameters) {
		t.Errorf("unknown kind error = %v", err)
	}
}

func TestEngine_EntityWaitsForBridge(t *testing.T) {
	link := standardMockLink()
	link.ConnectGate = make(chan struct{})
	e, _ := newTestEngine(t, NewMockHost(), EngineOptions{}, link)
	startEngine(t, e, testBridge)

	done := make(chan error, 1)
	go func() { done <- e.StartDevice(context.Background(), testDimmer) }()

	select {
	case err := <-done:
		t.Fatalf("StartDevice() returned %v before bridge ready", err)
	case <-time.After(30 * time.Millisecond):
	}
	if e.Registry().Len() != 0 {
		t.Error("entity registered before bridge ready")
	}

	close(link.ConnectGate)
	if err := <-done; err != nil {
		t.Fatalf("StartDevice() error = %v", err)
	}
	if _, err := e.Registry().Resolve("hub:5"); err != nil {
		t.Errorf("Resolve() error = %v", err)
	}
}

func TestEngine_EntityStartCancelled(t *testing.T) {
	link := standardMockLink()
	link.ConnectGate = make(chan struct{})
	defer close(link.ConnectGate)
	e, _ := newTestEngine(t, NewMockHost(), EngineOptions{}, link)
	startEngine(t, e, testBridge)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := e.StartDevice(ctx, testDimmer); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("StartDevice() error = %v", err)
	}
}

func TestEngine_Submit(t *testing.T) {
	link := standardMockLink()
	e, _ := newTestEngine(t, NewMockHost(), EngineOptions{}, link)
	startEngine(t, e, testBridge, testDimmer)

	if err := e.Submit(Command{DeviceID: "kitchen-pendants", Action: CmdSetLevel, Level: 30}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if err := e.Submit(Command{DeviceID: "hub", Action: CmdActivateScene, SceneID: "1"}); err != nil {
		t.Fatalf("Submit(scene) error = %v", err)
	}
	waitFor(t, "commands", func() bool {
		c := link.Commands()
		return contains(c, "level 5 30") && contains(c, "scene 1")
	})

	tests := []struct {
		cmd  Command
		want error
	}{
		{Command{DeviceID: "porch", Action: CmdOn}, ErrUnknownDevice},
		{Command{DeviceID: "kitchen-pendants", Action: CmdSetFan, FanSpeed: leap.FanLow}, ErrUnsupportedCommand},
		{Command{DeviceID: "kitchen-pendants", Action: CmdSetLevel, Level: 150}, ErrInvalidParameters},
	}
	for _, tt := range tests {
		if err := e.Submit(tt.cmd); !errors.Is(err, tt.want) {
			t.Errorf("Submit(%+v) error = %v, want %v", tt.cmd, err, tt.want)
		}
	}
	if got := e.Stats().CommandsSubmitted; got != 2 {
		t.Errorf("CommandsSubmitted = %d, want 2", got)
	}
}

func TestEngine_SubmitFailureCounted(t *testing.T) {
	link := standardMockLink()
	link.CommandErr = errors.New("bridge busy")
	e, _ := newTestEngine(t, NewMockHost(), EngineOptions{}, link)
	startEngine(t, e, testBridge, testDimmer)

	if err := e.Submit(Command{DeviceID: "kitchen-pendants", Action: CmdOn}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	waitFor(t, "failure count", func() bool { return e.Stats().CommandsFailed == 1 })
}

func TestEngine_ToggleUsesLastState(t *testing.T) {
	host := NewMockHost()
	link := standardMockLink()
	e, _ := newTestEngine(t, host, EngineOptions{}, link)
	startEngine(t, e, testBridge, testDimmer)

	waitFor(t, "initial state", func() bool {
		ent, err := e.Registry().Resolve("hub:5")
		return err == nil && ent.LastState != nil
	})
	if err := e.Submit(Command{DeviceID: "kitchen-pendants", Action: CmdToggle}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	waitFor(t, "toggle off", func() bool { return contains(link.Commands(), "off 5") })
}

func TestEngine_QueueFullDrops(t *testing.T) {
	e, _ := newTestEngine(t, NewMockHost(), EngineOptions{QueueSize: 1})

	// Not started: nothing drains the queue.
	e.DeviceEvent("hub", "5")
	e.ButtonEvent("hub", "101", leap.ButtonPress)
	e.OccupancyEvent("hub", "4", leap.Occupied)

	st := e.Stats()
	if st.EventsQueued != 1 || st.EventsDropped != 2 || st.QueueDepth != 1 {
		t.Errorf("Stats() = %+v", st)
	}
}

func TestEngine_StopDevice(t *testing.T) {
	link := standardMockLink()
	e, _ := newTestEngine(t, NewMockHost(), EngineOptions{}, link)
	startEngine(t, e, testBridge, testDimmer, testMotion)
	ctx := context.Background()

	if err := e.StopDevice(ctx, testDimmer); err != nil {
		t.Fatalf("StopDevice() error = %v", err)
	}
	if _, err := e.Registry().Resolve("hub:5"); !errors.Is(err, ErrUnresolvedAddress) {
		t.Errorf("dimmer still registered")
	}
	if e.Manages("kitchen-pendants") {
		t.Error("Manages() after stop = true")
	}

	if err := e.StopDevice(ctx, testBridge); err != nil {
		t.Fatalf("StopDevice(bridge) error = %v", err)
	}
	if e.Registry().Len() != 0 {
		t.Errorf("entities left after bridge stop: %d", e.Registry().Len())
	}
	if subs, _, closed := link.Counts(); subs != 0 || closed != 1 {
		t.Errorf("link subs=%d closed=%d", subs, closed)
	}
	if st := e.Sessions(); len(st) != 1 || st[0].State != "idle" {
		t.Errorf("Sessions() = %+v", st)
	}
}

func TestEngine_Resync(t *testing.T) {
	host := NewMockHost()
	e, _ := newTestEngine(t, host, EngineOptions{}, standardMockLink())
	startEngine(t, e, testBridge, testDimmer, testFan, testMotion)
	waitFor(t, "initial refresh", func() bool { return e.Stats().EventsProcessed >= 3 })

	if n := e.Resync(context.Background()); n != 2 {
		t.Errorf("Resync() = %d, want 2 (occupancy skipped)", n)
	}
}

func TestEngine_Sessions(t *testing.T) {
	e, _ := newTestEngine(t, NewMockHost(), EngineOptions{}, standardMockLink())
	startEngine(t, e, testBridge, testDimmer)

	st := e.Sessions()
	if len(st) != 1 {
		t.Fatalf("Sessions() = %v", st)
	}
	s := st[0]
	if s.BridgeID != "hub" || s.State != "ready" || !s.Connected || s.Devices != 2 || s.Subscriptions != 4 || s.ReadyAt == nil {
		t.Errorf("status = %+v", s)
	}
}

func TestEngine_LinkFactoryFailure(t *testing.T) {
	host := NewMockHost()
	e, seq := newTestEngine(t, host, EngineOptions{RestartInterval: -1})
	seq.err = errors.New("pairing files missing")
	startEngine(t, e)

	if err := e.StartDevice(context.Background(), testBridge); !errors.Is(err, ErrTransportFailure) {
		t.Fatalf("StartDevice() error = %v", err)
	}
	st := e.Sessions()
	if st[0].State != "failed" || st[0].Error == "" {
		t.Errorf("status = %+v", st[0])
	}
}

func TestEngine_RestartAfterConnectFailure(t *testing.T) {
	first := standardMockLink()
	first.ConnectErr = errors.New("connection refused")
	second := standardMockLink()

	e, seq := newTestEngine(t, NewMockHost(), EngineOptions{}, first, second)
	startEngine(t, e, testBridge)

	waitFor(t, "restart", func() bool {
		st := e.Sessions()
		return seq.Made() == 2 && st[0].State == "ready"
	})
	if e.Stats().BridgeRestarts < 1 {
		t.Error("BridgeRestarts not counted")
	}
}

func TestEngine_RestartAfterLinkLoss(t *testing.T) {
	host := NewMockHost()
	first := standardMockLink()
	second := standardMockLink()
	second.SetDeviceState("5", map[string]any{leap.StateCurrent: 90})

	e, seq := newTestEngine(t, host, EngineOptions{}, first, second)
	startEngine(t, e, testBridge, testDimmer)
	waitFor(t, "initial state", func() bool {
		s, _ := host.LastState("kitchen-pendants")
		return s[FieldBrightness] == 42
	})

	first.Drop()

	waitFor(t, "re-registered after restart", func() bool {
		s, _ := host.LastState("kitchen-pendants")
		return seq.Made() == 2 && s[FieldBrightness] == 90
	})
	if _, _, closed := first.Counts(); closed != 1 {
		t.Errorf("old link closed %d times", closed)
	}
}

func TestEngine_NoRestartAfterBridgeStopped(t *testing.T) {
	first := standardMockLink()
	e, seq := newTestEngine(t, NewMockHost(), EngineOptions{}, first, standardMockLink())
	startEngine(t, e, testBridge)
	waitFor(t, "ready", func() bool { return e.Sessions()[0].State == "ready" })

	if err := e.StopDevice(context.Background(), testBridge); err != nil {
		t.Fatalf("StopDevice() error = %v", err)
	}
	first.Drop()
	time.Sleep(50 * time.Millisecond)
	if seq.Made() != 1 {
		t.Errorf("links made = %d, want 1", seq.Made())
	}
}

func TestEngine_BridgeStoppedDuringRestart(t *testing.T) {
	first := standardMockLink()
	second := standardMockLink()
	e, seq := newTestEngine(t, NewMockHost(), EngineOptions{}, first, second)
	startEngine(t, e, testBridge)
	waitFor(t, "ready", func() bool { return e.Sessions()[0].State == "ready" })

	// The host stops the bridge after the restart loop has decided to
	// restart it but before the new session is installed.
	stopped := make(chan error, 1)
	seq.OnMake(func(n int) {
		if n == 2 {
			stopped <- e.StopDevice(context.Background(), testBridge)
		}
	})
	first.Drop()

	select {
	case err := <-stopped:
		if err != nil {
			t.Fatalf("StopDevice() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("restart never built a link")
	}
	waitFor(t, "unwanted link closed", func() bool {
		_, _, closed := second.Counts()
		return closed == 1
	})

	time.Sleep(50 * time.Millisecond)
	if contains(second.Steps(), "connect") {
		t.Errorf("stopped bridge reconnected: steps = %v", second.Steps())
	}
	if st := e.Sessions()[0]; st.State != StateIdle.String() {
		t.Errorf("session state = %q, want %q", st.State, StateIdle.String())
	}
	if seq.Made() != 2 {
		t.Errorf("links made = %d, want 2", seq.Made())
	}
}

// gatedHost holds the first button event publish until gate is closed,
// so the loop falls behind while later presses queue up.
type gatedHost struct {
	*MockHost
	entered chan struct{}
	gate    chan struct{}
	once    sync.Once
	release sync.Once
}

func (h *gatedHost) Release() {
	h.release.Do(func() { close(h.gate) })
}

func (h *gatedHost) PublishEvent(ctx context.Context, kind string, payload map[string]any) {
	if kind == EventButton {
		h.once.Do(func() {
			close(h.entered)
			<-h.gate
		})
	}
	h.MockHost.PublishEvent(ctx, kind, payload)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func TestEngine_QueuedPressesBeatGestureTick(t *testing.T) {
	for trial := range 5 {
		t.Run(fmt.Sprintf("trial %d", trial), func(t *testing.T) {
			base := time.Date(2026, 4, 10, 8, 0, 0, 0, time.UTC)
			clock := &testClock{now: base}
			host := &gatedHost{MockHost: NewMockHost(), entered: make(chan struct{}), gate: make(chan struct{})}
			link := standardMockLink()
			e, _ := newTestEngine(t, host, EngineOptions{
				Gesture:      GestureOptions{Timeout: 500 * time.Millisecond},
				TickInterval: 5 * time.Millisecond,
				Clock:        clock.Now,
			}, link)
			t.Cleanup(host.Release)
			startEngine(t, e, testBridge, testDimmer)

			link.FireButton("101", leap.ButtonPress)
			select {
			case <-host.entered:
			case <-time.After(2 * time.Second):
				t.Fatal("first press never reached the host")
			}

			// Both presses land inside the window but wait in the queue.
			clock.Set(base.Add(100 * time.Millisecond))
			link.FireButton("101", leap.ButtonPress)
			clock.Set(base.Add(200 * time.Millisecond))
			link.FireButton("101", leap.ButtonPress)

			// The window has expired by the time the loop catches up, and a
			// tick is pending.
			clock.Set(base.Add(time.Second))
			time.Sleep(20 * time.Millisecond)
			host.Release()

			waitFor(t, "gesture", func() bool { return len(host.Events(EventGesture)) > 0 })
			time.Sleep(30 * time.Millisecond)

			got := host.Events(EventGesture)
			if len(got) != 1 || got[0]["count"] != 3 || got[0]["address"] != "hub:101" {
				t.Errorf("gestures = %v, want one hub:101 gesture with count 3", got)
			}
		})
	}
}

// panicHost panics on every state update.
type panicHost struct{ *MockHost }

func (panicHost) ApplyState(context.Context, string, map[string]any) { panic("host exploded") }

func TestEngine_RecoversFromPanics(t *testing.T) {
	host := panicHost{NewMockHost()}
	link := standardMockLink()
	e, _ := newTestEngine(t, host, EngineOptions{}, link)
	startEngine(t, e, testBridge, testDimmer)

	waitFor(t, "panic recovered", func() bool { return e.Stats().PanicsRecovered >= 1 })

	link.FireButton("101", leap.ButtonPress)
	waitFor(t, "loop still running", func() bool { return len(host.Events(EventButton)) == 1 })
}

func TestEngine_StopIdempotent(t *testing.T) {
	link := standardMockLink()
	e, _ := newTestEngine(t, NewMockHost(), EngineOptions{}, link)
	startEngine(t, e, testBridge, testDimmer)

	e.Stop()
	e.Stop()

	if _, unsubscribed, closed := link.Counts(); unsubscribed != 4 || closed != 1 {
		t.Errorf("unsubscribed=%d closed=%d", unsubscribed, closed)
	}
	if err := e.Start(context.Background()); !errors.Is(err, ErrEngineStopped) {
		t.Errorf("Start() after Stop error = %v", err)
	}
	if e.Registry().Len() != 0 {
		t.Error("registry not cleared")
	}
}
