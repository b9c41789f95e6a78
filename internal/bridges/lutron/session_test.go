package lutron

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-leap/internal/leap"
)

// recordingSink collects session push events.
type recordingSink struct {
	mu     sync.Mutex
	events []string
}

func (s *recordingSink) DeviceEvent(bridgeID, deviceID string) {
	s.add("device " + bridgeID + ":" + deviceID)
}

func (s *recordingSink) ButtonEvent(bridgeID, buttonID string, ev leap.ButtonEventType) {
	s.add("button " + bridgeID + ":" + buttonID + " " + string(ev))
}

func (s *recordingSink) OccupancyEvent(bridgeID, groupID string, st leap.OccupancyStatus) {
	s.add("occupancy " + bridgeID + ":" + groupID + " " + string(st))
}

func (s *recordingSink) add(e string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordingSink) Events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...)
}

func newTestSession(t *testing.T, link *MockLink) (*Session, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	s, err := NewSession(SessionOptions{Spec: BridgeSpec{ID: "hub", Address: "192.168.1.20"}, Link: link, Sink: sink})
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	return s, sink
}

func TestNewSession_Validation(t *testing.T) {
	if _, err := NewSession(SessionOptions{Link: NewMockLink(), Sink: &recordingSink{}}); !errors.Is(err, ErrInvalidParameters) {
		t.Errorf("missing id error = %v", err)
	}
	if _, err := NewSession(SessionOptions{Spec: BridgeSpec{ID: "hub"}, Sink: &recordingSink{}}); !errors.Is(err, ErrInvalidParameters) {
		t.Errorf("missing link error = %v", err)
	}
}

func TestSession_StartSequence(t *testing.T) {
	link := standardMockLink()
	s, sink := newTestSession(t, link)

	if s.State() != StateIdle {
		t.Fatalf("initial state = %s", s.State())
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	want := []string{"connect", "devices", "buttons", "scenes", "areas", "occupancy"}
	if got := link.Steps(); !reflect.DeepEqual(got, want) {
		t.Errorf("steps = %v, want %v", got, want)
	}
	if s.State() != StateReady {
		t.Errorf("state = %s, want ready", s.State())
	}
	// Two devices, one button, one occupancy group.
	if s.Subscriptions() != 4 {
		t.Errorf("Subscriptions() = %d, want 4", s.Subscriptions())
	}

	d := s.Discovery()
	if len(d.Devices) != 2 || len(d.Scenes) != 1 || d.CompletedAt.IsZero() {
		t.Errorf("Discovery() = %+v", d)
	}

	link.FireDevice("5")
	link.FireButton("101", leap.ButtonPress)
	link.FireOccupancy("4", leap.Occupied)
	wantEvents := []string{"device hub:5", "button hub:101 Press", "occupancy hub:4 Occupied"}
	if got := sink.Events(); !reflect.DeepEqual(got, wantEvents) {
		t.Errorf("events = %v, want %v", got, wantEvents)
	}
}

func TestSession_NotReadyUntilDiscoveryDone(t *testing.T) {
	link := standardMockLink()
	link.ConnectGate = make(chan struct{})
	s, _ := newTestSession(t, link)

	done := make(chan error, 1)
	go func() { done <- s.Start(context.Background()) }()

	waitFor(t, "connecting", func() bool { return s.State() == StateConnecting })
	select {
	case <-s.Ready():
		t.Fatal("ready before connect")
	default:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.WaitReady(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitReady() error = %v, want deadline", err)
	}

	close(link.ConnectGate)
	if err := <-done; err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := s.WaitReady(context.Background()); err != nil {
		t.Errorf("WaitReady() after ready error = %v", err)
	}
}

func TestSession_ConnectFailure(t *testing.T) {
	link := standardMockLink()
	link.ConnectErr = errors.New("tls handshake")
	s, _ := newTestSession(t, link)

	err := s.Start(context.Background())
	if !errors.Is(err, ErrTransportFailure) {
		t.Fatalf("Start() error = %v", err)
	}
	if s.State() != StateFailed {
		t.Errorf("state = %s, want failed", s.State())
	}
	if err := s.WaitReady(context.Background()); !errors.Is(err, ErrTransportFailure) {
		t.Errorf("WaitReady() error = %v", err)
	}
	if _, _, closed := link.Counts(); closed != 1 {
		t.Errorf("link closed %d times, want 1", closed)
	}
}

func TestSession_DiscoveryFailureStopsSequence(t *testing.T) {
	link := standardMockLink()
	link.DiscoverErr["scenes"] = errors.New("timeout")
	s, _ := newTestSession(t, link)

	if err := s.Start(context.Background()); !errors.Is(err, ErrTransportFailure) {
		t.Fatalf("Start() error = %v", err)
	}
	want := []string{"connect", "devices", "buttons", "scenes"}
	if got := link.Steps(); !reflect.DeepEqual(got, want) {
		t.Errorf("steps = %v, want %v", got, want)
	}
	if subs, _, _ := link.Counts(); subs != 0 {
		t.Errorf("subscriptions left behind: %d", subs)
	}
	if s.Err() == nil {
		t.Error("Err() = nil after failure")
	}
}

func TestSession_StartTwice(t *testing.T) {
	s, _ := newTestSession(t, standardMockLink())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := s.Start(context.Background()); err == nil {
		t.Error("second Start() succeeded")
	}
}

func TestSession_StopIdempotent(t *testing.T) {
	link := standardMockLink()
	s, _ := newTestSession(t, link)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	s.Stop()
	s.Stop()

	subs, unsubscribed, closed := link.Counts()
	if subs != 0 || unsubscribed != 4 || closed != 1 {
		t.Errorf("after Stop: subs=%d unsubscribed=%d closed=%d", subs, unsubscribed, closed)
	}
	if s.State() != StateClosed {
		t.Errorf("state = %s", s.State())
	}
	if err := s.WaitReady(context.Background()); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("WaitReady() after Stop error = %v", err)
	}
}

func TestSession_StopWhileConnecting(t *testing.T) {
	link := standardMockLink()
	link.ConnectGate = make(chan struct{})
	s, _ := newTestSession(t, link)

	done := make(chan error, 1)
	go func() { done <- s.Start(context.Background()) }()
	waitFor(t, "connecting", func() bool { return s.State() == StateConnecting })

	waitErr := make(chan error, 1)
	go func() { waitErr <- s.WaitReady(context.Background()) }()

	s.Stop()
	close(link.ConnectGate)

	if err := <-done; !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Start() error = %v, want ErrSessionClosed", err)
	}
	if err := <-waitErr; !errors.Is(err, ErrSessionClosed) {
		t.Errorf("WaitReady() error = %v, want ErrSessionClosed", err)
	}
	if subs, _, _ := link.Counts(); subs != 0 {
		t.Errorf("subscriptions registered after Stop: %d", subs)
	}
}

func TestSessionState_String(t *testing.T) {
	if StateDiscovering.String() != "discovering" || SessionState(42).String() != "state(42)" {
		t.Error("unexpected state names")
	}
}
