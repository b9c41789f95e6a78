package leap

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeBridge answers LEAP requests over an in-memory pipe.
type fakeBridge struct {
	t    *testing.T
	conn net.Conn

	writeMu sync.Mutex

	mu       sync.Mutex
	handlers map[string]func(Message) Message
	requests []Message
}

// newFakeBridge wires a client to a fake bridge. Handlers are keyed by
// "CommuniqueType URL"; unmatched requests get an empty 200 OK.
func newFakeBridge(t *testing.T, handlers map[string]func(Message) Message) (*fakeBridge, *Client) {
	t.Helper()

	server, clientSide := net.Pipe()
	fb := &fakeBridge{t: t, conn: server, handlers: handlers}
	if fb.handlers == nil {
		fb.handlers = make(map[string]func(Message) Message)
	}
	go fb.serve()

	c, err := NewClient(Config{
		Dial:           func(context.Context) (net.Conn, error) { return clientSide, nil },
		RequestTimeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() {
		_ = c.Close()
		_ = server.Close()
	})
	return fb, c
}

func (fb *fakeBridge) serve() {
	scanner := bufio.NewScanner(fb.conn)
	for scanner.Scan() {
		req, err := DecodeMessage(scanner.Bytes())
		if err != nil {
			continue
		}

		fb.mu.Lock()
		fb.requests = append(fb.requests, req)
		h := fb.handlers[req.CommuniqueType+" "+req.Header.URL]
		fb.mu.Unlock()

		var resp Message
		if h != nil {
			resp = h(req)
		} else {
			resp = reply(req, "200 OK", nil)
		}
		fb.send(resp)
	}
}

func (fb *fakeBridge) send(msg Message) {
	data, err := msg.Encode()
	if err != nil {
		fb.t.Errorf("encode: %v", err)
		return
	}
	fb.writeMu.Lock()
	defer fb.writeMu.Unlock()
	_, _ = fb.conn.Write(data)
}

func (fb *fakeBridge) requestsFor(url string) []Message {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	var out []Message
	for _, r := range fb.requests {
		if r.Header.URL == url {
			out = append(out, r)
		}
	}
	return out
}

func reply(req Message, status string, body any) Message {
	respType := strings.Replace(req.CommuniqueType, "Request", "Response", 1)
	msg := Message{
		CommuniqueType: respType,
		Header: Header{
			URL:        req.Header.URL,
			ClientTag:  req.Header.ClientTag,
			StatusCode: status,
		},
	}
	if body != nil {
		raw, _ := json.Marshal(body)
		msg.Body = raw
	}
	return msg
}

func bodyReply(body any) func(Message) Message {
	return func(req Message) Message { return reply(req, "200 OK", body) }
}

var deviceList = map[string]any{
	"Devices": []map[string]any{
		{
			"href":               "/device/1",
			"Name":               "Smart Bridge",
			"FullyQualifiedName": []string{"Smart Bridge"},
			"DeviceType":         "SmartBridge",
			"SerialNumber":       1234,
		},
		{
			"href":               "/device/5",
			"Name":               "Lamp",
			"FullyQualifiedName": []string{"Lounge", "Lamp"},
			"DeviceType":         "WallDimmer",
			"ModelNumber":        "PD-6WCL-XX",
			"LocalZones":         []map[string]string{{"href": "/zone/2"}},
			"AssociatedArea":     map[string]string{"href": "/area/3"},
		},
		{
			"href":         "/device/7",
			"Name":         "Pico",
			"DeviceType":   "Pico3ButtonRaiseLower",
			"ButtonGroups": []map[string]string{{"href": "/buttongroup/4"}},
		},
	},
}

func TestMessageStatus(t *testing.T) {
	tests := []struct {
		name     string
		msg      Message
		wantCode int
		wantErr  bool
	}{
		{"ok", Message{CommuniqueType: ReadResponse, Header: Header{StatusCode: "200 OK"}}, 200, false},
		{"no content", Message{CommuniqueType: SubscribeResponse, Header: Header{StatusCode: "204 NoContent"}}, 204, false},
		{"not found", Message{CommuniqueType: ReadResponse, Header: Header{StatusCode: "404 NotFound"}}, 404, true},
		{"missing", Message{CommuniqueType: ReadResponse}, 0, true},
		{"exception", Message{CommuniqueType: ExceptionResponse, Header: Header{StatusCode: "200 OK"}}, 200, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.msg.Status(); got != tt.wantCode {
				t.Errorf("Status() = %d, want %d", got, tt.wantCode)
			}
			err := tt.msg.Err()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Err() = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrRequestFailed) {
				t.Errorf("Err() = %v, want ErrRequestFailed", err)
			}
		})
	}
}

func TestIDFromHref(t *testing.T) {
	tests := []struct {
		href string
		want string
	}{
		{"/zone/3", "3"},
		{"/zone/3/status", "3"},
		{"/button/101/status/event", "101"},
		{"/project", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := idFromHref(tt.href); got != tt.want {
			t.Errorf("idFromHref(%q) = %q, want %q", tt.href, got, tt.want)
		}
	}
}

func TestEncodeTerminatesWithCRLF(t *testing.T) {
	data, err := Message{CommuniqueType: ReadRequest, Header: Header{URL: "/device"}}.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if !strings.HasSuffix(string(data), "\r\n") {
		t.Errorf("Encode() = %q, want CRLF suffix", data)
	}
}

func TestNewClientRequiresAddress(t *testing.T) {
	_, err := NewClient(Config{})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("NewClient() error = %v, want ErrInvalidConfig", err)
	}
}

func TestDevicesPopulatesStateFromZoneStatus(t *testing.T) {
	_, c := newFakeBridge(t, map[string]func(Message) Message{
		"ReadRequest /device": bodyReply(deviceList),
		"SubscribeRequest /zone/status": bodyReply(map[string]any{
			"ZoneStatuses": []map[string]any{
				{"Zone": map[string]string{"href": "/zone/2"}, "Level": 75},
			},
		}),
	})

	devices, err := c.Devices(context.Background())
	if err != nil {
		t.Fatalf("Devices() error = %v", err)
	}
	if len(devices) != 3 {
		t.Fatalf("Devices() returned %d devices, want 3", len(devices))
	}
	if devices[0].ID != "1" || devices[1].ID != "5" {
		t.Errorf("Devices() order = %s,%s, want 1,5", devices[0].ID, devices[1].ID)
	}

	lamp, ok := c.DeviceByID("5")
	if !ok {
		t.Fatal("DeviceByID(5) not found")
	}
	if lamp.Name != "Lounge Lamp" {
		t.Errorf("Name = %q, want %q", lamp.Name, "Lounge Lamp")
	}
	if lamp.ZoneID != "2" || lamp.AreaID != "3" {
		t.Errorf("ZoneID/AreaID = %q/%q, want 2/3", lamp.ZoneID, lamp.AreaID)
	}
	if lamp.State[StateCurrent] != 75 {
		t.Errorf("State[%s] = %v, want 75", StateCurrent, lamp.State[StateCurrent])
	}

	bridge, _ := c.DeviceByID("1")
	if bridge.Serial != "1234" {
		t.Errorf("Serial = %q, want 1234", bridge.Serial)
	}
}

func TestZoneStatusPushNotifiesSubscriber(t *testing.T) {
	fb, c := newFakeBridge(t, map[string]func(Message) Message{
		"ReadRequest /device": bodyReply(deviceList),
	})
	if _, err := c.Devices(context.Background()); err != nil {
		t.Fatalf("Devices() error = %v", err)
	}

	notified := make(chan struct{}, 1)
	c.AddSubscriber("5", func() { notified <- struct{}{} })

	push := Message{
		CommuniqueType: ReadResponse,
		Header:         Header{StatusCode: "200 OK", MessageBodyType: "OneZoneStatus", URL: "/zone/2/status"},
	}
	push.Body, _ = json.Marshal(map[string]any{
		"ZoneStatus": map[string]any{"Zone": map[string]string{"href": "/zone/2"}, "Level": 40, "Tilt": 10},
	})
	fb.send(push)

	select {
	case <-notified:
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber not notified")
	}

	lamp, _ := c.DeviceByID("5")
	if lamp.State[StateCurrent] != 40 || lamp.State[StateTilt] != 10 {
		t.Errorf("State = %v, want current_state 40 and tilt 10", lamp.State)
	}
}

func TestButtonEventsReachSubscriber(t *testing.T) {
	fb, c := newFakeBridge(t, map[string]func(Message) Message{
		"ReadRequest /device": bodyReply(deviceList),
		"ReadRequest /button": bodyReply(map[string]any{
			"Buttons": []map[string]any{
				{"href": "/button/101", "Name": "Button 1", "ButtonNumber": 0, "Parent": map[string]string{"href": "/buttongroup/4"}},
				{"href": "/button/102", "Name": "Button 2", "ButtonNumber": 2, "Parent": map[string]string{"href": "/buttongroup/4"},
					"Engraving": map[string]string{"Text": "Off"}},
			},
		}),
	})
	ctx := context.Background()
	if _, err := c.Devices(ctx); err != nil {
		t.Fatalf("Devices() error = %v", err)
	}

	buttons, err := c.Buttons(ctx)
	if err != nil {
		t.Fatalf("Buttons() error = %v", err)
	}
	if len(buttons) != 2 {
		t.Fatalf("Buttons() returned %d, want 2", len(buttons))
	}
	if buttons[0].ParentDeviceID != "7" {
		t.Errorf("ParentDeviceID = %q, want 7", buttons[0].ParentDeviceID)
	}
	if buttons[1].Name != "Off" {
		t.Errorf("engraved Name = %q, want Off", buttons[1].Name)
	}
	if got := len(fb.requestsFor("/button/101/status/event")); got != 1 {
		t.Errorf("subscribe requests for button 101 = %d, want 1", got)
	}

	events := make(chan ButtonEventType, 2)
	c.AddButtonSubscriber("101", func(e ButtonEventType) { events <- e })

	push := Message{CommuniqueType: ReadResponse, Header: Header{StatusCode: "200 OK", MessageBodyType: "OneButtonStatusEvent"}}
	push.Body, _ = json.Marshal(map[string]any{
		"ButtonStatus": map[string]any{
			"Button":      map[string]string{"href": "/button/101"},
			"ButtonEvent": map[string]string{"EventType": "Press"},
		},
	})
	fb.send(push)

	select {
	case e := <-events:
		if e != ButtonPress {
			t.Errorf("event = %q, want Press", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("button event not delivered")
	}
}

func TestOccupancyGroupsNamedAfterArea(t *testing.T) {
	fb, c := newFakeBridge(t, map[string]func(Message) Message{
		"ReadRequest /area": bodyReply(map[string]any{
			"Areas": []map[string]any{{"href": "/area/3", "Name": "Kitchen"}},
		}),
		"ReadRequest /occupancygroup": bodyReply(map[string]any{
			"OccupancyGroups": []map[string]any{
				{"href": "/occupancygroup/9", "AssociatedAreas": []map[string]any{{"Area": map[string]string{"href": "/area/3"}}}},
			},
		}),
		"SubscribeRequest /occupancygroup/status": bodyReply(map[string]any{
			"OccupancyGroupStatuses": []map[string]any{
				{"OccupancyGroup": map[string]string{"href": "/occupancygroup/9"}, "OccupancyStatus": "Occupied"},
			},
		}),
	})
	ctx := context.Background()
	if _, err := c.Areas(ctx); err != nil {
		t.Fatalf("Areas() error = %v", err)
	}

	groups, err := c.OccupancyGroups(ctx)
	if err != nil {
		t.Fatalf("OccupancyGroups() error = %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("OccupancyGroups() returned %d, want 1", len(groups))
	}
	if groups[0].Name != "Kitchen Occupancy" || groups[0].Status != Occupied {
		t.Errorf("group = %+v, want Kitchen Occupancy/Occupied", groups[0])
	}

	statuses := make(chan OccupancyStatus, 1)
	c.AddOccupancySubscriber("9", func(s OccupancyStatus) { statuses <- s })

	push := Message{CommuniqueType: ReadResponse, Header: Header{StatusCode: "200 OK"}}
	push.Body, _ = json.Marshal(map[string]any{
		"OccupancyGroupStatuses": []map[string]any{
			{"OccupancyGroup": map[string]string{"href": "/occupancygroup/9"}, "OccupancyStatus": "Unoccupied"},
		},
	})
	fb.send(push)

	select {
	case s := <-statuses:
		if s != Unoccupied {
			t.Errorf("status = %q, want Unoccupied", s)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("occupancy status not delivered")
	}
}

func TestScenesSkipUnprogrammed(t *testing.T) {
	_, c := newFakeBridge(t, map[string]func(Message) Message{
		"ReadRequest /virtualbutton": bodyReply(map[string]any{
			"VirtualButtons": []map[string]any{
				{"href": "/virtualbutton/1", "Name": "Evening", "IsProgrammed": true},
				{"href": "/virtualbutton/2", "Name": "Button 2", "IsProgrammed": false},
			},
		}),
	})

	scenes, err := c.Scenes(context.Background())
	if err != nil {
		t.Fatalf("Scenes() error = %v", err)
	}
	if len(scenes) != 1 || scenes[0].ID != "1" || scenes[0].Name != "Evening" {
		t.Errorf("Scenes() = %+v, want only Evening", scenes)
	}
}

func TestZoneCommands(t *testing.T) {
	fb, c := newFakeBridge(t, map[string]func(Message) Message{
		"ReadRequest /device": bodyReply(deviceList),
	})
	ctx := context.Background()
	if _, err := c.Devices(ctx); err != nil {
		t.Fatalf("Devices() error = %v", err)
	}

	tests := []struct {
		name     string
		run      func() error
		wantType string
		wantBody string
	}{
		{"set value", func() error { return c.SetValue(ctx, "5", 40) }, cmdGoToLevel, `"Value":40`},
		{"turn off", func() error { return c.TurnOff(ctx, "5") }, cmdGoToLevel, `"Value":0`},
		{"fan", func() error { return c.SetFan(ctx, "5", FanMediumHigh) }, cmdGoToFanSpeed, `"FanSpeed":"MediumHigh"`},
		{"tilt", func() error { return c.SetTilt(ctx, "5", 30) }, cmdTiltParameters, `"Tilt":30`},
		{"raise", func() error { return c.RaiseCover(ctx, "5") }, cmdRaise, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := len(fb.requestsFor("/zone/2/commandprocessor"))
			if err := tt.run(); err != nil {
				t.Fatalf("command error = %v", err)
			}
			reqs := fb.requestsFor("/zone/2/commandprocessor")
			if len(reqs) != before+1 {
				t.Fatalf("command requests = %d, want %d", len(reqs), before+1)
			}
			last := reqs[len(reqs)-1]
			if last.CommuniqueType != CreateRequest {
				t.Errorf("CommuniqueType = %q, want CreateRequest", last.CommuniqueType)
			}
			body := string(last.Body)
			if !strings.Contains(body, `"CommandType":"`+tt.wantType+`"`) {
				t.Errorf("body %s missing CommandType %s", body, tt.wantType)
			}
			if tt.wantBody != "" && !strings.Contains(body, tt.wantBody) {
				t.Errorf("body %s missing %s", body, tt.wantBody)
			}
		})
	}
}

func TestCommandValidation(t *testing.T) {
	_, c := newFakeBridge(t, map[string]func(Message) Message{
		"ReadRequest /device": bodyReply(deviceList),
	})
	ctx := context.Background()
	if _, err := c.Devices(ctx); err != nil {
		t.Fatalf("Devices() error = %v", err)
	}

	if err := c.SetValue(ctx, "5", 101); err == nil {
		t.Error("SetValue(101) should fail")
	}
	if err := c.SetFan(ctx, "5", FanSpeed("Turbo")); err == nil {
		t.Error("SetFan(Turbo) should fail")
	}
	if err := c.TurnOn(ctx, "1"); !errors.Is(err, ErrUnknownDevice) {
		t.Errorf("TurnOn(zoneless) error = %v, want ErrUnknownDevice", err)
	}
}

func TestSceneAndButtonPress(t *testing.T) {
	fb, c := newFakeBridge(t, nil)
	ctx := context.Background()

	if err := c.ActivateScene(ctx, "3"); err != nil {
		t.Fatalf("ActivateScene() error = %v", err)
	}
	if err := c.TapButton(ctx, "101"); err != nil {
		t.Fatalf("TapButton() error = %v", err)
	}
	if len(fb.requestsFor("/virtualbutton/3/commandprocessor")) != 1 {
		t.Error("scene press not sent")
	}
	if len(fb.requestsFor("/button/101/commandprocessor")) != 1 {
		t.Error("button tap not sent")
	}
}

func TestRequestFailureStatus(t *testing.T) {
	_, c := newFakeBridge(t, map[string]func(Message) Message{
		"ReadRequest /area": func(req Message) Message { return reply(req, "404 NotFound", nil) },
	})

	_, err := c.Areas(context.Background())
	if !errors.Is(err, ErrRequestFailed) {
		t.Errorf("Areas() error = %v, want ErrRequestFailed", err)
	}
}

func TestDisconnectFiresCallback(t *testing.T) {
	fb, c := newFakeBridge(t, nil)

	lost := make(chan error, 1)
	c.SetOnDisconnect(func(err error) { lost <- err })

	_ = fb.conn.Close()

	select {
	case <-lost:
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect callback not fired")
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after link loss")
	}
	if err := c.Ping(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Ping() after loss error = %v, want ErrNotConnected", err)
	}
}

func TestCloseDoesNotFireDisconnect(t *testing.T) {
	_, c := newFakeBridge(t, nil)

	fired := make(chan struct{}, 1)
	c.SetOnDisconnect(func(error) { fired <- struct{}{} })

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	select {
	case <-fired:
		t.Error("disconnect callback fired on Close")
	case <-time.After(100 * time.Millisecond):
	}
	if err := c.Connect(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Connect() after Close error = %v, want ErrNotConnected", err)
	}
}

func TestUnsubscribeRemovesSubscriber(t *testing.T) {
	c, err := NewClient(Config{Address: "bridge.local"})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	u1 := c.AddSubscriber("5", func() {})
	u2 := c.AddButtonSubscriber("101", func(ButtonEventType) {})
	u3 := c.AddOccupancySubscriber("9", func(OccupancyStatus) {})
	if got := c.SubscriberCount(); got != 3 {
		t.Fatalf("SubscriberCount() = %d, want 3", got)
	}

	u1()
	u2()
	u3()
	u3()
	if got := c.SubscriberCount(); got != 0 {
		t.Errorf("SubscriberCount() after unsubscribe = %d, want 0", got)
	}
}

func TestPanickingSubscriberIsRecovered(t *testing.T) {
	fb, c := newFakeBridge(t, map[string]func(Message) Message{
		"ReadRequest /device": bodyReply(deviceList),
	})
	if _, err := c.Devices(context.Background()); err != nil {
		t.Fatalf("Devices() error = %v", err)
	}

	c.AddSubscriber("5", func() { panic("boom") })

	push := Message{CommuniqueType: ReadResponse, Header: Header{StatusCode: "200 OK"}}
	push.Body, _ = json.Marshal(map[string]any{
		"ZoneStatus": map[string]any{"Zone": map[string]string{"href": "/zone/2"}, "Level": 10},
	})
	fb.send(push)

	// The reader must survive to answer this request.
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() after panic error = %v", err)
	}
}

func TestCheckPaired(t *testing.T) {
	dir := t.TempDir()
	key := filepath.Join(dir, "leapHub.key")
	cert := filepath.Join(dir, "leapHub.crt")
	ca := filepath.Join(dir, "leapHub-bridge.crt")

	if err := CheckPaired(key, cert, ca); !errors.Is(err, ErrNotPaired) {
		t.Fatalf("CheckPaired() on empty dir error = %v, want ErrNotPaired", err)
	}

	for _, p := range []string{key, cert, ca} {
		if err := os.WriteFile(p, []byte("x"), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	if err := CheckPaired(key, cert, ca); err != nil {
		t.Errorf("CheckPaired() with files present error = %v", err)
	}
	if err := CheckPaired("", cert, ca); !errors.Is(err, ErrNotPaired) {
		t.Errorf("CheckPaired() with empty path error = %v, want ErrNotPaired", err)
	}
}
