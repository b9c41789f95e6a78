package leap

import (
	"encoding/json"
)

// AddSubscriber registers fn to run whenever the device's zone status
// changes. The returned function removes the subscription.
func (c *Client) AddSubscriber(deviceID string, fn func()) func() {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	c.nextSubID++
	id := c.nextSubID
	if c.deviceSubs[deviceID] == nil {
		c.deviceSubs[deviceID] = make(map[uint64]func())
	}
	c.deviceSubs[deviceID][id] = fn

	return func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		delete(c.deviceSubs[deviceID], id)
		if len(c.deviceSubs[deviceID]) == 0 {
			delete(c.deviceSubs, deviceID)
		}
	}
}

// AddButtonSubscriber registers fn for the button's Press, Release and
// LongHold events.
func (c *Client) AddButtonSubscriber(buttonID string, fn func(ButtonEventType)) func() {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	c.nextSubID++
	id := c.nextSubID
	if c.buttonSubs[buttonID] == nil {
		c.buttonSubs[buttonID] = make(map[uint64]func(ButtonEventType))
	}
	c.buttonSubs[buttonID][id] = fn

	return func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		delete(c.buttonSubs[buttonID], id)
		if len(c.buttonSubs[buttonID]) == 0 {
			delete(c.buttonSubs, buttonID)
		}
	}
}

// AddOccupancySubscriber registers fn for occupancy changes of a group.
func (c *Client) AddOccupancySubscriber(groupID string, fn func(OccupancyStatus)) func() {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	c.nextSubID++
	id := c.nextSubID
	if c.occSubs[groupID] == nil {
		c.occSubs[groupID] = make(map[uint64]func(OccupancyStatus))
	}
	c.occSubs[groupID][id] = fn

	return func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		delete(c.occSubs[groupID], id)
		if len(c.occSubs[groupID]) == 0 {
			delete(c.occSubs, groupID)
		}
	}
}

// SubscriberCount returns the number of live subscriptions of all kinds.
func (c *Client) SubscriberCount() int {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	n := 0
	for _, m := range c.deviceSubs {
		n += len(m)
	}
	for _, m := range c.buttonSubs {
		n += len(m)
	}
	for _, m := range c.occSubs {
		n += len(m)
	}
	return n
}

// applyStatus updates caches from a status body and notifies subscribers.
func (c *Client) applyStatus(msg Message) {
	var body statusBody
	if err := json.Unmarshal(msg.Body, &body); err != nil {
		// Non-status bodies (device lists and so on) do not match; that is
		// not an error.
		return
	}

	if body.ZoneStatus != nil {
		c.applyZoneStatus(*body.ZoneStatus)
	}
	for _, zs := range body.ZoneStatuses {
		c.applyZoneStatus(zs)
	}
	if body.ButtonStatus != nil {
		c.applyButtonStatus(*body.ButtonStatus)
	}
	for _, gs := range body.OccupancyGroupStatuses {
		c.applyOccupancyStatus(gs)
	}
}

func (c *Client) applyZoneStatus(zs zoneStatus) {
	zoneID := zs.Zone.ID()

	c.dataMu.Lock()
	deviceID, ok := c.zoneToDevice[zoneID]
	if !ok {
		c.dataMu.Unlock()
		return
	}
	d := c.devices[deviceID]
	if zs.Level != nil {
		d.State[StateCurrent] = *zs.Level
	}
	if zs.FanSpeed != "" {
		d.State[StateFanSpeed] = zs.FanSpeed
	}
	if zs.Tilt != nil {
		d.State[StateTilt] = *zs.Tilt
	}
	if zs.Color != nil {
		d.State[StateColor] = zs.Color
	}
	c.dataMu.Unlock()

	c.subMu.Lock()
	fns := make([]func(), 0, len(c.deviceSubs[deviceID]))
	for _, fn := range c.deviceSubs[deviceID] {
		fns = append(fns, fn)
	}
	c.subMu.Unlock()

	for _, fn := range fns {
		c.safeCall(func() { fn() })
	}
}

func (c *Client) applyButtonStatus(bs buttonStatus) {
	buttonID := bs.Button.ID()
	event := ButtonEventType(bs.ButtonEvent.EventType)
	if buttonID == "" || event == "" {
		return
	}

	c.subMu.Lock()
	fns := make([]func(ButtonEventType), 0, len(c.buttonSubs[buttonID]))
	for _, fn := range c.buttonSubs[buttonID] {
		fns = append(fns, fn)
	}
	c.subMu.Unlock()

	for _, fn := range fns {
		c.safeCall(func() { fn(event) })
	}
}

func (c *Client) applyOccupancyStatus(gs occupancyGroupStatus) {
	groupID := gs.OccupancyGroup.ID()
	status := OccupancyStatus(gs.OccupancyStatus)
	if groupID == "" || status == "" {
		return
	}

	c.dataMu.Lock()
	if g, ok := c.occupancy[groupID]; ok {
		g.Status = status
	}
	c.dataMu.Unlock()

	c.subMu.Lock()
	fns := make([]func(OccupancyStatus), 0, len(c.occSubs[groupID]))
	for _, fn := range c.occSubs[groupID] {
		fns = append(fns, fn)
	}
	c.subMu.Unlock()

	for _, fn := range fns {
		c.safeCall(func() { fn(status) })
	}
}

// safeCall keeps a panicking subscriber from killing the reader.
func (c *Client) safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logWarn("leap subscriber panicked", "panic", r)
		}
	}()
	fn()
}
