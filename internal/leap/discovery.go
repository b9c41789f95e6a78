package leap

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"sort"
	"strings"
)

// Devices reads the device list, then subscribes to zone status so the
// state cache is populated and kept current.
func (c *Client) Devices(ctx context.Context) ([]Device, error) {
	var body struct {
		Devices []deviceDefinition `json:"Devices"`
	}
	if err := c.read(ctx, "/device", &body); err != nil {
		return nil, err
	}

	c.dataMu.Lock()
	for _, def := range body.Devices {
		d := &Device{
			ID:     idFromHref(def.Self),
			Name:   deviceName(def),
			Type:   def.DeviceType,
			Model:  def.ModelNumber,
			Serial: def.SerialNumber.String(),
			AreaID: def.AssociatedArea.ID(),
			State:  make(map[string]any),
		}
		if d.ID == "" {
			continue
		}
		if len(def.LocalZones) > 0 {
			d.ZoneID = def.LocalZones[0].ID()
			c.zoneToDevice[d.ZoneID] = d.ID
		}
		for _, g := range def.ButtonGroups {
			d.ButtonGroups = append(d.ButtonGroups, g.ID())
			c.groupToDevice[g.ID()] = d.ID
		}
		if prev, ok := c.devices[d.ID]; ok {
			d.State = prev.State
		}
		c.devices[d.ID] = d
	}
	c.dataMu.Unlock()

	// Zone status only exists for devices with zones; bridges without any
	// answer 204 which is still a success.
	if _, err := c.request(ctx, SubscribeRequest, "/zone/status", nil); err != nil {
		return nil, fmt.Errorf("subscribing to zone status: %w", err)
	}

	return c.snapshotDevices(), nil
}

func deviceName(def deviceDefinition) string {
	if len(def.FullyQualified) > 0 {
		return strings.Join(def.FullyQualified, " ")
	}
	return def.Name
}

func (c *Client) snapshotDevices() []Device {
	c.dataMu.RLock()
	defer c.dataMu.RUnlock()

	out := make([]Device, 0, len(c.devices))
	for _, d := range c.devices {
		out = append(out, copyDevice(d))
	}
	sort.Slice(out, func(i, j int) bool { return lessID(out[i].ID, out[j].ID) })
	return out
}

func copyDevice(d *Device) Device {
	cp := *d
	cp.State = maps.Clone(d.State)
	if cp.State == nil {
		cp.State = make(map[string]any)
	}
	cp.ButtonGroups = append([]string(nil), d.ButtonGroups...)
	return cp
}

// lessID orders numeric identifiers numerically and everything else
// lexically.
func lessID(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}

// DeviceByID returns a copy of the cached device.
func (c *Client) DeviceByID(id string) (Device, bool) {
	c.dataMu.RLock()
	defer c.dataMu.RUnlock()

	d, ok := c.devices[id]
	if !ok {
		return Device{}, false
	}
	return copyDevice(d), true
}

// Buttons reads the button list and subscribes to each button's event
// stream. Devices should be loaded first so ParentDeviceID resolves.
func (c *Client) Buttons(ctx context.Context) ([]Button, error) {
	var body struct {
		Buttons []buttonDefinition `json:"Buttons"`
	}
	if err := c.read(ctx, "/button", &body); err != nil {
		return nil, err
	}

	buttons := make([]Button, 0, len(body.Buttons))
	c.dataMu.Lock()
	for _, def := range body.Buttons {
		b := Button{
			ID:            idFromHref(def.Self),
			Name:          def.Name,
			Number:        def.ButtonNumber,
			ButtonGroupID: def.Parent.ID(),
		}
		if b.ID == "" {
			continue
		}
		if def.Engraving.Text != "" {
			b.Name = def.Engraving.Text
		}
		b.ParentDeviceID = c.groupToDevice[b.ButtonGroupID]
		c.buttonToDevice[b.ID] = b.ParentDeviceID
		buttons = append(buttons, b)
	}
	c.dataMu.Unlock()

	for _, b := range buttons {
		url := "/button/" + b.ID + "/status/event"
		if _, err := c.request(ctx, SubscribeRequest, url, nil); err != nil {
			return nil, fmt.Errorf("subscribing to button %s: %w", b.ID, err)
		}
	}

	sort.Slice(buttons, func(i, j int) bool { return lessID(buttons[i].ID, buttons[j].ID) })
	return buttons, nil
}

// Scenes returns the programmed virtual buttons.
func (c *Client) Scenes(ctx context.Context) ([]Scene, error) {
	var body struct {
		VirtualButtons []virtualButtonDefinition `json:"VirtualButtons"`
	}
	if err := c.read(ctx, "/virtualbutton", &body); err != nil {
		return nil, err
	}

	scenes := make([]Scene, 0, len(body.VirtualButtons))
	for _, def := range body.VirtualButtons {
		if !def.IsProgrammed {
			continue
		}
		scenes = append(scenes, Scene{ID: idFromHref(def.Self), Name: def.Name})
	}
	return scenes, nil
}

// Areas returns the bridge's areas.
func (c *Client) Areas(ctx context.Context) ([]Area, error) {
	var body struct {
		Areas []areaDefinition `json:"Areas"`
	}
	if err := c.read(ctx, "/area", &body); err != nil {
		return nil, err
	}

	areas := make([]Area, 0, len(body.Areas))
	c.dataMu.Lock()
	for _, def := range body.Areas {
		a := Area{ID: idFromHref(def.Self), Name: def.Name, ParentID: def.Parent.ID()}
		c.areas[a.ID] = a
		areas = append(areas, a)
	}
	c.dataMu.Unlock()
	return areas, nil
}

// OccupancyGroups reads the occupancy groups and subscribes to their
// status. Groups are named after their area when Areas was loaded first.
func (c *Client) OccupancyGroups(ctx context.Context) ([]OccupancyGroup, error) {
	var body struct {
		OccupancyGroups []occupancyGroupDefinition `json:"OccupancyGroups"`
	}
	if err := c.read(ctx, "/occupancygroup", &body); err != nil {
		return nil, err
	}

	c.dataMu.Lock()
	for _, def := range body.OccupancyGroups {
		g := &OccupancyGroup{ID: idFromHref(def.Self), Status: Unknown}
		if g.ID == "" {
			continue
		}
		if len(def.AssociatedAreas) > 0 {
			g.AreaID = def.AssociatedAreas[0].Area.ID()
		}
		if area, ok := c.areas[g.AreaID]; ok && area.Name != "" {
			g.Name = area.Name + " Occupancy"
		} else {
			g.Name = "Occupancy Group " + g.ID
		}
		if prev, ok := c.occupancy[g.ID]; ok {
			g.Status = prev.Status
		}
		c.occupancy[g.ID] = g
	}
	c.dataMu.Unlock()

	if _, err := c.request(ctx, SubscribeRequest, "/occupancygroup/status", nil); err != nil {
		return nil, fmt.Errorf("subscribing to occupancy status: %w", err)
	}

	c.dataMu.RLock()
	groups := make([]OccupancyGroup, 0, len(c.occupancy))
	for _, g := range c.occupancy {
		groups = append(groups, *g)
	}
	c.dataMu.RUnlock()
	sort.Slice(groups, func(i, j int) bool { return lessID(groups[i].ID, groups[j].ID) })
	return groups, nil
}

// read issues a ReadRequest and decodes the body into out.
func (c *Client) read(ctx context.Context, url string, out any) error {
	resp, err := c.request(ctx, ReadRequest, url, nil)
	if err != nil {
		return fmt.Errorf("reading %s: %w", url, err)
	}
	if len(resp.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("decoding %s: %w", url, err)
	}
	return nil
}
