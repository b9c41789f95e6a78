package leap

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Communique types used by the client.
const (
	ReadRequest      = "ReadRequest"
	SubscribeRequest = "SubscribeRequest"
	CreateRequest    = "CreateRequest"

	ReadResponse      = "ReadResponse"
	SubscribeResponse = "SubscribeResponse"
	CreateResponse    = "CreateResponse"
	UpdateResponse    = "UpdateResponse"
	ExceptionResponse = "ExceptionResponse"
)

// Header is the LEAP message header.
type Header struct {
	URL             string `json:"Url,omitempty"`
	ClientTag       string `json:"ClientTag,omitempty"`
	StatusCode      string `json:"StatusCode,omitempty"`
	MessageBodyType string `json:"MessageBodyType,omitempty"`
}

// Message is one newline-delimited LEAP communique.
type Message struct {
	CommuniqueType string          `json:"CommuniqueType"`
	Header         Header          `json:"Header"`
	Body           json.RawMessage `json:"Body,omitempty"`
}

// Encode renders the message as a single CRLF-terminated line.
func (m Message) Encode() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding %s %s: %w", m.CommuniqueType, m.Header.URL, err)
	}
	return append(data, '\r', '\n'), nil
}

// DecodeMessage parses one line received from the bridge.
func DecodeMessage(line []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(line, &m); err != nil {
		return Message{}, fmt.Errorf("decoding message: %w", err)
	}
	return m, nil
}

// Status returns the numeric status code, or 0 when absent or unparsable.
// LEAP sends codes like "200 OK" or "404 NotFound".
func (m Message) Status() int {
	code, _, _ := strings.Cut(m.Header.StatusCode, " ")
	n, err := strconv.Atoi(code)
	if err != nil {
		return 0
	}
	return n
}

// OK reports whether the message carries a 2xx status.
func (m Message) OK() bool {
	s := m.Status()
	return s >= 200 && s < 300
}

// Err returns ErrRequestFailed with the status and URL when the message
// is an exception or carries a non-2xx status.
func (m Message) Err() error {
	if m.CommuniqueType != ExceptionResponse && m.OK() {
		return nil
	}
	return fmt.Errorf("%w: %s %s", ErrRequestFailed, m.Header.StatusCode, m.Header.URL)
}

// Href is a LEAP resource reference such as {"href": "/zone/3"}.
type Href struct {
	Href string `json:"href"`
}

// ID returns the final path element of the reference, or "" when empty.
func (h Href) ID() string {
	return idFromHref(h.Href)
}

// idFromHref extracts the identifier that follows the resource name:
// "/zone/3" and "/zone/3/status" both yield "3".
func idFromHref(href string) string {
	parts := strings.Split(strings.Trim(href, "/"), "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

// Wire body shapes. Only the fields the client consumes are declared.

type deviceDefinition struct {
	Self             string      `json:"href"`
	Name             string      `json:"Name"`
	FullyQualified   []string    `json:"FullyQualifiedName"`
	DeviceType       string      `json:"DeviceType"`
	ModelNumber      string      `json:"ModelNumber"`
	SerialNumber     json.Number `json:"SerialNumber"`
	LocalZones       []Href      `json:"LocalZones"`
	AssociatedArea   Href        `json:"AssociatedArea"`
	ButtonGroups     []Href      `json:"ButtonGroups"`
	OccupancySensors []Href      `json:"OccupancySensors"`
}

type buttonDefinition struct {
	Self         string `json:"href"`
	Name         string `json:"Name"`
	ButtonNumber int    `json:"ButtonNumber"`
	Parent       Href   `json:"Parent"`
	Engraving    struct {
		Text string `json:"Text"`
	} `json:"Engraving"`
}

type virtualButtonDefinition struct {
	Self         string `json:"href"`
	Name         string `json:"Name"`
	ButtonNumber int    `json:"ButtonNumber"`
	IsProgrammed bool   `json:"IsProgrammed"`
}

type areaDefinition struct {
	Self   string `json:"href"`
	Name   string `json:"Name"`
	Parent Href   `json:"Parent"`
}

type occupancyGroupDefinition struct {
	Self            string `json:"href"`
	AssociatedAreas []struct {
		Area Href `json:"Area"`
	} `json:"AssociatedAreas"`
}

type zoneStatus struct {
	Zone     Href   `json:"Zone"`
	Level    *int   `json:"Level"`
	FanSpeed string `json:"FanSpeed"`
	Tilt     *int   `json:"Tilt"`
	Color    any    `json:"ColorTuningStatus,omitempty"`
}

type buttonStatus struct {
	Button      Href `json:"Button"`
	ButtonEvent struct {
		EventType string `json:"EventType"`
	} `json:"ButtonEvent"`
}

type occupancyGroupStatus struct {
	OccupancyGroup  Href   `json:"OccupancyGroup"`
	OccupancyStatus string `json:"OccupancyStatus"`
}

// statusBody collects every status shape the bridge pushes.
type statusBody struct {
	ZoneStatus             *zoneStatus            `json:"ZoneStatus"`
	ZoneStatuses           []zoneStatus           `json:"ZoneStatuses"`
	ButtonStatus           *buttonStatus          `json:"ButtonStatus"`
	OccupancyGroupStatuses []occupancyGroupStatus `json:"OccupancyGroupStatuses"`
}

type commandBody struct {
	Command command `json:"Command"`
}

type command struct {
	CommandType        string              `json:"CommandType"`
	Parameter          []commandParameter  `json:"Parameter,omitempty"`
	FanSpeedParameters *fanSpeedParameters `json:"FanSpeedParameters,omitempty"`
	TiltParameters     *tiltParameters     `json:"TiltParameters,omitempty"`
}

type commandParameter struct {
	Type  string `json:"Type"`
	Value int    `json:"Value"`
}

type fanSpeedParameters struct {
	FanSpeed string `json:"FanSpeed"`
}

type tiltParameters struct {
	Tilt int `json:"Tilt"`
}
