package mqtt

import "fmt"

// Topic prefixes.
//
// Bridge topics use the flat scheme graylogic/{category}/{protocol}/{id}.
const (
	TopicPrefixBridge = "graylogic"
	TopicPrefixCore   = "graylogic/core"
	TopicPrefixSystem = "graylogic/system"
)

// Topics provides builders for MQTT topics so naming stays consistent.
//
//	topics := mqtt.Topics{}
//	topics.BridgeState("lutron", "kitchen-lights")
//	// graylogic/state/lutron/kitchen-lights
type Topics struct{}

// BridgeState returns the retained state topic for a host device.
func (Topics) BridgeState(protocol, deviceID string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefixBridge, protocol, deviceID)
}

// BridgeCommand returns the command topic for a host device.
// Pass "+" as deviceID to subscribe to every device.
func (Topics) BridgeCommand(protocol, deviceID string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefixBridge, protocol, deviceID)
}

// BridgeAck returns the command acknowledgement topic for a host device.
func (Topics) BridgeAck(protocol, deviceID string) string {
	return fmt.Sprintf("%s/ack/%s/%s", TopicPrefixBridge, protocol, deviceID)
}

// BridgeRequest returns the request topic. Pass "+" to subscribe to all.
func (Topics) BridgeRequest(protocol, requestID string) string {
	return fmt.Sprintf("%s/request/%s/%s", TopicPrefixBridge, protocol, requestID)
}

// BridgeResponse returns the response topic for a request.
func (Topics) BridgeResponse(protocol, requestID string) string {
	return fmt.Sprintf("%s/response/%s/%s", TopicPrefixBridge, protocol, requestID)
}

// BridgeHealth returns the retained health topic of a protocol bridge.
func (Topics) BridgeHealth(protocol string) string {
	return fmt.Sprintf("%s/health/%s", TopicPrefixBridge, protocol)
}

// BridgeEvent returns the topic for transient events of one kind
// (button, gesture, occupancy, trigger).
func (Topics) BridgeEvent(protocol, kind string) string {
	return fmt.Sprintf("%s/event/%s/%s", TopicPrefixBridge, protocol, kind)
}

// CoreDeviceCommand returns the command topic of a device owned by another
// bridge, used when a rule targets something this service does not manage.
func (Topics) CoreDeviceCommand(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/command", TopicPrefixCore, deviceID)
}

// ServiceStatus returns the retained online/offline status topic.
func (Topics) ServiceStatus() string {
	return TopicPrefixSystem + "/status"
}
