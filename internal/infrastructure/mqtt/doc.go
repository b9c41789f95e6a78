// Package mqtt provides the MQTT client leapbridge uses to talk to its host.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support, restored on reconnect
//   - Last Will and Testament (LWT) for offline detection
//
// # Architecture
//
// The host automation core and leapbridge share an MQTT bus. leapbridge
// publishes device state, events and health, and consumes commands and
// requests addressed to the "lutron" protocol.
//
//	Host core ↔ MQTT Broker ↔ leapbridge ↔ Lutron bridges (LEAP/TLS)
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.BridgeCommand("lutron", "+"), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
package mqtt
