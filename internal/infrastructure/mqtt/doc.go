// Package mqtt provides MQTT connectivity for the device-set actor.
//
// The broker is the bus between the actor and the protocol bridges that
// drive the physical devices:
//
//	devset actor <-> MQTT broker <-> protocol bridges (KNX, Modbus, ...)
//
// This package manages:
//   - Connection with auto-reconnect and subscription restore
//   - A retained online/offline status per actor, including an LWT
//   - Publishing (raw and JSON) and subscriptions with panic-safe handlers
//   - Topic builders for bridge commands/acks and actor messages
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT, cfg.Actor.ID)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.BridgeAck("knx", "axis-az"), 1,
//	    func(topic string, payload []byte) error {
//	        return handleAck(payload)
//	    })
//
// TLS should be enabled for anything beyond a local broker (cfg.Broker.TLS).
package mqtt
