package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes. Bridge topics use the flat scheme
// graylogic/{category}/{protocol}/{device}.
const (
	TopicPrefixBridge = "graylogic"
	TopicPrefixCore   = "graylogic/core"
)

// Topics provides builders for the MQTT topics the actor uses.
//
//	topics := mqtt.Topics{}
//	topics.BridgeCommand("knx", "axis-az") // "graylogic/command/knx/axis-az"
type Topics struct{}

// BridgeCommand returns the topic a bridge reads device commands from.
//
// Example: graylogic/command/knx/axis-az
func (Topics) BridgeCommand(protocol, device string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefixBridge, protocol, device)
}

// BridgeAck returns the topic a bridge acknowledges device commands on.
//
// Example: graylogic/ack/knx/axis-az
func (Topics) BridgeAck(protocol, device string) string {
	return fmt.Sprintf("%s/ack/%s/%s", TopicPrefixBridge, protocol, device)
}

// AllBridgeAcks returns a wildcard subscription for every ack of one protocol.
//
// Example: graylogic/ack/knx/+
func (Topics) AllBridgeAcks(protocol string) string {
	return fmt.Sprintf("%s/ack/%s/+", TopicPrefixBridge, protocol)
}

// ActorStatus returns the retained online/offline topic for an actor.
//
// Example: graylogic/core/actor/mirror/status
func (Topics) ActorStatus(actorID string) string {
	return fmt.Sprintf("%s/actor/%s/status", TopicPrefixCore, actorID)
}

// ActorMessage returns the topic an actor reports messages on.
//
// Example: graylogic/core/actor/mirror/message
func (Topics) ActorMessage(actorID string) string {
	return fmt.Sprintf("%s/actor/%s/message", TopicPrefixCore, actorID)
}

// ActorRun returns the topic an actor publishes finished run summaries on.
//
// Example: graylogic/core/actor/mirror/run
func (Topics) ActorRun(actorID string) string {
	return fmt.Sprintf("%s/actor/%s/run", TopicPrefixCore, actorID)
}

// ParseBridgeTopic splits a bridge topic into its category, protocol and device.
// ok is false if topic is not of the form graylogic/{category}/{protocol}/{device}.
func ParseBridgeTopic(topic string) (category, protocol, device string, ok bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != TopicPrefixBridge {
		return "", "", "", false
	}
	if parts[1] == "" || parts[2] == "" || parts[3] == "" {
		return "", "", "", false
	}
	return parts[1], parts[2], parts[3], true
}
