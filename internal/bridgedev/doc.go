// Package bridgedev implements deviceset.Device on top of the Gray Logic
// bridge protocol over MQTT.
//
// A command string "move pos=12.5 speed=fast" becomes
//
//	graylogic/command/{protocol}/{device}
//	{"id":"...","device_id":"...","command":"move","parameters":{"pos":12.5,"speed":"fast"},"source":"devset"}
//
// and is completed by the bridge's ack on graylogic/ack/{protocol}/{device}:
// accepted finishes it, queued leaves it running, failed and timeout fail it.
//
// Connect subscribes to the ack topic and sends a "ping" command; the device
// counts as connected once the bridge accepts the ping.
package bridgedev
