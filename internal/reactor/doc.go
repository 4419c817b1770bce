// Package reactor provides the cooperative event loop that owns all device
// set state.
//
// Device commands complete on whatever goroutine their transport uses (MQTT
// handlers run on paho goroutines). Instead of locking the device set, every
// state change is posted to a single Loop goroutine and executed there one
// function at a time. Device set operations and command callbacks therefore
// never run concurrently with each other.
//
// # Usage
//
//	loop := reactor.New()
//	loop.SetLogger(log)
//	go loop.Run(ctx)
//
//	// From any goroutine
//	loop.Post(func() { cmd.SetState(command.StateDone, "") })
//
//	// Synchronous access from outside the loop (HTTP handlers)
//	err := loop.Call(ctx, func() { slots = set.FilledSlots() })
//
// Post never blocks, so code already running on the loop may post further
// work without deadlocking.
package reactor
