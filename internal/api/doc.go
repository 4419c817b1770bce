// Package api implements the HTTP REST API and WebSocket stream for the
// device-set actor.
//
// This package provides:
//   - REST endpoints to inspect slots and to start connect, disconnect,
//     command and replace operations on the actor's device set
//   - Query endpoints over the persisted run history
//   - A WebSocket hub that streams finished runs and actor messages
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Threading
//
// The device set belongs to the actor's event loop. Every handler that touches
// it goes through actor.Do, which runs a closure on the loop and waits for it.
// Governing commands returned to a handler are safe to read from any goroutine.
//
// # Asynchronous operations
//
// Operation endpoints answer 202 Accepted with the governing command's ID as
// soon as the work is issued. The final outcome is published on the
// "run.finished" WebSocket channel and stored in the run history. Passing
// ?wait=true holds the response until the governing command finishes.
package api
