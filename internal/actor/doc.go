// Package actor wires a device set to an event loop, a logger and the
// actor's message topic.
//
// The Actor is the set's error-reporting channel and device hooks. Start
// connects every filled slot; IsReady and DidFail describe that startup
// connect.
//
// All device-set access from other goroutines goes through Do, which runs
// on the loop:
//
//	err := a.Do(ctx, func(set *deviceset.Set) {
//	    gov, err = set.StartCommand([]string{"home"}, nil, deviceset.RunOptions{})
//	})
package actor
