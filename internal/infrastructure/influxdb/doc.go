// Package influxdb records device-set run metrics in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library. Each finished bulk
// operation becomes a devset_runs point tagged by actor, kind and final
// state; per-command timings go to devset_commands.
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // metrics are optional
//	}
//	defer client.Close()
//
// Writes are non-blocking and batched according to batch_size and
// flush_interval. Async write failures go to the SetOnError callback.
// Every method is a no-op on a closed client, and IsConnected and Close
// accept a nil client.
package influxdb
