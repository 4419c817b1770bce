package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	measurementRuns     = "devset_runs"
	measurementCommands = "devset_commands"
)

// RunMetric is one finished bulk operation of the device set.
type RunMetric struct {
	ActorID    string
	Kind       string // command, connect, disconnect, replace
	State      string // final governing state
	Slots      int
	Failed     int
	Duration   time.Duration
	FinishedAt time.Time
}

// WriteRunMetric records a finished run. Tags stay low-cardinality
// (actor, kind, state); counts and duration are fields.
func (c *Client) WriteRunMetric(m RunMetric) {
	if !c.IsConnected() {
		return
	}

	ts := m.FinishedAt
	if ts.IsZero() {
		ts = time.Now()
	}

	point := write.NewPoint(
		measurementRuns,
		map[string]string{
			"actor_id": m.ActorID,
			"kind":     m.Kind,
			"state":    m.State,
		},
		map[string]interface{}{
			"slots":       m.Slots,
			"failed":      m.Failed,
			"duration_ms": m.Duration.Milliseconds(),
		},
		ts,
	)
	c.writeAPI.WritePoint(point)
}

// WriteCommandMetric records how long one device command took to finish.
func (c *Client) WriteCommandMetric(actorID, device, state string, duration time.Duration) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		measurementCommands,
		map[string]string{
			"actor_id": actorID,
			"device":   device,
			"state":    state,
		},
		map[string]interface{}{
			"duration_ms": duration.Milliseconds(),
		},
		time.Now(),
	)
	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point stamped now.
//
//	client.WritePoint("devset_bridge",
//	    map[string]string{"protocol": "knx"},
//	    map[string]interface{}{"acks": 12})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}
