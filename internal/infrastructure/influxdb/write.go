package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementCommands  = "bot_commands"
	MeasurementLatency   = "bot_latency"
	MeasurementLifecycle = "bot_lifecycle"
)

// WriteCommandMetric records one dispatched command.
//
// Parameters:
//   - command: Canonical command name (aliases are resolved first)
//   - extension: Owning extension, e.g. "exts.status"
//   - outcome: "ok", "error", "denied" or "rejected"
//   - duration: Handler run time
func (c *Client) WriteCommandMetric(command, extension, outcome string, duration time.Duration) {
	c.writePoint(commandPoint(command, extension, outcome, duration, time.Now()))
}

// WriteLatency records the gateway round-trip latency measured by ping.
func (c *Client) WriteLatency(latency time.Duration) {
	c.writePoint(write.NewPoint(
		MeasurementLatency,
		nil,
		map[string]any{"latency_ms": durationMillis(latency)},
		time.Now(),
	))
}

// WriteLifecycleEvent records a lifecycle state transition.
func (c *Client) WriteLifecycleEvent(state string) {
	c.writePoint(write.NewPoint(
		MeasurementLifecycle,
		map[string]string{"state": state},
		map[string]any{"count": 1},
		time.Now(),
	))
}

func (c *Client) writePoint(p *write.Point) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(p)
}

func commandPoint(command, extension, outcome string, duration time.Duration, ts time.Time) *write.Point {
	return write.NewPoint(
		MeasurementCommands,
		map[string]string{
			"command":   command,
			"extension": extension,
			"outcome":   outcome,
		},
		map[string]any{
			"duration_ms": durationMillis(duration),
		},
		ts,
	)
}

func durationMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
