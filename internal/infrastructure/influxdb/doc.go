// Package influxdb records roycemorebot's operational metrics in InfluxDB.
//
// Measurements:
//   - bot_commands: one point per dispatched command (command, extension,
//     outcome tags; duration_ms field)
//   - bot_latency: gateway round-trip latency reported by ping
//   - bot_lifecycle: lifecycle state transitions
//
// Writes are non-blocking and batched by the influxdb-client-go write API.
// Metrics are optional: Connect returns ErrDisabled when the influxdb
// section is disabled, and callers run without a metrics sink.
package influxdb
