package influxdb

import "errors"

// Sentinel errors for InfluxDB operations.
//
// These errors can be checked using errors.Is() for specific handling:
//
//	if errors.Is(err, influxdb.ErrNotConnected) {
//	    // Handle disconnected state
//	}
var (
	// ErrNotConnected indicates the client is not connected to InfluxDB.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrConnectionFailed indicates the initial connection attempt failed.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrWriteFailed wraps asynchronous write errors passed to the error callback.
	ErrWriteFailed = errors.New("influxdb: write failed")

	// ErrDisabled indicates metrics are disabled in the influxdb section.
	ErrDisabled = errors.New("influxdb: disabled in configuration")
)
