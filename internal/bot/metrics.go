package bot

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ninomaruszewski/roycemorebot/internal/infrastructure/config"
	"github.com/ninomaruszewski/roycemorebot/internal/infrastructure/influxdb"
	"github.com/ninomaruszewski/roycemorebot/internal/infrastructure/logging"
)

// Metrics forwards observations to InfluxDB once connected.
// Writes before Start or after Stop are dropped.
//
// Metrics is a lifecycle.Service: it connects when the bot is Connected and
// disconnects during shutdown.
type Metrics struct {
	cfg    config.InfluxDBConfig
	logger *logging.Logger
	client atomic.Pointer[influxdb.Client]
}

// NewMetrics creates a disconnected metrics sink.
func NewMetrics(cfg config.InfluxDBConfig, logger *logging.Logger) *Metrics {
	return &Metrics{cfg: cfg, logger: logger}
}

// Start connects to InfluxDB.
func (m *Metrics) Start(ctx context.Context) error {
	c, err := influxdb.Connect(m.cfg)
	if err != nil {
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	}
	if err := c.HealthCheck(ctx); err != nil {
		c.Close() //nolint:errcheck // already failing
		return fmt.Errorf("InfluxDB health check: %w", err)
	}
	c.SetOnError(func(err error) {
		m.logger.Error("InfluxDB write error", "error", err)
	})
	m.client.Store(c)

	m.logger.Info("InfluxDB connected", "url", m.cfg.URL, "org", m.cfg.Org, "bucket", m.cfg.Bucket)
	return nil
}

// Stop flushes and disconnects.
func (m *Metrics) Stop(context.Context) error {
	m.logger.Info("closing InfluxDB connection")
	return m.client.Swap(nil).Close()
}

// WriteCommandMetric implements dispatch.Metrics.
func (m *Metrics) WriteCommandMetric(command, extension, outcome string, duration time.Duration) {
	m.client.Load().WriteCommandMetric(command, extension, outcome, duration)
}

// WriteLifecycleEvent implements lifecycle.Metrics.
func (m *Metrics) WriteLifecycleEvent(state string) {
	m.client.Load().WriteLifecycleEvent(state)
}

// WriteLatency records a gateway latency sample.
func (m *Metrics) WriteLatency(latency time.Duration) {
	m.client.Load().WriteLatency(latency)
}
