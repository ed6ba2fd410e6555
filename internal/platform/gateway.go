package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/ninomaruszewski/roycemorebot/internal/infrastructure/config"
	"github.com/ninomaruszewski/roycemorebot/internal/infrastructure/mqtt"
)

// EventHeartbeat carries the vendor round-trip latency.
const EventHeartbeat = "heartbeat"

// maxContentLength is the longest text the gateway accepts in one message.
const maxContentLength = 2000

// Logger defines the logging interface used by the gateway.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Broker is the subset of *mqtt.Client used by the gateway.
type Broker interface {
	Topics() mqtt.Topics
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Close() error
}

// Dialer opens a Broker connection.
type Dialer func(cfg config.MQTTConfig) (Broker, error)

// DialMQTT connects with the real paho client.
func DialMQTT(cfg config.MQTTConfig) (Broker, error) {
	c, err := mqtt.Connect(cfg)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// sendPayload is published on the send topic.
type sendPayload struct {
	Content string `json:"content"`
}

// presencePayload is published on the presence topic.
type presencePayload struct {
	Activity string `json:"activity"`
	Type     string `json:"type"`
}

// heartbeatPayload is received on the heartbeat topic.
type heartbeatPayload struct {
	LatencyMS float64 `json:"latency_ms"`
}

// MQTTGateway implements Platform over an MQTT broker.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type MQTTGateway struct {
	cfg      config.MQTTConfig
	activity string
	dial     Dialer
	logger   Logger

	mu      sync.RWMutex
	broker  Broker
	handler EventHandler
	ctx     context.Context //nolint:containedctx // event delivery context, cancelled on Close
	cancel  context.CancelFunc

	latency atomic.Int64
}

// NewMQTTGateway creates a gateway for the mqtt settings section.
// activity is announced as presence on connect; empty disables it.
func NewMQTTGateway(cfg config.MQTTConfig, activity string) *MQTTGateway {
	return &MQTTGateway{
		cfg:      cfg,
		activity: activity,
		dial:     DialMQTT,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the gateway.
func (g *MQTTGateway) SetLogger(logger Logger) {
	if logger != nil {
		g.logger = logger
	}
}

// SetDialer replaces the broker dialer.
func (g *MQTTGateway) SetDialer(d Dialer) {
	g.dial = d
}

// Connect dials the broker and subscribes to gateway events.
func (g *MQTTGateway) Connect(ctx context.Context, h EventHandler) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	broker, err := g.dial(g.cfg)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	eventCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	g.mu.Lock()
	g.broker = broker
	g.handler = h
	g.ctx = eventCtx
	g.cancel = cancel
	g.mu.Unlock()

	topics := broker.Topics()
	if err := broker.Subscribe(topics.AllGatewayEvents(), g.qos(), g.handleEvent); err != nil {
		g.Close() //nolint:errcheck // already failing
		return fmt.Errorf("%w: subscribing to gateway events: %w", ErrConnectionFailed, err)
	}

	if g.activity != "" {
		b, _ := json.Marshal(presencePayload{Activity: g.activity, Type: "watching"}) //nolint:errchkjson // string fields only
		if err := broker.Publish(topics.GatewayPresence(), b, g.qos(), true); err != nil {
			g.logger.Warn("publishing presence failed", "error", err)
		}
	}

	g.logger.Info("gateway connected", "topic", topics.AllGatewayEvents())
	return nil
}

func (g *MQTTGateway) qos() byte {
	return byte(g.cfg.QoS) //nolint:gosec // QoS validated by config
}

// handleEvent decodes one gateway event and hands it to the EventHandler.
func (g *MQTTGateway) handleEvent(topic string, payload []byte) error {
	g.mu.RLock()
	broker, h, ctx := g.broker, g.handler, g.ctx
	g.mu.RUnlock()

	if broker == nil || h == nil || ctx.Err() != nil {
		return nil
	}

	eventType, ok := broker.Topics().EventType(topic)
	if !ok {
		return fmt.Errorf("%w: unexpected topic %s", ErrInvalidEvent, topic)
	}

	switch eventType {
	case mqtt.EventReady:
		var ev ReadyEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return fmt.Errorf("%w: ready: %w", ErrInvalidEvent, err)
		}
		h.HandleReady(ctx, ev)
	case mqtt.EventMessage:
		var msg Message
		if err := json.Unmarshal(payload, &msg); err != nil {
			return fmt.Errorf("%w: message: %w", ErrInvalidEvent, err)
		}
		h.HandleMessage(ctx, msg)
	case EventHeartbeat:
		var hb heartbeatPayload
		if err := json.Unmarshal(payload, &hb); err != nil {
			return fmt.Errorf("%w: heartbeat: %w", ErrInvalidEvent, err)
		}
		g.latency.Store(int64(hb.LatencyMS * float64(time.Millisecond)))
	default:
		g.logger.Debug("ignoring gateway event", "type", eventType)
	}
	return nil
}

// Send publishes content to a channel. Content longer than the gateway's
// limit is truncated.
func (g *MQTTGateway) Send(ctx context.Context, channelID, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	g.mu.RLock()
	broker := g.broker
	g.mu.RUnlock()
	if broker == nil {
		return ErrNotConnected
	}

	b, err := json.Marshal(sendPayload{Content: Truncate(content, maxContentLength)})
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}
	if err := broker.Publish(broker.Topics().GatewaySend(channelID), b, g.qos(), false); err != nil {
		return fmt.Errorf("sending to %s: %w", channelID, err)
	}
	return nil
}

// Latency returns the last heartbeat latency, or zero if none was received.
func (g *MQTTGateway) Latency() time.Duration {
	return time.Duration(g.latency.Load())
}

// Close stops event delivery and disconnects from the broker.
func (g *MQTTGateway) Close() error {
	g.mu.Lock()
	broker, cancel := g.broker, g.cancel
	g.broker, g.handler, g.cancel = nil, nil, nil
	g.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if broker == nil {
		return nil
	}
	if err := broker.Close(); err != nil {
		return fmt.Errorf("closing broker connection: %w", err)
	}
	return nil
}

// Truncate shortens s to at most n bytes without splitting a UTF-8 sequence,
// marking the cut with an ellipsis.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	const ellipsis = "…"
	suffix := ellipsis
	cut := n - len(ellipsis)
	if cut < 0 {
		// No room for the ellipsis.
		suffix = ""
		cut = max(n, 0)
	}
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + suffix
}
