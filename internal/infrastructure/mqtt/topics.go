package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is used when the configured prefix is empty.
const DefaultTopicPrefix = "roycemorebot"

// Gateway event types.
const (
	EventReady   = "ready"
	EventMessage = "message"
)

// Topics builds roycemorebot's MQTT topics under a common prefix.
//
//	topics := mqtt.Topics{Prefix: "roycemorebot"}
//	topics.GatewaySend("1234")
//	// Returns: "roycemorebot/gateway/send/1234"
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return strings.TrimSuffix(t.Prefix, "/")
}

// GatewayEvent returns the topic the gateway publishes an event type on.
//
// Example: roycemorebot/gateway/events/message
func (t Topics) GatewayEvent(eventType string) string {
	return fmt.Sprintf("%s/gateway/events/%s", t.prefix(), eventType)
}

// AllGatewayEvents returns a wildcard matching every gateway event.
//
// Example: roycemorebot/gateway/events/+
func (t Topics) AllGatewayEvents() string {
	return t.prefix() + "/gateway/events/+"
}

// GatewaySend returns the topic the gateway relays to a chat channel.
//
// Example: roycemorebot/gateway/send/793569542437765120
func (t Topics) GatewaySend(channelID string) string {
	return fmt.Sprintf("%s/gateway/send/%s", t.prefix(), channelID)
}

// GatewayPresence returns the retained topic carrying the bot's activity line.
//
// Example: roycemorebot/gateway/presence
func (t Topics) GatewayPresence() string {
	return t.prefix() + "/gateway/presence"
}

// SystemStatus returns the retained bot status topic (online/offline, LWT).
//
// Example: roycemorebot/system/status
func (t Topics) SystemStatus() string {
	return t.prefix() + "/system/status"
}

// EventType extracts the event type from a gateway event topic.
// Returns false if topic is not a gateway event topic under this prefix.
func (t Topics) EventType(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, t.prefix()+"/gateway/events/")
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	return rest, true
}
