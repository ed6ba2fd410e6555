package mqtt

import "fmt"

// maxPayloadSize bounds outgoing messages (1MB), in line with broker defaults.
const maxPayloadSize = 1 << 20

// Publish sends a message to topic.
//
// Parameters:
//   - topic: Destination topic, e.g. Topics.GatewaySend(channelID)
//   - payload: Message payload (JSON, max 1MB)
//   - qos: 0, 1 or 2
//   - retained: Whether the broker keeps the message for new subscribers
//
// Returns:
//   - error: ErrInvalidTopic, ErrInvalidQoS, ErrNotConnected or wrapped ErrPublishFailed
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := validate(topic, qos); err != nil {
		return err
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// PublishDefault publishes a non-retained message at the configured QoS.
func (c *Client) PublishDefault(topic string, payload []byte) error {
	return c.Publish(topic, payload, byte(c.cfg.QoS), false) //nolint:gosec // QoS validated by config
}

func validate(topic string, qos byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	return nil
}
