// Package mqtt provides the broker connection roycemorebot uses to talk to
// its chat gateway.
//
// The gateway is a separate process that holds the chat platform session.
// It publishes platform events (ready, message) to the broker and relays
// anything the bot publishes on a channel's send topic:
//
//	chat platform ↔ gateway ↔ MQTT broker ↔ roycemorebot
//
// This package manages:
//   - Connection with auto-reconnect and subscription restore
//   - Publishing with QoS and payload limits
//   - Retained online/offline status with Last Will and Testament
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := client.Topics()
//	err = client.Subscribe(topics.AllGatewayEvents(), 1,
//	    func(topic string, payload []byte) error {
//	        return handle(topic, payload)
//	    })
package mqtt
