// Package platform defines the chat platform boundary and its MQTT gateway
// implementation.
//
// The bot never speaks a chat vendor's protocol directly. A gateway process
// holds the vendor session and exchanges JSON events with the bot over MQTT:
//
//	{prefix}/gateway/events/ready      gateway → bot   session established
//	{prefix}/gateway/events/message    gateway → bot   a chat message
//	{prefix}/gateway/events/heartbeat  gateway → bot   vendor round-trip latency
//	{prefix}/gateway/send/{channel}    bot → gateway   text to post
//	{prefix}/gateway/presence          bot → gateway   activity line (retained)
package platform
