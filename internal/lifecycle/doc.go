// Package lifecycle drives the bot from process start to process exit.
//
// The Manager owns the startup and shutdown ordering:
//
//	Initializing -> StorageReady -> ExtensionsReady -> Connected -> ShuttingDown -> Stopped
//
// Startup opens storage, loads extensions and connects to the chat platform.
// Only once Connected is the dispatcher opened, so no command runs before
// the bot is fully up. Shutdown closes the dispatcher gate, disconnects the
// platform, closes storage (always, even if an earlier step failed) and then
// drains in-flight commands for a grace period.
//
// Any state may move to ShuttingDown. Once ShuttingDown, no connection to the
// platform is attempted.
package lifecycle
