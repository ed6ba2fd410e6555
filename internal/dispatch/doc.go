// Package dispatch routes chat messages to command handlers.
//
// The Dispatcher owns the command table. Extensions register their commands
// under an owner name and the whole set is removed again on unload. Messages
// are only dispatched while the dispatcher is open; the lifecycle manager
// opens it once the bot is connected and closes it when shutdown begins.
//
// A message is a command when it starts with the configured prefix. The
// first whitespace-separated word after the prefix is the command name or
// alias, the rest are arguments:
//
//	!reload status   → command "reload", args ["status"]
//
// Handler errors and panics are converted into a warning reply and never
// escape the dispatcher.
package dispatch
