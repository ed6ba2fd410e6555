// Package config resolves roycemorebot configuration.
//
// This package manages:
//   - Loading exactly one configuration document (operator override or default)
//   - Resolving section/subsection/key paths against the loaded document
//   - Resolving "!ENV" marked values from the process environment
//   - Building the typed Settings snapshot and its derived role groups
//
// The override document replaces the default wholesale. Keys missing from the
// override are never looked up in the default.
//
// Security Considerations:
//   - Secrets (bot token, broker password, metrics token) should be stored as
//     "!ENV" in the document and supplied via the environment
//   - Resolution errors name the dotted path and variable, never the value
//
// Performance Characteristics:
//   - The document is loaded once at startup and never mutated afterwards
//   - Resolve is safe for concurrent use without locking
//
// Usage:
//
//	doc, err := config.Load("config.json", "config-default.json")
//	if err != nil {
//	    return err
//	}
//	token, err := doc.Resolve(config.Key("bot", "bot_token"))
//
//	settings, err := config.NewSettings(doc)
//	if settings.Groups.BotAdmins.ContainsAny(author.Roles) { ... }
package config
