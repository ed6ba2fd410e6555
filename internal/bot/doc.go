// Package bot wires roycemorebot together.
//
// App is the context object handed to extensions: it owns the settings,
// the logger, the extension registry, the command dispatcher, the platform
// connection and the lifecycle manager. App also registers the core
// operator commands (reload, git-pull, help) that live outside any
// extension, so an extension reload can never unload them.
package bot
