package dispatch

import (
	"context"
	"strings"

	"github.com/ninomaruszewski/roycemorebot/internal/infrastructure/config"
	"github.com/ninomaruszewski/roycemorebot/internal/platform"
)

// Handler runs a command.
type Handler func(ctx context.Context, req *Request) error

// Command describes one chat command.
type Command struct {
	// Name is the canonical command name, matched case-insensitively.
	Name string

	// Aliases are alternative names.
	Aliases []string

	// Usage is shown when the handler returns ErrUsage, e.g. "reload <extension>".
	Usage string

	// Help is a one-line description for the help listing.
	Help string

	// RequiredRoles restricts the command to authors holding one of the roles.
	// An empty set allows everyone.
	RequiredRoles config.RoleSet

	// GuildOnly rejects direct messages.
	GuildOnly bool

	// DeniedReply overrides the reply sent when RequiredRoles rejects the author.
	DeniedReply string

	// GuildOnlyReply overrides the reply sent when GuildOnly rejects a direct message.
	GuildOnlyReply string

	Handler Handler
}

func (c Command) names() []string {
	out := make([]string, 0, 1+len(c.Aliases))
	out = append(out, strings.ToLower(c.Name))
	for _, a := range c.Aliases {
		out = append(out, strings.ToLower(a))
	}
	return out
}

// Request is a parsed command invocation.
type Request struct {
	// Message is the chat message that triggered the command.
	Message platform.Message

	// Command is the canonical command name.
	Command string

	// Invoked is the name or alias the author typed.
	Invoked string

	// Args are the whitespace-separated words after the command name.
	Args []string

	// Owner is the extension that registered the command.
	Owner string

	sender platform.Sender
}

// Reply sends content to the channel the command came from.
func (r *Request) Reply(ctx context.Context, content string) error {
	return r.sender.Send(ctx, r.Message.ChannelID, content)
}

// Send posts content to another channel, e.g. the bot log.
func (r *Request) Send(ctx context.Context, channelID, content string) error {
	return r.sender.Send(ctx, channelID, content)
}

// NewRequest builds a Request outside the dispatcher, for handler tests.
func NewRequest(msg platform.Message, command string, args []string, sender platform.Sender) *Request {
	return &Request{Message: msg, Command: command, Invoked: command, Args: args, sender: sender}
}

// parse splits content into command name and args. ok is false when content
// does not start with prefix or names no command.
func parse(prefix, content string) (name string, args []string, ok bool) {
	rest, found := strings.CutPrefix(content, prefix)
	if !found {
		return "", nil, false
	}
	fields := strings.Fields(rest)
	// "! ping" is not a command: the name must follow the prefix directly.
	if len(fields) == 0 || strings.HasPrefix(rest, " ") || strings.HasPrefix(rest, "\t") {
		return "", nil, false
	}
	return strings.ToLower(fields[0]), fields[1:], true
}
