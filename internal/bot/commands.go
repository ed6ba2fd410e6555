package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ninomaruszewski/roycemorebot/internal/dispatch"
	"github.com/ninomaruszewski/roycemorebot/internal/extension"
	"github.com/ninomaruszewski/roycemorebot/internal/platform"
	"github.com/ninomaruszewski/roycemorebot/internal/process"
)

// CoreOwner owns the commands registered by App itself.
const CoreOwner = "core"

const (
	// GitPullTimeout bounds git-pull.
	GitPullTimeout = 60 * time.Second

	// maxOutputLength keeps a command output block inside one chat message.
	maxOutputLength = 1900
)

func (a *App) coreCommands() []dispatch.Command {
	admins := a.Settings.Groups.BotAdmins
	return []dispatch.Command{
		{
			Name:          "reload",
			Aliases:       []string{"r"},
			Usage:         "reload <extension>",
			Help:          "Reload an extension.",
			RequiredRoles: admins,
			Handler:       a.reload,
		},
		{
			Name:          "git-pull",
			Aliases:       []string{"gitpull", "gp"},
			Usage:         "git-pull",
			Help:          "Pull new changes.",
			RequiredRoles: admins,
			Handler:       a.gitPull,
		},
		{
			Name:    "help",
			Usage:   "help",
			Help:    "List the available commands.",
			Handler: a.help,
		},
	}
}

// reload unloads and loads one extension.
func (a *App) reload(ctx context.Context, req *dispatch.Request) error {
	if len(req.Args) != 1 {
		return dispatch.ErrUsage
	}
	name := req.Args[0]

	err := a.Registry.Reload(ctx, name)
	switch {
	case err == nil:
		a.reply(ctx, req, fmt.Sprintf("Cog `%s` successfully reloaded!", name))
		return nil
	case errors.Is(err, extension.ErrExtensionNotLoaded), errors.Is(err, extension.ErrInvalidName):
		a.reply(ctx, req, fmt.Sprintf("Could not find the extension `%s`!", name))
		return nil
	default:
		// The unload step succeeded, so the extension is now unloaded.
		return fmt.Errorf("extension `%s` failed to load and is unloaded: %w", name, err)
	}
}

// gitPull runs "git pull" in the working directory.
func (a *App) gitPull(ctx context.Context, req *dispatch.Request) error {
	a.Logger.Info("git pull requested", "user", req.Message.Author.String(), "user_id", req.Message.Author.ID)

	res, err := a.runner.Run(ctx, process.Command{
		Name:    "git",
		Args:    []string{"pull"},
		Timeout: GitPullTimeout,
	})
	if err != nil {
		a.Logger.Info("git pull failed", "error", err, "stderr", res.Stderr)

		detail := err.Error()
		if errors.Is(err, process.ErrTimeout) {
			detail = fmt.Sprintf("git pull timed out after %s", GitPullTimeout)
		}
		a.reply(ctx, req, fmt.Sprintf("%s There was an error trying to execute that command:\n```\n%s\n```",
			a.Settings.Emoji.Warning, detail))
		if strings.TrimSpace(res.Stderr) != "" {
			a.reply(ctx, req, outputBlock(res.Stderr))
		}
		return nil
	}

	a.reply(ctx, req, a.Settings.Emoji.GreenCheck+" Command executed successfully.")
	if strings.TrimSpace(res.Stdout) != "" {
		a.reply(ctx, req, outputBlock(res.Stdout))
	}
	return nil
}

// help lists every registered command.
func (a *App) help(ctx context.Context, req *dispatch.Request) error {
	prefix := a.Dispatcher.Prefix()

	var b strings.Builder
	b.WriteString("Commands:")
	for _, c := range a.Dispatcher.Commands() {
		usage := c.Usage
		if usage == "" {
			usage = c.Name
		}
		fmt.Fprintf(&b, "\n`%s%s`", prefix, usage)
		if len(c.Aliases) > 0 {
			fmt.Fprintf(&b, " (%s)", strings.Join(c.Aliases, ", "))
		}
		if c.Help != "" {
			b.WriteString(": " + c.Help)
		}
	}

	a.reply(ctx, req, platform.Truncate(b.String(), maxOutputLength))
	return nil
}

// reply sends content back, logging rather than returning a send failure so
// the dispatcher does not try to report it through the same broken channel.
func (a *App) reply(ctx context.Context, req *dispatch.Request, content string) {
	if err := req.Reply(ctx, content); err != nil {
		a.Logger.Warn("reply failed", "command", req.Command, "error", err)
	}
}

func outputBlock(output string) string {
	return "Command output:\n```\n" + platform.Truncate(strings.TrimRight(output, "\n"), maxOutputLength) + "\n```"
}
