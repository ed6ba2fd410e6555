// Package status is the built-in status extension: ping and restart.
package status

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ninomaruszewski/roycemorebot/internal/bot"
	"github.com/ninomaruszewski/roycemorebot/internal/dispatch"
	"github.com/ninomaruszewski/roycemorebot/internal/extension"
)

// Name is the short extension name.
const Name = "status"

// defaultPrecision is the number of decimals in reported latencies.
const defaultPrecision = 3

// Latency band limits in milliseconds.
const (
	greenLimit  = 100.0
	orangeLimit = 250.0
)

// Band classifies a pair of latencies.
type Band string

const (
	BandGreen  Band = "green"
	BandOrange Band = "orange"
	BandRed    Band = "red"
)

// Classify returns green when both latencies are at most 100 ms, orange when
// both are at most 250 ms, and red otherwise.
func Classify(botMillis, gatewayMillis float64) Band {
	switch {
	case botMillis <= greenLimit && gatewayMillis <= greenLimit:
		return BandGreen
	case botMillis <= orangeLimit && gatewayMillis <= orangeLimit:
		return BandOrange
	default:
		return BandRed
	}
}

// Settings are read from the extension manifest.
type Settings struct {
	Precision int `json:"precision"`
}

// Status implements extension.Extension.
type Status struct {
	app       *bot.App
	precision int

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

// Register adds the extension to catalog.
func Register(catalog *extension.Catalog, app *bot.App) error {
	return catalog.Add(Name, func(_ context.Context, m extension.Manifest) (extension.Extension, error) {
		return New(app, m)
	})
}

// New builds the extension from its manifest.
func New(app *bot.App, m extension.Manifest) (*Status, error) {
	settings := Settings{Precision: defaultPrecision}
	if err := m.DecodeSettings(&settings); err != nil {
		return nil, err
	}
	if settings.Precision < 0 || settings.Precision > 9 {
		return nil, fmt.Errorf("status: precision %d out of range 0-9", settings.Precision)
	}
	return &Status{
		app:       app,
		precision: settings.Precision,
		now:       time.Now,
		after:     time.After,
	}, nil
}

// Commands implements extension.Extension.
func (s *Status) Commands() []dispatch.Command {
	return []dispatch.Command{
		{
			Name:    "ping",
			Usage:   "ping",
			Help:    "Send the latency of the bot.",
			Handler: s.ping,
		},
		{
			Name:           "restart",
			Usage:          "restart [delay]",
			Help:           "Restart the bot after a certain delay (in seconds).",
			RequiredRoles:  s.app.Settings.Groups.BotAdmins,
			GuildOnly:      true,
			DeniedReply:    "You do not have permissions to restart the bot. Ping `@Bot Team` if the bot isn't working properly.",
			GuildOnlyReply: "You must be in a server to restart the bot.",
			Handler:        s.restart,
		},
	}
}

func (s *Status) ping(ctx context.Context, req *dispatch.Request) error {
	botLatency := s.now().Sub(req.Message.CreatedAt)
	gatewayLatency := s.app.Platform.Latency()
	s.app.Metrics.WriteLatency(gatewayLatency)

	botMillis := millis(botLatency)
	gatewayMillis := millis(gatewayLatency)

	content := fmt.Sprintf("Pong! (%s)\nBot latency: %.*f ms\nGateway latency: %.*f ms",
		Classify(botMillis, gatewayMillis),
		s.precision, botMillis,
		s.precision, gatewayMillis,
	)
	return req.Reply(ctx, content)
}

func (s *Status) restart(ctx context.Context, req *dispatch.Request) error {
	if len(req.Args) > 1 {
		return dispatch.ErrUsage
	}
	delay := 0
	if len(req.Args) == 1 {
		n, err := strconv.Atoi(req.Args[0])
		if err != nil || n < 0 {
			return dispatch.ErrUsage
		}
		delay = n
	}

	emoji := s.app.Settings.Emoji
	if delay != 0 {
		if err := req.Reply(ctx, fmt.Sprintf("%s Restarting in %d seconds.", emoji.OK, delay)); err != nil {
			return err
		}
		select {
		case <-s.after(time.Duration(delay) * time.Second):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := req.Send(ctx, s.app.BotLogChannel(), emoji.Warning+" Restarting!"); err != nil {
		s.app.Logger.Warn("restart announcement failed", "error", err)
	}

	requester := req.Message.Author.Name
	s.app.Logger.Info("restarting at the request of "+requester, "user_id", req.Message.Author.ID)
	s.app.Lifecycle.RequestShutdown("restart requested by " + requester)
	return nil
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
