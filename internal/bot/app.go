package bot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/ninomaruszewski/roycemorebot/internal/audit"
	"github.com/ninomaruszewski/roycemorebot/internal/dispatch"
	"github.com/ninomaruszewski/roycemorebot/internal/extension"
	"github.com/ninomaruszewski/roycemorebot/internal/infrastructure/config"
	"github.com/ninomaruszewski/roycemorebot/internal/infrastructure/database"
	"github.com/ninomaruszewski/roycemorebot/internal/infrastructure/logging"
	"github.com/ninomaruszewski/roycemorebot/internal/lifecycle"
	"github.com/ninomaruszewski/roycemorebot/internal/ops"
	"github.com/ninomaruszewski/roycemorebot/internal/platform"
	"github.com/ninomaruszewski/roycemorebot/internal/process"
)

// shutdownTimeout bounds the whole of Shutdown once Run stops waiting.
const shutdownTimeout = 30 * time.Second

// auditSource tags every audit row written by the bot.
const auditSource = "roycemorebot"

// CommandRunner runs external commands. *process.Runner satisfies it.
type CommandRunner interface {
	Run(ctx context.Context, c process.Command) (process.Result, error)
}

// Options configures New. Only Settings, Logger and Catalog are required.
type Options struct {
	Settings *config.Settings
	Logger   *logging.Logger
	Catalog  *extension.Catalog
	Version  string

	// Platform defaults to the MQTT gateway described by Settings.MQTT.
	Platform platform.Platform

	// Runner defaults to process.NewRunner().
	Runner CommandRunner

	// ExtensionsFS holds extension manifests. It defaults to
	// os.DirFS(Settings.Extensions.Dir) when that is set; otherwise every
	// catalog entry is loaded.
	ExtensionsFS fs.FS
}

// App is the bot context object.
type App struct {
	Settings   *config.Settings
	Logger     *logging.Logger
	Catalog    *extension.Catalog
	Registry   *extension.Registry
	Dispatcher *dispatch.Dispatcher
	Platform   platform.Platform
	Lifecycle  *lifecycle.Manager
	Recorder   *audit.Recorder
	Metrics    *Metrics

	// Ops is nil unless ops.enabled.
	Ops *ops.Server

	runner  CommandRunner
	version string
}

// New builds the App and everything it owns. Nothing is opened or
// connected until Run.
//
// Returns:
//   - *App: Ready to Run
//   - error: If a required option is missing or a component rejects its settings
func New(opts Options) (*App, error) {
	if opts.Settings == nil || opts.Logger == nil || opts.Catalog == nil {
		return nil, errors.New("bot: settings, logger and catalog are required")
	}
	s := opts.Settings
	log := opts.Logger

	a := &App{
		Settings: s,
		Logger:   log,
		Catalog:  opts.Catalog,
		Platform: opts.Platform,
		runner:   opts.Runner,
		version:  opts.Version,
	}

	if a.Platform == nil {
		activity := s.Bot.Activity
		if activity == "" {
			activity = s.Bot.Prefix + "help"
		}
		gw := platform.NewMQTTGateway(s.MQTT, activity)
		gw.SetLogger(log.With("component", "gateway"))
		a.Platform = gw
	}
	if a.runner == nil {
		r := process.NewRunner()
		r.SetLogger(log.With("component", "process"))
		a.runner = r
	}

	a.Recorder = audit.NewRecorder(nil, auditSource)
	a.Recorder.SetLogger(log)

	a.Metrics = NewMetrics(s.InfluxDB, log.With("component", "metrics"))

	a.Dispatcher = dispatch.New(s.Bot.Prefix, a.Platform, s.Emoji)
	a.Dispatcher.SetLogger(log.With("component", "dispatcher"))
	a.Dispatcher.SetAuditor(a.Recorder)
	a.Dispatcher.OnReady(a.announceReady)

	a.Registry = extension.NewRegistry(a.Catalog, a.Dispatcher)
	a.Registry.SetLogger(log.With("component", "extensions"))
	a.Registry.SetAuditor(a.Recorder)
	switch {
	case opts.ExtensionsFS != nil:
		a.Registry.SetSource(opts.ExtensionsFS, ".")
	case s.Extensions.Dir != "":
		a.Registry.SetSource(os.DirFS(s.Extensions.Dir), ".")
	}

	if err := a.Dispatcher.Register(CoreOwner, a.coreCommands()); err != nil {
		return nil, fmt.Errorf("registering core commands: %w", err)
	}

	lc, err := lifecycle.New(lifecycle.Options{
		OpenStorage: a.openStorage,
		Extensions:  a.Registry,
		Platform:    a.Platform,
		Dispatcher:  a.Dispatcher,
	})
	if err != nil {
		return nil, err
	}
	lc.SetLogger(log.With("component", "lifecycle"))
	lc.SetAuditor(a.Recorder)
	a.Lifecycle = lc

	if s.InfluxDB.Enabled {
		a.Dispatcher.SetMetrics(a.Metrics)
		lc.SetMetrics(a.Metrics)
		lc.AddService("influxdb", a.Metrics)
	}

	if s.Ops.Enabled {
		srv, err := ops.New(ops.Deps{
			Listen:     s.Ops.Listen,
			Version:    a.version,
			State:      lc,
			Extensions: a.Registry,
			Checks:     a.healthChecks(),
		})
		if err != nil {
			return nil, err
		}
		srv.SetLogger(log.With("component", "ops"))
		a.Ops = srv
		lc.AddService("ops", srv)
	}

	return a, nil
}

// Run starts the bot and blocks until ctx is cancelled or a shutdown is
// requested, then shuts down.
//
// Returns:
//   - error: Startup failure and shutdown failures, joined; nil on a clean exit
func (a *App) Run(ctx context.Context) error {
	startErr := a.Lifecycle.Startup(ctx)
	if startErr == nil {
		a.Logger.Info("initialisation complete, waiting for shutdown",
			"prefix", a.Settings.Bot.Prefix,
			"extensions", a.Registry.Loaded(),
		)
		select {
		case <-ctx.Done():
			a.Logger.Info("shutdown signal received")
		case <-a.Lifecycle.ShutdownRequested():
			a.Logger.Info("shutdown requested", "reason", a.Lifecycle.Reason())
		}
	}

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	stopErr := a.Lifecycle.Shutdown(stopCtx)

	if startErr != nil {
		return errors.Join(fmt.Errorf("starting up: %w", startErr), stopErr)
	}
	a.Logger.Info("roycemorebot stopped")
	return stopErr
}

// BotLogChannel returns the bot log channel ID in platform form.
func (a *App) BotLogChannel() string {
	return strconv.FormatInt(a.Settings.Channels.BotLog, 10)
}

// storage wraps the database so closing it also detaches the audit trail.
type storage struct {
	*database.DB
	detach func()
}

func (s *storage) Close() error {
	s.detach()
	return s.DB.Close()
}

// openStorage is the lifecycle.StorageOpener for the SQLite database.
func (a *App) openStorage(ctx context.Context) (lifecycle.Storage, error) {
	cfg := a.Settings.Database
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Path,
		WALMode:     cfg.WALMode,
		BusyTimeout: cfg.BusyTimeout,
	})
	if err != nil {
		return nil, err
	}
	a.Logger.Info("database connected", "path", cfg.Path)

	repo := audit.NewSQLiteRepository(db.DB)
	a.Recorder.SetRepository(repo)
	if a.Ops != nil {
		a.Ops.SetAuditLog(repo)
	}

	return &storage{DB: db, detach: func() {
		a.Recorder.SetRepository(nil)
		if a.Ops != nil {
			a.Ops.SetAuditLog(nil)
		}
	}}, nil
}

func (a *App) healthChecks() []ops.Check {
	return []ops.Check{
		{Name: "storage", Probe: func(ctx context.Context) error {
			s := a.Lifecycle.Storage()
			if s == nil {
				return errors.New("storage not open")
			}
			return s.HealthCheck(ctx)
		}},
		{Name: "platform", Probe: func(context.Context) error {
			if st := a.Lifecycle.State(); st != lifecycle.StateConnected {
				return fmt.Errorf("lifecycle state is %s", st)
			}
			return nil
		}},
	}
}

// announceReady posts the connected notice to the bot log channel.
func (a *App) announceReady(ctx context.Context, ev platform.ReadyEvent) {
	a.Logger.Info("logged in", "user", ev.User.String(), "id", ev.User.ID)

	content := a.Settings.Emoji.OK + " Connected!"
	if err := a.Platform.Send(ctx, a.BotLogChannel(), content); err != nil {
		a.Logger.Warn("ready announcement failed", "channel", a.BotLogChannel(), "error", err)
	}
}
