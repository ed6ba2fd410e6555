// roycemorebot is the Roycemore School chat bot.
//
// It loads config.json (or config-default.json when no override exists),
// opens its SQLite store, loads the compiled-in extensions and connects to
// the chat gateway over MQTT. SIGINT, SIGTERM and the restart command all
// lead to the same graceful shutdown; restarting the process is left to the
// process supervisor.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	_ "github.com/ninomaruszewski/roycemorebot/migrations"

	"github.com/ninomaruszewski/roycemorebot/internal/bot"
	"github.com/ninomaruszewski/roycemorebot/internal/extension"
	"github.com/ninomaruszewski/roycemorebot/internal/exts/status"
	"github.com/ninomaruszewski/roycemorebot/internal/infrastructure/config"
	"github.com/ninomaruszewski/roycemorebot/internal/infrastructure/logging"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// flags holds the command-line options.
type flags struct {
	configPath        string
	defaultConfigPath string
	envFile           string
	showVersion       bool
}

func parseFlags(args []string) (flags, error) {
	var f flags
	fset := pflag.NewFlagSet("roycemorebot", pflag.ContinueOnError)
	fset.StringVarP(&f.configPath, "config", "c", config.DefaultOverridePath, "override configuration file")
	fset.StringVar(&f.defaultConfigPath, "default-config", config.DefaultPath, "default configuration file")
	fset.StringVar(&f.envFile, "env-file", ".env", "environment file loaded before configuration (ignored if absent)")
	fset.BoolVarP(&f.showVersion, "version", "v", false, "print version and exit")

	if err := fset.Parse(args); err != nil {
		return flags{}, err
	}
	return f, nil
}

// run is the application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Cancelled on SIGINT/SIGTERM
//   - args: Command-line arguments without the program name
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, args []string) error {
	f, err := parseFlags(args)
	if err != nil {
		return err
	}
	if f.showVersion {
		fmt.Printf("roycemorebot %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}

	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting roycemorebot", "version", version, "commit", commit, "build_date", date)

	if err := loadEnvFile(f.envFile); err != nil {
		return err
	}

	doc, err := config.Load(f.configPath, f.defaultConfigPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	settings, err := config.NewSettings(doc)
	if err != nil {
		return fmt.Errorf("resolving config: %w", err)
	}

	log = logging.New(settings.Logging, settings.Debug, version)
	log.Info("configuration loaded", "path", doc.Source(), "debug", settings.Debug)

	catalog := extension.NewCatalog()
	app, err := bot.New(bot.Options{
		Settings: settings,
		Logger:   log,
		Catalog:  catalog,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("building bot: %w", err)
	}
	if err := status.Register(catalog, app); err != nil {
		return fmt.Errorf("registering extensions: %w", err)
	}

	return app.Run(ctx)
}

// loadEnvFile adds variables from path to the environment. Variables already
// set in the process win. A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading env file %s: %w", path, err)
	}
	return nil
}
