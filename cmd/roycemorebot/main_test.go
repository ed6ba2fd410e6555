package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ninomaruszewski/roycemorebot/internal/infrastructure/config"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestRun_Version(t *testing.T) {
	if err := run(testContext(t), []string{"--version"}); err != nil {
		t.Errorf("run(--version) error = %v", err)
	}
}

func TestRun_UnknownFlag(t *testing.T) {
	if err := run(testContext(t), []string{"--no-such-flag"}); err == nil {
		t.Error("run() should fail on an unknown flag")
	}
}

func TestRun_MissingConfig(t *testing.T) {
	dir := t.TempDir()
	err := run(testContext(t), []string{
		"--config", filepath.Join(dir, "config.json"),
		"--default-config", filepath.Join(dir, "config-default.json"),
		"--env-file", "",
	})
	if !errors.Is(err, config.ErrConfigLoad) {
		t.Errorf("run() error = %v, want ErrConfigLoad", err)
	}
}

func TestRun_MissingTokenVariable(t *testing.T) {
	t.Setenv("BOT_TOKEN", "")
	os.Unsetenv("BOT_TOKEN") //nolint:errcheck // restored by t.Setenv cleanup

	dir := t.TempDir()
	defaultPath := writeFile(t, dir, "config-default.json", `{
		"bot": {"prefix": "!", "bot_token": "!ENV"},
		"guild": {"guild_id": 1}
	}`)

	err := run(testContext(t), []string{
		"--config", filepath.Join(dir, "config.json"),
		"--default-config", defaultPath,
		"--env-file", filepath.Join(dir, ".env"),
	})
	if !errors.Is(err, config.ErrMissingEnvironmentVariable) {
		t.Errorf("run() error = %v, want ErrMissingEnvironmentVariable", err)
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, ".env", "ROYCEMOREBOT_TEST_NEW=from-file\nROYCEMOREBOT_TEST_SET=from-file\n")

	t.Setenv("ROYCEMOREBOT_TEST_SET", "from-process")
	t.Setenv("ROYCEMOREBOT_TEST_NEW", "")
	os.Unsetenv("ROYCEMOREBOT_TEST_NEW") //nolint:errcheck // restored by t.Setenv cleanup

	if err := loadEnvFile(path); err != nil {
		t.Fatalf("loadEnvFile() error = %v", err)
	}
	if got := os.Getenv("ROYCEMOREBOT_TEST_NEW"); got != "from-file" {
		t.Errorf("ROYCEMOREBOT_TEST_NEW = %q, want from-file", got)
	}
	if got := os.Getenv("ROYCEMOREBOT_TEST_SET"); got != "from-process" {
		t.Errorf("ROYCEMOREBOT_TEST_SET = %q, want the process value to win", got)
	}

	if err := loadEnvFile(filepath.Join(dir, "missing.env")); err != nil {
		t.Errorf("loadEnvFile(missing) error = %v, want nil", err)
	}
	if err := loadEnvFile(""); err != nil {
		t.Errorf("loadEnvFile(\"\") error = %v, want nil", err)
	}
}

func TestParseFlags_Defaults(t *testing.T) {
	f, err := parseFlags(nil)
	if err != nil {
		t.Fatalf("parseFlags() error = %v", err)
	}
	if f.configPath != config.DefaultOverridePath || f.defaultConfigPath != config.DefaultPath || f.envFile != ".env" {
		t.Errorf("parseFlags() = %+v", f)
	}
}
