package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/svsticky/knaak/internal/app"
)

// writeConfigFile writes a complete TOML config into a temp dir and returns
// its path. Credentials for both providers are present so validation passes.
func writeConfigFile(t *testing.T, extra string) string {
	t.Helper()

	content := fmt.Sprintf(`
log_level = "debug"
log_format = "json"

[auth]
storage = "file"
dir = %q
hostname = "knaak.local"
callback_timeout = "2m"

[exact]
client_id = "exact-client"
client_secret = "exact-secret"

[pretix]
base_url = "https://pretix.example.com"
client_id = "pretix-client"
client_secret = "pretix-secret"
%s`, t.TempDir(), extra)

	path := filepath.Join(t.TempDir(), "knaak.toml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

func noEnviron() []string { return nil }

func TestLoadConfigFromFile(t *testing.T) {
	path := writeConfigFile(t, "")

	cfg, err := loadConfig(path, nil, noEnviron)
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}

	if cfg.LogFormat != app.LogFormatJSON {
		t.Errorf("LogFormat = %q, want json", cfg.LogFormat)
	}
	if cfg.Auth.Hostname != "knaak.local" {
		t.Errorf("Auth.Hostname = %q, want knaak.local", cfg.Auth.Hostname)
	}
	if cfg.Auth.CallbackTimeout != 2*time.Minute {
		t.Errorf("Auth.CallbackTimeout = %v, want 2m", cfg.Auth.CallbackTimeout)
	}
	if cfg.Exact.ClientID != "exact-client" {
		t.Errorf("Exact.ClientID = %q, want exact-client", cfg.Exact.ClientID)
	}

	// Defaults still fill what the file left out.
	if cfg.Auth.ListenAddress != app.DefaultConfigAuthListenAddress {
		t.Errorf("Auth.ListenAddress = %q, want default %q", cfg.Auth.ListenAddress, app.DefaultConfigAuthListenAddress)
	}
	if cfg.Exact.BaseURL != app.DefaultConfigExactBaseURL {
		t.Errorf("Exact.BaseURL = %q, want default %q", cfg.Exact.BaseURL, app.DefaultConfigExactBaseURL)
	}
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, "")

	environ := func() []string {
		return []string{
			"KNAAK_AUTH__HOSTNAME=pay.svsticky.nl",
			"KNAAK_EXACT__CLIENT_SECRET=from-env",
			"UNRELATED=ignored",
		}
	}

	cfg, err := loadConfig(path, nil, environ)
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}

	if cfg.Auth.Hostname != "pay.svsticky.nl" {
		t.Errorf("Auth.Hostname = %q, want the environment value", cfg.Auth.Hostname)
	}
	if cfg.Exact.ClientSecret != "from-env" {
		t.Errorf("Exact.ClientSecret = %q, want the environment value", cfg.Exact.ClientSecret)
	}
	// Untouched file values survive.
	if cfg.Pretix.ClientID != "pretix-client" {
		t.Errorf("Pretix.ClientID = %q, want the file value", cfg.Pretix.ClientID)
	}
}

func TestLoadConfigFlagsOverrideEnv(t *testing.T) {
	path := writeConfigFile(t, "")

	environ := func() []string {
		return []string{"KNAAK_AUTH__HOSTNAME=from-env.local"}
	}

	var cfg *app.Config
	cmd := &cli.Command{
		Name: "test",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "auth--hostname"},
			&cli.StringFlag{Name: "auth--listen-address"},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			var err error
			cfg, err = loadConfig(path, cmd, environ)
			return err
		},
	}

	err := cmd.Run(context.Background(), []string{"test", "--auth--hostname", "from-flag.local"})
	if err != nil {
		t.Fatalf("command run failed: %v", err)
	}

	if cfg.Auth.Hostname != "from-flag.local" {
		t.Errorf("Auth.Hostname = %q, want the flag value", cfg.Auth.Hostname)
	}
	// Unset flags must not override earlier sources.
	if cfg.Auth.ListenAddress != app.DefaultConfigAuthListenAddress {
		t.Errorf("Auth.ListenAddress = %q, unset flag overrode the default", cfg.Auth.ListenAddress)
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	path := writeConfigFile(t, "")

	environ := func() []string {
		return []string{"KNAAK_AUTH__STORAGE=vault"}
	}

	if _, err := loadConfig(path, nil, environ); err == nil {
		t.Error("expected validation error for unknown storage type")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := loadConfig(filepath.Join(t.TempDir(), "absent.toml"), nil, noEnviron); err == nil {
		t.Error("expected error for missing config file")
	}
}
