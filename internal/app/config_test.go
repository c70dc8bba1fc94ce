package app

import (
	"strings"
	"testing"
	"time"
)

func validConfig(t *testing.T) *Config {
	t.Helper()
	return &Config{
		LogFormat: LogFormatText,
		Auth: AuthConfig{
			Storage:         TokenStorageTypeFile,
			Dir:             t.TempDir(),
			Hostname:        "knaak.local",
			ListenAddress:   ":443",
			CallbackTimeout: 5 * time.Minute,
		},
		Exact: ProviderConfig{
			BaseURL:      "https://start.exactonline.nl",
			ClientID:     "exact-client",
			ClientSecret: "exact-secret",
		},
		Pretix: ProviderConfig{
			BaseURL:      "https://pretix.example.com",
			ClientID:     "pretix-client",
			ClientSecret: "pretix-secret",
			Scopes:       []string{"read", "write"},
		},
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.Auth.Dir = t.TempDir() // keep the test off os.UserConfigDir

	if err := cfg.ApplyDefaults(); err != nil {
		t.Fatalf("ApplyDefaults failed: %v", err)
	}

	if cfg.Auth.Storage != TokenStorageTypeFile {
		t.Errorf("Auth.Storage = %q, want %q", cfg.Auth.Storage, TokenStorageTypeFile)
	}
	if cfg.Auth.Hostname != DefaultConfigAuthHostname {
		t.Errorf("Auth.Hostname = %q, want %q", cfg.Auth.Hostname, DefaultConfigAuthHostname)
	}
	if cfg.Auth.ListenAddress != DefaultConfigAuthListenAddress {
		t.Errorf("Auth.ListenAddress = %q, want %q", cfg.Auth.ListenAddress, DefaultConfigAuthListenAddress)
	}
	if cfg.Auth.CallbackTimeout != DefaultConfigAuthCallbackTimeout {
		t.Errorf("Auth.CallbackTimeout = %v, want %v", cfg.Auth.CallbackTimeout, DefaultConfigAuthCallbackTimeout)
	}
	if cfg.Exact.BaseURL != DefaultConfigExactBaseURL {
		t.Errorf("Exact.BaseURL = %q, want %q", cfg.Exact.BaseURL, DefaultConfigExactBaseURL)
	}
	if len(cfg.Pretix.Scopes) != 2 || cfg.Pretix.Scopes[0] != "read" || cfg.Pretix.Scopes[1] != "write" {
		t.Errorf("Pretix.Scopes = %v, want [read write]", cfg.Pretix.Scopes)
	}
	if cfg.LogFormat != LogFormatText && cfg.LogFormat != LogFormatJSON {
		t.Errorf("LogFormat = %q, want a detected format", cfg.LogFormat)
	}
}

func TestApplyDefaultsPreservesExplicitValues(t *testing.T) {
	cfg := validConfig(t)
	cfg.Auth.Hostname = "pay.svsticky.nl"
	cfg.Auth.CallbackTimeout = time.Minute

	if err := cfg.ApplyDefaults(); err != nil {
		t.Fatalf("ApplyDefaults failed: %v", err)
	}

	if cfg.Auth.Hostname != "pay.svsticky.nl" {
		t.Errorf("Auth.Hostname = %q, explicit value was overwritten", cfg.Auth.Hostname)
	}
	if cfg.Auth.CallbackTimeout != time.Minute {
		t.Errorf("Auth.CallbackTimeout = %v, explicit value was overwritten", cfg.Auth.CallbackTimeout)
	}
}

func TestRedirectURL(t *testing.T) {
	auth := AuthConfig{Hostname: "knaak.local"}
	if got, want := auth.RedirectURL(), "https://knaak.local/callback"; got != want {
		t.Errorf("RedirectURL() = %q, want %q", got, want)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "unknown storage type",
			mutate:  func(c *Config) { c.Auth.Storage = "vault" },
			wantErr: true,
		},
		{
			name:    "invalid hostname",
			mutate:  func(c *Config) { c.Auth.Hostname = "not a hostname" },
			wantErr: true,
		},
		{
			name:    "missing exact client id",
			mutate:  func(c *Config) { c.Exact.ClientID = "" },
			wantErr: true,
		},
		{
			name:    "missing pretix client secret",
			mutate:  func(c *Config) { c.Pretix.ClientSecret = "" },
			wantErr: true,
		},
		{
			name:    "malformed pretix base url",
			mutate:  func(c *Config) { c.Pretix.BaseURL = "not-a-url" },
			wantErr: true,
		},
		{
			name:    "file storage without dir",
			mutate:  func(c *Config) { c.Auth.Dir = "" },
			wantErr: true,
		},
		{
			name: "keyring storage without user",
			mutate: func(c *Config) {
				c.Auth.Storage = TokenStorageTypeKeyring
				c.Auth.KeyringUser = ""
			},
			wantErr: true,
		},
		{
			name:    "unknown log format",
			mutate:  func(c *Config) { c.LogFormat = "xml" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected validation error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestNewTokenStorePerProvider(t *testing.T) {
	auth := AuthConfig{
		Storage: TokenStorageTypeFile,
		Dir:     t.TempDir(),
	}

	exact, err := auth.NewTokenStore("exact")
	if err != nil {
		t.Fatalf("NewTokenStore(exact) failed: %v", err)
	}
	pretix, err := auth.NewTokenStore("pretix")
	if err != nil {
		t.Fatalf("NewTokenStore(pretix) failed: %v", err)
	}
	if exact == nil || pretix == nil {
		t.Fatal("expected non-nil stores")
	}
}

func TestNewTokenStoreRejectsUnknownStorage(t *testing.T) {
	auth := AuthConfig{Storage: "vault"}

	_, err := auth.NewTokenStore("exact")
	if err == nil || !strings.Contains(err.Error(), "unsupported storage type") {
		t.Errorf("error = %v, want unsupported storage type", err)
	}
}
