package app

import (
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/term"

	"github.com/svsticky/knaak/internal/tokenstore"
)

// LogFormat represents the logging output format.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// TokenStorageType represents the storage backends supported for token records.
type TokenStorageType string

const (
	TokenStorageTypeFile    TokenStorageType = "file"
	TokenStorageTypeKeyring TokenStorageType = "keyring"
)

// Default configuration values
const (
	DefaultConfigAuthStorage         = TokenStorageTypeFile
	DefaultConfigAuthHostname        = "knaak.local"
	DefaultConfigAuthListenAddress   = ":443"
	DefaultConfigAuthCallbackTimeout = 5 * time.Minute
	DefaultConfigExactBaseURL        = "https://start.exactonline.nl"
)

// AuthConfig describes token storage and the authorization callback server.
type AuthConfig struct {
	// Storage selects where token records live.
	Storage TokenStorageType `json:"storage" validate:"required,oneof=file keyring"`

	// Storage-specific settings (mutually exclusive based on Storage type)
	Dir         string `json:"dir,omitempty"`          // For file storage: directory holding one record file per provider
	KeyringUser string `json:"keyring_user,omitempty"` // For keyring storage: user identifier

	// Hostname is the fixed local hostname the redirect URI is registered
	// under. The redirect URI becomes https://<hostname>/callback and must
	// match the provider registration exactly.
	Hostname string `json:"hostname" validate:"required,hostname_rfc1123"`

	// ListenAddress is the bind address of the callback listener. Port 443
	// requires privilege, hence the separate auth-only execution mode.
	ListenAddress string `json:"listen_address"`

	// CertFile and KeyFile hold the externally provisioned TLS material for
	// Hostname. Only the auth-only mode needs to read them.
	CertFile string `json:"cert_file,omitempty"`
	KeyFile  string `json:"key_file,omitempty"`

	// CallbackTimeout bounds how long an authorization attempt waits for the
	// browser redirect.
	CallbackTimeout time.Duration `json:"callback_timeout"`
}

// RedirectURL returns the exact redirect URI sent to the provider.
func (a *AuthConfig) RedirectURL() string {
	return "https://" + a.Hostname + "/callback"
}

// NewTokenStore creates the token store for one provider. Each provider gets
// its own record, shared between auth-only and normal runs.
func (a *AuthConfig) NewTokenStore(provider string) (tokenstore.TokenStore, error) {
	switch a.Storage {
	case TokenStorageTypeFile:
		return tokenstore.NewFileStore(filepath.Join(a.Dir, provider+".json"))
	case TokenStorageTypeKeyring:
		return tokenstore.NewKeyringStore("knaak-"+provider, a.KeyringUser)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", a.Storage)
	}
}

// ProviderConfig holds the OAuth2 client registration for one provider.
type ProviderConfig struct {
	BaseURL      string   `json:"base_url" validate:"required,url"`
	ClientID     string   `json:"client_id" validate:"required"`
	ClientSecret string   `json:"client_secret" validate:"required"`
	Scopes       []string `json:"scopes,omitempty"`
}

// Config holds the application's configuration.
type Config struct {
	// LogLevel for logging output (defaults to Info if unset).
	LogLevel  slog.Level     `json:"log_level"`
	LogFormat LogFormat      `json:"log_format" validate:"oneof=text json"`
	Auth      AuthConfig     `json:"auth"`
	Exact     ProviderConfig `json:"exact"`
	Pretix    ProviderConfig `json:"pretix"`
}

// Default creates a new Config with default values applied.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills unset config fields with sensible defaults.
func (c *Config) ApplyDefaults() error {
	if c.LogFormat == "" {
		// Structured output when logs are piped, readable output on a terminal.
		if term.IsTerminal(int(os.Stderr.Fd())) {
			c.LogFormat = LogFormatText
		} else {
			c.LogFormat = LogFormatJSON
		}
	}
	if c.Auth.Storage == "" {
		c.Auth.Storage = DefaultConfigAuthStorage
	}
	if c.Auth.Hostname == "" {
		c.Auth.Hostname = DefaultConfigAuthHostname
	}
	if c.Auth.ListenAddress == "" {
		c.Auth.ListenAddress = DefaultConfigAuthListenAddress
	}
	if c.Auth.CallbackTimeout == 0 {
		c.Auth.CallbackTimeout = DefaultConfigAuthCallbackTimeout
	}
	if c.Exact.BaseURL == "" {
		c.Exact.BaseURL = DefaultConfigExactBaseURL
	}
	if len(c.Pretix.Scopes) == 0 {
		c.Pretix.Scopes = []string{"read", "write"}
	}

	// Dynamic defaults based on storage type
	switch c.Auth.Storage {
	case TokenStorageTypeFile:
		if c.Auth.Dir == "" {
			configDir, err := os.UserConfigDir()
			if err != nil {
				return fmt.Errorf("auth.dir required (auto-detect failed: %w)", err)
			}
			c.Auth.Dir = filepath.Join(configDir, "knaak")
		}
	case TokenStorageTypeKeyring:
		if c.Auth.KeyringUser == "" {
			currentUser, err := user.Current()
			if err != nil {
				return fmt.Errorf("auth.keyring_user required (auto-detect failed: %w)", err)
			}
			c.Auth.KeyringUser = currentUser.Username
		}
	}

	return nil
}

// Validate validates the configuration using struct tags and enum values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	switch c.Auth.Storage {
	case TokenStorageTypeFile:
		if c.Auth.Dir == "" {
			return fmt.Errorf("auth.dir required for file storage")
		}
	case TokenStorageTypeKeyring:
		if c.Auth.KeyringUser == "" {
			return fmt.Errorf("auth.keyring_user required for keyring storage")
		}
	}

	return nil
}
