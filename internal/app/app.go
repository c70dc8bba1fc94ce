// Package app wires configuration, token stores, token managers and the
// authorization server together and runs the selected execution mode.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"github.com/svsticky/knaak/internal/authserver"
	"github.com/svsticky/knaak/internal/exact"
	"github.com/svsticky/knaak/internal/pretix"
	"github.com/svsticky/knaak/internal/tokenmanager"
)

// ExecutionMode selects what a process invocation does. It is fixed at
// startup and immutable for the process lifetime.
type ExecutionMode int

const (
	// ModeAuthOnly (re)establishes valid tokens through the privileged
	// callback listener and exits without running business operations.
	ModeAuthOnly ExecutionMode = iota
	// ModeNormal runs business operations with stored tokens and never
	// attempts a privileged bind.
	ModeNormal
)

func (m ExecutionMode) String() string {
	switch m {
	case ModeAuthOnly:
		return "auth-only"
	case ModeNormal:
		return "normal"
	default:
		return fmt.Sprintf("unknown(%d)", int(m))
	}
}

// App orchestrates the treasurer automation for one invocation.
type App struct {
	cfg  *Config
	mode ExecutionMode

	exact  *tokenmanager.Manager
	pretix *tokenmanager.Manager
}

// New creates an App for the given mode. Only in ModeAuthOnly are the token
// managers given an interactive authorizer; a normal-mode App is
// structurally unable to bind the privileged listener.
func New(cfg *Config, mode ExecutionMode) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	exactManager, err := newManager(cfg, mode, "exact", cfg.Exact, exact.Endpoint(cfg.Exact.BaseURL))
	if err != nil {
		return nil, err
	}
	pretixManager, err := newManager(cfg, mode, "pretix", cfg.Pretix, pretix.Endpoint(cfg.Pretix.BaseURL))
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:    cfg,
		mode:   mode,
		exact:  exactManager,
		pretix: pretixManager,
	}, nil
}

// newManager assembles the token store, OAuth2 client and (in auth-only
// mode) the authorization server for one provider.
func newManager(cfg *Config, mode ExecutionMode, name string, provider ProviderConfig, endpoint oauth2.Endpoint) (*tokenmanager.Manager, error) {
	store, err := cfg.Auth.NewTokenStore(name)
	if err != nil {
		return nil, fmt.Errorf("creating %s token store: %w", name, err)
	}

	oauthConfig := oauth2.Config{
		ClientID:     provider.ClientID,
		ClientSecret: provider.ClientSecret,
		Endpoint:     endpoint,
		RedirectURL:  cfg.Auth.RedirectURL(),
		Scopes:       provider.Scopes,
	}

	var opts []tokenmanager.Option
	if mode == ModeAuthOnly {
		server, err := authserver.New(authserver.Config{
			Provider:        name,
			OAuth:           oauthConfig,
			Store:           store,
			CertFile:        cfg.Auth.CertFile,
			KeyFile:         cfg.Auth.KeyFile,
			ListenAddress:   cfg.Auth.ListenAddress,
			CallbackTimeout: cfg.Auth.CallbackTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("creating %s authorization server: %w", name, err)
		}
		opts = append(opts, tokenmanager.WithAuthorizer(server))
	}

	manager, err := tokenmanager.New(name, store, oauthConfig, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating %s token manager: %w", name, err)
	}
	return manager, nil
}

// Run executes the selected mode and returns when it completes.
func (a *App) Run(ctx context.Context) error {
	slog.InfoContext(ctx, "starting", "mode", a.mode.String())

	switch a.mode {
	case ModeAuthOnly:
		return a.runAuthOnly(ctx)
	case ModeNormal:
		return a.runNormal(ctx)
	default:
		return fmt.Errorf("unknown execution mode: %s", a.mode)
	}
}

// runAuthOnly (re)establishes a valid token for every provider and exits.
// Providers authorize sequentially: there is only one callback listener
// port, and only one authorization attempt may run at a time.
func (a *App) runAuthOnly(ctx context.Context) error {
	slog.InfoContext(ctx, "checking authorizations")

	for _, manager := range []struct {
		name string
		mgr  *tokenmanager.Manager
	}{
		{"exact", a.exact},
		{"pretix", a.pretix},
	} {
		if _, err := manager.mgr.AccessToken(ctx); err != nil {
			return fmt.Errorf("authorizing %s: %w", manager.name, err)
		}
		slog.InfoContext(ctx, "authorization present", "provider", manager.name)
	}

	slog.InfoContext(ctx, "all authorizations are present")
	return nil
}

// runNormal runs the unprivileged business operations. Token acquisition
// failures fail fast with an instruction to re-run the auth command; no
// privileged listener is ever bound here.
func (a *App) runNormal(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		client := exact.NewClient(a.cfg.Exact.BaseURL, a.exact.TokenSource(gCtx))
		division, err := client.AccountingDivision(gCtx)
		if err != nil {
			return fmt.Errorf("exact: %w", err)
		}
		slog.InfoContext(gCtx, "connected to accounting system", "division", division)
		return nil
	})

	g.Go(func() error {
		client := pretix.NewClient(a.cfg.Pretix.BaseURL, a.pretix.TokenSource(gCtx))
		organizers, err := client.Organizers(gCtx)
		if err != nil {
			return fmt.Errorf("pretix: listing organizers: %w", err)
		}
		for _, organizer := range organizers {
			events, err := client.Events(gCtx, organizer.Slug)
			if err != nil {
				return fmt.Errorf("pretix: listing events of %s: %w", organizer.Slug, err)
			}
			live := 0
			for _, event := range events {
				if event.Live {
					live++
				}
			}
			slog.InfoContext(gCtx, "ticketing organizer reachable", "organizer", organizer.Slug, "events", len(events), "live", live)
		}
		return nil
	})

	return g.Wait()
}
