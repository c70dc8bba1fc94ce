package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/svsticky/knaak/internal/app"
	"github.com/svsticky/knaak/internal/authserver"
	"github.com/svsticky/knaak/internal/observability"
	"github.com/svsticky/knaak/internal/tokenmanager"
)

// Exit codes, one per failure class, so wrapper scripts can tell the
// failure modes apart.
const (
	exitBindFailure    = 2
	exitAuthTimeout    = 3
	exitAuthFailed     = 4
	exitRefreshFailure = 5
	exitNotAuthorized  = 6
)

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string) error {
	cmd := &cli.Command{
		Name:  "knaak",
		Usage: "Sticky's treasurer automation",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error)",
				Value: slog.LevelInfo.String(),
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text|json)",
			},
		},
		Commands: []*cli.Command{
			authCommand(),
			runCommand(),
		},
	}

	return cmd.Run(ctx, args)
}

func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "perform OAuth2 authorizations and exit (binds the HTTPS callback port, may need elevated privileges)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "auth--listen-address",
				Usage: "callback listener bind address",
				Value: app.DefaultConfigAuthListenAddress,
			},
			&cli.StringFlag{
				Name:  "auth--hostname",
				Usage: "registered redirect hostname",
				Value: app.DefaultConfigAuthHostname,
			},
			&cli.DurationFlag{
				Name:  "auth--callback-timeout",
				Usage: "how long to wait for the browser callback",
				Value: app.DefaultConfigAuthCallbackTimeout,
			},
		},
		Action: modeAction(app.ModeAuthOnly),
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:   "run",
		Usage:  "run treasurer operations with stored tokens (no privileged bind)",
		Action: modeAction(app.ModeNormal),
	}
}

// modeAction builds the action for one execution mode. The mode is fixed
// here, before any work happens, and never changes afterwards.
func modeAction(mode app.ExecutionMode) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		cfg, err := loadConfig(cmd.String("config"), cmd, os.Environ)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		// Set up observability before creating the app
		err = observability.Instrument(cfg.LogLevel, string(cfg.LogFormat))
		if err != nil {
			return fmt.Errorf("failed to set up observability layer: %w", err)
		}

		application, err := app.New(cfg, mode)
		if err != nil {
			return fmt.Errorf("failed to create app: %w", err)
		}

		if err := application.Run(ctx); err != nil {
			slog.ErrorContext(ctx, "run failed", "mode", mode.String(), "error", err)
			return cli.Exit(err.Error(), exitCodeFor(err))
		}

		slog.InfoContext(ctx, "done", "mode", mode.String())
		return nil
	}
}

// exitCodeFor maps the error taxonomy onto distinct process exit codes.
func exitCodeFor(err error) int {
	var (
		bindErr     *authserver.BindError
		callbackErr *authserver.CallbackError
		exchangeErr *authserver.ExchangeError
		refreshErr  *tokenmanager.RefreshError
	)

	switch {
	case errors.As(err, &bindErr):
		return exitBindFailure
	case errors.Is(err, authserver.ErrCallbackTimeout):
		return exitAuthTimeout
	case errors.As(err, &callbackErr), errors.As(err, &exchangeErr):
		return exitAuthFailed
	case errors.Is(err, tokenmanager.ErrNotAuthorized), errors.Is(err, tokenmanager.ErrReauthorizationRequired):
		return exitNotAuthorized
	case errors.As(err, &refreshErr):
		return exitRefreshFailure
	default:
		return 1
	}
}
