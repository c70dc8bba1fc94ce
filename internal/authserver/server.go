package authserver

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/httplog/v3"
	"golang.org/x/oauth2"

	"github.com/svsticky/knaak/internal/tokenstore"
)

// Default bounds for the callback wait and the token endpoint call.
const (
	DefaultCallbackTimeout = 5 * time.Minute
	DefaultExchangeTimeout = 30 * time.Second
)

// Config describes one provider's authorization flow.
type Config struct {
	// Provider is the human-readable provider name, used in logs and in the
	// completion page.
	Provider string

	// OAuth carries the provider endpoints, client credentials, scopes and
	// the exact redirect URL registered with the provider.
	OAuth oauth2.Config

	// Store receives the token record on a successful exchange.
	Store tokenstore.TokenStore

	// CertFile and KeyFile point to the externally provisioned TLS material
	// for the redirect hostname.
	CertFile string
	KeyFile  string

	// ListenAddress is the address of the redirect listener, e.g. ":443".
	ListenAddress string

	// CallbackTimeout bounds the wait for the browser redirect.
	CallbackTimeout time.Duration

	// ExchangeTimeout bounds the token endpoint HTTP call.
	ExchangeTimeout time.Duration

	// OpenURL presents the authorization URL to the operator once the
	// listener is bound. Defaults to logging the URL for manual opening.
	OpenURL func(authURL string)
}

// Server performs exactly one authorization-code exchange per Authorize call.
type Server struct {
	cfg Config
}

// New creates a Server for the given provider configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("missing token store")
	}
	if cfg.OAuth.RedirectURL == "" {
		return nil, fmt.Errorf("missing redirect URL")
	}
	if cfg.CallbackTimeout == 0 {
		cfg.CallbackTimeout = DefaultCallbackTimeout
	}
	if cfg.ExchangeTimeout == 0 {
		cfg.ExchangeTimeout = DefaultExchangeTimeout
	}

	return &Server{cfg: cfg}, nil
}

// Authorize runs a single interactive authorization: it binds the HTTPS
// listener, prints the authorization URL for the operator, waits for the
// callback, exchanges the code, and persists the resulting token record.
//
// The listener is shut down on every exit path. Bind failures are reported
// as *BindError before any browser interaction is suggested to the operator.
func (s *Server) Authorize(ctx context.Context) (*oauth2.Token, error) {
	sess, err := newSession()
	if err != nil {
		return nil, fmt.Errorf("creating authorization session: %w", err)
	}

	// TLS material and the privileged bind come first: if either fails there
	// is no point sending the operator to a browser.
	cert, err := tls.LoadX509KeyPair(s.cfg.CertFile, s.cfg.KeyFile)
	if err != nil {
		return nil, &BindError{
			Address: s.cfg.ListenAddress,
			Err:     fmt.Errorf("loading TLS key pair (cert %q, key %q): %w", s.cfg.CertFile, s.cfg.KeyFile, err),
		}
	}

	listener, err := net.Listen("tcp", s.cfg.ListenAddress)
	if err != nil {
		return nil, &BindError{Address: s.cfg.ListenAddress, Err: err}
	}
	tlsListener := tls.NewListener(listener, &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /callback", s.handleCallback(sess))
	mux.HandleFunc("GET /{$}", handleAlive)

	logger := slog.Default().With("provider", s.cfg.Provider, "session", sess.id)
	server := &http.Server{
		Handler: httplog.RequestLogger(logger, &httplog.Options{
			Level:         slog.LevelDebug,
			RecoverPanics: true,
		})(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  90 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	serveErrCh := make(chan error, 1)
	go func() {
		err := server.Serve(tlsListener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrCh <- err
		}
		close(serveErrCh)
	}()

	// Release the bound port on every exit path.
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			_ = server.Close()
		}
	}()

	authURL := s.cfg.OAuth.AuthCodeURL(sess.expectedState,
		oauth2.AccessTypeOffline,
		oauth2.S256ChallengeOption(sess.verifier),
	)
	if s.cfg.OpenURL != nil {
		s.cfg.OpenURL(authURL)
	} else {
		logger.Info("waiting for authorization, open this URL in a browser and approve access", "url", authURL)
	}

	timer := time.NewTimer(s.cfg.CallbackTimeout)
	defer timer.Stop()

	select {
	case out := <-sess.done:
		return out.token, out.err
	case <-timer.C:
		if !sess.timeout() {
			// A callback claimed the session just before the deadline; the
			// exchange is bounded, so let it finish.
			out := <-sess.done
			return out.token, out.err
		}
		logger.Warn("authorization timed out")
		return nil, ErrCallbackTimeout
	case <-ctx.Done():
		sess.fail(ctx.Err())
		return nil, ctx.Err()
	case err := <-serveErrCh:
		sess.fail(err)
		return nil, fmt.Errorf("callback listener failed: %w", err)
	}
}

// handleCallback validates the redirect, exchanges the authorization code
// and persists the token record. Only the first well-formed callback for the
// expected state is honored; anything after a terminal state is rejected.
func (s *Server) handleCallback(sess *session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		if sess.terminal() {
			http.Error(w, "This authorization attempt has already completed. Start a new one if needed.", http.StatusConflict)
			return
		}

		if errParam := query.Get("error"); errParam != "" {
			reason := errParam
			if desc := query.Get("error_description"); desc != "" {
				reason = fmt.Sprintf("%s (%s)", errParam, desc)
			}
			s.rejectCallback(w, sess, &CallbackError{Reason: "provider reported: " + reason})
			return
		}

		if query.Get("state") != sess.expectedState {
			// Possible CSRF or a stale link from an earlier attempt.
			s.rejectCallback(w, sess, &CallbackError{Reason: "state parameter does not match this authorization attempt"})
			return
		}

		code := query.Get("code")
		if code == "" {
			s.rejectCallback(w, sess, &CallbackError{Reason: "callback carries neither a code nor an error"})
			return
		}

		if !sess.claim() {
			http.Error(w, "This authorization attempt has already completed. Start a new one if needed.", http.StatusConflict)
			return
		}

		token, err := s.exchange(r.Context(), code, sess.verifier)
		if err != nil {
			exchangeErr := &ExchangeError{Err: err}
			sess.fail(exchangeErr)
			s.renderError(w, exchangeErr)
			return
		}

		record := tokenstore.FromToken(token, strings.Join(s.cfg.OAuth.Scopes, " "))
		if err := s.cfg.Store.Save(r.Context(), record); err != nil {
			saveErr := fmt.Errorf("persisting token record: %w", err)
			sess.fail(saveErr)
			s.renderError(w, saveErr)
			return
		}

		if !sess.succeed(token) {
			// Cancellation or a listener failure ended the session while the
			// exchange was in flight. The record is persisted regardless.
			http.Error(w, "This authorization attempt has already completed. Start a new one if needed.", http.StatusConflict)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, successPage, s.cfg.Provider)
	}
}

// rejectCallback fails an unclaimed session with the given error and shows
// an error page. A session that was already claimed by a well-formed
// callback, or that reached a terminal state, is left untouched; only the
// claiming callback's own exchange failure may fail a claimed session.
func (s *Server) rejectCallback(w http.ResponseWriter, sess *session, err error) {
	if !sess.reject(err) {
		http.Error(w, "This authorization attempt has already completed. Start a new one if needed.", http.StatusConflict)
		return
	}
	s.renderError(w, err)
}

// exchange trades the authorization code for a token pair. The token
// endpoint call carries the PKCE verifier and is bounded by ExchangeTimeout.
func (s *Server) exchange(ctx context.Context, code, verifier string) (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ExchangeTimeout)
	defer cancel()

	// oauth2 picks up a custom HTTP client from the context.
	ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Timeout: s.cfg.ExchangeTimeout})

	return s.cfg.OAuth.Exchange(ctx, code, oauth2.VerifierOption(verifier))
}

func (s *Server) renderError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusBadRequest)
	fmt.Fprintf(w, errorPage, s.cfg.Provider, err)
}

func handleAlive(w http.ResponseWriter, _ *http.Request) {
	fmt.Fprintln(w, "Yup, alive")
}

const successPage = `<!DOCTYPE html>
<html>
<head><title>Authorization complete</title></head>
<body>
<h1>Authorization with %s complete</h1>
<p>You can close this page and return to the terminal.</p>
</body>
</html>
`

const errorPage = `<!DOCTYPE html>
<html>
<head><title>Authorization failed</title></head>
<body>
<h1>Authorization with %s failed</h1>
<p>%v</p>
<p>You can close this page. Check the terminal for details.</p>
</body>
</html>
`
