package authserver

import (
	"crypto/rand"
	"encoding/base64"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// sessionState tracks one authorization attempt through its lifecycle:
// awaiting → exchanging → {succeeded | failed | timedOut}. Terminal states
// never transition again.
type sessionState int

const (
	stateAwaitingCallback sessionState = iota
	stateExchanging
	stateSucceeded
	stateFailed
	stateTimedOut
)

// outcome is the terminal result of a session, delivered exactly once.
type outcome struct {
	token *oauth2.Token
	err   error
}

// session holds the ephemeral state of a single authorization attempt. It
// exists only in memory for the duration of the attempt.
type session struct {
	id            uuid.UUID
	expectedState string
	verifier      string

	mu    sync.Mutex
	state sessionState

	// Buffered so the callback handler never blocks on delivery.
	done chan outcome
}

func newSession() (*session, error) {
	stateToken, err := randomToken()
	if err != nil {
		return nil, err
	}

	return &session{
		id:            uuid.New(),
		expectedState: stateToken,
		verifier:      oauth2.GenerateVerifier(),
		state:         stateAwaitingCallback,
		done:          make(chan outcome, 1),
	}, nil
}

// claim transitions the session from awaiting to exchanging. Only the first
// well-formed callback wins; all others are rejected.
func (s *session) claim() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateAwaitingCallback {
		return false
	}
	s.state = stateExchanging
	return true
}

// reject fails a session that is still awaiting its callback. A session
// already claimed by a well-formed callback is left untouched: once a
// callback matching the expected state is being exchanged, no other request
// may decide the outcome.
func (s *session) reject(err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateAwaitingCallback {
		return false
	}
	s.state = stateFailed
	s.done <- outcome{err: err}
	return true
}

// fail moves an in-flight session to failed and delivers the error. Returns
// false if the session is already terminal.
func (s *session) fail(err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateAwaitingCallback && s.state != stateExchanging {
		return false
	}
	s.state = stateFailed
	s.done <- outcome{err: err}
	return true
}

// succeed moves the session to succeeded and delivers the token. Returns
// false if the session is already terminal.
func (s *session) succeed(token *oauth2.Token) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateExchanging {
		return false
	}
	s.state = stateSucceeded
	s.done <- outcome{token: token}
	return true
}

// timeout marks an awaiting session as timed out, so a late callback finds a
// terminal session and is rejected. A callback whose exchange is already in
// flight is allowed to finish.
func (s *session) timeout() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateAwaitingCallback {
		return false
	}
	s.state = stateTimedOut
	return true
}

// terminal reports whether the session has reached a terminal state.
func (s *session) terminal() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state == stateSucceeded || s.state == stateFailed || s.state == stateTimedOut
}

// randomToken generates a cryptographically random URL-safe token for the
// OAuth2 state parameter.
func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
