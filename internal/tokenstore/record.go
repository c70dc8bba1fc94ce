package tokenstore

import (
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

// Record is the durable form of an authorized token pair. It is either fully
// present or absent; no field is ever persisted on its own.
type Record struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	Scope        string    `json:"scope"`
}

// FromToken builds a Record from an oauth2 token as returned by the code or
// refresh exchange.
func FromToken(token *oauth2.Token, scope string) *Record {
	return &Record{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
		Scope:        scope,
	}
}

// Token converts the record back into an oauth2 token.
func (r *Record) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		Expiry:       r.ExpiresAt,
	}
}

// ExpiresWithin reports whether the access token expires within margin of
// now. A record expiring exactly at the margin boundary counts as expired.
func (r *Record) ExpiresWithin(now time.Time, margin time.Duration) bool {
	return !r.ExpiresAt.After(now.Add(margin))
}

// Validate checks that all fields required for a usable record are present.
func (r *Record) Validate() error {
	if r.AccessToken == "" {
		return fmt.Errorf("record has no access token")
	}
	if r.RefreshToken == "" {
		return fmt.Errorf("record has no refresh token")
	}
	if r.ExpiresAt.IsZero() {
		return fmt.Errorf("record has no expiry")
	}
	return nil
}

// Marshal serializes the record for storage.
func (r *Record) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

// UnmarshalRecord parses a stored record and validates it.
func UnmarshalRecord(data []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parsing token record: %w", err)
	}
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("invalid token record: %w", err)
	}
	return &r, nil
}
