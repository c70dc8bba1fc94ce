package tokenstore

import "context"

// TokenStore reads and writes token records to persistent storage.
//
// Load returns (nil, nil) when no record has ever been stored. A record that
// exists but cannot be parsed is treated the same way so that a corrupt store
// leads to re-authorization instead of a crash.
type TokenStore interface {
	// Load returns the stored record, or nil if none exists.
	Load(ctx context.Context) (*Record, error)

	// Save persists the record, replacing any previous one as a whole.
	Save(ctx context.Context, record *Record) error
}
