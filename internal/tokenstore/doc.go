// Package tokenstore provides persistent storage for OAuth2 token records.
//
// Two storage backends are supported:
//   - File: local filesystem storage with atomic writes and secure permissions
//   - Keyring: OS-native credential storage (macOS Keychain, Windows Credential Manager, etc.)
//
// The stored record is the single unit of truth shared between privileged
// authorization runs and unprivileged normal runs, so both backends replace
// the record as a whole: a reader observes either the previous record or the
// new one in full, never a partial update.
package tokenstore
