package tokenstore

import (
	"testing"
	"time"
)

func validRecord() *Record {
	return &Record{
		AccessToken:  "access-abc",
		RefreshToken: "refresh-def",
		ExpiresAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Scope:        "read write",
	}
}

func TestRecordRoundTrip(t *testing.T) {
	original := validRecord()

	data, err := original.Marshal()
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	parsed, err := UnmarshalRecord(data)
	if err != nil {
		t.Fatalf("UnmarshalRecord failed: %v", err)
	}

	if parsed.AccessToken != original.AccessToken {
		t.Errorf("AccessToken = %q, want %q", parsed.AccessToken, original.AccessToken)
	}
	if parsed.RefreshToken != original.RefreshToken {
		t.Errorf("RefreshToken = %q, want %q", parsed.RefreshToken, original.RefreshToken)
	}
	if !parsed.ExpiresAt.Equal(original.ExpiresAt) {
		t.Errorf("ExpiresAt = %v, want %v", parsed.ExpiresAt, original.ExpiresAt)
	}
	if parsed.Scope != original.Scope {
		t.Errorf("Scope = %q, want %q", parsed.Scope, original.Scope)
	}
}

func TestUnmarshalRecordRejectsIncomplete(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{
			name: "not json",
			data: "definitely not json",
		},
		{
			name: "missing access token",
			data: `{"refresh_token":"r","expires_at":"2026-03-01T12:00:00Z","scope":"read"}`,
		},
		{
			name: "missing refresh token",
			data: `{"access_token":"a","expires_at":"2026-03-01T12:00:00Z","scope":"read"}`,
		},
		{
			name: "missing expiry",
			data: `{"access_token":"a","refresh_token":"r","scope":"read"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := UnmarshalRecord([]byte(tt.data)); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestExpiresWithin(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	margin := 30 * time.Second

	tests := []struct {
		name      string
		expiresAt time.Time
		want      bool
	}{
		{
			name:      "well in the future",
			expiresAt: now.Add(time.Hour),
			want:      false,
		},
		{
			name:      "just outside the margin",
			expiresAt: now.Add(margin + time.Second),
			want:      false,
		},
		{
			name:      "exactly at the margin boundary",
			expiresAt: now.Add(margin),
			want:      true,
		},
		{
			name:      "inside the margin",
			expiresAt: now.Add(margin - time.Second),
			want:      true,
		},
		{
			name:      "already expired",
			expiresAt: now.Add(-time.Hour),
			want:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := validRecord()
			record.ExpiresAt = tt.expiresAt
			if got := record.ExpiresWithin(now, margin); got != tt.want {
				t.Errorf("ExpiresWithin(%v, %v) = %v, want %v", now, margin, got, tt.want)
			}
		})
	}
}
