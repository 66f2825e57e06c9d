package session

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/meshchat-protocol/meshchat/internal/models"
)

type fakeStore struct {
	sessions map[string]*models.SessionRecord
	err      error
}

func (f *fakeStore) GetSession(_ context.Context, token string) (*models.SessionRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.sessions[token], nil
}

func TestValidate(t *testing.T) {
	store := &fakeStore{sessions: map[string]*models.SessionRecord{
		"good-token": {UserID: "alice", Username: "Alice"},
		"no-user":    {},
	}}
	v := NewValidator(store)

	tests := []struct {
		name    string
		token   string
		wantID  string
		wantErr error
	}{
		{"valid token", "good-token", "alice", nil},
		{"empty token", "", "", ErrInvalid},
		{"unknown token", "expired-or-missing", "", ErrInvalid},
		{"record without user", "no-user", "", ErrInvalid},
		{"oversized token", strings.Repeat("x", 600), "", ErrInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := v.Validate(context.Background(), tt.token)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() err = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && rec.UserID != tt.wantID {
				t.Errorf("UserID = %q, want %q", rec.UserID, tt.wantID)
			}
		})
	}
}

func TestValidateStoreFailure(t *testing.T) {
	storeErr := errors.New("redis down")
	v := NewValidator(&fakeStore{err: storeErr})

	_, err := v.Validate(context.Background(), "any")
	if !errors.Is(err, storeErr) {
		t.Fatalf("Validate() err = %v, want store error", err)
	}
	if errors.Is(err, ErrInvalid) {
		t.Error("store failure must not be reported as an invalid session")
	}
}
