// Package session validates inbound connection tokens against the external
// identity/session store. Validation is read-only and happens once per
// connection establishment; mid-stream revocation is handled by store TTL
// expiry, not by the core.
package session

import (
	"context"
	"errors"

	"github.com/meshchat-protocol/meshchat/internal/models"
)

// ErrInvalid is returned for absent, malformed, expired, or unknown tokens.
var ErrInvalid = errors.New("session invalid or expired")

// maxTokenLen rejects obviously malformed tokens before hitting the store.
const maxTokenLen = 512

// Store is the narrow read surface the validator consumes. The identity
// provider owns issuance; TTL eviction is the store's job.
type Store interface {
	GetSession(ctx context.Context, token string) (*models.SessionRecord, error)
}

// Validator checks session tokens on the connection hot path.
type Validator struct {
	store Store
}

// NewValidator creates a validator backed by the given session store.
func NewValidator(store Store) *Validator {
	return &Validator{store: store}
}

// Validate resolves a token to its session record. It returns ErrInvalid for
// anything that should refuse the connection; other errors indicate the store
// itself failed.
func (v *Validator) Validate(ctx context.Context, token string) (*models.SessionRecord, error) {
	if token == "" || len(token) > maxTokenLen {
		return nil, ErrInvalid
	}

	rec, err := v.store.GetSession(ctx, token)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.UserID == "" {
		return nil, ErrInvalid
	}
	return rec, nil
}
