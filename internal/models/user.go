package models

import "time"

// Tier names for quota enforcement.
const (
	TierFree    = "free"
	TierPremium = "premium"
)

// Profile is a user record as held by the durable store.
type Profile struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Premium   bool      `json:"premium"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Tier returns the quota tier for the profile.
func (p *Profile) Tier() string {
	if p != nil && p.Premium {
		return TierPremium
	}
	return TierFree
}

// SessionRecord is the identity-store entry the core reads during connection
// establishment. Expiry is enforced by the store's TTL; ExpiresAt is carried
// for observability only.
type SessionRecord struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expires_at"`
}
