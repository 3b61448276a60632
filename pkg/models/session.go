package models

import "time"

// MinSessionIDLength is the shortest session id the system accepts. Lookups
// of shorter values are rejected before touching storage.
const MinSessionIDLength = 20

// SessionToken is an operator session. ID is the opaque bearer value clients
// present; SaltTokenBlob carries the serialized master-side token attached at
// login and replaced on renewal.
type SessionToken struct {
	ID            string
	UserID        string
	IssuedAt      Time
	SaltTokenBlob *string
}

// Expired reports whether the session has outlived the configured lifespan.
func (s *SessionToken) Expired(lifespan time.Duration, now time.Time) bool {
	return s.IssuedAt.Add(lifespan).Before(now)
}
