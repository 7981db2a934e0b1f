// Package sessions stores refresh sessions and the access-token blacklist.
// Refresh tokens are opaque random values looked up in Redis or Mongo;
// access tokens stay stateless JWTs until logout puts them on the blacklist.
package sessions

import "time"

// Session is one refresh session. Role is captured at login so refresh can
// mint a new access token without a user-store lookup.
type Session struct {
	ID           string    `bson:"_id,omitempty" json:"id"`
	RefreshToken string    `bson:"refreshToken" json:"refreshToken"`
	Sub          string    `bson:"sub" json:"sub"`
	Role         string    `bson:"role,omitempty" json:"role,omitempty"`
	ExpiresAt    time.Time `bson:"expiresAt" json:"expiresAt"`
	CreatedAt    time.Time `bson:"createdAt" json:"createdAt"`
}

// Expired reports whether the session's lifetime has passed at the given
// instant.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
