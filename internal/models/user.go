package models

import "time"

// Roles assignable to permit service users. The role decides which lifecycle
// actions an account may perform; see the authz package for the grant table.
const (
	RoleCoordinator = "coordinator"
	RoleVerifier    = "verifier"
	RoleBilling     = "billing"
	RoleAdmin       = "admin"
)

// User is an application account. Accounts are provisioned lazily: the first
// authenticated request upserts one from the token claims, keyed by the
// subject (Keycloak sub or "local:<username>" for directory logins).
type User struct {
	ID        string    `bson:"_id,omitempty" json:"id"`
	Sub       string    `bson:"sub" json:"sub"`
	Email     string    `bson:"email" json:"email"`
	Name      string    `bson:"name" json:"name"`
	Role      string    `bson:"role,omitempty" json:"role,omitempty"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}
