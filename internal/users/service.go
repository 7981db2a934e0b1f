// Package users keeps the directory of people who have logged in. Records
// are mirrored from token claims on every login rather than managed by hand,
// so the directory never goes stale.
package users

import (
	"context"

	"github.com/permitflow/go-services/internal/models"
)

type Service struct {
	repo UserRepository
}

func NewService(r UserRepository) *Service {
	return &Service{repo: r}
}

// UpsertFromClaims mirrors the profile carried in a verified token into the
// user directory. Claims without a sub produce no record and no error; the
// caller decides whether that is a problem.
func (s *Service) UpsertFromClaims(ctx context.Context, claims map[string]interface{}) (*models.User, error) {
	sub := stringClaim(claims, "sub")
	if sub == "" {
		return nil, nil
	}
	return s.repo.UpsertBySub(ctx, &models.User{
		Sub:   sub,
		Email: stringClaim(claims, "email"),
		Name:  stringClaim(claims, "name"),
		Role:  RoleFromClaims(claims),
	})
}

func (s *Service) GetBySub(ctx context.Context, sub string) (*models.User, error) {
	return s.repo.GetBySub(ctx, sub)
}

func stringClaim(claims map[string]interface{}, key string) string {
	v, _ := claims[key].(string)
	return v
}

// RoleFromClaims reads a flat "role" claim first, then falls back to the
// Keycloak realm_access.roles list. Users with no recognized role get none;
// the authorizer grants nothing for an empty role.
func RoleFromClaims(claims map[string]interface{}) string {
	if r := stringClaim(claims, "role"); r != "" {
		return r
	}
	ra, ok := claims["realm_access"].(map[string]interface{})
	if !ok {
		return ""
	}
	roles, ok := ra["roles"].([]interface{})
	if !ok {
		return ""
	}
	for _, v := range roles {
		r, _ := v.(string)
		switch r {
		case models.RoleCoordinator, models.RoleVerifier, models.RoleBilling, models.RoleAdmin:
			return r
		}
	}
	return ""
}
