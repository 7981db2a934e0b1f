package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/permitflow/go-services/internal/authz"
	"github.com/permitflow/go-services/internal/models"
	"github.com/permitflow/go-services/internal/users"
)

// Identity builds the acting identity from the claims AuthMiddleware stored
// on the request context. When no auth middleware is mounted (development
// mode) every caller acts as the local admin.
func Identity(c *gin.Context) authz.Identity {
	v, ok := c.Get("claims")
	if !ok {
		return authz.Identity{Sub: "dev", Name: "Development", Role: models.RoleAdmin}
	}
	claims, ok := v.(map[string]interface{})
	if !ok {
		return authz.Identity{}
	}
	id := authz.Identity{
		// covers both flat role claims and Keycloak realm_access lists
		Role: users.RoleFromClaims(claims),
	}
	if s, ok := claims["sub"].(string); ok {
		id.Sub = s
	}
	if s, ok := claims["name"].(string); ok {
		id.Name = s
	}
	return id
}
