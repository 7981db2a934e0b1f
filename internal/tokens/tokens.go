package tokens

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/permitflow/go-services/internal/config"
	"github.com/permitflow/go-services/internal/models"
)

// GenerateAccessToken signs a short-lived HS256 access token for the user.
// The role claim drives the capability checks in the permit services; the
// auth middleware accepts these tokens alongside Keycloak-issued ones.
func GenerateAccessToken(cfg *config.Config, u *models.User, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   u.Sub,
		"name":  u.Name,
		"email": u.Email,
		"role":  u.Role,
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWT.Secret))
}
