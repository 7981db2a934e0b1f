package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/permitflow/go-services/internal/sessions"
	"github.com/permitflow/go-services/pkg/logger"
)

// Token is a verified credential that can unmarshal its claims into v.
type Token interface {
	Claims(v interface{}) error
}

// Verifier checks a raw bearer token and returns it in verified form. The
// HMAC verifier, the Keycloak verifier and the integration verifier all
// implement it.
type Verifier interface {
	Verify(ctx context.Context, raw string) (Token, error)
}

// bearerToken extracts the credential from an Authorization header value.
func bearerToken(header string) (string, bool) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}

// AuthMiddleware rejects requests without a valid bearer token. Tokens
// revoked through logout are refused before signature verification, so a
// blacklisted token stays dead even while its expiry lies in the future.
func AuthMiddleware(ver Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing Authorization header"})
			return
		}
		raw, ok := bearerToken(header)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid Authorization header"})
			return
		}

		banned, err := sessions.IsAccessTokenBlacklisted(c.Request.Context(), raw)
		if err != nil {
			logger.Warnf("token blacklist check failed: %v", err)
		}
		if banned {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token revoked"})
			return
		}

		token, err := ver.Verify(c.Request.Context(), raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token", "details": err.Error()})
			return
		}

		var claims map[string]interface{}
		if err := token.Claims(&claims); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "failed to parse claims"})
			return
		}

		c.Set("claims", claims)
		c.Next()
	}
}
