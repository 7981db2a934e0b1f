package sessions

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const blacklistKeyPrefix = "blacklist:access:"

// The blacklist runs through a package-level client so the auth middleware
// can consult it without threading a handle through every handler.
var blacklistClient *redis.Client

// SetBlacklistClient wires the Redis client used for the access-token
// blacklist. Passing nil disables blacklisting; logout then only revokes the
// refresh session and access tokens run out their natural expiry.
func SetBlacklistClient(c *redis.Client) {
	blacklistClient = c
}

// BlacklistAccessToken records a revoked access token until ttl passes,
// which callers set to the token's remaining lifetime. Without a client this
// is a no-op.
func BlacklistAccessToken(ctx context.Context, token string, ttl time.Duration) error {
	if blacklistClient == nil {
		return nil
	}
	return blacklistClient.Set(ctx, blacklistKeyPrefix+token, "1", ttl).Err()
}

// IsAccessTokenBlacklisted reports whether the token was revoked. Without a
// client every token passes.
func IsAccessTokenBlacklisted(ctx context.Context, token string) (bool, error) {
	if blacklistClient == nil {
		return false, nil
	}
	n, err := blacklistClient.Exists(ctx, blacklistKeyPrefix+token).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
