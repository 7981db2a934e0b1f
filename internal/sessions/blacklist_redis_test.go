package sessions

import (
	"context"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestBlacklistAccessTokenLifetime(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	t.Cleanup(m.Close)

	SetBlacklistClient(redis.NewClient(&redis.Options{Addr: m.Addr()}))
	defer SetBlacklistClient(nil)

	ctx := context.Background()
	require.NoError(t, BlacklistAccessToken(ctx, "access-token-1", 2*time.Second))

	blocked, err := IsAccessTokenBlacklisted(ctx, "access-token-1")
	require.NoError(t, err)
	require.True(t, blocked)

	// a different token is unaffected
	blocked, err = IsAccessTokenBlacklisted(ctx, "access-token-2")
	require.NoError(t, err)
	require.False(t, blocked)

	// the entry lapses with the token's own expiry
	m.FastForward(3 * time.Second)
	blocked, err = IsAccessTokenBlacklisted(ctx, "access-token-1")
	require.NoError(t, err)
	require.False(t, blocked)
}

func TestBlacklistWithoutClientIsNoop(t *testing.T) {
	SetBlacklistClient(nil)
	ctx := context.Background()

	require.NoError(t, BlacklistAccessToken(ctx, "whatever", time.Second))
	blocked, err := IsAccessTokenBlacklisted(ctx, "whatever")
	require.NoError(t, err)
	require.False(t, blocked)
}
