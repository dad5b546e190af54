package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/Ghiblit/internal/pkg/testutil"
)

type snapshot struct {
	CreditBalance int `json:"credit_balance"`
}

func TestProfileKey(t *testing.T) {
	assert.Equal(t, "user_profile_42", ProfileKey(42))
}

func TestProfileCacheRoundTripAndInvalidate(t *testing.T) {
	rdb := testutil.NewTestRedis(t)
	pc := NewProfileCache(rdb)
	ctx := context.Background()

	var got snapshot
	hit, err := pc.Get(ctx, 1, &got)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, pc.Set(ctx, 1, snapshot{CreditBalance: 5}))
	hit, err = pc.Get(ctx, 1, &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 5, got.CreditBalance)

	require.NoError(t, pc.Invalidate(ctx, 1))
	hit, err = pc.Get(ctx, 1, &got)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestJSONCacheDropsCorruptEntries(t *testing.T) {
	rdb := testutil.NewTestRedis(t)
	c := NewJSONCache(rdb)
	ctx := context.Background()

	require.NoError(t, rdb.Set(ctx, "broken", "{not json", 0).Err())

	var got snapshot
	hit, err := c.Load(ctx, "broken", &got)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, int64(0), rdb.Exists(ctx, "broken").Val())
}
