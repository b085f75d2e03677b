package feed

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/you/dexarb-bot/internal/types"
)

func testPublisher(t *testing.T) (*Publisher, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return newTestPublisher(rdb, "arb:events"), rdb
}

func TestPublishOpportunity(t *testing.T) {
	p, rdb := testPublisher(t)
	ctx := context.Background()

	opp := &types.Opportunity{
		Pair:      "WETH/USDC",
		BuyVenue:  "alpha",
		SellVenue: "beta",
		GapPct:    6.38,
		Fraction:  0.1,
		NetProfit: 0.0016,
		Block:     123,
		Ts:        time.Now(),
	}
	require.NoError(t, p.PublishOpportunity(ctx, opp))

	entries, err := rdb.XRange(ctx, "arb:events", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)

	v := entries[0].Values
	assert.Equal(t, "opportunity", v["kind"])
	assert.Equal(t, "WETH/USDC", v["pair"])
	assert.Equal(t, "alpha", v["buy_venue"])
	assert.Equal(t, "beta", v["sell_venue"])
	assert.Equal(t, "123", v["block"])
}

func TestPublishSettlement(t *testing.T) {
	p, rdb := testPublisher(t)
	ctx := context.Background()

	s := &types.Settlement{
		TxHash:       "0xdead",
		Executed:     true,
		NativeBefore: big.NewInt(100), NativeAfter: big.NewInt(90),
		TokenBefore: big.NewInt(5), TokenAfter: big.NewInt(8),
		Ts: time.Now(),
	}
	require.NoError(t, p.PublishSettlement(ctx, "WETH/USDC", s))

	entries, err := rdb.XRange(ctx, "arb:events", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)

	v := entries[0].Values
	assert.Equal(t, "settlement", v["kind"])
	assert.Equal(t, "0xdead", v["tx"])
	assert.Equal(t, "true", v["executed"])
	assert.Equal(t, "10", v["native_delta"])
	assert.Equal(t, "3", v["token_delta"])
}
