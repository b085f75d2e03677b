package feed

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/you/dexarb-bot/internal/config"
	"github.com/you/dexarb-bot/internal/types"
)

// Publisher mirrors engine decisions onto a redis stream so external
// dashboards and analyzers can consume them. Purely best-effort; the engine
// treats publish errors as log lines, never as cycle failures.
type Publisher struct {
	rdb    *redis.Client
	stream string
}

func NewPublisher(cfg *config.Config) *Publisher {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		DB:       cfg.Redis.DB,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
	})
	return &Publisher{rdb: rdb, stream: cfg.Redis.Stream}
}

// newTestPublisher wires an existing client; used by tests.
func newTestPublisher(rdb *redis.Client, stream string) *Publisher {
	return &Publisher{rdb: rdb, stream: stream}
}

func (p *Publisher) Close() error {
	return p.rdb.Close()
}

func (p *Publisher) PublishOpportunity(ctx context.Context, opp *types.Opportunity) error {
	return p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"kind":         "opportunity",
			"pair":         opp.Pair,
			"buy_venue":    opp.BuyVenue,
			"sell_venue":   opp.SellVenue,
			"gap_pct":      opp.GapPct,
			"fraction":     opp.Fraction,
			"amount_in":    opp.AmountIn,
			"amount_out":   opp.AmountOut,
			"slippage_pct": opp.SlippagePct,
			"gas_native":   opp.GasNative,
			"net_profit":   opp.NetProfit,
			"block":        strconv.FormatUint(opp.Block, 10),
			"ts_ms":        opp.Ts.UnixMilli(),
		},
	}).Err()
}

func (p *Publisher) PublishSettlement(ctx context.Context, pair string, s *types.Settlement) error {
	return p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"kind":         "settlement",
			"pair":         pair,
			"tx":           s.TxHash,
			"executed":     strconv.FormatBool(s.Executed),
			"native_delta": s.NativeDelta().String(),
			"token_delta":  s.TokenDelta().String(),
			"ts_ms":        s.Ts.UnixMilli(),
		},
	}).Err()
}
