package engine

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/you/dexarb-bot/internal/config"
	"github.com/you/dexarb-bot/internal/dex/core"
	imetrics "github.com/you/dexarb-bot/internal/metrics"
	"github.com/you/dexarb-bot/internal/types"
)

// SwapEventTopic matches the Swap event emitted by concentrated-liquidity
// pools. The payload is never decoded; an event only tells the engine that
// pool state moved and fresh reads are worth doing.
var SwapEventTopic = crypto.Keccak256Hash(
	[]byte("Swap(address,address,int256,int256,uint160,uint128,int24)"))

// PriceSource computes a spot price from a pool's current state.
type PriceSource interface {
	SpotPrice(ctx context.Context, pool common.Address, token0, token1 types.Token) (decimal.Decimal, error)
}

// BalanceSource reads an ERC-20 balance; the engine uses it for the buy
// pool's quote-token reserve.
type BalanceSource interface {
	TokenBalance(ctx context.Context, token, holder common.Address) (*big.Int, error)
}

// Executor submits the settlement-contract trade, or dry-runs it.
type Executor interface {
	Execute(ctx context.Context, buyRouter, sellRouter common.Address,
		base, quote types.Token, fee uint32, amountIn *big.Int) (*types.Settlement, error)
}

// Publisher mirrors decisions onto an external feed. Implementations must
// tolerate being handed a cancelled context near shutdown.
type Publisher interface {
	PublishOpportunity(ctx context.Context, opp *types.Opportunity) error
	PublishSettlement(ctx context.Context, pair string, s *types.Settlement) error
}

// Market is one watched (pair, venue-pair) combination, resolved to concrete
// pools at startup. Immutable.
type Market struct {
	Pair  string
	Base  types.Token // token0
	Quote types.Token // token1
	Fee   uint32

	VenueA core.Venue
	VenueB core.Venue
	PoolA  common.Address
	PoolB  common.Address
}

// Engine runs one evaluation cycle per admitted swap event: compare prices,
// resolve direction, optimize size, execute. All markets share one gate and
// one RiskState.
type Engine struct {
	gate Gate
	opt  *Optimizer

	prices   PriceSource
	balances BalanceSource
	exec     Executor
	feed     Publisher

	units        int32
	thresholdPct float64
	cycleTimeout time.Duration

	log *zap.Logger
}

func New(cfg *config.Config, opt *Optimizer, prices PriceSource,
	balances BalanceSource, exec Executor, feed Publisher, log *zap.Logger) *Engine {
	return &Engine{
		opt:          opt,
		prices:       prices,
		balances:     balances,
		exec:         exec,
		feed:         feed,
		units:        cfg.Pricing.Units,
		thresholdPct: cfg.Pricing.GapThresholdPct,
		cycleTimeout: cfg.CycleTimeout(),
		log:          log,
	}
}

// Handler returns the swap-event callback for one market. The gate decides
// whether the event starts a cycle or is dropped on the floor. The cycle runs
// off the reader goroutine so the subscription keeps draining while it is in
// flight; events landing in that window find the gate occupied and are
// dropped, never queued.
func (e *Engine) Handler(m Market) func(ethtypes.Log) {
	return func(lg ethtypes.Log) {
		if !e.gate.TryAdmit() {
			imetrics.EventsDropped.Inc()
			return
		}
		go func() {
			defer e.gate.Release()
			ctx, cancel := context.WithTimeout(context.Background(), e.cycleTimeout)
			defer cancel()
			e.evaluate(ctx, m, lg.BlockNumber)
		}()
	}
}

func (e *Engine) evaluate(ctx context.Context, m Market, block uint64) {
	timer := prometheus.NewTimer(imetrics.CycleDuration)
	defer timer.ObserveDuration()
	imetrics.Cycles.Inc()

	priceA, err := e.prices.SpotPrice(ctx, m.PoolA, m.Base, m.Quote)
	if err != nil {
		e.log.Warn("price read failed",
			zap.String("pair", m.Pair), zap.String("venue", m.VenueA.Name), zap.Error(err))
		return
	}
	priceB, err := e.prices.SpotPrice(ctx, m.PoolB, m.Base, m.Quote)
	if err != nil {
		e.log.Warn("price read failed",
			zap.String("pair", m.Pair), zap.String("venue", m.VenueB.Name), zap.Error(err))
		return
	}

	gap, ok := PriceGap(priceA, priceB, e.units)
	if !ok {
		e.log.Debug("no price signal", zap.String("pair", m.Pair))
		return
	}
	imetrics.PriceGapPct.Set(gap)
	e.log.Info("price comparison",
		zap.String("pair", m.Pair),
		zap.String(m.VenueA.Name, priceA.StringFixed(e.units)),
		zap.String(m.VenueB.Name, priceB.StringFixed(e.units)),
		zap.Float64("gap_pct", gap))

	dir := Resolve(gap, e.thresholdPct)
	if dir == DirectionNone {
		e.log.Debug("gap below threshold",
			zap.String("pair", m.Pair), zap.Float64("gap_pct", gap))
		return
	}

	buy, sell := m.VenueA, m.VenueB
	buyPool := m.PoolA
	if dir == DirectionBuyBSellA {
		buy, sell = m.VenueB, m.VenueA
		buyPool = m.PoolB
	}
	e.log.Info("direction resolved",
		zap.String("pair", m.Pair),
		zap.String("buy", buy.Name),
		zap.String("sell", sell.Name))

	reserve1, err := e.balances.TokenBalance(ctx, m.Quote.Addr, buyPool)
	if err != nil {
		e.log.Warn("reserve read failed",
			zap.String("pair", m.Pair), zap.String("venue", buy.Name), zap.Error(err))
		return
	}

	opp, err := e.opt.BestTrade(ctx, buy, sell, m.Base, m.Quote, m.Fee, reserve1)
	if err != nil {
		e.log.Warn("optimization failed", zap.String("pair", m.Pair), zap.Error(err))
		return
	}
	opp.Pair = m.Pair
	opp.BuyVenue = buy.Name
	opp.SellVenue = sell.Name
	opp.GapPct = gap
	opp.Block = block

	minProfit := e.opt.MinProfit(opp.GasNative, gap)
	if opp.NetProfit <= minProfit {
		e.log.Info("opportunity rejected",
			zap.String("pair", m.Pair),
			zap.Float64("net_profit", opp.NetProfit),
			zap.Float64("min_profit", minProfit))
		return
	}

	imetrics.Opportunities.Inc()
	e.log.Info("opportunity accepted",
		zap.String("pair", m.Pair),
		zap.String("buy", buy.Name),
		zap.String("sell", sell.Name),
		zap.Float64("fraction", opp.Fraction),
		zap.Float64("amount_in", opp.AmountIn),
		zap.Float64("amount_out", opp.AmountOut),
		zap.Float64("net_profit", opp.NetProfit))
	if e.feed != nil {
		if err := e.feed.PublishOpportunity(ctx, opp); err != nil {
			e.log.Warn("feed publish failed", zap.Error(err))
		}
	}

	settlement, err := e.exec.Execute(ctx, buy.Router, sell.Router,
		m.Base, m.Quote, m.Fee, opp.AmountInWei)
	if err != nil {
		e.log.Error("trade execution failed", zap.String("pair", m.Pair), zap.Error(err))
		return
	}
	if settlement.Executed {
		imetrics.TradesExecuted.Inc()
	}
	e.log.Info("settlement",
		zap.String("pair", m.Pair),
		zap.Bool("executed", settlement.Executed),
		zap.String("tx", settlement.TxHash),
		zap.String("native_delta", settlement.NativeDelta().String()),
		zap.String("token_delta", settlement.TokenDelta().String()))
	if e.feed != nil {
		if err := e.feed.PublishSettlement(ctx, m.Pair, settlement); err != nil {
			e.log.Warn("feed publish failed", zap.Error(err))
		}
	}
}
