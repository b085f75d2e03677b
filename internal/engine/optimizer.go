package engine

import (
	"context"
	"math"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/you/dexarb-bot/internal/dex/core"
	imetrics "github.com/you/dexarb-bot/internal/metrics"
	"github.com/you/dexarb-bot/internal/types"
)

// GasPricer supplies the live network gas price. *ethclient.Client
// satisfies it.
type GasPricer interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

const narrowCount = 3

// Optimizer searches candidate trade sizes for the most profitable round
// trip. A greedy best-of-N linear sweep over read-only quote simulations;
// candidate selection is biased by RiskState between cycles.
type Optimizer struct {
	fractions   []float64 // ascending
	maxFailed   int
	volBound    float64
	gasLimit    uint64
	smallGapPct float64

	risk *RiskState
	gas  GasPricer
	log  *zap.Logger
}

func NewOptimizer(fractions []float64, maxFailed int, volBound float64,
	gasLimit uint64, smallGapPct float64, risk *RiskState, gas GasPricer, log *zap.Logger) *Optimizer {
	return &Optimizer{
		fractions:   fractions,
		maxFailed:   maxFailed,
		volBound:    volBound,
		gasLimit:    gasLimit,
		smallGapPct: smallGapPct,
		risk:        risk,
		gas:         gas,
		log:         log,
	}
}

// candidateFractions picks the fraction subset for this search. After a run
// of failures only the smallest sizes are tried; under high volatility only
// the largest. The two adjustments never blend, and failures win.
func (o *Optimizer) candidateFractions() []float64 {
	n := len(o.fractions)
	if n <= narrowCount {
		return o.fractions
	}
	if o.risk.FailedTrades() > o.maxFailed {
		return o.fractions[:narrowCount]
	}
	if o.risk.Volatility() > o.volBound {
		return o.fractions[n-narrowCount:]
	}
	return o.fractions
}

// MinProfit is the dynamic floor a candidate must clear: the assumed gas
// spend, tripled when the price gap is small enough that it may close before
// inclusion, doubled otherwise.
func (o *Optimizer) MinProfit(gasNative, gapPct float64) float64 {
	if math.Abs(gapPct) < o.smallGapPct {
		return gasNative * 3
	}
	return gasNative * 2
}

// BestTrade sweeps the candidate fractions of the buy pool's quote-token
// reserve and returns the most profitable eligible round trip. Amounts are
// denominated in the base token; sizes in the quote token. The gas price is
// fetched once per call. When every fraction fails to quote, the returned
// candidate carries a profit of -Inf, below any real floor.
//
// Exactly one RiskState adjustment happens per call, from the outcome of the
// best candidate (or the absence of one).
func (o *Optimizer) BestTrade(ctx context.Context, buy, sell core.Venue,
	base, quote types.Token, fee uint32, reserve1 *big.Int) (*types.Opportunity, error) {

	gasPrice, err := o.gas.SuggestGasPrice(ctx)
	if err != nil {
		return nil, err
	}
	gasNative := decimal.NewFromBigInt(gasPrice, -18).
		Mul(decimal.NewFromInt(int64(o.gasLimit))).InexactFloat64()
	imetrics.GasPriceGwei.Set(decimal.NewFromBigInt(gasPrice, -9).InexactFloat64())

	var best *types.Opportunity
	for _, fraction := range o.candidateFractions() {
		amount1 := fractionOf(reserve1, fraction)
		if amount1.Sign() <= 0 {
			continue
		}

		// Buy leg: base token needed to pull amount1 of the quote token
		// out of the buy venue.
		in, err := buy.Quoter.AmountInForExactOut(ctx, base.Addr, quote.Addr, fee, amount1)
		if err != nil {
			imetrics.QuoteErrors.Inc()
			o.log.Debug("buy-leg quote failed",
				zap.String("venue", buy.Name),
				zap.Float64("fraction", fraction),
				zap.Error(err))
			continue
		}
		// Sell leg: base token returned for amount1 on the sell venue.
		out, err := sell.Quoter.AmountOutForExactIn(ctx, quote.Addr, base.Addr, fee, amount1)
		if err != nil {
			imetrics.QuoteErrors.Inc()
			o.log.Debug("sell-leg quote failed",
				zap.String("venue", sell.Name),
				zap.Float64("fraction", fraction),
				zap.Error(err))
			continue
		}

		amountIn := toHuman(in, base.Decimals)
		amountOut := toHuman(out, base.Decimals)
		if amountIn <= 0 {
			continue
		}
		slippage := (amountOut - amountIn) / amountIn * 100
		if slippage <= -1 {
			continue
		}
		profit := amountOut - amountIn - gasNative

		if best == nil || profit > best.NetProfit {
			best = &types.Opportunity{
				Fraction:    fraction,
				AmountInWei: in,
				AmountIn:    amountIn,
				AmountOut:   amountOut,
				SlippagePct: slippage,
				GasNative:   gasNative,
				NetProfit:   profit,
				Ts:          time.Now(),
			}
		}
	}

	if best == nil {
		o.risk.recordOutcome(false)
		return &types.Opportunity{
			GasNative: gasNative,
			NetProfit: math.Inf(-1),
			Ts:        time.Now(),
		}, nil
	}

	o.risk.recordOutcome(best.NetProfit > 0)
	return best, nil
}

func fractionOf(reserve *big.Int, fraction float64) *big.Int {
	return decimal.NewFromBigInt(reserve, 0).
		Mul(decimal.NewFromFloat(fraction)).BigInt()
}

func toHuman(wei *big.Int, decimals uint8) float64 {
	return decimal.NewFromBigInt(wei, -int32(decimals)).InexactFloat64()
}
