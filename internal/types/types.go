package types

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Token describes one side of a trading pair. Resolved once at startup
// (symbol and decimals are read on-chain) and read-only afterwards.
type Token struct {
	Addr     common.Address
	Symbol   string
	Decimals uint8
}

// Opportunity is the best trade candidate selected by the optimizer for one
// evaluation cycle, plus enough context for the feed and the executor.
type Opportunity struct {
	Pair      string
	BuyVenue  string
	SellVenue string
	GapPct    float64

	Fraction    float64  // fraction of buy-pool liquidity this candidate trades
	AmountInWei *big.Int // token0 needed on the buy leg, wire units
	AmountIn    float64  // token0 needed, human units
	AmountOut   float64  // token0 returned by the sell leg, human units
	SlippagePct float64
	GasNative   float64 // estimated gas cost, native currency
	NetProfit   float64 // AmountOut - AmountIn - GasNative

	Block uint64
	Ts    time.Time
}

// Settlement records wallet balances immediately before and after a trade
// submission. Reporting only; never consulted for control flow.
type Settlement struct {
	TxHash   string
	Executed bool // false in dry-run mode

	NativeBefore *big.Int
	NativeAfter  *big.Int
	TokenBefore  *big.Int
	TokenAfter   *big.Int

	Ts time.Time
}

// NativeDelta is native currency spent (before - after), usually gas.
func (s Settlement) NativeDelta() *big.Int {
	return new(big.Int).Sub(s.NativeBefore, s.NativeAfter)
}

// TokenDelta is base token gained (after - before).
func (s Settlement) TokenDelta() *big.Int {
	return new(big.Int).Sub(s.TokenAfter, s.TokenBefore)
}
