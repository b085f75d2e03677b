package core

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Factory resolves a token pair and fee tier to a pool address.
// A zero address means the venue has no market for that combination.
type Factory interface {
	PoolFor(ctx context.Context, tokenA, tokenB common.Address, fee uint32) (common.Address, error)
}

// Quoter simulates swaps without touching chain state.
type Quoter interface {
	// AmountInForExactOut returns how much tokenIn is needed to receive
	// amountOut of tokenOut.
	AmountInForExactOut(ctx context.Context, tokenIn, tokenOut common.Address, fee uint32, amountOut *big.Int) (*big.Int, error)
	// AmountOutForExactIn returns how much tokenOut is received for
	// amountIn of tokenIn.
	AmountOutForExactIn(ctx context.Context, tokenIn, tokenOut common.Address, fee uint32, amountIn *big.Int) (*big.Int, error)
}

// Venue is one exchange deployment: pool discovery, quoting, and the router
// address the settlement contract routes through. Immutable after construction.
type Venue struct {
	Name    string
	Factory Factory
	Quoter  Quoter
	Router  common.Address
}
