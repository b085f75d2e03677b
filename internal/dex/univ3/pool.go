package univ3

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/you/dexarb-bot/internal/types"
)

// q192 = 2^192, the denominator for sqrtPriceX96 squared.
var q192 = decimal.NewFromBigInt(new(big.Int).Lsh(big.NewInt(1), 192), 0)

// PoolReader reads live pool state for price samples.
type PoolReader struct {
	ec   caller
	pabi abi.ABI
}

func NewPoolReader(ec caller) (*PoolReader, error) {
	pabi, err := abi.JSON(strings.NewReader(poolABI))
	if err != nil {
		return nil, fmt.Errorf("parse pool abi: %w", err)
	}
	return &PoolReader{ec: ec, pabi: pabi}, nil
}

// SpotPrice derives the token1-per-token0 spot price for the given ordered
// pair from the pool's current slot0. An uninitialized pool yields zero,
// which callers treat as "no signal" rather than a failure.
func (p *PoolReader) SpotPrice(ctx context.Context, pool common.Address, token0, token1 types.Token) (decimal.Decimal, error) {
	poolToken0, err := p.readAddress(ctx, pool, "token0")
	if err != nil {
		return decimal.Zero, err
	}

	sqrtPriceX96, err := p.readSqrtPrice(ctx, pool)
	if err != nil {
		return decimal.Zero, err
	}
	if sqrtPriceX96.Sign() <= 0 {
		return decimal.Zero, nil
	}

	// (sqrtPriceX96)^2 / 2^192 is the raw amount1/amount0 ratio in the
	// pool's own token order.
	sq := decimal.NewFromBigInt(sqrtPriceX96, 0)
	raw := sq.Mul(sq).Div(q192)

	// Scale to human units and orient to the caller's (token0, token1).
	switch poolToken0 {
	case token0.Addr:
		return raw.Shift(int32(token0.Decimals) - int32(token1.Decimals)), nil
	case token1.Addr:
		inv := raw.Shift(int32(token1.Decimals) - int32(token0.Decimals))
		if inv.IsZero() {
			return decimal.Zero, nil
		}
		return decimal.NewFromInt(1).Div(inv), nil
	default:
		return decimal.Zero, fmt.Errorf("pool %s token0 %s matches neither pair token", pool.Hex(), poolToken0.Hex())
	}
}

func (p *PoolReader) readAddress(ctx context.Context, pool common.Address, method string) (common.Address, error) {
	input, err := p.pabi.Pack(method)
	if err != nil {
		return common.Address{}, fmt.Errorf("pack %s: %w", method, err)
	}
	res, err := p.ec.CallContract(ctx, ethereum.CallMsg{To: &pool, Data: input}, nil)
	if err != nil {
		return common.Address{}, fmt.Errorf("call %s: %w", method, err)
	}
	outs, err := p.pabi.Methods[method].Outputs.Unpack(res)
	if err != nil || len(outs) == 0 {
		if err == nil {
			err = fmt.Errorf("empty output")
		}
		return common.Address{}, fmt.Errorf("decode %s: %w", method, err)
	}
	return outs[0].(common.Address), nil
}

func (p *PoolReader) readSqrtPrice(ctx context.Context, pool common.Address) (*big.Int, error) {
	input, err := p.pabi.Pack("slot0")
	if err != nil {
		return nil, fmt.Errorf("pack slot0: %w", err)
	}
	res, err := p.ec.CallContract(ctx, ethereum.CallMsg{To: &pool, Data: input}, nil)
	if err != nil {
		return nil, fmt.Errorf("call slot0: %w", err)
	}
	if len(res) == 0 {
		// Pool exists but has never been initialized.
		return big.NewInt(0), nil
	}
	outs, err := p.pabi.Methods["slot0"].Outputs.Unpack(res)
	if err != nil || len(outs) == 0 {
		if err == nil {
			err = fmt.Errorf("empty output")
		}
		return nil, fmt.Errorf("decode slot0: %w", err)
	}
	sqrt, ok := outs[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected sqrtPriceX96 type %T", outs[0])
	}
	return sqrt, nil
}
