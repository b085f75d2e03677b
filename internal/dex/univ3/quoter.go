package univ3

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Quoter wraps a venue's QuoterV2 contract. All calls are eth_call
// simulations: no state change, no gas spent.
type Quoter struct {
	ec    caller
	addr  common.Address
	q2abi abi.ABI
}

func NewQuoter(ec caller, addr common.Address) (*Quoter, error) {
	q2abi, err := abi.JSON(strings.NewReader(quoterV2ABI))
	if err != nil {
		return nil, fmt.Errorf("parse quoter v2 abi: %w", err)
	}
	return &Quoter{ec: ec, addr: addr, q2abi: q2abi}, nil
}

func (q *Quoter) AmountInForExactOut(ctx context.Context, tokenIn, tokenOut common.Address, fee uint32, amountOut *big.Int) (*big.Int, error) {
	params := struct {
		TokenIn           common.Address
		TokenOut          common.Address
		Amount            *big.Int
		Fee               *big.Int
		SqrtPriceLimitX96 *big.Int
	}{
		TokenIn:           tokenIn,
		TokenOut:          tokenOut,
		Amount:            amountOut,
		Fee:               big.NewInt(int64(fee)),
		SqrtPriceLimitX96: big.NewInt(0),
	}
	return q.quote(ctx, "quoteExactOutputSingle", params)
}

func (q *Quoter) AmountOutForExactIn(ctx context.Context, tokenIn, tokenOut common.Address, fee uint32, amountIn *big.Int) (*big.Int, error) {
	params := struct {
		TokenIn           common.Address
		TokenOut          common.Address
		AmountIn          *big.Int
		Fee               *big.Int
		SqrtPriceLimitX96 *big.Int
	}{
		TokenIn:           tokenIn,
		TokenOut:          tokenOut,
		AmountIn:          amountIn,
		Fee:               big.NewInt(int64(fee)),
		SqrtPriceLimitX96: big.NewInt(0),
	}
	return q.quote(ctx, "quoteExactInputSingle", params)
}

func (q *Quoter) quote(ctx context.Context, method string, params interface{}) (*big.Int, error) {
	input, err := q.q2abi.Pack(method, params)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	res, err := q.ec.CallContract(ctx, ethereum.CallMsg{To: &q.addr, Data: input}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	outs, err := q.q2abi.Methods[method].Outputs.Unpack(res)
	if err != nil || len(outs) == 0 {
		if err == nil {
			err = fmt.Errorf("empty output")
		}
		return nil, fmt.Errorf("decode %s: %w", method, err)
	}
	amount, ok := outs[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected %s amount type %T", method, outs[0])
	}
	return amount, nil
}
