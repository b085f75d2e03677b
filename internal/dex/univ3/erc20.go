package univ3

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/you/dexarb-bot/internal/types"
)

// TokenReader resolves token metadata and balances via eth_call.
type TokenReader struct {
	ec   caller
	eabi abi.ABI
}

func NewTokenReader(ec caller) (*TokenReader, error) {
	eabi, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	return &TokenReader{ec: ec, eabi: eabi}, nil
}

// Resolve reads symbol and decimals for the token at addr.
func (t *TokenReader) Resolve(ctx context.Context, addr common.Address) (types.Token, error) {
	dec, err := t.Decimals(ctx, addr)
	if err != nil {
		return types.Token{}, err
	}
	sym, err := t.Symbol(ctx, addr)
	if err != nil {
		return types.Token{}, err
	}
	return types.Token{Addr: addr, Symbol: sym, Decimals: dec}, nil
}

func (t *TokenReader) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	outs, err := t.call(ctx, token, "decimals")
	if err != nil {
		return 0, err
	}
	switch v := outs[0].(type) {
	case uint8:
		return v, nil
	case *big.Int:
		return uint8(v.Uint64()), nil
	default:
		return 0, fmt.Errorf("unexpected decimals type %T", v)
	}
}

func (t *TokenReader) Symbol(ctx context.Context, token common.Address) (string, error) {
	outs, err := t.call(ctx, token, "symbol")
	if err != nil {
		return "", err
	}
	sym, ok := outs[0].(string)
	if !ok {
		return "", fmt.Errorf("unexpected symbol type %T", outs[0])
	}
	return sym, nil
}

// TokenBalance returns holder's balance of token in wire units.
func (t *TokenReader) TokenBalance(ctx context.Context, token, holder common.Address) (*big.Int, error) {
	input, err := t.eabi.Pack("balanceOf", holder)
	if err != nil {
		return nil, fmt.Errorf("pack balanceOf: %w", err)
	}
	res, err := t.ec.CallContract(ctx, ethereum.CallMsg{To: &token, Data: input}, nil)
	if err != nil {
		return nil, fmt.Errorf("call balanceOf: %w", err)
	}
	outs, err := t.eabi.Methods["balanceOf"].Outputs.Unpack(res)
	if err != nil || len(outs) == 0 {
		if err == nil {
			err = fmt.Errorf("empty output")
		}
		return nil, fmt.Errorf("decode balanceOf: %w", err)
	}
	bal, ok := outs[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balanceOf type %T", outs[0])
	}
	return bal, nil
}

func (t *TokenReader) call(ctx context.Context, token common.Address, method string) ([]interface{}, error) {
	input, err := t.eabi.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	res, err := t.ec.CallContract(ctx, ethereum.CallMsg{To: &token, Data: input}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	outs, err := t.eabi.Methods[method].Outputs.Unpack(res)
	if err != nil || len(outs) == 0 {
		if err == nil {
			err = fmt.Errorf("empty output")
		}
		return nil, fmt.Errorf("decode %s: %w", method, err)
	}
	return outs, nil
}
