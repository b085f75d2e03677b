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

// Factory wraps a venue's V3 factory contract.
type Factory struct {
	ec   caller
	addr common.Address
	fabi abi.ABI
}

func NewFactory(ec caller, addr common.Address) (*Factory, error) {
	fabi, err := abi.JSON(strings.NewReader(factoryABI))
	if err != nil {
		return nil, fmt.Errorf("parse factory abi: %w", err)
	}
	return &Factory{ec: ec, addr: addr, fabi: fabi}, nil
}

// PoolFor resolves (tokenA, tokenB, fee) to a pool address. Zero address
// means the venue has no pool for the combination.
func (f *Factory) PoolFor(ctx context.Context, tokenA, tokenB common.Address, fee uint32) (common.Address, error) {
	a, b := sortTokens(tokenA, tokenB)

	input, err := f.fabi.Pack("getPool", a, b, big.NewInt(int64(fee)))
	if err != nil {
		return common.Address{}, fmt.Errorf("pack getPool: %w", err)
	}
	res, err := f.ec.CallContract(ctx, ethereum.CallMsg{To: &f.addr, Data: input}, nil)
	if err != nil {
		return common.Address{}, fmt.Errorf("call getPool: %w", err)
	}
	outs, err := f.fabi.Methods["getPool"].Outputs.Unpack(res)
	if err != nil || len(outs) == 0 {
		if err == nil {
			err = fmt.Errorf("empty getPool output")
		}
		return common.Address{}, fmt.Errorf("decode getPool: %w", err)
	}
	return outs[0].(common.Address), nil
}

// The factory expects tokenA < tokenB.
func sortTokens(a, b common.Address) (common.Address, common.Address) {
	if strings.ToLower(b.Hex()) < strings.ToLower(a.Hex()) {
		return b, a
	}
	return a, b
}
