package univ3

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/you/dexarb-bot/internal/multicall"
)

// PoolQuery asks one venue's factory for one (pair, fee) pool.
type PoolQuery struct {
	Factory common.Address
	TokenA  common.Address
	TokenB  common.Address
	Fee     uint32
}

// ResolvePools resolves every query in a single multicall aggregate.
// Queries whose call fails or returns nothing yield a zero address, the
// same sentinel the factory uses for "no such market".
func ResolvePools(ctx context.Context, mc multicall.Caller, queries []PoolQuery) ([]common.Address, error) {
	fabi, err := abi.JSON(strings.NewReader(factoryABI))
	if err != nil {
		return nil, fmt.Errorf("parse factory abi: %w", err)
	}

	calls := make([]multicall.Call, 0, len(queries))
	for _, q := range queries {
		a, b := sortTokens(q.TokenA, q.TokenB)
		data, err := fabi.Pack("getPool", a, b, big.NewInt(int64(q.Fee)))
		if err != nil {
			return nil, fmt.Errorf("pack getPool: %w", err)
		}
		calls = append(calls, multicall.Call{Target: q.Factory, CallData: data})
	}

	results, err := mc.Aggregate(ctx, calls)
	if err != nil {
		return nil, fmt.Errorf("resolve pools: %w", err)
	}

	pools := make([]common.Address, len(queries))
	for i, r := range results {
		if !r.Success {
			continue
		}
		outs, err := fabi.Methods["getPool"].Outputs.Unpack(r.Data)
		if err != nil || len(outs) == 0 {
			continue
		}
		pools[i] = outs[0].(common.Address)
	}
	return pools, nil
}
