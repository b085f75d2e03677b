package execution

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/you/dexarb-bot/internal/config"
	"github.com/you/dexarb-bot/internal/types"
)

// Minimal ABI for the settlement contract's trade entrypoint.
const settlementABI = `[
    {"inputs":[{"internalType":"address[2]","name":"routerPath","type":"address[2]"},{"internalType":"address[2]","name":"tokenPath","type":"address[2]"},{"internalType":"uint24","name":"fee","type":"uint24"},{"internalType":"uint256","name":"amountIn","type":"uint256"}],"name":"executeTrade","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

// rpcClient is the slice of *ethclient.Client the executor needs.
type rpcClient interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*ethtypes.Header, error)
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
}

type tokenBalancer interface {
	TokenBalance(ctx context.Context, token, holder common.Address) (*big.Int, error)
}

// Executor submits trades through the flash-loan settlement contract and
// reports observed balance deltas. With deployed=false it is a pure dry run:
// no RPC traffic, zero deltas.
type Executor struct {
	ec       rpcClient
	tokens   tokenBalancer
	log      *zap.Logger
	sabi     abi.ABI
	contract common.Address
	gasLimit uint64
	deployed bool
	pk       *ecdsa.PrivateKey
	sender   common.Address
}

func New(cfg *config.Config, ec rpcClient, tokens tokenBalancer, log *zap.Logger) (*Executor, error) {
	sabi, err := abi.JSON(strings.NewReader(settlementABI))
	if err != nil {
		return nil, fmt.Errorf("parse settlement abi: %w", err)
	}

	e := &Executor{
		ec:       ec,
		tokens:   tokens,
		log:      log,
		sabi:     sabi,
		contract: common.HexToAddress(cfg.Arbitrage.Contract),
		gasLimit: cfg.Chain.GasLimit,
		deployed: cfg.Deployed,
	}
	if cfg.Deployed {
		pk, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.Chain.WalletPK, "0x"))
		if err != nil {
			return nil, fmt.Errorf("bad private key: %w", err)
		}
		e.pk = pk
		e.sender = crypto.PubkeyToAddress(pk.PublicKey)
	}
	return e, nil
}

// Execute runs one settlement: capture balances, submit executeTrade, wait
// for first inclusion, capture balances again. Any failure past submission
// is fatal to the cycle; nothing is retried.
func (e *Executor) Execute(ctx context.Context, buyRouter, sellRouter common.Address,
	base, quote types.Token, fee uint32, amountIn *big.Int) (*types.Settlement, error) {

	if !e.deployed {
		e.log.Info("dry run, settlement call skipped",
			zap.String("buy_router", buyRouter.Hex()),
			zap.String("sell_router", sellRouter.Hex()),
			zap.String("amount_in", amountIn.String()))
		zero := big.NewInt(0)
		return &types.Settlement{
			Executed:     false,
			NativeBefore: zero, NativeAfter: zero,
			TokenBefore: zero, TokenAfter: zero,
			Ts: time.Now(),
		}, nil
	}

	nativeBefore, err := e.ec.BalanceAt(ctx, e.sender, nil)
	if err != nil {
		return nil, fmt.Errorf("native balance before: %w", err)
	}
	tokenBefore, err := e.tokens.TokenBalance(ctx, base.Addr, e.sender)
	if err != nil {
		return nil, fmt.Errorf("token balance before: %w", err)
	}

	input, err := e.sabi.Pack("executeTrade",
		[2]common.Address{buyRouter, sellRouter},
		[2]common.Address{base.Addr, quote.Addr},
		big.NewInt(int64(fee)),
		amountIn,
	)
	if err != nil {
		return nil, fmt.Errorf("pack executeTrade: %w", err)
	}

	signedTx, err := e.signTx(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("sign tx: %w", err)
	}
	if err := e.ec.SendTransaction(ctx, signedTx); err != nil {
		return nil, fmt.Errorf("send transaction: %w", err)
	}
	e.log.Info("settlement submitted", zap.String("tx", signedTx.Hash().Hex()))

	receipt, err := e.waitMined(ctx, signedTx.Hash())
	if err != nil {
		return nil, fmt.Errorf("await inclusion: %w", err)
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("settlement reverted in tx %s", signedTx.Hash().Hex())
	}

	nativeAfter, err := e.ec.BalanceAt(ctx, e.sender, nil)
	if err != nil {
		return nil, fmt.Errorf("native balance after: %w", err)
	}
	tokenAfter, err := e.tokens.TokenBalance(ctx, base.Addr, e.sender)
	if err != nil {
		return nil, fmt.Errorf("token balance after: %w", err)
	}

	return &types.Settlement{
		TxHash:       signedTx.Hash().Hex(),
		Executed:     true,
		NativeBefore: nativeBefore,
		NativeAfter:  nativeAfter,
		TokenBefore:  tokenBefore,
		TokenAfter:   tokenAfter,
		Ts:           time.Now(),
	}, nil
}

func (e *Executor) signTx(ctx context.Context, input []byte) (*ethtypes.Transaction, error) {
	chainID, err := e.ec.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("get chain id: %w", err)
	}
	nonce, err := e.ec.PendingNonceAt(ctx, e.sender)
	if err != nil {
		return nil, fmt.Errorf("get nonce: %w", err)
	}
	gasTipCap, err := e.ec.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas tip cap: %w", err)
	}
	header, err := e.ec.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("get header: %w", err)
	}
	if header.BaseFee == nil {
		return nil, fmt.Errorf("latest header carries no base fee")
	}
	gasFeeCap := new(big.Int).Add(
		new(big.Int).Mul(header.BaseFee, big.NewInt(2)),
		gasTipCap,
	)

	to := e.contract
	tx := ethtypes.NewTx(&ethtypes.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: gasTipCap,
		GasFeeCap: gasFeeCap,
		Gas:       e.gasLimit,
		To:        &to,
		Value:     big.NewInt(0),
		Data:      input,
	})
	return ethtypes.SignTx(tx, ethtypes.NewLondonSigner(chainID), e.pk)
}

// waitMined polls for the receipt until first inclusion. Zero extra
// confirmations; the cycle's deadline bounds the wait.
func (e *Executor) waitMined(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		receipt, err := e.ec.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
