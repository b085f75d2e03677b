package execution

import (
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"testing"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/you/dexarb-bot/internal/config"
	"github.com/you/dexarb-bot/internal/types"
)

type fakeRPC struct {
	sent          []*ethtypes.Transaction
	native        []*big.Int
	baseFee       *big.Int
	tip           *big.Int
	headerErr     error
	receiptStatus uint64
	notFoundFirst int
}

func (f *fakeRPC) ChainID(context.Context) (*big.Int, error) { return big.NewInt(31337), nil }

func (f *fakeRPC) PendingNonceAt(context.Context, common.Address) (uint64, error) { return 7, nil }

func (f *fakeRPC) SuggestGasTipCap(context.Context) (*big.Int, error) { return f.tip, nil }

func (f *fakeRPC) HeaderByNumber(context.Context, *big.Int) (*ethtypes.Header, error) {
	if f.headerErr != nil {
		return nil, f.headerErr
	}
	return &ethtypes.Header{BaseFee: f.baseFee}, nil
}

func (f *fakeRPC) SendTransaction(_ context.Context, tx *ethtypes.Transaction) error {
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeRPC) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	v := f.native[0]
	f.native = f.native[1:]
	return v, nil
}

func (f *fakeRPC) TransactionReceipt(_ context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	if f.notFoundFirst > 0 {
		f.notFoundFirst--
		return nil, ethereum.NotFound
	}
	return &ethtypes.Receipt{Status: f.receiptStatus, TxHash: hash}, nil
}

type fakeTokens struct {
	balances []*big.Int
}

func (f *fakeTokens) TokenBalance(context.Context, common.Address, common.Address) (*big.Int, error) {
	v := f.balances[0]
	f.balances = f.balances[1:]
	return v, nil
}

func liveConfig(t *testing.T) *config.Config {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	cfg := &config.Config{Deployed: true}
	cfg.Chain.WalletPK = hex.EncodeToString(crypto.FromECDSA(key))
	cfg.Chain.GasLimit = 400000
	cfg.Arbitrage.Contract = "0x00000000000000000000000000000000000000c7"
	return cfg
}

func tradeTokens() (types.Token, types.Token) {
	return types.Token{Addr: common.HexToAddress("0x01"), Symbol: "WETH", Decimals: 18},
		types.Token{Addr: common.HexToAddress("0x02"), Symbol: "USDC", Decimals: 6}
}

func TestExecuteDryRunSkipsChainEntirely(t *testing.T) {
	cfg := &config.Config{Deployed: false}
	cfg.Chain.GasLimit = 400000

	// nil collaborators prove the dry run makes no RPC calls at all.
	ex, err := New(cfg, nil, nil, zap.NewNop())
	require.NoError(t, err)

	base, quote := tradeTokens()
	s, err := ex.Execute(context.Background(),
		common.HexToAddress("0xaa"), common.HexToAddress("0xbb"),
		base, quote, 500, big.NewInt(1000))
	require.NoError(t, err)

	assert.False(t, s.Executed)
	assert.Empty(t, s.TxHash)
	assert.Zero(t, s.NativeDelta().Sign())
	assert.Zero(t, s.TokenDelta().Sign())
}

func TestExecuteSubmitsAndReportsDeltas(t *testing.T) {
	rpc := &fakeRPC{
		native:        []*big.Int{big.NewInt(100), big.NewInt(90)},
		baseFee:       big.NewInt(10_000_000_000),
		tip:           big.NewInt(2_000_000_000),
		receiptStatus: ethtypes.ReceiptStatusSuccessful,
	}
	tokens := &fakeTokens{balances: []*big.Int{big.NewInt(5), big.NewInt(8)}}

	ex, err := New(liveConfig(t), rpc, tokens, zap.NewNop())
	require.NoError(t, err)

	base, quote := tradeTokens()
	buyRouter := common.HexToAddress("0xaa")
	sellRouter := common.HexToAddress("0xbb")

	s, err := ex.Execute(context.Background(), buyRouter, sellRouter, base, quote, 500, big.NewInt(123456))
	require.NoError(t, err)
	require.Len(t, rpc.sent, 1)
	tx := rpc.sent[0]

	assert.Equal(t, ex.contract, *tx.To())
	assert.Equal(t, uint64(400000), tx.Gas())
	assert.Equal(t, uint64(7), tx.Nonce())
	assert.Equal(t, ex.sabi.Methods["executeTrade"].ID, tx.Data()[:4])
	// Fee cap is 2x base fee plus the tip.
	assert.Equal(t, big.NewInt(22_000_000_000), tx.GasFeeCap())

	args, err := ex.sabi.Methods["executeTrade"].Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)
	assert.Equal(t, [2]common.Address{buyRouter, sellRouter}, args[0])
	assert.Equal(t, [2]common.Address{base.Addr, quote.Addr}, args[1])

	assert.True(t, s.Executed)
	assert.Equal(t, tx.Hash().Hex(), s.TxHash)
	assert.Equal(t, int64(10), s.NativeDelta().Int64())
	assert.Equal(t, int64(3), s.TokenDelta().Int64())
}

func TestNewAcceptsPrefixedPrivateKey(t *testing.T) {
	cfg := liveConfig(t)
	cfg.Chain.WalletPK = "0x" + cfg.Chain.WalletPK

	_, err := New(cfg, nil, nil, zap.NewNop())
	assert.NoError(t, err)
}

func TestSignTxHeaderFailures(t *testing.T) {
	base, quote := tradeTokens()
	buy := common.HexToAddress("0xaa")
	sell := common.HexToAddress("0xbb")

	headerErr := errors.New("rpc: connection refused")
	rpc := &fakeRPC{
		native:    []*big.Int{big.NewInt(100)},
		tip:       big.NewInt(2_000_000_000),
		headerErr: headerErr,
	}
	tokens := &fakeTokens{balances: []*big.Int{big.NewInt(5)}}
	ex, err := New(liveConfig(t), rpc, tokens, zap.NewNop())
	require.NoError(t, err)

	_, err = ex.Execute(context.Background(), buy, sell, base, quote, 500, big.NewInt(1))
	require.ErrorIs(t, err, headerErr, "the RPC failure must stay unwrappable")
	assert.ErrorContains(t, err, "get header")

	// A header without a base fee is a distinct failure, not an RPC error.
	rpc = &fakeRPC{
		native: []*big.Int{big.NewInt(100)},
		tip:    big.NewInt(2_000_000_000),
	}
	tokens = &fakeTokens{balances: []*big.Int{big.NewInt(5)}}
	ex, err = New(liveConfig(t), rpc, tokens, zap.NewNop())
	require.NoError(t, err)

	_, err = ex.Execute(context.Background(), buy, sell, base, quote, 500, big.NewInt(1))
	assert.ErrorContains(t, err, "base fee")
}

func TestExecuteRevertedSettlementIsAnError(t *testing.T) {
	rpc := &fakeRPC{
		native:        []*big.Int{big.NewInt(100)},
		baseFee:       big.NewInt(10_000_000_000),
		tip:           big.NewInt(2_000_000_000),
		receiptStatus: ethtypes.ReceiptStatusFailed,
	}
	tokens := &fakeTokens{balances: []*big.Int{big.NewInt(5)}}

	ex, err := New(liveConfig(t), rpc, tokens, zap.NewNop())
	require.NoError(t, err)

	base, quote := tradeTokens()
	_, err = ex.Execute(context.Background(),
		common.HexToAddress("0xaa"), common.HexToAddress("0xbb"),
		base, quote, 500, big.NewInt(1))
	assert.ErrorContains(t, err, "reverted")
}

func TestWaitMinedPollsUntilInclusion(t *testing.T) {
	rpc := &fakeRPC{
		native:        []*big.Int{big.NewInt(100), big.NewInt(90)},
		baseFee:       big.NewInt(10_000_000_000),
		tip:           big.NewInt(2_000_000_000),
		receiptStatus: ethtypes.ReceiptStatusSuccessful,
		notFoundFirst: 2,
	}
	tokens := &fakeTokens{balances: []*big.Int{big.NewInt(5), big.NewInt(8)}}

	ex, err := New(liveConfig(t), rpc, tokens, zap.NewNop())
	require.NoError(t, err)

	base, quote := tradeTokens()
	s, err := ex.Execute(context.Background(),
		common.HexToAddress("0xaa"), common.HexToAddress("0xbb"),
		base, quote, 500, big.NewInt(1))
	require.NoError(t, err)
	assert.True(t, s.Executed)
}
