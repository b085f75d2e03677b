package multicall

import (
	"context"
	"math/big"
	"strings"
	"testing"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCaller struct {
	lastMsg ethereum.CallMsg
	reply   []byte
	err     error
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.lastMsg = msg
	return f.reply, f.err
}

func TestAggregatePackAndUnpack(t *testing.T) {
	mcAddr := common.HexToAddress("0xcA11bde05977b3631167028862bE2a173976CA11")
	fc := &fakeCaller{}
	client, err := New(fc, mcAddr)
	require.NoError(t, err)

	// Encode a reply for two calls using the same ABI the client parses.
	retABI := client.abi.Methods["aggregate"].Outputs
	reply, err := retABI.Pack(big.NewInt(123), [][]byte{
		common.HexToAddress("0x0000000000000000000000000000000000000001").Bytes(),
		{},
	})
	require.NoError(t, err)
	fc.reply = reply

	calls := []Call{
		{Target: common.HexToAddress("0x01"), CallData: []byte{0x01}},
		{Target: common.HexToAddress("0x02"), CallData: []byte{0x02}},
	}
	results, err := client.Aggregate(context.Background(), calls)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success, "empty return data means the call gave nothing back")
	assert.Equal(t, &mcAddr, fc.lastMsg.To)
	assert.NotEmpty(t, fc.lastMsg.Data)
}

func TestAggregateABIParses(t *testing.T) {
	_, err := abi.JSON(strings.NewReader("not json"))
	assert.Error(t, err)

	fc := &fakeCaller{}
	_, err = New(fc, common.Address{})
	assert.NoError(t, err)
}
