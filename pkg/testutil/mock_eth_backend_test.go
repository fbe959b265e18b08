package testutil

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockEthBackend_TransferAndBalance(t *testing.T) {
	ctx := context.Background()
	token := TestAddress(1000)
	backend := NewMockEthBackend(31337, token)

	key, from := NewTestKey(t)
	to := TestAddress(1)
	backend.SetBalance(from, big.NewInt(50))

	data, err := parsedMockTokenABI.Pack("transfer", to, big.NewInt(20))
	require.NoError(t, err)

	chainID, err := backend.ChainID(ctx)
	require.NoError(t, err)
	tx, err := types.SignNewTx(key, types.LatestSignerForChainID(chainID), &types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     0,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(2),
		Gas:       65000,
		To:        &token,
		Data:      data,
	})
	require.NoError(t, err)
	require.NoError(t, backend.SendTransaction(ctx, tx))

	receipt, err := backend.TransactionReceipt(ctx, tx.Hash())
	require.NoError(t, err)
	assert.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)

	assert.Equal(t, int64(30), backend.Balance(from).Int64())
	assert.Equal(t, int64(20), backend.Balance(to).Int64())

	call, err := parsedMockTokenABI.Pack("balanceOf", to)
	require.NoError(t, err)
	out, err := backend.CallContract(ctx, ethereum.CallMsg{To: &token, Data: call}, nil)
	require.NoError(t, err)
	values, err := parsedMockTokenABI.Unpack("balanceOf", out)
	require.NoError(t, err)
	assert.Equal(t, int64(20), values[0].(*big.Int).Int64())

	// Replaying the same nonce is rejected
	require.Error(t, backend.SendTransaction(ctx, tx))
}

func TestMockEthBackend_UnknownReceipt(t *testing.T) {
	backend := NewMockEthBackend(1, TestAddress(1))
	_, err := backend.TransactionReceipt(context.Background(), common.Hash{0x01})
	require.Error(t, err)
}

func TestBuildTestDistribution(t *testing.T) {
	d := BuildTestDistribution(t, 5)
	require.Len(t, d.Claims, 5)
	assert.Equal(t, uint64(100+101+102+103+104), d.TokenTotal.Uint64())
}
