package transactionSigner

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/testutil"
)

func newTestSigner(t *testing.T, chainID uint64) (*PrivateKeySigner, *testutil.MockEthBackend) {
	t.Helper()
	key, _ := testutil.NewTestKey(t)
	backend := testutil.NewMockEthBackend(chainID, testutil.TestAddress(999))

	signer, err := NewPrivateKeySigner(hexutil.Encode(crypto.FromECDSA(key)), backend, testutil.NewTestLogger(t))
	require.NoError(t, err)
	return signer, backend
}

func TestPrivateKeySigner_SignAndSend(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	signer, backend := newTestSigner(t, 31337)
	to := common.HexToAddress("0xd001c8ADAbf28128845f18871CE1346EC078eE92")

	for i := 0; i < 2; i++ {
		receipt, err := signer.SignAndSendTransaction(ctx, types.NewTx(&types.DynamicFeeTx{
			To:    &to,
			Value: big.NewInt(0),
		}))
		require.NoError(t, err)
		assert.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)
	}

	sent := backend.SentTransactions()
	require.Len(t, sent, 2)
	assert.Equal(t, uint64(0), sent[0].Nonce())
	assert.Equal(t, uint64(1), sent[1].Nonce())
	assert.Equal(t, uint8(types.DynamicFeeTxType), sent[0].Type())

	sender, err := types.Sender(types.LatestSignerForChainID(big.NewInt(31337)), sent[0])
	require.NoError(t, err)
	assert.Equal(t, signer.GetFromAddress(), sender)
}

func TestPrivateKeySigner_EstimateFees(t *testing.T) {
	ctx := context.Background()
	to := common.HexToAddress("0xd001c8ADAbf28128845f18871CE1346EC078eE92")
	tx := types.NewTx(&types.DynamicFeeTx{To: &to})

	t.Run("Ethereum", func(t *testing.T) {
		signer, _ := newTestSigner(t, 1)
		fees, err := signer.EstimateFees(ctx, tx)
		require.NoError(t, err)
		// 3 * 1 gwei base fee + 0.002 gwei suggested tip
		assert.Equal(t, big.NewInt(3002000000), fees.GasFeeCap)
		assert.Equal(t, big.NewInt(2000000), fees.GasTipCap)
		assert.Equal(t, uint64(65000), fees.GasLimit)
	})

	t.Run("L2 with fallback tip", func(t *testing.T) {
		signer, backend := newTestSigner(t, 8453)
		backend.TipCapErr = errors.New("method not found")
		fees, err := signer.EstimateFees(ctx, tx)
		require.NoError(t, err)
		assert.Equal(t, big.NewInt(1000000), fees.GasTipCap)
		assert.Equal(t, big.NewInt(2001000000), fees.GasFeeCap)
	})

	t.Run("No base fee", func(t *testing.T) {
		signer, backend := newTestSigner(t, 1)
		backend.BaseFee = nil
		_, err := signer.EstimateFees(ctx, tx)
		require.Error(t, err)
	})
}

func TestPrivateKeySigner_Failures(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	to := common.HexToAddress("0xd001c8ADAbf28128845f18871CE1346EC078eE92")

	t.Run("Reverted", func(t *testing.T) {
		signer, backend := newTestSigner(t, 31337)
		backend.RevertAll = true
		_, err := signer.SignAndSendTransaction(ctx, types.NewTx(&types.DynamicFeeTx{To: &to}))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed with status 0")
	})

	t.Run("Send error", func(t *testing.T) {
		signer, backend := newTestSigner(t, 31337)
		backend.SendErr = errors.New("connection refused")
		_, err := signer.SignAndSendTransaction(ctx, types.NewTx(&types.DynamicFeeTx{To: &to}))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to send transaction")
		assert.False(t, errors.Is(err, ErrTransactionUnconfirmed))
	})

	t.Run("Receipt never arrives", func(t *testing.T) {
		signer, backend := newTestSigner(t, 31337)
		signer.SetReceiptTimeout(50 * time.Millisecond)
		backend.WithholdReceipts = true
		_, err := signer.SignAndSendTransaction(ctx, types.NewTx(&types.DynamicFeeTx{To: &to}))
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrTransactionUnconfirmed))
		assert.Len(t, backend.SentTransactions(), 1)
	})

	t.Run("Caller cancels after broadcast", func(t *testing.T) {
		signer, backend := newTestSigner(t, 31337)
		signer.SetReceiptTimeout(50 * time.Millisecond)
		backend.WithholdReceipts = true

		cancelled, cancelNow := context.WithCancel(ctx)
		cancelNow()
		_, err := signer.SignAndSendTransaction(cancelled, types.NewTx(&types.DynamicFeeTx{To: &to}))
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrTransactionUnconfirmed))
	})
}

func TestNewTransactionSigner(t *testing.T) {
	backend := testutil.NewMockEthBackend(31337, testutil.TestAddress(1))
	l := testutil.NewTestLogger(t)

	_, err := NewTransactionSigner(&SignerConfig{}, backend, l)
	require.Error(t, err)

	_, err = NewTransactionSigner(&SignerConfig{PrivateKey: "0x1234"}, backend, l)
	require.Error(t, err)

	s, err := NewTransactionSigner(&SignerConfig{
		PrivateKey: "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80",
	}, backend, l)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"), s.GetFromAddress())

	s, err = NewTransactionSigner(&SignerConfig{
		PrivateKey:     "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80",
		ReceiptTimeout: time.Second,
	}, backend, l)
	require.NoError(t, err)
	assert.Equal(t, time.Second, s.(*PrivateKeySigner).receiptTimeout)
}
