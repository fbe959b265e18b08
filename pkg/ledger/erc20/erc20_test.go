package erc20

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/ledger"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/testutil"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/transactionSigner"
)

func newTestTokenLedger(t *testing.T, holderBalance int64) (*TokenLedger, *testutil.MockEthBackend) {
	t.Helper()
	l := testutil.NewTestLogger(t)
	token := testutil.TestAddress(5000)
	backend := testutil.NewMockEthBackend(31337, token)

	key, holder := testutil.NewTestKey(t)
	backend.SetBalance(holder, big.NewInt(holderBalance))

	signer, err := transactionSigner.NewPrivateKeySigner(hexutil.Encode(crypto.FromECDSA(key)), backend, l)
	require.NoError(t, err)

	led, err := NewTokenLedger(token, backend, signer, l)
	require.NoError(t, err)
	return led, backend
}

func TestTokenLedger_BalanceOf(t *testing.T) {
	led, _ := newTestTokenLedger(t, 777)

	balance, err := led.BalanceOf(context.Background(), led.Holder())
	require.NoError(t, err)
	assert.Equal(t, uint64(777), balance.Uint64())

	balance, err = led.BalanceOf(context.Background(), testutil.TestAddress(1))
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
}

func TestTokenLedger_Transfer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	led, backend := newTestTokenLedger(t, 500)
	to := testutil.TestAddress(1)

	require.NoError(t, led.Transfer(ctx, to, uint256.NewInt(120)))

	assert.Equal(t, int64(380), backend.Balance(led.Holder()).Int64())
	assert.Equal(t, int64(120), backend.Balance(to).Int64())
	require.Len(t, backend.SentTransactions(), 1)
}

func TestTokenLedger_InsufficientFunds(t *testing.T) {
	led, backend := newTestTokenLedger(t, 50)

	err := led.Transfer(context.Background(), testutil.TestAddress(1), uint256.NewInt(51))
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	// The pre-check stops before anything is sent
	assert.Empty(t, backend.SentTransactions())
	assert.Equal(t, int64(50), backend.Balance(led.Holder()).Int64())
}

func TestTokenLedger_RevertedTransfer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	led, backend := newTestTokenLedger(t, 50)
	backend.RevertAll = true

	err := led.Transfer(ctx, testutil.TestAddress(1), uint256.NewInt(10))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ledger.ErrInsufficientFunds)
	assert.NotErrorIs(t, err, ledger.ErrTransferUnconfirmed)
	assert.Equal(t, int64(50), backend.Balance(led.Holder()).Int64())
}

func TestTokenLedger_UnconfirmedTransfer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	led, backend := newTestTokenLedger(t, 50)
	led.signer.(*transactionSigner.PrivateKeySigner).SetReceiptTimeout(50 * time.Millisecond)
	backend.WithholdReceipts = true

	err := led.Transfer(ctx, testutil.TestAddress(1), uint256.NewInt(10))
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrTransferUnconfirmed)

	// The token moved even though no receipt was seen
	assert.Equal(t, int64(40), backend.Balance(led.Holder()).Int64())
	assert.Equal(t, int64(10), backend.Balance(testutil.TestAddress(1)).Int64())
}

func TestNewTokenLedger_RequiresCollaborators(t *testing.T) {
	_, err := NewTokenLedger(testutil.TestAddress(1), nil, nil, testutil.NewTestLogger(t))
	require.Error(t, err)
}
