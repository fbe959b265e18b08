package transactionSigner

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// EthBackend is the subset of *ethclient.Client the signer and the ERC-20
// ledger need. It also satisfies bind.DeployBackend for bind.WaitMined.
type EthBackend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// ErrTransactionUnconfirmed is returned when a transaction may have been
// broadcast but no receipt was obtained. The transaction can still be mined.
var ErrTransactionUnconfirmed = errors.New("transaction outcome unknown")

// DefaultReceiptTimeout bounds the wait for a receipt after broadcast
const DefaultReceiptTimeout = 5 * time.Minute

// FeeEstimate is the EIP-1559 fee and gas limit chosen for a transaction
type FeeEstimate struct {
	GasTipCap *big.Int
	GasFeeCap *big.Int
	GasLimit  uint64
}

// ITransactionSigner provides methods for signing Ethereum transactions
type ITransactionSigner interface {
	// SignAndSendTransaction fills in nonce and fees for the unsigned tx, signs
	// it, sends it and waits for a successful receipt
	SignAndSendTransaction(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)

	// GetFromAddress returns the address that will be used for signing
	GetFromAddress() common.Address

	// EstimateFees estimates fees and gas limit for a transaction
	EstimateFees(ctx context.Context, tx *types.Transaction) (*FeeEstimate, error)
}

type SignerConfig struct {
	PrivateKey string `json:"privateKey" yaml:"privateKey"`

	// ReceiptTimeout bounds the wait for a receipt. Zero uses DefaultReceiptTimeout.
	ReceiptTimeout time.Duration `json:"receiptTimeout" yaml:"receiptTimeout"`
}

func NewTransactionSigner(cfg *SignerConfig, backend EthBackend, logger *zap.Logger) (ITransactionSigner, error) {
	if cfg == nil || cfg.PrivateKey == "" {
		return nil, fmt.Errorf("private key cannot be empty")
	}

	signer, err := NewPrivateKeySigner(cfg.PrivateKey, backend, logger)
	if err != nil {
		return nil, err
	}
	if cfg.ReceiptTimeout > 0 {
		signer.SetReceiptTimeout(cfg.ReceiptTimeout)
	}
	return signer, nil
}
