package transactionSigner

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/config"
)

// PrivateKeySigner implements ITransactionSigner with a local secp256k1 key
type PrivateKeySigner struct {
	backend     EthBackend
	logger      *zap.Logger
	chainID     *big.Int
	privateKey  *ecdsa.PrivateKey
	fromAddress common.Address

	receiptTimeout time.Duration
}

// NewPrivateKeySigner creates a signer for a hex encoded private key
func NewPrivateKeySigner(privateKeyHex string, backend EthBackend, logger *zap.Logger) (*PrivateKeySigner, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	// Get chain ID during initialization
	chainID, err := backend.ChainID(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to get chain ID: %w", err)
	}

	return &PrivateKeySigner{
		backend:     backend,
		logger:      logger,
		chainID:     chainID,
		privateKey:  privateKey,
		fromAddress: crypto.PubkeyToAddress(privateKey.PublicKey),

		receiptTimeout: DefaultReceiptTimeout,
	}, nil
}

// SetReceiptTimeout changes how long SignAndSendTransaction waits for a receipt
func (s *PrivateKeySigner) SetReceiptTimeout(d time.Duration) {
	s.receiptTimeout = d
}

// feeParams returns the fallback tip and the base fee multiplier for the chain
func (s *PrivateKeySigner) feeParams() (*big.Int, int64) {
	if config.IsEthereum(config.ChainId(s.chainID.Uint64())) {
		return big.NewInt(1500000000), 3 // 1.5 gwei, 3x buffer for Ethereum
	}
	return big.NewInt(1000000), 2 // 0.001 gwei, 2x buffer for L2s
}

// EstimateFees estimates the EIP-1559 fees and gas limit for tx
func (s *PrivateKeySigner) EstimateFees(ctx context.Context, tx *types.Transaction) (*FeeEstimate, error) {
	fallbackGasTipCap, baseFeeMultiplier := s.feeParams()

	gasTipCap, err := s.backend.SuggestGasTipCap(ctx)
	if err != nil {
		// Backends without eth_maxPriorityFeePerGas get the fallback tip
		s.logger.Sugar().Warnw("EstimateFees: cannot get gasTipCap, using fallback",
			zap.Error(err),
		)
		gasTipCap = fallbackGasTipCap
	}

	header, err := s.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest block header: %w", err)
	}
	if header.BaseFee == nil {
		return nil, fmt.Errorf("latest block has no base fee, chain does not support EIP-1559")
	}

	// maxFeePerGas = basefee * multiplier + tip
	gasFeeCap := new(big.Int).Add(
		new(big.Int).Mul(header.BaseFee, big.NewInt(baseFeeMultiplier)),
		gasTipCap,
	)

	gasLimit, err := s.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:      s.fromAddress,
		To:        tx.To(),
		GasTipCap: gasTipCap,
		GasFeeCap: gasFeeCap,
		Value:     tx.Value(),
		Data:      tx.Data(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to estimate gas: %w", err)
	}

	return &FeeEstimate{
		GasTipCap: gasTipCap,
		GasFeeCap: gasFeeCap,
		GasLimit:  gasLimit,
	}, nil
}

// SignAndSendTransaction signs a transaction and sends it to the network
func (s *PrivateKeySigner) SignAndSendTransaction(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	fees, err := s.EstimateFees(ctx, tx)
	if err != nil {
		return nil, err
	}

	nonce, err := s.backend.PendingNonceAt(ctx, s.fromAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending nonce: %w", err)
	}

	signedTx, err := types.SignNewTx(s.privateKey, types.LatestSignerForChainID(s.chainID), &types.DynamicFeeTx{
		ChainID:   s.chainID,
		Nonce:     nonce,
		GasTipCap: fees.GasTipCap,
		GasFeeCap: fees.GasFeeCap,
		Gas:       fees.GasLimit,
		To:        tx.To(),
		Value:     tx.Value(),
		Data:      tx.Data(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := s.backend.SendTransaction(ctx, signedTx); err != nil {
		if ctx.Err() != nil {
			// The request may have reached the node before the context ended
			return nil, fmt.Errorf("send of %s interrupted: %w: %w", signedTx.Hash().Hex(), ErrTransactionUnconfirmed, err)
		}
		return nil, fmt.Errorf("failed to send transaction: %w", err)
	}

	s.logger.Info("SignAndSendTransaction: transaction sent",
		zap.String("txHash", signedTx.Hash().Hex()),
		zap.Uint64("nonce", nonce),
	)

	// A broadcast transaction can be mined after the caller gives up
	waitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.receiptTimeout)
	defer cancel()

	receipt, err := bind.WaitMined(waitCtx, s.backend, signedTx)
	if err != nil {
		s.logger.Error("SignAndSendTransaction: no receipt",
			zap.String("txHash", signedTx.Hash().Hex()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to wait for receipt of %s: %w: %w", signedTx.Hash().Hex(), ErrTransactionUnconfirmed, err)
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		s.logger.Error("SignAndSendTransaction: transaction failed",
			zap.String("txHash", receipt.TxHash.Hex()),
			zap.Uint64("status", receipt.Status),
			zap.Uint64("gasUsed", receipt.GasUsed),
		)
		return nil, fmt.Errorf("transaction %s failed with status %d", receipt.TxHash.Hex(), receipt.Status)
	}

	blockNumber := uint64(0)
	if receipt.BlockNumber != nil {
		blockNumber = receipt.BlockNumber.Uint64()
	}
	s.logger.Info("SignAndSendTransaction: transaction succeeded",
		zap.String("txHash", receipt.TxHash.Hex()),
		zap.Uint64("gasUsed", receipt.GasUsed),
		zap.Uint64("blockNumber", blockNumber),
	)

	return receipt, nil
}

// GetFromAddress returns the address that will be used for signing
func (s *PrivateKeySigner) GetFromAddress() common.Address {
	return s.fromAddress
}
