package erc20

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/ledger"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/transactionSigner"
)

// TokenABI is the subset of the ERC-20 interface the ledger calls
const TokenABI = `[
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"transfer","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

// ContractCaller executes read-only calls
type ContractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// TokenLedger pays claims with ERC-20 transfers sent from the signer address.
// The signer address is the holder of the undistributed balance.
type TokenLedger struct {
	caller ContractCaller
	signer transactionSigner.ITransactionSigner
	token  common.Address
	abi    abi.ABI
	logger *zap.Logger
}

// NewTokenLedger creates a ledger for the token at tokenAddress
func NewTokenLedger(tokenAddress common.Address, caller ContractCaller, signer transactionSigner.ITransactionSigner, logger *zap.Logger) (*TokenLedger, error) {
	if caller == nil || signer == nil {
		return nil, fmt.Errorf("contract caller and transaction signer are required")
	}
	parsed, err := abi.JSON(strings.NewReader(TokenABI))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse token ABI")
	}
	return &TokenLedger{
		caller: caller,
		signer: signer,
		token:  tokenAddress,
		abi:    parsed,
		logger: logger,
	}, nil
}

// Holder returns the address transfers are sent from
func (l *TokenLedger) Holder() common.Address {
	return l.signer.GetFromAddress()
}

// BalanceOf calls balanceOf(holder) on the token
func (l *TokenLedger) BalanceOf(ctx context.Context, holder common.Address) (*uint256.Int, error) {
	data, err := l.abi.Pack("balanceOf", holder)
	if err != nil {
		return nil, errors.Wrap(err, "failed to pack balanceOf call")
	}

	out, err := l.caller.CallContract(ctx, ethereum.CallMsg{To: &l.token, Data: data}, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to call balanceOf(%s) on %s", holder.Hex(), l.token.Hex())
	}

	values, err := l.abi.Unpack("balanceOf", out)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode balanceOf(%s) result", holder.Hex())
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("balanceOf returned %d values", len(values))
	}
	raw, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("balanceOf returned %T", values[0])
	}

	balance, overflow := uint256.FromBig(raw)
	if overflow {
		return nil, fmt.Errorf("balanceOf returned more than 256 bits")
	}
	return balance, nil
}

// Transfer checks the holder balance and then sends transfer(to, amount).
// The pre-check maps a short balance to ErrInsufficientFunds instead of a
// reverted transaction.
func (l *TokenLedger) Transfer(ctx context.Context, to common.Address, amount *uint256.Int) error {
	if amount == nil {
		return fmt.Errorf("transfer amount is nil")
	}

	holder := l.Holder()
	balance, err := l.BalanceOf(ctx, holder)
	if err != nil {
		return err
	}
	if balance.Lt(amount) {
		return fmt.Errorf("holder %s has %s, transfer needs %s: %w",
			holder.Hex(), balance.Dec(), amount.Dec(), ledger.ErrInsufficientFunds)
	}

	data, err := l.abi.Pack("transfer", to, amount.ToBig())
	if err != nil {
		return errors.Wrap(err, "failed to pack transfer call")
	}

	receipt, err := l.signer.SignAndSendTransaction(ctx, types.NewTx(&types.DynamicFeeTx{
		To:   &l.token,
		Data: data,
	}))
	if err != nil {
		if errors.Is(err, transactionSigner.ErrTransactionUnconfirmed) {
			l.logger.Sugar().Errorw("Token transfer unconfirmed",
				"token", l.token.Hex(),
				"to", to.Hex(),
				"amount", amount.Dec(),
				"error", err,
			)
			return fmt.Errorf("transfer %s to %s: %w: %w", amount.Dec(), to.Hex(), ledger.ErrTransferUnconfirmed, err)
		}
		return errors.Wrapf(err, "failed to transfer %s to %s", amount.Dec(), to.Hex())
	}

	l.logger.Sugar().Infow("Token transfer mined",
		"token", l.token.Hex(),
		"to", to.Hex(),
		"amount", amount.Dec(),
		"txHash", receipt.TxHash.Hex(),
	)
	return nil
}
