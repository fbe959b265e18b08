// Package ledger defines the collaborator that moves distributed funds.
//
// The claim registry never holds balances itself. It asks an IFundsTransfer
// to pay out of the distribution holder's balance. An error wrapping
// ErrTransferUnconfirmed means the payment may have happened; any other error
// means no funds moved.
package ledger

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ErrInsufficientFunds is returned when the holder cannot cover a transfer
var ErrInsufficientFunds = errors.New("insufficient funds")

// ErrTransferUnconfirmed is returned when a transfer was submitted but its
// outcome could not be observed. The funds may or may not have moved.
var ErrTransferUnconfirmed = errors.New("transfer outcome unknown")

// IFundsTransfer moves funds out of a holder account
type IFundsTransfer interface {
	// Transfer pays amount from the holder to to. It returns an error wrapping
	// ErrInsufficientFunds when the holder balance is too small; no funds move
	// in that case. An error wrapping ErrTransferUnconfirmed means the transfer
	// left the process and may still settle.
	Transfer(ctx context.Context, to common.Address, amount *uint256.Int) error

	// BalanceOf returns the current balance of holder
	BalanceOf(ctx context.Context, holder common.Address) (*uint256.Int, error)
}
