package claims

import (
	"errors"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/ledger"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/merkle"
)

var (
	// ErrInvalidProof is returned when the claim leaf does not verify against the root
	ErrInvalidProof = errors.New("invalid proof")

	// ErrAlreadyClaimed is returned for an index that has already been paid
	ErrAlreadyClaimed = errors.New("already claimed")

	// ErrWindowNotOpen is returned for a claim before the window start
	ErrWindowNotOpen = errors.New("claim window not open")

	// ErrWindowElapsed is returned for a claim after the window end
	ErrWindowElapsed = errors.New("claim window elapsed")

	// ErrTransferFailed is returned when the ledger rejects a transfer for a
	// reason other than the holder balance
	ErrTransferFailed = errors.New("transfer failed")

	// ErrNotAuthorized is returned when a drain is requested by anyone but the administrator
	ErrNotAuthorized = errors.New("not authorized")

	// ErrStaleDrainSequence is returned when a drain was authorized for a
	// sequence number another drain has already used
	ErrStaleDrainSequence = errors.New("stale drain sequence")

	// ErrInsufficientFunds is returned when the holder cannot cover a payment
	ErrInsufficientFunds = ledger.ErrInsufficientFunds

	// ErrTransferUnconfirmed is returned when a payment was submitted but its
	// outcome is unknown. The index stays claimed.
	ErrTransferUnconfirmed = ledger.ErrTransferUnconfirmed

	// ErrIndexOutOfRange is returned for an index past the end of the claim table
	ErrIndexOutOfRange = merkle.ErrIndexOutOfRange
)
