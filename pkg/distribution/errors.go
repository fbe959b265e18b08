package distribution

import (
	"errors"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/merkle"
)

var (
	// ErrInvalidAddress is returned for an account key that is not a 20-byte hex address
	ErrInvalidAddress = errors.New("invalid address")

	// ErrDuplicateAddress is returned when two inputs normalize to the same address
	ErrDuplicateAddress = errors.New("duplicate address")

	// ErrInvalidInput is returned for missing, negative or oversized amounts
	ErrInvalidInput = errors.New("invalid input")

	// ErrEmptyDistribution is returned when no accounts are supplied
	ErrEmptyDistribution = merkle.ErrEmptyDistribution
)

// ErrCorruptDistribution is returned when a loaded distribution does not
// reproduce its own root or proofs
var ErrCorruptDistribution = errors.New("corrupt distribution")
