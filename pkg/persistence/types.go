package persistence

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ErrClosed is returned by every operation after Close
var ErrClosed = errors.New("persistence layer is closed")

// Drain record statuses. Records written without a status are confirmed.
const (
	DrainStatusConfirmed   = "confirmed"
	DrainStatusUnconfirmed = "unconfirmed"
)

// DrainRecord is one administrator withdrawal of the distribution holder's
// balance. Addresses and amounts are kept as strings so the stored form does
// not depend on any in-memory integer type.
type DrainRecord struct {
	// Sequence is the zero-based position of this drain for its root.
	// It is also the replay counter bound into the drain signature.
	Sequence uint64 `json:"sequence"`

	// Root is the 0x-prefixed distribution root the drain was performed against
	Root string `json:"root"`

	// Caller is the checksummed address that authorized the drain
	Caller string `json:"caller"`

	// Destination is the checksummed address that received the funds
	Destination string `json:"destination"`

	// Amount is the decimal amount transferred
	Amount string `json:"amount"`

	// Timestamp is the Unix time the drain completed
	Timestamp int64 `json:"timestamp"`

	// Status is DrainStatusUnconfirmed when the transfer was submitted but
	// never observed to settle
	Status string `json:"status,omitempty"`
}

// RootKey renders a root the way every backend embeds it in keys and records
func RootKey(root [32]byte) string {
	return hexutil.Encode(root[:])
}

// ParseRootKey is the inverse of RootKey
func ParseRootKey(s string) ([32]byte, error) {
	var root [32]byte
	decoded, err := hexutil.Decode(s)
	if err != nil {
		return root, fmt.Errorf("invalid root %q: %w", s, err)
	}
	if len(decoded) != len(root) {
		return root, fmt.Errorf("invalid root %q: expected 32 bytes, got %d", s, len(decoded))
	}
	copy(root[:], decoded)
	return root, nil
}

// Validate checks that a record can be stored
func (d *DrainRecord) Validate() error {
	if d == nil {
		return fmt.Errorf("drain record is nil")
	}
	if _, err := ParseRootKey(d.Root); err != nil {
		return err
	}
	if d.Destination == "" {
		return fmt.Errorf("drain record destination is empty")
	}
	if d.Amount == "" {
		return fmt.Errorf("drain record amount is empty")
	}
	switch d.Status {
	case "", DrainStatusConfirmed, DrainStatusUnconfirmed:
	default:
		return fmt.Errorf("drain record status %q is unknown", d.Status)
	}
	return nil
}
