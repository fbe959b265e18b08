package distribution

import (
	"bytes"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/merkle"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/types"
)

// Verify rebuilds the tree from the claim table alone and checks that it
// reproduces the stated root and that every stored proof verifies.
// It is the check to run on a distribution file before deploying its root.
func Verify(d *types.Distribution) error {
	if d == nil || len(d.Claims) == 0 {
		return fmt.Errorf("distribution has no claims: %w", ErrEmptyDistribution)
	}
	if d.TokenTotal == nil {
		return fmt.Errorf("token total is missing: %w", ErrCorruptDistribution)
	}

	leaves := make([][32]byte, len(d.Claims))
	allocated := new(uint256.Int)

	for i, c := range d.Claims {
		if c == nil || c.Amount == nil {
			return fmt.Errorf("claim %d is incomplete: %w", i, ErrCorruptDistribution)
		}
		if c.Index != uint64(i) {
			return fmt.Errorf("claim at position %d has index %d: %w", i, c.Index, ErrCorruptDistribution)
		}
		if i > 0 && bytes.Compare(d.Claims[i-1].Account.Bytes(), c.Account.Bytes()) >= 0 {
			return fmt.Errorf("claim %d (%s) is not strictly after %s: %w", i, c.Account.Hex(), d.Claims[i-1].Account.Hex(), ErrCorruptDistribution)
		}
		if _, overflow := allocated.AddOverflow(allocated, c.Amount); overflow {
			return fmt.Errorf("allocated amounts overflow 256 bits: %w", ErrCorruptDistribution)
		}
		leaves[i] = merkle.HashSlot(&c.ClaimSlot)
	}

	if allocated.Gt(d.TokenTotal) {
		return fmt.Errorf("allocated amount %s exceeds total %s: %w", allocated.Dec(), d.TokenTotal.Dec(), ErrCorruptDistribution)
	}

	root, err := merkle.ComputeRoot(leaves)
	if err != nil {
		return err
	}
	if root != d.Root {
		return fmt.Errorf("recomputed root %x does not match %x: %w", root, d.Root, ErrCorruptDistribution)
	}

	for i, c := range d.Claims {
		if !merkle.VerifyProof(leaves[i], c.Index, c.Proof, d.Root) {
			return fmt.Errorf("proof for claim %d (%s) does not verify: %w", i, c.Account.Hex(), ErrCorruptDistribution)
		}
	}

	return nil
}
