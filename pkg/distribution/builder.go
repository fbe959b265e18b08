package distribution

import (
	"bytes"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/merkle"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/types"
)

// Build turns an account->amount mapping into a distribution.
//
// Every input is validated before anything is hashed: addresses must be
// 20-byte hex, amounts must fit in 256 bits, addresses that normalize to the
// same account are rejected and the amounts may not add up to more than
// totalAmount. Accounts are then sorted by their address bytes and indexed by
// position, so the same logical input always yields the same root.
func Build(totalAmount *big.Int, balances map[string]*big.Int) (*types.Distribution, error) {
	if len(balances) == 0 {
		return nil, fmt.Errorf("no account balances supplied: %w", ErrEmptyDistribution)
	}

	total, err := toUint256(totalAmount)
	if err != nil {
		return nil, fmt.Errorf("total amount: %w", err)
	}

	slots, err := normalizeBalances(balances)
	if err != nil {
		return nil, err
	}

	allocated := new(uint256.Int)
	for _, s := range slots {
		if _, overflow := allocated.AddOverflow(allocated, s.Amount); overflow {
			return nil, fmt.Errorf("allocated amounts overflow 256 bits: %w", ErrInvalidInput)
		}
	}
	if allocated.Gt(total) {
		return nil, fmt.Errorf("allocated amount %s exceeds total %s: %w", allocated.Dec(), total.Dec(), ErrInvalidInput)
	}

	SortSlots(slots)

	leaves := make([][32]byte, len(slots))
	for i, s := range slots {
		s.Index = uint64(i)
		leaves[i] = merkle.HashSlot(s)
	}

	tree, err := merkle.BuildMerkleTree(leaves)
	if err != nil {
		return nil, fmt.Errorf("failed to build merkle tree: %w", err)
	}

	claims := make([]*types.Claim, len(slots))
	for i, s := range slots {
		proof, err := tree.GenerateProof(uint64(i))
		if err != nil {
			return nil, fmt.Errorf("failed to generate proof for index %d: %w", i, err)
		}
		claims[i] = &types.Claim{
			ClaimSlot: *s,
			Proof:     proof.Proof,
		}
	}

	return &types.Distribution{
		Root:       tree.Root,
		TokenTotal: total,
		Claims:     claims,
	}, nil
}

// SortSlots orders slots ascending by account bytes. The result determines
// index assignment, so it must never change between releases.
func SortSlots(slots []*types.ClaimSlot) {
	sort.Slice(slots, func(i, j int) bool {
		return bytes.Compare(slots[i].Account.Bytes(), slots[j].Account.Bytes()) < 0
	})
}

func normalizeBalances(balances map[string]*big.Int) ([]*types.ClaimSlot, error) {
	// Map iteration order is random; walk keys in sorted order so the
	// reported duplicate pair is stable.
	keys := make([]string, 0, len(balances))
	for k := range balances {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	seen := make(map[common.Address]string, len(keys))
	slots := make([]*types.ClaimSlot, 0, len(keys))

	for _, key := range keys {
		if !common.IsHexAddress(key) {
			return nil, fmt.Errorf("%q: %w", key, ErrInvalidAddress)
		}
		account := common.HexToAddress(key)
		if prev, ok := seen[account]; ok {
			return nil, fmt.Errorf("%q and %q both normalize to %s: %w", prev, key, account.Hex(), ErrDuplicateAddress)
		}
		seen[account] = key

		amount, err := toUint256(balances[key])
		if err != nil {
			return nil, fmt.Errorf("amount for %s: %w", account.Hex(), err)
		}

		slots = append(slots, &types.ClaimSlot{
			Account: account,
			Amount:  amount,
		})
	}

	return slots, nil
}

func toUint256(v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return nil, fmt.Errorf("amount is missing: %w", ErrInvalidInput)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("amount %s is negative: %w", v.String(), ErrInvalidInput)
	}
	out, overflow := uint256.FromBig(v)
	if overflow {
		return nil, fmt.Errorf("amount %s does not fit in 256 bits: %w", v.String(), ErrInvalidInput)
	}
	return out, nil
}
