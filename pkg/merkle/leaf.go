package merkle

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/types"
)

// LeafLength is the size of an encoded leaf:
// index (32 bytes) || account (20 bytes) || amount (32 bytes)
const LeafLength = 32 + common.AddressLength + 32

// EncodeLeaf packs a claim slot into its canonical fixed-width form.
// The layout matches Solidity abi.encodePacked(uint256 index, address account, uint256 amount).
// A nil amount encodes as zero.
func EncodeLeaf(index uint64, account common.Address, amount *uint256.Int) []byte {
	data := make([]byte, LeafLength)

	idx := uint256.NewInt(index).Bytes32()
	copy(data[0:32], idx[:])
	copy(data[32:32+common.AddressLength], account.Bytes())

	if amount != nil {
		amt := amount.Bytes32()
		copy(data[32+common.AddressLength:], amt[:])
	}

	return data
}

// HashLeaf returns keccak256(EncodeLeaf(index, account, amount))
func HashLeaf(index uint64, account common.Address, amount *uint256.Int) [32]byte {
	return crypto.Keccak256Hash(EncodeLeaf(index, account, amount))
}

// HashSlot hashes a claim slot
func HashSlot(slot *types.ClaimSlot) [32]byte {
	return HashLeaf(slot.Index, slot.Account, slot.Amount)
}
