package merkle

import "errors"

var (
	// ErrEmptyDistribution is returned when a tree is requested over zero leaves
	ErrEmptyDistribution = errors.New("empty distribution")

	// ErrIndexOutOfRange is returned when a proof is requested for a leaf the tree does not have
	ErrIndexOutOfRange = errors.New("index out of range")
)

// MerkleTree represents a binary merkle tree over claim leaf hashes.
// Internal nodes are keccak256(min(a,b) || max(a,b)) so proofs carry no
// left/right information.
type MerkleTree struct {
	// Leaves contains the leaf hashes in index order
	Leaves [][32]byte

	// Root is the merkle root hash
	Root [32]byte

	// levels stores all tree levels for proof generation
	// levels[0] = leaves, levels[len-1] = root
	levels [][][32]byte
}

// MerkleProof represents a proof that a leaf is included in the tree.
type MerkleProof struct {
	// LeafIndex is the index of the leaf in the claim table
	LeafIndex uint64

	// Leaf is the hash of the leaf being proven
	Leaf [32]byte

	// Proof contains the sibling hashes from leaf to root.
	// Levels where the node was carried forward contribute no element.
	Proof [][32]byte
}
