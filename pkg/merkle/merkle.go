package merkle

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

// BuildMerkleTree creates a binary merkle tree from leaf hashes given in index order.
//
// Each level pairs adjacent nodes with HashPair. When a level has an odd
// number of nodes the last one is carried up to the next level unchanged.
// A single leaf is its own root.
func BuildMerkleTree(leaves [][32]byte) (*MerkleTree, error) {
	if len(leaves) == 0 {
		return nil, fmt.Errorf("cannot build merkle tree: %w", ErrEmptyDistribution)
	}

	leafCopy := make([][32]byte, len(leaves))
	copy(leafCopy, leaves)

	levels := make([][][32]byte, 0)
	levels = append(levels, leafCopy)

	currentLevel := leafCopy
	for len(currentLevel) > 1 {
		nextLevel := make([][32]byte, 0, (len(currentLevel)+1)/2)

		for i := 0; i < len(currentLevel); i += 2 {
			if i+1 == len(currentLevel) {
				nextLevel = append(nextLevel, currentLevel[i])
				continue
			}
			nextLevel = append(nextLevel, HashPair(currentLevel[i], currentLevel[i+1]))
		}

		levels = append(levels, nextLevel)
		currentLevel = nextLevel
	}

	return &MerkleTree{
		Leaves: leafCopy,
		Root:   currentLevel[0],
		levels: levels,
	}, nil
}

// ComputeRoot derives the root of a leaf sequence without keeping the tree
func ComputeRoot(leaves [][32]byte) ([32]byte, error) {
	tree, err := BuildMerkleTree(leaves)
	if err != nil {
		return [32]byte{}, err
	}
	return tree.Root, nil
}

// Depth returns the number of levels above the leaves
func (mt *MerkleTree) Depth() int {
	return len(mt.levels) - 1
}

// Size returns the number of leaves
func (mt *MerkleTree) Size() int {
	return len(mt.Leaves)
}

// PathFor returns the sibling hashes needed to walk from the leaf at index to
// the root. A level where the node has no sibling contributes nothing.
func (mt *MerkleTree) PathFor(index uint64) ([][32]byte, error) {
	if index >= uint64(len(mt.Leaves)) {
		return nil, fmt.Errorf("leaf index %d (tree has %d leaves): %w", index, len(mt.Leaves), ErrIndexOutOfRange)
	}

	path := make([][32]byte, 0, mt.Depth())
	pos := int(index)

	for level := 0; level < len(mt.levels)-1; level++ {
		currentLevel := mt.levels[level]

		sibling := pos ^ 1
		if sibling < len(currentLevel) {
			path = append(path, currentLevel[sibling])
		}

		pos = pos / 2
	}

	return path, nil
}

// HashPair computes keccak256(min(a,b) || max(a,b)) with byte-wise comparison.
// The result is independent of argument order.
func HashPair(a, b [32]byte) [32]byte {
	data := make([]byte, 64)
	if bytes.Compare(a[:], b[:]) <= 0 {
		copy(data[0:32], a[:])
		copy(data[32:64], b[:])
	} else {
		copy(data[0:32], b[:])
		copy(data[32:64], a[:])
	}

	return crypto.Keccak256Hash(data)
}
