package merkle

// GenerateProof creates a merkle proof for the leaf at the given index
func (mt *MerkleTree) GenerateProof(index uint64) (*MerkleProof, error) {
	path, err := mt.PathFor(index)
	if err != nil {
		return nil, err
	}

	return &MerkleProof{
		LeafIndex: index,
		Leaf:      mt.Leaves[index],
		Proof:     path,
	}, nil
}

// VerifyProof folds leaf with every proof element using HashPair and
// compares the result with root.
//
// index does not select left/right ordering; it only matters as part of the
// leaf preimage, so a proof checked against the wrong slot fails because the
// leaf hash differs.
func VerifyProof(leaf [32]byte, index uint64, proof [][32]byte, root [32]byte) bool {
	current := leaf
	for _, sibling := range proof {
		current = HashPair(current, sibling)
	}

	return current == root
}

// Verify checks the proof against root
func (p *MerkleProof) Verify(root [32]byte) bool {
	if p == nil {
		return false
	}
	return VerifyProof(p.Leaf, p.LeafIndex, p.Proof, root)
}
