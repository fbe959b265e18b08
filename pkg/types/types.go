package types

import (
	"bytes"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ClaimSlot is one entry of a distribution: the amount owed to an account at a
// fixed position in the canonical ordering.
type ClaimSlot struct {
	Index   uint64
	Account common.Address
	Amount  *uint256.Int
}

// Claim is a claim slot together with its inclusion proof
type Claim struct {
	ClaimSlot

	// Proof contains sibling hashes from the leaf level up to the root
	Proof [][32]byte
}

// Distribution is the output of a distribution build: the committed root,
// the declared token supply and the full claim table sorted by account.
type Distribution struct {
	Root       [32]byte
	TokenTotal *uint256.Int
	Claims     []*Claim
}

// ClaimFor returns the claim belonging to account. Claims are sorted by
// account bytes so the lookup is a binary search.
func (d *Distribution) ClaimFor(account common.Address) (*Claim, bool) {
	if d == nil {
		return nil, false
	}
	i := sort.Search(len(d.Claims), func(i int) bool {
		return bytes.Compare(d.Claims[i].Account.Bytes(), account.Bytes()) >= 0
	})
	if i < len(d.Claims) && d.Claims[i].Account == account {
		return d.Claims[i], true
	}
	return nil, false
}

// ClaimAt returns the claim at the given index
func (d *Distribution) ClaimAt(index uint64) (*Claim, bool) {
	if d == nil || index >= uint64(len(d.Claims)) {
		return nil, false
	}
	return d.Claims[index], true
}

// AllocatedTotal sums every claim amount. Build guarantees this never exceeds
// TokenTotal, so the sum cannot overflow for built distributions.
func (d *Distribution) AllocatedTotal() *uint256.Int {
	total := new(uint256.Int)
	if d == nil {
		return total
	}
	for _, c := range d.Claims {
		if c.Amount != nil {
			total.Add(total, c.Amount)
		}
	}
	return total
}
