// Package allocation splits a token total across weighted accounts.
package allocation

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/distribution"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/util"
)

// ErrZeroSupply is returned when the weights are measured against a zero supply
var ErrZeroSupply = errors.New("zero supply")

// Weight is an account's share of the supply
type Weight struct {
	Address string
	Amount  *big.Int
}

// Proportional gives each account floor(total * weight / supply).
//
// A nil supply defaults to the sum of the weights, which allocates all of
// total apart from rounding dust. A larger supply leaves the unheld share
// unallocated. Dust stays with the holder and can be recovered with a drain.
// The result is keyed by checksummed address.
func Proportional(total *big.Int, weights []Weight, supply *big.Int) (map[string]*big.Int, error) {
	if total == nil || total.Sign() < 0 {
		return nil, fmt.Errorf("total must be a non-negative amount: %w", distribution.ErrInvalidInput)
	}
	if len(weights) == 0 {
		return nil, fmt.Errorf("no weights supplied: %w", distribution.ErrEmptyDistribution)
	}

	for _, w := range weights {
		if w.Amount == nil || w.Amount.Sign() < 0 {
			return nil, fmt.Errorf("weight for %s must be a non-negative amount: %w", w.Address, distribution.ErrInvalidInput)
		}
	}

	weightSum := util.Reduce(weights, func(acc *big.Int, w Weight) *big.Int {
		return acc.Add(acc, w.Amount)
	}, new(big.Int))

	if supply == nil {
		supply = weightSum
	}
	if supply.Sign() <= 0 {
		return nil, ErrZeroSupply
	}
	if weightSum.Cmp(supply) > 0 {
		return nil, fmt.Errorf("weights sum to %s, more than the supply %s: %w", weightSum, supply, distribution.ErrInvalidInput)
	}

	out := make(map[string]*big.Int, len(weights))
	for _, w := range weights {
		if !common.IsHexAddress(w.Address) {
			return nil, fmt.Errorf("%q: %w", w.Address, distribution.ErrInvalidAddress)
		}
		key := common.HexToAddress(w.Address).Hex()
		if _, exists := out[key]; exists {
			return nil, fmt.Errorf("%s: %w", key, distribution.ErrDuplicateAddress)
		}

		share := new(big.Int).Mul(total, w.Amount)
		out[key] = share.Quo(share, supply)
	}
	return out, nil
}

// Dust returns the part of total the allocations leave unassigned
func Dust(total *big.Int, allocations map[string]*big.Int) *big.Int {
	dust := new(big.Int).Set(total)
	for _, amount := range allocations {
		dust.Sub(dust, amount)
	}
	return dust
}
