// Package snapshot reads the holder snapshot a distribution is allocated from.
//
// Two layouts are accepted. The flat layout
//
//	{"name": "...", "totalSupply": "100", "holders": [{"address": "0x..", "balance": "49"}]}
//
// and the DAO query result it is usually exported from
//
//	{"dao": {"name": "...", "nativeReputation": {"totalSupply": 100}, "reputationHolders": [...]}}
//
// Balances and supplies may be decimal strings or JSON integers.
package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/allocation"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/util"
)

// ErrInvalidSnapshot is returned for a snapshot that cannot be allocated from
var ErrInvalidSnapshot = errors.New("invalid snapshot")

// Holder is one account and its balance
type Holder struct {
	Address string      `json:"address"`
	Balance json.Number `json:"balance"`
}

// Snapshot is a named set of holder balances
type Snapshot struct {
	Name        string      `json:"name"`
	TotalSupply json.Number `json:"totalSupply,omitempty"`
	Holders     []Holder    `json:"holders"`
}

type daoResult struct {
	Dao *struct {
		Name             string `json:"name"`
		NativeReputation struct {
			TotalSupply json.Number `json:"totalSupply"`
		} `json:"nativeReputation"`
		ReputationHolders []Holder `json:"reputationHolders"`
	} `json:"dao"`
}

// ParseSnapshot decodes either snapshot layout
func ParseSnapshot(data []byte) (*Snapshot, error) {
	var wrapped daoResult
	if err := decode(data, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	if wrapped.Dao != nil {
		return &Snapshot{
			Name:        wrapped.Dao.Name,
			TotalSupply: wrapped.Dao.NativeReputation.TotalSupply,
			Holders:     wrapped.Dao.ReputationHolders,
		}, nil
	}

	var s Snapshot
	if err := decode(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	return &s, nil
}

func decode(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

// ReadSnapshotFile loads and validates a snapshot from path
func ReadSnapshotFile(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}
	s, err := ParseSnapshot(data)
	if err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks addresses, balances and the declared supply
func (s *Snapshot) Validate() error {
	if len(s.Holders) == 0 {
		return fmt.Errorf("snapshot %q has no holders: %w", s.Name, ErrInvalidSnapshot)
	}

	seen := make(map[common.Address]struct{}, len(s.Holders))
	sum := new(big.Int)
	for i, h := range s.Holders {
		if !common.IsHexAddress(h.Address) {
			return fmt.Errorf("holder %d: invalid address %q: %w", i, h.Address, ErrInvalidSnapshot)
		}
		addr := common.HexToAddress(h.Address)
		if _, dup := seen[addr]; dup {
			return fmt.Errorf("holder %d: duplicate address %s: %w", i, addr.Hex(), ErrInvalidSnapshot)
		}
		seen[addr] = struct{}{}

		balance, err := parseAmount(h.Balance)
		if err != nil {
			return fmt.Errorf("holder %d (%s): %w", i, addr.Hex(), err)
		}
		sum.Add(sum, balance)
	}

	supply, err := s.Supply()
	if err != nil {
		return err
	}
	if supply != nil && supply.Cmp(sum) < 0 {
		return fmt.Errorf("holders sum to %s, more than the total supply %s: %w", sum, supply, ErrInvalidSnapshot)
	}
	return nil
}

// Supply returns the declared total supply, or nil when none is declared
func (s *Snapshot) Supply() (*big.Int, error) {
	if s.TotalSupply == "" {
		return nil, nil
	}
	supply, err := parseAmount(s.TotalSupply)
	if err != nil {
		return nil, fmt.Errorf("total supply: %w", err)
	}
	return supply, nil
}

// Weights converts the holders into allocation weights
func (s *Snapshot) Weights() ([]allocation.Weight, error) {
	var firstErr error
	weights := util.Map(s.Holders, func(h Holder, i uint64) allocation.Weight {
		balance, err := parseAmount(h.Balance)
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("holder %d: %w", i, err)
		}
		return allocation.Weight{Address: h.Address, Amount: balance}
	})
	if firstErr != nil {
		return nil, firstErr
	}
	return weights, nil
}

// Allocate splits total across the holders in proportion to their balances
func (s *Snapshot) Allocate(total *big.Int) (map[string]*big.Int, error) {
	weights, err := s.Weights()
	if err != nil {
		return nil, err
	}
	supply, err := s.Supply()
	if err != nil {
		return nil, err
	}
	return allocation.Proportional(total, weights, supply)
}

func parseAmount(n json.Number) (*big.Int, error) {
	v, ok := new(big.Int).SetString(n.String(), 10)
	if !ok {
		return nil, fmt.Errorf("amount %q is not a decimal integer: %w", n, ErrInvalidSnapshot)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("amount %s is negative: %w", v, ErrInvalidSnapshot)
	}
	return v, nil
}
