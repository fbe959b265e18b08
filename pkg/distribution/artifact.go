package distribution

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/types"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/util"
)

// DistributionFile is the persisted handoff between the builder and the claim
// registry. Its schema must remain stable: proofs are meaningless without the
// exact index/amount pairing they were generated against.
type DistributionFile struct {
	Root       string               `json:"root"`
	TokenTotal string               `json:"tokenTotal"`
	Claims     []*types.ClaimRecord `json:"claims"`
}

// ToFile converts a distribution into its serialized form
func ToFile(d *types.Distribution) *DistributionFile {
	total := "0"
	if d.TokenTotal != nil {
		total = d.TokenTotal.Dec()
	}
	return &DistributionFile{
		Root:       hexutil.Encode(d.Root[:]),
		TokenTotal: total,
		Claims: util.Map(d.Claims, func(c *types.Claim, i uint64) *types.ClaimRecord {
			return types.NewClaimRecord(c)
		}),
	}
}

// FromFile parses a serialized distribution. It only checks the shape of each
// field; use Verify to check the content.
func FromFile(f *DistributionFile) (*types.Distribution, error) {
	if f == nil {
		return nil, fmt.Errorf("cannot convert nil DistributionFile")
	}

	root, err := types.ParseHash(f.Root)
	if err != nil {
		return nil, fmt.Errorf("invalid root: %w", err)
	}

	total, err := types.ParseAmount(f.TokenTotal)
	if err != nil {
		return nil, fmt.Errorf("invalid tokenTotal: %w", err)
	}

	claims := make([]*types.Claim, len(f.Claims))
	for i, r := range f.Claims {
		c, err := r.ToClaim()
		if err != nil {
			return nil, fmt.Errorf("claim %d: %w", i, err)
		}
		claims[i] = c
	}

	return &types.Distribution{
		Root:       root,
		TokenTotal: total,
		Claims:     claims,
	}, nil
}

// MarshalDistribution serializes a distribution to indented JSON bytes.
func MarshalDistribution(d *types.Distribution) ([]byte, error) {
	if d == nil {
		return nil, fmt.Errorf("cannot marshal nil Distribution")
	}

	data, err := json.MarshalIndent(ToFile(d), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal Distribution to JSON: %w", err)
	}

	return data, nil
}

// UnmarshalDistribution deserializes a distribution from JSON bytes.
func UnmarshalDistribution(data []byte) (*types.Distribution, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}

	var f DistributionFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to DistributionFile: %w", err)
	}

	return FromFile(&f)
}

// WriteDistributionFile writes the distribution to path
func WriteDistributionFile(path string, d *types.Distribution) error {
	data, err := MarshalDistribution(d)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write distribution file %s", path)
	}
	return nil
}

// ReadDistributionFile loads a distribution from path
func ReadDistributionFile(path string) (*types.Distribution, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read distribution file %s", path)
	}
	d, err := UnmarshalDistribution(data)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse distribution file %s", path)
	}
	return d, nil
}
