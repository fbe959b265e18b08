package distribution

import (
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/types"
)

func TestVerify(t *testing.T) {
	build := func(t *testing.T) *types.Distribution {
		d, err := Build(big.NewInt(1000), testBalances())
		require.NoError(t, err)
		return d
	}

	t.Run("Valid", func(t *testing.T) {
		require.NoError(t, Verify(build(t)))
	})

	t.Run("Tampered amount", func(t *testing.T) {
		d := build(t)
		d.Claims[1].Amount = uint256.NewInt(8)
		assert.ErrorIs(t, Verify(d), ErrCorruptDistribution)
	})

	t.Run("Tampered root", func(t *testing.T) {
		d := build(t)
		d.Root[0] ^= 0x01
		assert.ErrorIs(t, Verify(d), ErrCorruptDistribution)
	})

	t.Run("Tampered proof", func(t *testing.T) {
		d := build(t)
		d.Claims[0].Proof[0][5] ^= 0x10
		assert.ErrorIs(t, Verify(d), ErrCorruptDistribution)
	})

	t.Run("Swapped order", func(t *testing.T) {
		d := build(t)
		d.Claims[0], d.Claims[1] = d.Claims[1], d.Claims[0]
		assert.ErrorIs(t, Verify(d), ErrCorruptDistribution)
	})

	t.Run("Lowered total", func(t *testing.T) {
		d := build(t)
		d.TokenTotal = uint256.NewInt(1)
		assert.ErrorIs(t, Verify(d), ErrCorruptDistribution)
	})

	t.Run("Empty", func(t *testing.T) {
		assert.ErrorIs(t, Verify(nil), ErrEmptyDistribution)
	})
}
