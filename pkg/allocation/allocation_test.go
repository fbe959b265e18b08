package allocation

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/distribution"
)

const (
	wallet0 = "0x2c1929EE38950843211d1b22C31Ac18F5b23e0c0"
	wallet1 = "0xd001c8ADAbf28128845f18871CE1346EC078eE92"
)

func tokens(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad amount " + s)
	}
	return v
}

func TestProportional_ExplicitSupply(t *testing.T) {
	// Two holders of 49 and 16 out of a reputation supply of 100
	weights := []Weight{
		{Address: wallet0, Amount: big.NewInt(49)},
		{Address: wallet1, Amount: big.NewInt(16)},
	}
	total := tokens("10000000000000000000000")

	out, err := Proportional(total, weights, big.NewInt(100))
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "4900000000000000000000", out[wallet0].String())
	assert.Equal(t, "1600000000000000000000", out[wallet1].String())

	assert.Equal(t, "3500000000000000000000", Dust(total, out).String())
}

func TestProportional_DefaultSupplyFloors(t *testing.T) {
	weights := []Weight{
		{Address: wallet0, Amount: big.NewInt(1)},
		{Address: wallet1, Amount: big.NewInt(2)},
	}

	out, err := Proportional(big.NewInt(100), weights, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(33), out[wallet0].Int64())
	assert.Equal(t, int64(66), out[wallet1].Int64())
	assert.Equal(t, int64(1), Dust(big.NewInt(100), out).Int64())
}

func TestProportional_NormalizesKeys(t *testing.T) {
	out, err := Proportional(big.NewInt(10), []Weight{
		{Address: "0x2c1929ee38950843211d1b22c31ac18f5b23e0c0", Amount: big.NewInt(1)},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(10), out[wallet0].Int64())
}

func TestProportional_Errors(t *testing.T) {
	one := big.NewInt(1)
	tests := []struct {
		name    string
		total   *big.Int
		weights []Weight
		supply  *big.Int
		wantErr error
	}{
		{
			name:    "nil total",
			weights: []Weight{{Address: wallet0, Amount: one}},
			wantErr: distribution.ErrInvalidInput,
		},
		{
			name:    "negative total",
			total:   big.NewInt(-1),
			weights: []Weight{{Address: wallet0, Amount: one}},
			wantErr: distribution.ErrInvalidInput,
		},
		{
			name:    "no weights",
			total:   one,
			wantErr: distribution.ErrEmptyDistribution,
		},
		{
			name:    "negative weight",
			total:   one,
			weights: []Weight{{Address: wallet0, Amount: big.NewInt(-5)}},
			wantErr: distribution.ErrInvalidInput,
		},
		{
			name:    "zero supply",
			total:   one,
			weights: []Weight{{Address: wallet0, Amount: big.NewInt(0)}},
			wantErr: ErrZeroSupply,
		},
		{
			name:    "weights exceed supply",
			total:   one,
			weights: []Weight{{Address: wallet0, Amount: big.NewInt(5)}},
			supply:  big.NewInt(4),
			wantErr: distribution.ErrInvalidInput,
		},
		{
			name:    "bad address",
			total:   one,
			weights: []Weight{{Address: "0x1234", Amount: one}},
			wantErr: distribution.ErrInvalidAddress,
		},
		{
			name:  "duplicate after normalization",
			total: one,
			weights: []Weight{
				{Address: wallet0, Amount: one},
				{Address: "0x2C1929EE38950843211D1B22C31AC18F5B23E0C0", Amount: one},
			},
			wantErr: distribution.ErrDuplicateAddress,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Proportional(tt.total, tt.weights, tt.supply)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestProportional_FeedsBuilder(t *testing.T) {
	total := big.NewInt(1000)
	out, err := Proportional(total, []Weight{
		{Address: wallet0, Amount: big.NewInt(3)},
		{Address: wallet1, Amount: big.NewInt(7)},
	}, nil)
	require.NoError(t, err)

	d, err := distribution.Build(total, out)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), d.AllocatedTotal().Uint64())
}
