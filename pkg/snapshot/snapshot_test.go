package snapshot

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	wallet0 = "0x2c1929EE38950843211d1b22C31Ac18F5b23e0c0"
	wallet1 = "0xd001c8ADAbf28128845f18871CE1346EC078eE92"
)

func writeSnapshot(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "snapshot.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestReadSnapshotFile_Flat(t *testing.T) {
	path := writeSnapshot(t, `{
		"name": "Avatar",
		"totalSupply": "100",
		"holders": [
			{"address": "`+wallet0+`", "balance": "49"},
			{"address": "`+wallet1+`", "balance": "16"}
		]
	}`)

	s, err := ReadSnapshotFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Avatar", s.Name)
	require.Len(t, s.Holders, 2)

	supply, err := s.Supply()
	require.NoError(t, err)
	assert.Equal(t, int64(100), supply.Int64())

	out, err := s.Allocate(big.NewInt(1000))
	require.NoError(t, err)
	assert.Equal(t, int64(490), out[wallet0].Int64())
	assert.Equal(t, int64(160), out[wallet1].Int64())
}

func TestReadSnapshotFile_DaoLayout(t *testing.T) {
	path := writeSnapshot(t, `{
		"dao": {
			"name": "dOrg",
			"nativeReputation": {"totalSupply": 100},
			"avatarContract": {"name": "Avatar", "balance": 0},
			"reputationHolders": [
				{"address": "`+wallet0+`", "balance": 49},
				{"address": "`+wallet1+`", "balance": 16}
			]
		}
	}`)

	s, err := ReadSnapshotFile(path)
	require.NoError(t, err)
	assert.Equal(t, "dOrg", s.Name)

	weights, err := s.Weights()
	require.NoError(t, err)
	require.Len(t, weights, 2)
	assert.Equal(t, int64(49), weights[0].Amount.Int64())
}

func TestSnapshot_NoSupplyUsesHolderSum(t *testing.T) {
	s, err := ParseSnapshot([]byte(`{"holders": [
		{"address": "` + wallet0 + `", "balance": "1"},
		{"address": "` + wallet1 + `", "balance": "3"}
	]}`))
	require.NoError(t, err)
	require.NoError(t, s.Validate())

	out, err := s.Allocate(big.NewInt(8))
	require.NoError(t, err)
	assert.Equal(t, int64(2), out[wallet0].Int64())
	assert.Equal(t, int64(6), out[wallet1].Int64())
}

func TestSnapshot_Validate(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "no holders",
			body: `{"name": "empty", "holders": []}`,
		},
		{
			name: "bad address",
			body: `{"holders": [{"address": "0xnothex", "balance": "1"}]}`,
		},
		{
			name: "duplicate address",
			body: `{"holders": [
				{"address": "` + wallet0 + `", "balance": "1"},
				{"address": "0x2c1929ee38950843211d1b22c31ac18f5b23e0c0", "balance": "1"}
			]}`,
		},
		{
			name: "fractional balance",
			body: `{"holders": [{"address": "` + wallet0 + `", "balance": "1.5"}]}`,
		},
		{
			name: "negative balance",
			body: `{"holders": [{"address": "` + wallet0 + `", "balance": "-1"}]}`,
		},
		{
			name: "supply below holdings",
			body: `{"totalSupply": "1", "holders": [{"address": "` + wallet0 + `", "balance": "2"}]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := ParseSnapshot([]byte(tt.body))
			require.NoError(t, err)
			assert.ErrorIs(t, s.Validate(), ErrInvalidSnapshot)
		})
	}
}

func TestReadSnapshotFile_Errors(t *testing.T) {
	_, err := ReadSnapshotFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = ReadSnapshotFile(writeSnapshot(t, `{"holders": [`))
	assert.Error(t, err)
}
