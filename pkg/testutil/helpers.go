package testutil

import (
	"crypto/ecdsa"
	"encoding/binary"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/distribution"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/logger"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/types"
)

// NewTestLogger returns the non-debug production logger used across tests
func NewTestLogger(t *testing.T) *zap.Logger {
	t.Helper()
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	return l
}

// NewTestKey generates a fresh secp256k1 key and its address
func NewTestKey(t *testing.T) (*ecdsa.PrivateKey, common.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}
	return key, crypto.PubkeyToAddress(key.PublicKey)
}

// TestAddress derives a deterministic address from i
func TestAddress(i int) common.Address {
	var seed [8]byte
	binary.BigEndian.PutUint64(seed[:], uint64(i))
	return common.BytesToAddress(crypto.Keccak256(seed[:]))
}

// TestBalances returns n accounts holding 100, 101, 102, ... tokens
func TestBalances(n int) map[string]*big.Int {
	balances := make(map[string]*big.Int, n)
	for i := 0; i < n; i++ {
		balances[TestAddress(i).Hex()] = big.NewInt(int64(100 + i))
	}
	return balances
}

// SumBalances adds up a balance map
func SumBalances(balances map[string]*big.Int) *big.Int {
	total := new(big.Int)
	for _, b := range balances {
		total.Add(total, b)
	}
	return total
}

// BuildTestDistribution builds a distribution of n accounts whose token
// total equals the allocated amount
func BuildTestDistribution(t *testing.T, n int) *types.Distribution {
	t.Helper()
	balances := TestBalances(n)
	d, err := distribution.Build(SumBalances(balances), balances)
	if err != nil {
		t.Fatalf("Failed to build distribution: %v", err)
	}
	return d
}
