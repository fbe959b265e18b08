package testutil

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const mockTokenABI = `[
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"transfer","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

var parsedMockTokenABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(mockTokenABI))
	if err != nil {
		panic(err)
	}
	return parsed
}()

// MockEthBackend is an in-process chain hosting a single ERC-20 token.
// Transactions are executed and mined the moment they are sent; a transfer
// larger than the sender's balance is mined with a failed receipt, as a
// reverting token contract would be.
type MockEthBackend struct {
	mu sync.Mutex

	chainID      *big.Int
	token        common.Address
	balances     map[common.Address]*big.Int
	nonces       map[common.Address]uint64
	receipts     map[common.Hash]*types.Receipt
	sent         []*types.Transaction
	currentBlock uint64

	// BaseFee is reported by HeaderByNumber
	BaseFee *big.Int
	// TipCapErr makes SuggestGasTipCap fail, exercising the fallback tip
	TipCapErr error
	// SendErr makes SendTransaction fail without mining anything
	SendErr error
	// RevertAll mines every transaction with a failed receipt
	RevertAll bool
	// WithholdReceipts executes transactions but never reports their receipts
	WithholdReceipts bool
}

// NewMockEthBackend creates a chain with the given id hosting token
func NewMockEthBackend(chainID uint64, token common.Address) *MockEthBackend {
	return &MockEthBackend{
		chainID:  new(big.Int).SetUint64(chainID),
		token:    token,
		balances: make(map[common.Address]*big.Int),
		nonces:   make(map[common.Address]uint64),
		receipts: make(map[common.Hash]*types.Receipt),
		BaseFee:  big.NewInt(1000000000),
	}
}

// SetBalance sets the token balance of account
func (m *MockEthBackend) SetBalance(account common.Address, amount *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[account] = new(big.Int).Set(amount)
}

// Balance returns the token balance of account
func (m *MockEthBackend) Balance(account common.Address) *big.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balanceLocked(account)
}

// SentTransactions returns every transaction accepted by SendTransaction
func (m *MockEthBackend) SentTransactions() []*types.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*types.Transaction{}, m.sent...)
}

func (m *MockEthBackend) balanceLocked(account common.Address) *big.Int {
	if b, ok := m.balances[account]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

func (m *MockEthBackend) ChainID(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(m.chainID), nil
}

func (m *MockEthBackend) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	if m.TipCapErr != nil {
		return nil, m.TipCapErr
	}
	return big.NewInt(2000000), nil
}

func (m *MockEthBackend) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &types.Header{
		Number:  new(big.Int).SetUint64(m.currentBlock),
		BaseFee: m.BaseFee,
	}, nil
}

func (m *MockEthBackend) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return 65000, nil
}

func (m *MockEthBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nonces[account], nil
}

func (m *MockEthBackend) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	if account == m.token {
		return []byte{0x60, 0x80}, nil
	}
	return nil, nil
}

func (m *MockEthBackend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	receipt, ok := m.receipts[txHash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

// CallContract answers balanceOf calls against the token
func (m *MockEthBackend) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if call.To == nil || *call.To != m.token {
		return nil, nil
	}
	method, args, err := decodeCall(call.Data)
	if err != nil {
		return nil, err
	}
	if method.Name != "balanceOf" {
		return nil, fmt.Errorf("mock token: unsupported call %s", method.Name)
	}

	m.mu.Lock()
	balance := m.balanceLocked(args[0].(common.Address))
	m.mu.Unlock()

	return method.Outputs.Pack(balance)
}

// SendTransaction executes tx immediately and stores its receipt
func (m *MockEthBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if m.SendErr != nil {
		return m.SendErr
	}

	from, err := types.Sender(types.LatestSignerForChainID(m.chainID), tx)
	if err != nil {
		return fmt.Errorf("mock chain: invalid signature: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if tx.Nonce() != m.nonces[from] {
		return fmt.Errorf("mock chain: nonce %d, expected %d", tx.Nonce(), m.nonces[from])
	}
	m.nonces[from]++
	m.currentBlock++
	m.sent = append(m.sent, tx)

	status := types.ReceiptStatusSuccessful
	if m.RevertAll || !m.executeLocked(from, tx) {
		status = types.ReceiptStatusFailed
	}

	if m.WithholdReceipts {
		return nil
	}
	m.receipts[tx.Hash()] = &types.Receipt{
		Type:        tx.Type(),
		Status:      status,
		TxHash:      tx.Hash(),
		GasUsed:     52000,
		BlockNumber: new(big.Int).SetUint64(m.currentBlock),
	}
	return nil
}

// executeLocked applies a token transfer, reporting false for a revert
func (m *MockEthBackend) executeLocked(from common.Address, tx *types.Transaction) bool {
	if tx.To() == nil || *tx.To() != m.token {
		return true
	}
	method, args, err := decodeCall(tx.Data())
	if err != nil || method.Name != "transfer" {
		return false
	}
	to := args[0].(common.Address)
	amount := args[1].(*big.Int)

	fromBalance := m.balanceLocked(from)
	if fromBalance.Cmp(amount) < 0 {
		return false
	}
	m.balances[from] = fromBalance.Sub(fromBalance, amount)
	toBalance := m.balanceLocked(to)
	m.balances[to] = toBalance.Add(toBalance, amount)
	return true
}

func decodeCall(data []byte) (*abi.Method, []interface{}, error) {
	if len(data) < 4 {
		return nil, nil, errors.New("mock token: calldata too short")
	}
	method, err := parsedMockTokenABI.MethodById(data[:4])
	if err != nil {
		return nil, nil, err
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, nil, err
	}
	return method, args, nil
}
