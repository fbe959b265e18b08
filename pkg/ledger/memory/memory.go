package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/ledger"
)

// InMemoryLedger is a balance book whose transfers always debit one holder.
// Thread-safe; balances never go negative and never overflow.
type InMemoryLedger struct {
	mu       sync.Mutex
	holder   common.Address
	balances map[common.Address]*uint256.Int
	logger   *zap.Logger
}

// NewInMemoryLedger creates a ledger that pays out of holder
func NewInMemoryLedger(holder common.Address, logger *zap.Logger) *InMemoryLedger {
	return &InMemoryLedger{
		holder:   holder,
		balances: make(map[common.Address]*uint256.Int),
		logger:   logger,
	}
}

// Holder returns the account transfers are debited from
func (l *InMemoryLedger) Holder() common.Address {
	return l.holder
}

// Mint credits amount to account
func (l *InMemoryLedger) Mint(account common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	current := l.balanceLocked(account)
	if _, overflow := current.AddOverflow(current, amount); overflow {
		return fmt.Errorf("minting %s to %s overflows 256 bits", amount.Dec(), account.Hex())
	}
	l.balances[account] = current
	return nil
}

// Transfer moves amount from the holder to to
func (l *InMemoryLedger) Transfer(ctx context.Context, to common.Address, amount *uint256.Int) error {
	if amount == nil {
		return fmt.Errorf("transfer amount is nil")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	from := l.balanceLocked(l.holder)
	if from.Lt(amount) {
		return fmt.Errorf("holder %s has %s, transfer needs %s: %w",
			l.holder.Hex(), from.Dec(), amount.Dec(), ledger.ErrInsufficientFunds)
	}

	if to == l.holder {
		l.logger.Sugar().Debugw("Ledger transfer", "to", to.Hex(), "amount", amount.Dec())
		return nil
	}
	dest := l.balanceLocked(to)
	if _, overflow := dest.AddOverflow(dest, amount); overflow {
		return fmt.Errorf("crediting %s to %s overflows 256 bits", amount.Dec(), to.Hex())
	}

	l.balances[l.holder] = from.Sub(from, amount)
	l.balances[to] = dest

	l.logger.Sugar().Debugw("Ledger transfer", "to", to.Hex(), "amount", amount.Dec())
	return nil
}

// BalanceOf returns a copy of the balance of holder
func (l *InMemoryLedger) BalanceOf(ctx context.Context, holder common.Address) (*uint256.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balanceLocked(holder), nil
}

func (l *InMemoryLedger) balanceLocked(account common.Address) *uint256.Int {
	if b, ok := l.balances[account]; ok {
		return b.Clone()
	}
	return new(uint256.Int)
}
