package claims

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/ledger"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/merkle"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/metrics"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/persistence"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/types"
)

// RegistryConfig fixes the parameters of one distribution
type RegistryConfig struct {
	// Root is the merkle root claims are verified against
	Root [32]byte

	// Claims are accepted while WindowStart <= now <= WindowEnd
	WindowStart time.Time
	WindowEnd   time.Time

	// Administrator is the only caller allowed to drain
	Administrator common.Address

	// Holder is the account the funds transfer pays out of
	Holder common.Address

	// ClaimCount is the number of slots in the distribution. Zero disables the
	// index range check and leaves out-of-range claims to fail proof verification.
	ClaimCount uint64
}

// Validate checks the configuration
func (c *RegistryConfig) Validate() error {
	if c.WindowEnd.Before(c.WindowStart) {
		return fmt.Errorf("window end %s is before window start %s", c.WindowEnd, c.WindowStart)
	}
	if c.Administrator == (common.Address{}) {
		return fmt.Errorf("administrator cannot be the zero address")
	}
	return nil
}

// TransferAuthorization describes a claim that has been marked and paid
type TransferAuthorization struct {
	Index     uint64
	Account   common.Address
	Amount    *uint256.Int
	ClaimedAt time.Time
}

// DrainRequest asks for the holder balance to be moved to Destination
type DrainRequest struct {
	Caller      common.Address
	Destination common.Address

	// Amount nil drains the whole held balance
	Amount *uint256.Int

	// Sequence, when set, must equal the number of drains already performed
	Sequence *uint64
}

// Registry accepts proofs against a single root and pays each index at most once.
//
// Check-then-mark runs under mu and the persistence mark is itself
// compare-and-set, so concurrent claims of one index admit a single winner
// even across processes sharing a backend. The transfer runs outside the
// lock. A failed transfer rolls the mark back; a transfer whose outcome is
// unknown keeps it.
type Registry struct {
	cfg    RegistryConfig
	store  persistence.IClaimPersistence
	funds  ledger.IFundsTransfer
	logger *zap.Logger

	mu      sync.Mutex
	drainMu sync.Mutex
}

// NewRegistry creates a registry for cfg.Root
func NewRegistry(cfg *RegistryConfig, store persistence.IClaimPersistence, funds ledger.IFundsTransfer, logger *zap.Logger) (*Registry, error) {
	if cfg == nil {
		return nil, fmt.Errorf("registry config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid registry config: %w", err)
	}
	if store == nil {
		return nil, fmt.Errorf("claim persistence is required")
	}
	if funds == nil {
		return nil, fmt.Errorf("funds transfer is required")
	}

	r := &Registry{
		cfg:    *cfg,
		store:  store,
		funds:  funds,
		logger: logger,
	}

	claimed, err := store.ListClaimed(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to load claimed set: %w", err)
	}
	metrics.ClaimsPaid.WithLabelValues(persistence.RootKey(cfg.Root)).Set(float64(len(claimed)))

	logger.Sugar().Infow("Claim registry initialized",
		"root", persistence.RootKey(cfg.Root),
		"windowStart", cfg.WindowStart.Unix(),
		"windowEnd", cfg.WindowEnd.Unix(),
		"administrator", cfg.Administrator.Hex(),
		"holder", cfg.Holder.Hex(),
		"claimCount", cfg.ClaimCount,
		"alreadyClaimed", len(claimed),
	)

	return r, nil
}

// Claim verifies claim against the root, marks its index and pays it.
func (r *Registry) Claim(ctx context.Context, claim *types.Claim, now time.Time) (*TransferAuthorization, error) {
	auth, result, err := r.claim(ctx, claim, now)
	metrics.ClaimAttempts.WithLabelValues(result).Inc()
	return auth, err
}

func (r *Registry) claim(ctx context.Context, claim *types.Claim, now time.Time) (*TransferAuthorization, string, error) {
	if now.Before(r.cfg.WindowStart) {
		return nil, metrics.ResultWindowNotOpen, fmt.Errorf("claims open at %s: %w", r.cfg.WindowStart.UTC().Format(time.RFC3339), ErrWindowNotOpen)
	}
	if now.After(r.cfg.WindowEnd) {
		return nil, metrics.ResultWindowElapsed, fmt.Errorf("claims closed at %s: %w", r.cfg.WindowEnd.UTC().Format(time.RFC3339), ErrWindowElapsed)
	}
	if claim == nil || claim.Amount == nil {
		return nil, metrics.ResultInvalidProof, fmt.Errorf("claim is incomplete: %w", ErrInvalidProof)
	}

	index := claim.Index
	if r.cfg.ClaimCount > 0 && index >= r.cfg.ClaimCount {
		return nil, metrics.ResultOutOfRange, fmt.Errorf("index %d, claim count %d: %w", index, r.cfg.ClaimCount, ErrIndexOutOfRange)
	}

	if result, err := r.mark(claim); err != nil {
		return nil, result, err
	}

	if err := r.funds.Transfer(ctx, claim.Account, claim.Amount); err != nil {
		if errors.Is(err, ledger.ErrTransferUnconfirmed) {
			// The payment may settle, so the index must not become claimable again
			metrics.ClaimsPaid.WithLabelValues(persistence.RootKey(r.cfg.Root)).Inc()
			r.logger.Sugar().Errorw("Claim transfer outcome unknown, index kept claimed",
				"index", index,
				"account", claim.Account.Hex(),
				"amount", claim.Amount.Dec(),
				"error", err,
			)
			return nil, metrics.ResultUnconfirmed, fmt.Errorf("index %d: %w", index, err)
		}
		result, rerr := r.rollback(index, err)
		return nil, result, rerr
	}

	metrics.ClaimsPaid.WithLabelValues(persistence.RootKey(r.cfg.Root)).Inc()
	metrics.ClaimedAmount.Add(metrics.ToFloat(claim.Amount))
	r.logger.Sugar().Infow("Claim paid",
		"index", index,
		"account", claim.Account.Hex(),
		"amount", claim.Amount.Dec(),
	)

	return &TransferAuthorization{
		Index:     index,
		Account:   claim.Account,
		Amount:    claim.Amount.Clone(),
		ClaimedAt: now,
	}, metrics.ResultClaimed, nil
}

// mark performs the claimed check, the proof check and the compare-and-set
// mark as one step with respect to other claims in this process
func (r *Registry) mark(claim *types.Claim) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	index := claim.Index
	claimed, err := r.store.IsClaimed(r.cfg.Root, index)
	if err != nil {
		return metrics.ResultStorageError, fmt.Errorf("failed to read claim state: %w", err)
	}
	if claimed {
		return metrics.ResultAlreadyClaimed, fmt.Errorf("index %d: %w", index, ErrAlreadyClaimed)
	}

	leaf := merkle.HashSlot(&claim.ClaimSlot)
	if !merkle.VerifyProof(leaf, index, claim.Proof, r.cfg.Root) {
		return metrics.ResultInvalidProof, fmt.Errorf("index %d account %s: %w", index, claim.Account.Hex(), ErrInvalidProof)
	}

	marked, err := r.store.TryMarkClaimed(r.cfg.Root, index)
	if err != nil {
		return metrics.ResultStorageError, fmt.Errorf("failed to mark claim: %w", err)
	}
	if !marked {
		// Another process sharing the backend won the race
		return metrics.ResultAlreadyClaimed, fmt.Errorf("index %d: %w", index, ErrAlreadyClaimed)
	}
	return "", nil
}

// rollback clears the mark of a claim whose transfer failed and classifies
// the transfer error
func (r *Registry) rollback(index uint64, transferErr error) (string, error) {
	if err := r.store.UnmarkClaimed(r.cfg.Root, index); err != nil {
		// The index stays marked without having been paid; needs manual repair
		r.logger.Sugar().Errorw("Failed to roll back claim mark",
			"index", index,
			"transferError", transferErr,
			"error", err,
		)
	} else {
		metrics.TransferRollbacks.Inc()
	}

	r.logger.Sugar().Warnw("Claim transfer failed, mark rolled back", "index", index, "error", transferErr)

	if errors.Is(transferErr, ledger.ErrInsufficientFunds) {
		return metrics.ResultInsufficientFunds, fmt.Errorf("index %d: %w", index, transferErr)
	}
	return metrics.ResultTransferFailed, fmt.Errorf("index %d: %w: %w", index, ErrTransferFailed, transferErr)
}

// Drain moves amount from the holder to destination. Only the administrator
// may drain; the claimed set is not touched.
func (r *Registry) Drain(ctx context.Context, caller, destination common.Address, amount *uint256.Int) (*persistence.DrainRecord, error) {
	if amount == nil {
		return nil, fmt.Errorf("drain amount is nil, use DrainAll to drain the whole balance")
	}
	return r.DrainSequenced(ctx, &DrainRequest{
		Caller:      caller,
		Destination: destination,
		Amount:      amount,
	})
}

// DrainAll moves the entire holder balance to destination
func (r *Registry) DrainAll(ctx context.Context, caller, destination common.Address) (*persistence.DrainRecord, error) {
	return r.DrainSequenced(ctx, &DrainRequest{
		Caller:      caller,
		Destination: destination,
	})
}

// DrainSequenced performs a drain, optionally pinned to a sequence number
// that was bound into an authorization signature.
func (r *Registry) DrainSequenced(ctx context.Context, req *DrainRequest) (*persistence.DrainRecord, error) {
	record, err := r.drain(ctx, req)
	if err != nil {
		result := "failed"
		switch {
		case errors.Is(err, ErrNotAuthorized):
			result = "unauthorized"
		case errors.Is(err, ErrTransferUnconfirmed):
			result = "unconfirmed"
		}
		metrics.Drains.WithLabelValues(result).Inc()
		return nil, err
	}
	metrics.Drains.WithLabelValues("drained").Inc()
	return record, nil
}

func (r *Registry) drain(ctx context.Context, req *DrainRequest) (*persistence.DrainRecord, error) {
	if req == nil {
		return nil, fmt.Errorf("drain request is nil")
	}
	if req.Caller != r.cfg.Administrator {
		return nil, fmt.Errorf("caller %s: %w", req.Caller.Hex(), ErrNotAuthorized)
	}

	r.drainMu.Lock()
	defer r.drainMu.Unlock()

	sequence, err := r.DrainCount()
	if err != nil {
		return nil, err
	}
	if req.Sequence != nil && *req.Sequence != sequence {
		return nil, fmt.Errorf("authorized for sequence %d, next is %d: %w", *req.Sequence, sequence, ErrStaleDrainSequence)
	}

	amount := req.Amount
	if amount == nil {
		amount, err = r.funds.BalanceOf(ctx, r.cfg.Holder)
		if err != nil {
			return nil, fmt.Errorf("failed to read holder balance: %w", err)
		}
	}

	record := &persistence.DrainRecord{
		Sequence:    sequence,
		Root:        persistence.RootKey(r.cfg.Root),
		Caller:      req.Caller.Hex(),
		Destination: req.Destination.Hex(),
		Amount:      amount.Dec(),
	}

	if err := r.funds.Transfer(ctx, req.Destination, amount); err != nil {
		switch {
		case errors.Is(err, ledger.ErrInsufficientFunds):
			return nil, fmt.Errorf("drain: %w", err)
		case errors.Is(err, ledger.ErrTransferUnconfirmed):
			return nil, r.saveUnconfirmedDrain(record, err)
		}
		return nil, fmt.Errorf("drain: %w: %w", ErrTransferFailed, err)
	}

	record.Status = persistence.DrainStatusConfirmed
	record.Timestamp = time.Now().Unix()
	if err := r.store.SaveDrainRecord(record); err != nil {
		// Funds have moved; the next drain would reuse this sequence
		r.logger.Sugar().Errorw("Drain transferred but record was not saved",
			"sequence", sequence,
			"destination", record.Destination,
			"amount", record.Amount,
			"error", err,
		)
		return nil, fmt.Errorf("failed to save drain record: %w", err)
	}

	r.logger.Sugar().Infow("Holder drained",
		"sequence", sequence,
		"destination", record.Destination,
		"amount", record.Amount,
	)
	return record, nil
}

// saveUnconfirmedDrain records a drain whose transfer may have settled. The
// record consumes its sequence so the authorization that produced it cannot
// be used again.
func (r *Registry) saveUnconfirmedDrain(record *persistence.DrainRecord, transferErr error) error {
	record.Status = persistence.DrainStatusUnconfirmed
	record.Timestamp = time.Now().Unix()

	if err := r.store.SaveDrainRecord(record); err != nil {
		r.logger.Sugar().Errorw("Drain outcome unknown and record was not saved",
			"sequence", record.Sequence,
			"destination", record.Destination,
			"amount", record.Amount,
			"transferError", transferErr,
			"error", err,
		)
		return fmt.Errorf("drain: %w: failed to save drain record: %w", transferErr, err)
	}

	r.logger.Sugar().Errorw("Drain outcome unknown, sequence consumed",
		"sequence", record.Sequence,
		"destination", record.Destination,
		"amount", record.Amount,
		"error", transferErr,
	)
	return fmt.Errorf("drain sequence %d: %w", record.Sequence, transferErr)
}

// Root returns the distribution root
func (r *Registry) Root() [32]byte {
	return r.cfg.Root
}

// Window returns the claim window bounds
func (r *Registry) Window() (time.Time, time.Time) {
	return r.cfg.WindowStart, r.cfg.WindowEnd
}

// Administrator returns the drain administrator
func (r *Registry) Administrator() common.Address {
	return r.cfg.Administrator
}

// Holder returns the account claims are paid from
func (r *Registry) Holder() common.Address {
	return r.cfg.Holder
}

// ClaimCount returns the configured number of slots
func (r *Registry) ClaimCount() uint64 {
	return r.cfg.ClaimCount
}

// IsClaimed reports whether index has been paid
func (r *Registry) IsClaimed(index uint64) (bool, error) {
	return r.store.IsClaimed(r.cfg.Root, index)
}

// ClaimedIndices lists the paid indices in ascending order
func (r *Registry) ClaimedIndices() ([]uint64, error) {
	return r.store.ListClaimed(r.cfg.Root)
}

// Drains lists the drains performed against the root
func (r *Registry) Drains() ([]*persistence.DrainRecord, error) {
	return r.store.ListDrainRecords(r.cfg.Root)
}

// DrainCount returns the number of drains performed, which is also the
// sequence number the next drain authorization must carry
func (r *Registry) DrainCount() (uint64, error) {
	records, err := r.store.ListDrainRecords(r.cfg.Root)
	if err != nil {
		return 0, fmt.Errorf("failed to list drains: %w", err)
	}
	return uint64(len(records)), nil
}

// HealthCheck checks the claim-state backend
func (r *Registry) HealthCheck() error {
	return r.store.HealthCheck()
}

// HeldBalance returns the holder's current balance
func (r *Registry) HeldBalance(ctx context.Context) (*uint256.Int, error) {
	return r.funds.BalanceOf(ctx, r.cfg.Holder)
}
