package persistence

// IClaimPersistence stores the claimed set and drain history of one or more
// distributions. All state is namespaced by distribution root so a single
// backend can serve several distributions without collisions.
// All implementations must be thread-safe as claims are processed concurrently.
//
// The interface supports:
// - Claimed-set management (compare-and-set mark, rollback, lookup, listing)
// - Drain history (append, list)
// - Lifecycle management (close, health check)
type IClaimPersistence interface {
	// Claimed Set

	// TryMarkClaimed atomically flips index from unclaimed to claimed.
	// Returns true if this call performed the transition, false if the index
	// was already claimed. Returns error only on storage failure.
	TryMarkClaimed(root [32]byte, index uint64) (bool, error)

	// UnmarkClaimed clears a claimed flag. It exists only to roll back a mark
	// whose transfer failed. Idempotent - returns nil if index was not claimed.
	UnmarkClaimed(root [32]byte, index uint64) error

	// IsClaimed reports whether index has been claimed.
	// Returns false for unknown roots, error only on storage failure.
	IsClaimed(root [32]byte, index uint64) (bool, error)

	// ListClaimed returns all claimed indices for root sorted ascending.
	// Returns empty slice if nothing has been claimed.
	ListClaimed(root [32]byte) ([]uint64, error)

	// Drain History

	// SaveDrainRecord persists a drain. Records are keyed by root and sequence;
	// saving an existing sequence overwrites it.
	SaveDrainRecord(record *DrainRecord) error

	// ListDrainRecords returns all drains recorded for root sorted by sequence.
	// Returns empty slice if no drains exist.
	ListDrainRecords(root [32]byte) ([]*DrainRecord, error)

	// Lifecycle Management

	// Close cleanly shuts down the persistence layer.
	// Idempotent - safe to call multiple times.
	// After Close(), all other operations should return errors.
	Close() error

	// HealthCheck verifies the persistence layer is operational.
	// Returns nil if healthy, error describing the problem if not.
	HealthCheck() error
}
