package memory

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/persistence"
)

// MemoryPersistence is an in-memory implementation of IClaimPersistence.
// This implementation is intended for TESTING and single-process demos.
//
// All data is stored in memory and will be lost when the process exits.
// Thread-safe using sync.RWMutex for concurrent access.
// Drain records are copied on the way in and out to prevent external mutation.
type MemoryPersistence struct {
	mu sync.RWMutex

	// Claimed sets: root -> index -> claimed
	claimed map[[32]byte]map[uint64]struct{}

	// Drain history: root -> sequence -> record
	drains map[[32]byte]map[uint64]*persistence.DrainRecord

	closed bool
}

// NewMemoryPersistence creates a new in-memory persistence layer.
// Prints a loud warning since claim state is lost on restart.
func NewMemoryPersistence() *MemoryPersistence {
	fmt.Println("⚠️  WARNING: Using in-memory persistence - CLAIM STATE WILL BE LOST ON RESTART")
	fmt.Println("⚠️  A restarted server would pay every claim again. Set DISTRIBUTOR_PERSISTENCE_TYPE=badger or redis for production")

	return &MemoryPersistence{
		claimed: make(map[[32]byte]map[uint64]struct{}),
		drains:  make(map[[32]byte]map[uint64]*persistence.DrainRecord),
	}
}

// TryMarkClaimed flips index to claimed if it is not already.
func (m *MemoryPersistence) TryMarkClaimed(root [32]byte, index uint64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false, persistence.ErrClosed
	}

	set, ok := m.claimed[root]
	if !ok {
		set = make(map[uint64]struct{})
		m.claimed[root] = set
	}
	if _, exists := set[index]; exists {
		return false, nil
	}
	set[index] = struct{}{}
	return true, nil
}

// UnmarkClaimed clears a claimed flag.
func (m *MemoryPersistence) UnmarkClaimed(root [32]byte, index uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return persistence.ErrClosed
	}

	if set, ok := m.claimed[root]; ok {
		delete(set, index)
	}
	return nil
}

// IsClaimed reports whether index has been claimed.
func (m *MemoryPersistence) IsClaimed(root [32]byte, index uint64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return false, persistence.ErrClosed
	}

	_, exists := m.claimed[root][index]
	return exists, nil
}

// ListClaimed returns the claimed indices for root in ascending order.
func (m *MemoryPersistence) ListClaimed(root [32]byte) ([]uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, persistence.ErrClosed
	}

	set := m.claimed[root]
	indices := make([]uint64, 0, len(set))
	for index := range set {
		indices = append(indices, index)
	}
	sort.Slice(indices, func(i, j int) bool {
		return indices[i] < indices[j]
	})

	return indices, nil
}

// SaveDrainRecord persists a drain record.
func (m *MemoryPersistence) SaveDrainRecord(record *persistence.DrainRecord) error {
	if err := record.Validate(); err != nil {
		return fmt.Errorf("cannot save drain record: %w", err)
	}
	root, _ := persistence.ParseRootKey(record.Root)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return persistence.ErrClosed
	}

	byRoot, ok := m.drains[root]
	if !ok {
		byRoot = make(map[uint64]*persistence.DrainRecord)
		m.drains[root] = byRoot
	}
	copied := *record
	byRoot[record.Sequence] = &copied

	return nil
}

// ListDrainRecords returns all drains for root sorted by sequence.
func (m *MemoryPersistence) ListDrainRecords(root [32]byte) ([]*persistence.DrainRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, persistence.ErrClosed
	}

	byRoot := m.drains[root]
	result := make([]*persistence.DrainRecord, 0, len(byRoot))
	for _, record := range byRoot {
		copied := *record
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Sequence < result[j].Sequence
	})

	return result, nil
}

// Close marks the persistence layer as closed.
func (m *MemoryPersistence) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

// HealthCheck returns an error once the layer is closed.
func (m *MemoryPersistence) HealthCheck() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return persistence.ErrClosed
	}
	return nil
}
