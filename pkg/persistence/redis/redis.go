package redis

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/persistence"
)

// Key prefixes for namespacing in Redis. The claimed set of a root is a
// single Redis set; SADD reports whether the member was new, which makes it
// the compare-and-set primitive for claims across processes.
const (
	keyPrefixClaimed     = "distributor:claimed:"
	keyPrefixDrain       = "distributor:drain:"
	keySchemaVersion     = "distributor:metadata:schema_version"
	currentSchemaVersion = "v1"

	// Index set suffix for listing drains (Redis doesn't support prefix iteration natively)
	keySuffixDrainIndex = ":index"

	operationTimeout = 5 * time.Second
)

// RedisPersistence is a production-ready persistence implementation using Redis.
// Several distributor processes can share one Redis and still admit exactly
// one successful claim per index.
type RedisPersistence struct {
	client    *redis.Client
	logger    *zap.Logger
	keyPrefix string
	mu        sync.RWMutex
	closed    bool
}

// RedisConfig holds the configuration for connecting to Redis
type RedisConfig struct {
	// Address is the Redis server address (host:port)
	Address string
	// Password is the optional Redis password
	Password string
	// DB is the Redis database number (0-15)
	DB int
	// KeyPrefix is an optional custom prefix for all keys (for multi-tenant setups).
	// "myapp:" results in keys like "myapp:distributor:claimed:0x...".
	KeyPrefix string
}

// NewRedisPersistence creates a new Redis-backed persistence layer.
func NewRedisPersistence(cfg *RedisConfig, logger *zap.Logger) (*RedisPersistence, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}

	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	rp := &RedisPersistence{
		client:    client,
		logger:    logger,
		keyPrefix: cfg.KeyPrefix,
	}

	if err := rp.initSchema(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Sugar().Infow("Redis persistence initialized", "address", cfg.Address, "db", cfg.DB, "key_prefix", cfg.KeyPrefix)

	return rp, nil
}

// prefixKey adds the custom key prefix (if configured) to a key
func (r *RedisPersistence) prefixKey(key string) string {
	if r.keyPrefix == "" {
		return key
	}
	return r.keyPrefix + key
}

func (r *RedisPersistence) claimedKey(root [32]byte) string {
	return r.prefixKey(keyPrefixClaimed + persistence.RootKey(root))
}

func (r *RedisPersistence) drainKey(root [32]byte, sequence uint64) string {
	return r.prefixKey(keyPrefixDrain + persistence.RootKey(root) + ":" + persistence.FormatIndex(sequence))
}

func (r *RedisPersistence) drainIndexKey(root [32]byte) string {
	return r.prefixKey(keyPrefixDrain + persistence.RootKey(root) + keySuffixDrainIndex)
}

// initSchema initializes or validates the schema version
func (r *RedisPersistence) initSchema(ctx context.Context) error {
	schemaKey := r.prefixKey(keySchemaVersion)

	existingVersion, err := r.client.Get(ctx, schemaKey).Result()
	if err == redis.Nil {
		return r.client.Set(ctx, schemaKey, currentSchemaVersion, 0).Err()
	}
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if existingVersion != currentSchemaVersion {
		return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, currentSchemaVersion)
	}

	return nil
}

// TryMarkClaimed adds index to the claimed set of root
func (r *RedisPersistence) TryMarkClaimed(root [32]byte, index uint64) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return false, persistence.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	added, err := r.client.SAdd(ctx, r.claimedKey(root), persistence.FormatIndex(index)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark index %d claimed: %w", index, err)
	}
	return added == 1, nil
}

// UnmarkClaimed removes index from the claimed set of root
func (r *RedisPersistence) UnmarkClaimed(root [32]byte, index uint64) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return persistence.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	if err := r.client.SRem(ctx, r.claimedKey(root), persistence.FormatIndex(index)).Err(); err != nil {
		return fmt.Errorf("failed to unmark index %d: %w", index, err)
	}
	return nil
}

// IsClaimed checks set membership
func (r *RedisPersistence) IsClaimed(root [32]byte, index uint64) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return false, persistence.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	claimed, err := r.client.SIsMember(ctx, r.claimedKey(root), persistence.FormatIndex(index)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to read claim state for index %d: %w", index, err)
	}
	return claimed, nil
}

// ListClaimed returns the members of the claimed set sorted ascending
func (r *RedisPersistence) ListClaimed(root [32]byte) ([]uint64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, persistence.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	members, err := r.client.SMembers(ctx, r.claimedKey(root)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list claimed indices: %w", err)
	}

	indices := make([]uint64, 0, len(members))
	for _, m := range members {
		index, err := persistence.ParseIndex(m)
		if err != nil {
			r.logger.Sugar().Warnw("Malformed claimed set member, skipping", "member", m, "error", err)
			continue
		}
		indices = append(indices, index)
	}
	sort.Slice(indices, func(i, j int) bool {
		return indices[i] < indices[j]
	})

	return indices, nil
}

// SaveDrainRecord stores the record and adds its sequence to the index set
// in one MULTI/EXEC transaction
func (r *RedisPersistence) SaveDrainRecord(record *persistence.DrainRecord) error {
	if err := record.Validate(); err != nil {
		return fmt.Errorf("cannot save drain record: %w", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return persistence.ErrClosed
	}

	root, _ := persistence.ParseRootKey(record.Root)
	data, err := persistence.MarshalDrainRecord(record)
	if err != nil {
		return fmt.Errorf("failed to marshal DrainRecord: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.drainKey(root, record.Sequence), data, 0)
		pipe.SAdd(ctx, r.drainIndexKey(root), persistence.FormatIndex(record.Sequence))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save DrainRecord: %w", err)
	}

	return nil
}

// ListDrainRecords returns all drains recorded for root sorted by sequence
func (r *RedisPersistence) ListDrainRecords(root [32]byte) ([]*persistence.DrainRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, persistence.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	indexKey := r.drainIndexKey(root)
	sequences, err := r.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list drain sequences: %w", err)
	}

	if len(sequences) == 0 {
		return []*persistence.DrainRecord{}, nil
	}

	keys := make([]string, 0, len(sequences))
	valid := make([]string, 0, len(sequences))
	for _, s := range sequences {
		seq, err := persistence.ParseIndex(s)
		if err != nil {
			r.logger.Sugar().Warnw("Malformed drain index member, skipping", "member", s, "error", err)
			continue
		}
		keys = append(keys, r.drainKey(root, seq))
		valid = append(valid, s)
	}
	if len(keys) == 0 {
		return []*persistence.DrainRecord{}, nil
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch DrainRecords: %w", err)
	}

	records := make([]*persistence.DrainRecord, 0, len(values))
	for i, val := range values {
		if val == nil {
			// Key was in index but doesn't exist - clean up index
			r.client.SRem(ctx, indexKey, valid[i])
			continue
		}

		data, ok := val.(string)
		if !ok {
			r.logger.Sugar().Warnw("Unexpected value type for DrainRecord", "key", keys[i])
			continue
		}

		record, err := persistence.UnmarshalDrainRecord([]byte(data))
		if err != nil {
			r.logger.Sugar().Warnw("Failed to unmarshal DrainRecord, skipping",
				"key", keys[i], "error", err)
			continue
		}

		records = append(records, record)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Sequence < records[j].Sequence
	})

	return records, nil
}

// Close shuts down the persistence layer
func (r *RedisPersistence) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	if err := r.client.Close(); err != nil {
		return fmt.Errorf("failed to close Redis client: %w", err)
	}

	r.logger.Sugar().Info("Redis persistence closed")
	return nil
}

// HealthCheck verifies the persistence layer is operational
func (r *RedisPersistence) HealthCheck() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return persistence.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}

	_, err := r.client.Get(ctx, r.prefixKey(keySchemaVersion)).Result()
	if err == redis.Nil {
		return fmt.Errorf("schema version not found - database may not be properly initialized")
	}
	if err != nil {
		return fmt.Errorf("failed to verify schema version: %w", err)
	}

	return nil
}
