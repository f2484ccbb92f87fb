package session

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/voxmail/voxmail/pkg/conversation"
)

var (
	ErrInvalidConfig    = errors.New("invalid store configuration")
	ErrInvalidStoreType = errors.New("invalid store type")
	ErrVersionConflict  = errors.New("session version conflict")
	ErrNotFound         = errors.New("session not found")
)

// Snapshot is the serializable state of one call's conversation. It is
// written after each turn so a restarted instance can pick the call back
// up mid-draft.
type Snapshot struct {
	CallSID   string              `json:"call_sid"`
	StreamID  string              `json:"stream_id,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
	Version   int64               `json:"version"`
	State     *conversation.State `json:"state"`
}

// Store persists conversation snapshots between turns. Updates use
// optimistic locking: Version must match the stored snapshot, and is
// incremented on success.
type Store interface {
	// Create stores a new snapshot with Version set to 1.
	Create(ctx context.Context, snap *Snapshot) error
	// Get returns the snapshot for a call, or nil when none exists.
	Get(ctx context.Context, callSID string) (*Snapshot, error)
	// Update persists a snapshot when its Version matches the stored
	// one. Returns ErrVersionConflict otherwise, ErrNotFound when the
	// call is unknown.
	Update(ctx context.Context, snap *Snapshot) error
	// Delete removes a call's snapshot.
	Delete(ctx context.Context, callSID string) error
	// Close releases store resources.
	Close() error
}

// StoreType selects a persistence driver.
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeRedis  StoreType = "redis"
)

// StoreOption configures a store at construction.
type StoreOption func(*storeConfig)

type storeConfig struct {
	redisClient *redis.Client
	redisTTL    time.Duration
}

func WithRedisClient(client *redis.Client) StoreOption {
	return func(c *storeConfig) { c.redisClient = client }
}

func WithRedisTTL(ttl time.Duration) StoreOption {
	return func(c *storeConfig) { c.redisTTL = ttl }
}

// NewStore builds a store for the requested driver. Redis requires
// WithRedisClient.
func NewStore(storeType StoreType, opts ...StoreOption) (Store, error) {
	cfg := &storeConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	switch storeType {
	case StoreTypeMemory:
		return newMemoryStore(), nil
	case StoreTypeRedis:
		if cfg.redisClient == nil {
			return nil, ErrInvalidConfig
		}
		ttl := cfg.redisTTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		return &redisStore{client: cfg.redisClient, ttl: ttl}, nil
	default:
		return nil, ErrInvalidStoreType
	}
}
