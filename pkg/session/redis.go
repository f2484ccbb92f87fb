package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/voxmail/voxmail/pkg/errorsx"
)

const redisKeyPrefix = "voxmail:session:"

// redisStore persists snapshots in Redis so a replacement instance can
// resume calls after a crash. Optimistic locking rides on WATCH.
type redisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func (s *redisStore) Create(ctx context.Context, snap *Snapshot) error {
	now := time.Now()
	snap.CreatedAt = now
	snap.UpdatedAt = now
	snap.Version = 1

	val, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, redisKeyPrefix+snap.CallSID, val, s.ttl).Err(); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonSessionStore)
	}
	return nil
}

func (s *redisStore) Get(ctx context.Context, callSID string) (*Snapshot, error) {
	key := redisKeyPrefix + callSID
	val, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonSessionStore)
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(val), &snap); err != nil {
		return nil, err
	}
	// Keep the call alive as long as it is being read.
	_ = s.client.Expire(ctx, key, s.ttl).Err()
	return &snap, nil
}

func (s *redisStore) Update(ctx context.Context, snap *Snapshot) error {
	key := redisKeyPrefix + snap.CallSID

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		val, err := tx.Get(ctx, key).Result()
		if err == redis.Nil {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		var stored Snapshot
		if err := json.Unmarshal([]byte(val), &stored); err != nil {
			return err
		}
		if stored.Version != snap.Version {
			return ErrVersionConflict
		}

		snap.Version++
		snap.UpdatedAt = time.Now()
		newVal, err := json.Marshal(snap)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, newVal, s.ttl)
			return nil
		})
		return err
	}, key)

	if err != nil && err != ErrNotFound && err != ErrVersionConflict {
		return errorsx.Wrap(err, errorsx.ReasonSessionStore)
	}
	return err
}

func (s *redisStore) Delete(ctx context.Context, callSID string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+callSID).Err(); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonSessionStore)
	}
	return nil
}

func (s *redisStore) Close() error {
	return s.client.Close()
}
