package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/talecraft/api/internal/model"
)

const maxTxRetries = 5

// RedisRepository stores each record as JSON at fairytale:<id>, with a sorted
// set per owner (scored by creation time) and a set per status.
type RedisRepository struct {
	redis *redis.Client
	ttl   time.Duration // 0 keeps records forever
}

func NewRedisRepository(redisClient *redis.Client, ttl time.Duration) *RedisRepository {
	return &RedisRepository{redis: redisClient, ttl: ttl}
}

func recordKey(id string) string {
	return fmt.Sprintf("fairytale:%s", id)
}

func ownerKey(ownerID string) string {
	return fmt.Sprintf("fairytales:owner:%s", ownerID)
}

func statusKey(status model.Status) string {
	return fmt.Sprintf("fairytales:status:%s", status)
}

func (r *RedisRepository) Create(ctx context.Context, f *model.Fairytale) error {
	if !f.Status.IsValid() {
		return fmt.Errorf("failed to create fairytale: unknown status %q", f.Status)
	}
	if f.UpdatedAt.IsZero() {
		f.UpdatedAt = f.CreatedAt
	}
	f.Version = 1

	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to marshal fairytale: %w", err)
	}

	ok, err := r.redis.SetNX(ctx, recordKey(f.ID), data, r.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to create fairytale: %w", err)
	}
	if !ok {
		return fmt.Errorf("failed to create fairytale: id %s already exists", f.ID)
	}

	_, err = r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, ownerKey(f.OwnerID), redis.Z{Score: float64(f.CreatedAt.UnixMilli()), Member: f.ID})
		pipe.SAdd(ctx, statusKey(f.Status), f.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to index fairytale: %w", err)
	}
	return nil
}

func (r *RedisRepository) Get(ctx context.Context, id string) (*model.Fairytale, error) {
	return r.get(ctx, r.redis, id)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (r *RedisRepository) get(ctx context.Context, cmd getter, id string) (*model.Fairytale, error) {
	data, err := cmd.Get(ctx, recordKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get fairytale: %w", err)
	}

	var f model.Fairytale
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to unmarshal fairytale: %w", err)
	}
	return &f, nil
}

func (r *RedisRepository) Save(ctx context.Context, f *model.Fairytale) error {
	return r.update(ctx, f.ID, func(stored *model.Fairytale) (bool, error) {
		version := stored.Version
		*stored = *f
		stored.Version = version
		return true, nil
	}, func(saved *model.Fairytale) {
		f.Version = saved.Version
		f.UpdatedAt = saved.UpdatedAt
	})
}

func (r *RedisRepository) CompareAndSetStatus(ctx context.Context, id string, from, to model.Status, reason string) (bool, error) {
	applied := false
	err := r.update(ctx, id, func(stored *model.Fairytale) (bool, error) {
		if stored.Status != from {
			return false, nil
		}
		if !from.CanTransitionTo(to) {
			return false, fmt.Errorf("%w: %s -> %s", model.ErrInvalidTransition, from, to)
		}
		stored.Status = to
		stored.Error = reason
		applied = true
		return true, nil
	}, nil)
	if err != nil {
		return false, err
	}
	return applied, nil
}

// update runs a WATCH/MULTI read-modify-write on one record and keeps the
// status index in step with it.
func (r *RedisRepository) update(ctx context.Context, id string, mutate func(*model.Fairytale) (bool, error), done func(*model.Fairytale)) error {
	key := recordKey(id)

	txf := func(tx *redis.Tx) error {
		stored, err := r.get(ctx, tx, id)
		if err != nil {
			return err
		}
		previous := stored.Status

		write, err := mutate(stored)
		if err != nil || !write {
			return err
		}
		stored.Version++
		stored.UpdatedAt = time.Now().UTC()

		data, err := json.Marshal(stored)
		if err != nil {
			return fmt.Errorf("failed to marshal fairytale: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, r.ttl)
			if previous != stored.Status {
				pipe.SRem(ctx, statusKey(previous), id)
				pipe.SAdd(ctx, statusKey(stored.Status), id)
			}
			return nil
		})
		if err == nil && done != nil {
			done(stored)
		}
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := r.redis.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, model.ErrInvalidTransition) {
			return fmt.Errorf("failed to save fairytale: %w", err)
		}
		return err
	}
	return fmt.Errorf("failed to save fairytale %s: too much contention", id)
}

func (r *RedisRepository) ListByOwner(ctx context.Context, ownerID string) ([]*model.Fairytale, error) {
	ids, err := r.redis.ZRevRange(ctx, ownerKey(ownerID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list fairytales: %w", err)
	}

	records, missing, err := r.load(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 {
		r.redis.ZRem(ctx, ownerKey(ownerID), missing...)
	}
	return records, nil
}

func (r *RedisRepository) FindStuck(ctx context.Context, status model.Status, before time.Time) ([]*model.Fairytale, error) {
	ids, err := r.redis.SMembers(ctx, statusKey(status)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to scan status index: %w", err)
	}

	records, missing, err := r.load(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 {
		r.redis.SRem(ctx, statusKey(status), missing...)
	}

	stuck := make([]*model.Fairytale, 0, len(records))
	for _, f := range records {
		if f.Status == status && f.CreatedAt.Before(before) {
			stuck = append(stuck, f)
		}
	}
	return stuck, nil
}

// load fetches records in id order. Ids whose key expired or was removed are
// returned separately so the caller can prune its index.
func (r *RedisRepository) load(ctx context.Context, ids []string) ([]*model.Fairytale, []interface{}, error) {
	if len(ids) == 0 {
		return []*model.Fairytale{}, nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = recordKey(id)
	}

	values, err := r.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load fairytales: %w", err)
	}

	records := make([]*model.Fairytale, 0, len(values))
	var missing []interface{}
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			missing = append(missing, ids[i])
			continue
		}
		var f model.Fairytale
		if err := json.Unmarshal([]byte(raw), &f); err != nil {
			return nil, nil, fmt.Errorf("failed to unmarshal fairytale %s: %w", ids[i], err)
		}
		records = append(records, &f)
	}
	return records, missing, nil
}

func (r *RedisRepository) Delete(ctx context.Context, id string) error {
	f, err := r.Get(ctx, id)
	if err != nil {
		return err
	}

	_, err = r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, recordKey(id))
		pipe.ZRem(ctx, ownerKey(f.OwnerID), id)
		pipe.SRem(ctx, statusKey(f.Status), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete fairytale: %w", err)
	}
	return nil
}
