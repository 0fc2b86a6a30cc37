// Package redis is an answer cache backend storing one hash per answer.
//
// Hash fields: v is the msgpack-encoded entry, h the access count and t the
// last access time in unix milliseconds.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/jajabor-ai/tutor/pkg/cache"
	"github.com/jajabor-ai/tutor/pkg/models"
)

// DefaultPrefix namespaces answer keys.
const DefaultPrefix = "answer"

const scanBatch = 200

// Backend stores answers in Redis. The caller owns the client lifecycle
// unless the Backend was built with Dial.
type Backend struct {
	client *redis.Client
	prefix string
	owned  bool
}

var _ cache.Backend = (*Backend)(nil)

// New wraps an existing client.
func New(client *redis.Client, prefix string) *Backend {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Backend{client: client, prefix: prefix}
}

// Dial connects to addr and pings it. Close closes the connection.
func Dial(ctx context.Context, addr, password string, db int, prefix string) (*Backend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	b := New(client, prefix)
	b.owned = true
	return b, nil
}

func (b *Backend) prefixKey(key string) string {
	return b.prefix + ":" + key
}

// Lookup returns the entry stored under key if it belongs to the subject
// and chapter.
func (b *Backend) Lookup(ctx context.Context, key, subjectID, chapterID string) (models.CacheEntry, error) {
	vals, err := b.client.HMGet(ctx, b.prefixKey(key), "v", "h", "t").Result()
	if err != nil {
		return models.CacheEntry{}, fmt.Errorf("cache lookup: %w", err)
	}
	raw, ok := vals[0].(string)
	if !ok {
		return models.CacheEntry{}, cache.ErrNotFound
	}

	var e models.CacheEntry
	if err := msgpack.Unmarshal([]byte(raw), &e); err != nil {
		return models.CacheEntry{}, fmt.Errorf("cache lookup: decode: %w", err)
	}
	if e.SubjectID != subjectID || e.ChapterID != chapterID {
		return models.CacheEntry{}, cache.ErrNotFound
	}
	if h, ok := vals[1].(string); ok {
		e.AccessCount, _ = strconv.ParseInt(h, 10, 64)
	}
	if t, ok := vals[2].(string); ok {
		if ms, err := strconv.ParseInt(t, 10, 64); err == nil {
			e.LastAccessedAt = time.UnixMilli(ms).UTC()
		}
	}
	return e, nil
}

// Upsert overwrites the hash for e.Key and resets its access count.
func (b *Backend) Upsert(ctx context.Context, e models.CacheEntry) error {
	data, err := msgpack.Marshal(e)
	if err != nil {
		return fmt.Errorf("cache upsert: %w", err)
	}
	k := b.prefixKey(e.Key)
	pipe := b.client.TxPipeline()
	pipe.Del(ctx, k)
	pipe.HSet(ctx, k, "v", data, "h", e.AccessCount, "t", e.LastAccessedAt.UnixMilli())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache upsert: %w", err)
	}
	return nil
}

// Touch increments the access count atomically.
func (b *Backend) Touch(ctx context.Context, e models.CacheEntry, at time.Time) error {
	k := b.prefixKey(e.Key)
	pipe := b.client.Pipeline()
	pipe.HIncrBy(ctx, k, "h", 1)
	pipe.HSet(ctx, k, "t", at.UnixMilli())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache touch: %w", err)
	}
	return nil
}

// Count scans the prefix and counts keys.
func (b *Backend) Count(ctx context.Context) (int64, error) {
	var n int64
	err := b.scan(ctx, func(keys []string) error {
		n += int64(len(keys))
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("cache count: %w", err)
	}
	return n, nil
}

// Clear deletes every key under the prefix.
func (b *Backend) Clear(ctx context.Context) error {
	err := b.scan(ctx, func(keys []string) error {
		return b.client.Del(ctx, keys...).Err()
	})
	if err != nil {
		return fmt.Errorf("cache clear: %w", err)
	}
	return nil
}

func (b *Backend) scan(ctx context.Context, fn func(keys []string) error) error {
	var cursor uint64
	for {
		keys, next, err := b.client.Scan(ctx, cursor, b.prefix+":*", scanBatch).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := fn(keys); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// Close closes the client if Dial created it.
func (b *Backend) Close() error {
	if b.owned {
		return b.client.Close()
	}
	return nil
}
