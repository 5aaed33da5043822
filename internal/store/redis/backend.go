// Package redis stores each collection under one Redis string key and
// writes it back with WATCH/MULTI optimistic transactions.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

const defaultMaxRetries = 8

var ErrTooManyRetries = errors.New("redis: collection kept changing during write")

type Backend struct {
	rdb        *redis.Client
	prefix     string
	maxRetries int
}

func NewBackend(rdb *redis.Client, prefix string) *Backend {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "carelink"
	}
	return &Backend{rdb: rdb, prefix: prefix, maxRetries: defaultMaxRetries}
}

func (b *Backend) key(collection string) string {
	return b.prefix + ":collection:" + collection
}

func (b *Backend) Load(ctx context.Context, collection string) ([]byte, error) {
	data, err := b.rdb.Get(ctx, b.key(collection)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return data, err
}

// Mutate retries when another writer touched the key between the read and
// the EXEC; fn runs again against the fresh value each time.
func (b *Backend) Mutate(ctx context.Context, collection string, fn func(current []byte) ([]byte, error)) error {
	key := b.key(collection)
	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		next, err := fn(current)
		if err != nil {
			return err
		}
		if next == nil {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, 0)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < b.maxRetries; attempt++ {
		err := b.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("%w: %s", ErrTooManyRetries, collection)
}

func (b *Backend) Clear(ctx context.Context) error {
	var keys []string
	iter := b.rdb.Scan(ctx, 0, b.prefix+":collection:*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return b.rdb.Del(ctx, keys...).Err()
}

func (b *Backend) Ping(ctx context.Context) error {
	return b.rdb.Ping(ctx).Err()
}

func (b *Backend) Close() error {
	return b.rdb.Close()
}
