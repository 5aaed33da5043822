package redis_test

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"carelink/backend/internal/domain"
	"carelink/backend/internal/store"
	"carelink/backend/internal/store/redis"
)

type counter struct {
	domain.Record
	Hits int `json:"hits"`
}

func newBackend(t *testing.T) *redis.Backend {
	t.Helper()
	addr := os.Getenv("CARELINK_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CARELINK_TEST_REDIS_ADDR not set")
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: addr})
	b := redis.NewBackend(rdb, fmt.Sprintf("carelink-test-%d", time.Now().UnixNano()))
	ctx := context.Background()
	require.NoError(t, b.Ping(ctx))
	t.Cleanup(func() {
		_ = b.Clear(context.Background())
		_ = b.Close()
	})
	return b
}

func TestBackendConcurrentUpdates(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t)
	counters := store.NewCollection[counter, *counter](b, "counters")

	created, err := counters.Create(ctx, counter{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := counters.UpdateFunc(ctx, created.ID, 0, func(c *counter) error {
				c.Hits++
				return nil
			})
			if err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	got, ok, err := counters.GetByID(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 5, got.Hits)
}

func TestBackendClearRemovesPrefixedKeys(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t)
	counters := store.NewCollection[counter, *counter](b, "counters")

	_, err := counters.Create(ctx, counter{Hits: 1})
	require.NoError(t, err)
	require.NoError(t, b.Clear(ctx))

	data, err := b.Load(ctx, "counters")
	require.NoError(t, err)
	require.Nil(t, data)
}
