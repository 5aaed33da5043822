// Package memory keeps collections in process memory. It backs tests and
// single-session deployments where nothing has to survive a restart.
package memory

import (
	"context"
	"sync"
)

type Backend struct {
	mu   sync.Mutex
	docs map[string][]byte
}

func New() *Backend {
	return &Backend{docs: make(map[string][]byte)}
}

func (b *Backend) Load(_ context.Context, collection string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return cloneBytes(b.docs[collection]), nil
}

// Mutate holds the backend lock for the whole read-modify-write, so
// concurrent writers are serialized rather than lost.
func (b *Backend) Mutate(ctx context.Context, collection string, fn func(current []byte) ([]byte, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	next, err := fn(cloneBytes(b.docs[collection]))
	if err != nil {
		return err
	}
	if next != nil {
		b.docs[collection] = cloneBytes(next)
	}
	return nil
}

func (b *Backend) Clear(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.docs = make(map[string][]byte)
	return nil
}

func (b *Backend) Ping(_ context.Context) error {
	return nil
}

func (b *Backend) Close() error {
	return nil
}

func cloneBytes(in []byte) []byte {
	if in == nil {
		return nil
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out
}
