package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"

	"carelink/backend/internal/domain"
)

// Model is satisfied by pointers to structs embedding domain.Record.
type Model[T any] interface {
	*T
	Meta() *domain.Record
}

// Patch is a partial record keyed by JSON field name.
type Patch map[string]any

type options struct {
	now   func() time.Time
	newID func() (string, error)
}

type Option func(*options)

func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func WithIDGenerator(fn func() (string, error)) Option {
	return func(o *options) {
		if fn != nil {
			o.newID = fn
		}
	}
}

func newUUIDv7() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Collection is a typed view over one named collection of a Backend. Each
// call loads the whole collection, and every mutation writes it back in a
// single Backend.Mutate round trip.
type Collection[T any, PT Model[T]] struct {
	name    string
	backend Backend
	now     func() time.Time
	newID   func() (string, error)
}

func NewCollection[T any, PT Model[T]](backend Backend, name string, opts ...Option) *Collection[T, PT] {
	o := options{now: time.Now, newID: newUUIDv7}
	for _, opt := range opts {
		opt(&o)
	}
	return &Collection[T, PT]{name: name, backend: backend, now: o.now, newID: o.newID}
}

func (c *Collection[T, PT]) Name() string {
	return c.name
}

func (c *Collection[T, PT]) load(ctx context.Context) ([]T, error) {
	data, err := c.backend.Load(ctx, c.name)
	if err != nil {
		return nil, fmt.Errorf("%w: load %s: %w", ErrStorage, c.name, err)
	}
	recs, err := decodeDocument[T](data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrStorage, c.name, err)
	}
	return recs, nil
}

// mutate runs fn against the current records. fn reports whether the
// returned slice must be written back.
func (c *Collection[T, PT]) mutate(ctx context.Context, fn func(recs []T) ([]T, bool, error)) error {
	var fnErr error
	err := c.backend.Mutate(ctx, c.name, func(current []byte) ([]byte, error) {
		fnErr = nil
		recs, err := decodeDocument[T](current)
		if err != nil {
			return nil, err
		}
		next, write, err := fn(recs)
		if err != nil {
			fnErr = err
			return nil, err
		}
		if !write {
			return nil, nil
		}
		return encodeDocument(next)
	})
	if fnErr != nil {
		return fnErr
	}
	if err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrStorage, c.name, err)
	}
	return nil
}

func indexOf[T any, PT Model[T]](recs []T, id string) int {
	for i := range recs {
		if PT(&recs[i]).Meta().ID == id {
			return i
		}
	}
	return -1
}

func (c *Collection[T, PT]) GetAll(ctx context.Context) ([]T, error) {
	return c.load(ctx)
}

// GetByID returns false when no record has the id.
func (c *Collection[T, PT]) GetByID(ctx context.Context, id string) (T, bool, error) {
	var zero T
	recs, err := c.load(ctx)
	if err != nil {
		return zero, false, err
	}
	i := indexOf[T, PT](recs, id)
	if i < 0 {
		return zero, false, nil
	}
	return recs[i], true, nil
}

func (c *Collection[T, PT]) GetMultiple(ctx context.Context, ids []string) ([]T, error) {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	return c.Query(ctx, func(rec T) bool {
		_, ok := want[PT(&rec).Meta().ID]
		return ok
	})
}

// GetByField filters on equality of the JSON field named field. value is
// compared after a JSON round trip, so typed strings and numbers match
// their stored form.
func (c *Collection[T, PT]) GetByField(ctx context.Context, field string, value any) ([]T, error) {
	want, err := jsonValue(value)
	if err != nil {
		return nil, fmt.Errorf("%w: field %s: %w", ErrInvalidPatch, field, err)
	}
	recs, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	var out []T
	for _, rec := range recs {
		fields, err := toFields(rec)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrStorage, c.name, err)
		}
		if reflect.DeepEqual(fields[field], want) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (c *Collection[T, PT]) Query(ctx context.Context, pred func(T) bool) ([]T, error) {
	recs, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	var out []T
	for _, rec := range recs {
		if pred(rec) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (c *Collection[T, PT]) Count(ctx context.Context) (int, error) {
	recs, err := c.load(ctx)
	if err != nil {
		return 0, err
	}
	return len(recs), nil
}

func (c *Collection[T, PT]) Exists(ctx context.Context, id string) (bool, error) {
	_, ok, err := c.GetByID(ctx, id)
	return ok, err
}

func (c *Collection[T, PT]) Create(ctx context.Context, rec T) (T, error) {
	return c.CreateIf(ctx, rec, nil)
}

// CreateIf inserts rec after check accepts the current records. The check
// and the insert share one atomic round trip.
func (c *Collection[T, PT]) CreateIf(ctx context.Context, rec T, check func(existing []T) error) (T, error) {
	var out T
	err := c.mutate(ctx, func(recs []T) ([]T, bool, error) {
		if check != nil {
			if err := check(recs); err != nil {
				return nil, false, err
			}
		}
		item := rec
		if err := c.stampNew(PT(&item).Meta()); err != nil {
			return nil, false, err
		}
		if indexOf[T, PT](recs, PT(&item).Meta().ID) >= 0 {
			return nil, false, fmt.Errorf("%w: %s %s already exists", ErrConflict, c.name, PT(&item).Meta().ID)
		}
		out = item
		return append(recs, item), true, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

func (c *Collection[T, PT]) stampNew(m *domain.Record) error {
	if m.ID == "" {
		id, err := c.newID()
		if err != nil {
			return fmt.Errorf("generate id: %w", err)
		}
		m.ID = id
	}
	now := c.now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now
	m.Version = 1
	return nil
}

// BatchCreate inserts all records or none.
func (c *Collection[T, PT]) BatchCreate(ctx context.Context, items []T) ([]T, error) {
	var out []T
	err := c.mutate(ctx, func(recs []T) ([]T, bool, error) {
		out = make([]T, 0, len(items))
		seen := make(map[string]struct{}, len(recs)+len(items))
		for i := range recs {
			seen[PT(&recs[i]).Meta().ID] = struct{}{}
		}
		for _, rec := range items {
			item := rec
			m := PT(&item).Meta()
			if err := c.stampNew(m); err != nil {
				return nil, false, err
			}
			if _, dup := seen[m.ID]; dup {
				return nil, false, fmt.Errorf("%w: %s %s already exists", ErrConflict, c.name, m.ID)
			}
			seen[m.ID] = struct{}{}
			out = append(out, item)
		}
		return append(recs, out...), true, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Update merges patch into the stored record. It returns false, without
// error, when the id does not exist.
func (c *Collection[T, PT]) Update(ctx context.Context, id string, patch Patch) (T, bool, error) {
	var out T
	found := false
	err := c.mutate(ctx, func(recs []T) ([]T, bool, error) {
		found = false
		i := indexOf[T, PT](recs, id)
		if i < 0 {
			return nil, false, nil
		}
		merged, err := mergePatch(recs[i], patch)
		if err != nil {
			return nil, false, err
		}
		c.restamp(PT(&merged).Meta(), PT(&recs[i]).Meta())
		recs[i] = merged
		out = merged
		found = true
		return recs, true, nil
	})
	if err != nil || !found {
		var zero T
		return zero, false, err
	}
	return out, true, nil
}

// UpdateFunc applies fn to the stored record. A non-zero expectedVersion
// turns the write into a compare-and-swap that fails with
// ErrVersionConflict when the record moved on.
func (c *Collection[T, PT]) UpdateFunc(ctx context.Context, id string, expectedVersion int64, fn func(*T) error) (T, bool, error) {
	var out T
	found := false
	err := c.mutate(ctx, func(recs []T) ([]T, bool, error) {
		found = false
		i := indexOf[T, PT](recs, id)
		if i < 0 {
			return nil, false, nil
		}
		prev := *PT(&recs[i]).Meta()
		if expectedVersion != 0 && prev.Version != expectedVersion {
			return nil, false, fmt.Errorf("%w: %s %s at version %d, expected %d", ErrVersionConflict, c.name, id, prev.Version, expectedVersion)
		}
		item := recs[i]
		if err := fn(&item); err != nil {
			return nil, false, err
		}
		c.restamp(PT(&item).Meta(), &prev)
		recs[i] = item
		out = item
		found = true
		return recs, true, nil
	})
	if err != nil || !found {
		var zero T
		return zero, false, err
	}
	return out, true, nil
}

func (c *Collection[T, PT]) restamp(m, prev *domain.Record) {
	m.ID = prev.ID
	m.CreatedAt = prev.CreatedAt
	m.Version = prev.Version + 1
	m.UpdatedAt = c.now().UTC()
}

// Delete reports whether a record was removed. A missing id leaves the
// collection untouched.
func (c *Collection[T, PT]) Delete(ctx context.Context, id string) (bool, error) {
	removed, err := c.DeleteWhere(ctx, func(rec T) bool {
		return PT(&rec).Meta().ID == id
	})
	return len(removed) > 0, err
}

func (c *Collection[T, PT]) DeleteWhere(ctx context.Context, pred func(T) bool) ([]T, error) {
	var removed []T
	err := c.mutate(ctx, func(recs []T) ([]T, bool, error) {
		removed = nil
		kept := make([]T, 0, len(recs))
		for _, rec := range recs {
			if pred(rec) {
				removed = append(removed, rec)
				continue
			}
			kept = append(kept, rec)
		}
		return kept, len(removed) > 0, nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// ReplaceWhere removes the records matching pred and inserts items in one
// write, so readers see either the old set or the new one.
func (c *Collection[T, PT]) ReplaceWhere(ctx context.Context, pred func(T) bool, items []T) ([]T, error) {
	var out []T
	err := c.mutate(ctx, func(recs []T) ([]T, bool, error) {
		out = make([]T, 0, len(items))
		kept := make([]T, 0, len(recs)+len(items))
		seen := make(map[string]struct{}, len(recs)+len(items))
		for _, rec := range recs {
			if pred(rec) {
				continue
			}
			kept = append(kept, rec)
			seen[PT(&rec).Meta().ID] = struct{}{}
		}
		for _, rec := range items {
			item := rec
			m := PT(&item).Meta()
			if err := c.stampNew(m); err != nil {
				return nil, false, err
			}
			if _, dup := seen[m.ID]; dup {
				return nil, false, fmt.Errorf("%w: %s %s already exists", ErrConflict, c.name, m.ID)
			}
			seen[m.ID] = struct{}{}
			out = append(out, item)
		}
		return append(kept, out...), true, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SetAll replaces the collection with items as given.
func (c *Collection[T, PT]) SetAll(ctx context.Context, items []T) error {
	return c.mutate(ctx, func([]T) ([]T, bool, error) {
		return append([]T(nil), items...), true, nil
	})
}

func (c *Collection[T, PT]) Clear(ctx context.Context) error {
	return c.SetAll(ctx, nil)
}

func toFields(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func jsonValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func mergePatch[T any](rec T, patch Patch) (T, error) {
	var zero T
	fields, err := toFields(rec)
	if err != nil {
		return zero, fmt.Errorf("%w: %w", ErrInvalidPatch, err)
	}
	for k, v := range patch {
		fields[k] = v
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return zero, fmt.Errorf("%w: %w", ErrInvalidPatch, err)
	}
	var out T
	if err := json.Unmarshal(b, &out); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return zero, fmt.Errorf("%w: field %s: %w", ErrInvalidPatch, typeErr.Field, err)
		}
		return zero, fmt.Errorf("%w: %w", ErrInvalidPatch, err)
	}
	return out, nil
}
