package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"
)

type collectionRow struct {
	bun.BaseModel `bun:"table:record_collections"`

	Name      string    `bun:"name,pk"`
	Payload   string    `bun:"payload,type:jsonb,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

func (r *collectionRow) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		r.UpdatedAt = now
	case *bun.UpdateQuery:
		r.UpdatedAt = now
	}
	return nil
}

// Backend stores each collection as one JSONB row of record_collections.
type Backend struct {
	db *bun.DB
}

func NewBackend(db *bun.DB) *Backend {
	return &Backend{db: db}
}

func (b *Backend) Load(ctx context.Context, collection string) ([]byte, error) {
	var row collectionRow
	err := b.db.NewSelect().
		Model(&row).
		Where("name = ?", collection).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(row.Payload), nil
}

// Mutate serializes writers of one collection with a transaction-scoped
// advisory lock, so the read and the upsert see no interleaved write.
func (b *Backend) Mutate(ctx context.Context, collection string, fn func(current []byte) ([]byte, error)) error {
	return b.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockCollection(ctx, tx, collection); err != nil {
			return err
		}

		var row collectionRow
		var current []byte
		err := tx.NewSelect().
			Model(&row).
			Where("name = ?", collection).
			Limit(1).
			Scan(ctx)
		switch {
		case err == nil:
			current = []byte(row.Payload)
		case errors.Is(err, sql.ErrNoRows):
		default:
			return err
		}

		next, err := fn(current)
		if err != nil {
			return err
		}
		if next == nil {
			return nil
		}

		row.Name = collection
		row.Payload = string(next)
		_, err = tx.NewInsert().
			Model(&row).
			On("CONFLICT (name) DO UPDATE").
			Set("payload = EXCLUDED.payload").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		return err
	})
}

func lockCollection(ctx context.Context, tx bun.Tx, collection string) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", "record_collections:"+collection).Exec(ctx)
	return err
}

func (b *Backend) Clear(ctx context.Context) error {
	_, err := b.db.NewTruncateTable().Model((*collectionRow)(nil)).Exec(ctx)
	return err
}

func (b *Backend) Ping(ctx context.Context) error {
	return b.db.PingContext(ctx)
}

func (b *Backend) Close() error {
	return Close(b.db)
}
