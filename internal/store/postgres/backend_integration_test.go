package postgres

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/uptrace/bun"

	"carelink/backend/internal/domain"
	"carelink/backend/internal/store"
)

type visit struct {
	domain.Record
	Caregiver string `json:"caregiver"`
	Minutes   int    `json:"minutes"`
}

func openTestDB(t *testing.T) *bun.DB {
	t.Helper()
	databaseURL := strings.TrimSpace(os.Getenv("CARELINK_TEST_DATABASE_URL"))
	if databaseURL == "" {
		t.Skip("CARELINK_TEST_DATABASE_URL not set")
	}

	db, err := Open(databaseURL, PoolConfig{MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}

	schema := "carelink_test_" + randomHex(t, 8)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, _ = db.NewRaw("DROP SCHEMA IF EXISTS " + schema + " CASCADE").Exec(ctx)
		_ = Close(db)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// A single pooled connection keeps the search_path for the whole test.
	if _, err := db.NewRaw("CREATE SCHEMA " + schema).Exec(ctx); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	if _, err := db.NewRaw("SET search_path TO " + schema).Exec(ctx); err != nil {
		t.Fatalf("set search_path: %v", err)
	}
	if err := Migrate(ctx, db); err != nil {
		t.Fatalf("Migrate error: %v", err)
	}
	return db
}

func TestPostgresIntegration_CollectionRoundTripAndVersioning(t *testing.T) {
	db := openTestDB(t)
	backend := NewBackend(db)
	visits := store.NewCollection[visit, *visit](backend, "visits")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := backend.Ping(ctx); err != nil {
		t.Fatalf("Ping error: %v", err)
	}

	created, err := visits.Create(ctx, visit{Caregiver: "cg-1", Minutes: 60})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if created.Version != 1 {
		t.Fatalf("created.Version = %d, want 1", created.Version)
	}

	updated, ok, err := visits.Update(ctx, created.ID, store.Patch{"minutes": 90})
	if err != nil || !ok {
		t.Fatalf("Update = (%v, %v), want (true, nil)", ok, err)
	}
	if updated.Minutes != 90 || updated.Caregiver != "cg-1" {
		t.Fatalf("updated = %+v, want minutes 90 for cg-1", updated)
	}

	_, _, err = visits.UpdateFunc(ctx, created.ID, created.Version, func(v *visit) error {
		v.Minutes = 30
		return nil
	})
	if !errors.Is(err, store.ErrVersionConflict) {
		t.Fatalf("stale UpdateFunc err = %v, want ErrVersionConflict", err)
	}

	got, ok, err := visits.GetByID(ctx, created.ID)
	if err != nil || !ok {
		t.Fatalf("GetByID = (%v, %v), want (true, nil)", ok, err)
	}
	if got.Minutes != 90 || got.Version != 2 {
		t.Fatalf("got = %+v, want minutes 90 at version 2", got)
	}

	if err := backend.Clear(ctx); err != nil {
		t.Fatalf("Clear error: %v", err)
	}
	n, err := visits.Count(ctx)
	if err != nil {
		t.Fatalf("Count error: %v", err)
	}
	if n != 0 {
		t.Fatalf("Count = %d, want 0", n)
	}
}

func TestPostgresIntegration_ConcurrentMutationsSerialize(t *testing.T) {
	db := openTestDB(t)
	visits := store.NewCollection[visit, *visit](NewBackend(db), "visits")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	created, err := visits.Create(ctx, visit{Caregiver: "cg-1"})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := visits.UpdateFunc(ctx, created.ID, 0, func(v *visit) error {
				v.Minutes++
				return nil
			}); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	got, _, err := visits.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetByID error: %v", err)
	}
	if got.Minutes != 10 {
		t.Fatalf("Minutes = %d, want 10", got.Minutes)
	}
}

func randomHex(t *testing.T, bytesLen int) string {
	t.Helper()
	b := make([]byte, bytesLen)
	if _, err := rand.Read(b); err != nil {
		t.Fatalf("rand.Read error: %v", err)
	}
	return hex.EncodeToString(b)
}
