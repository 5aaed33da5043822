package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.GRPCAddr != "0.0.0.0:50051" {
		t.Fatalf("GRPCAddr = %q, want 0.0.0.0:50051", cfg.GRPCAddr)
	}
	if cfg.StoreBackend != BackendMemory {
		t.Fatalf("StoreBackend = %q, want memory", cfg.StoreBackend)
	}
	if cfg.ResponseWindowDays != 3 || cfg.CancelWindowDays != 3 {
		t.Fatalf("windows = %d/%d, want 3/3", cfg.ResponseWindowDays, cfg.CancelWindowDays)
	}
	if cfg.ConflictMode != "advisory" {
		t.Fatalf("ConflictMode = %q, want advisory", cfg.ConflictMode)
	}
	if cfg.SweeperSchedule != "@every 1m" {
		t.Fatalf("SweeperSchedule = %q, want @every 1m", cfg.SweeperSchedule)
	}
	if len(cfg.KafkaBrokers) != 0 {
		t.Fatalf("KafkaBrokers = %v, want none", cfg.KafkaBrokers)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Fatalf("ShutdownTimeout = %v, want 10s", cfg.ShutdownTimeout)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CARELINK_GRPC_ADDR", "127.0.0.1:6000")
	t.Setenv("CARELINK_STORE_BACKEND", "SQLite")
	t.Setenv("CARELINK_KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("CARELINK_BOOKING_TIME_ZONE", "Asia/Ho_Chi_Minh")
	t.Setenv("CARELINK_BOOKING_CONFLICT_MODE", "blocking")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.GRPCAddr != "127.0.0.1:6000" {
		t.Fatalf("GRPCAddr = %q, want 127.0.0.1:6000", cfg.GRPCAddr)
	}
	if cfg.StoreBackend != BackendSQLite {
		t.Fatalf("StoreBackend = %q, want sqlite", cfg.StoreBackend)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Fatalf("KafkaBrokers = %v", cfg.KafkaBrokers)
	}
	if cfg.TimeZone.String() != "Asia/Ho_Chi_Minh" {
		t.Fatalf("TimeZone = %v", cfg.TimeZone)
	}
	if cfg.ConflictMode != "blocking" {
		t.Fatalf("ConflictMode = %q, want blocking", cfg.ConflictMode)
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	t.Setenv("CARELINK_STORE_BACKEND", "mongo")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error")
	}
}
