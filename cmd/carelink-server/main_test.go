package main

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"carelink/backend/internal/config"
)

func testConfig() config.Config {
	return config.Config{
		GRPCAddr:           "127.0.0.1:0",
		HTTPAddr:           "127.0.0.1:0",
		GRPCRequestTimeout: time.Second,
		ShutdownTimeout:    time.Second,
		LogLevel:           "info",
		StoreBackend:       config.BackendMemory,
		TimeZone:           time.UTC,
		ResponseWindowDays: 3,
		CancelWindowDays:   3,
		ConflictMode:       "advisory",
		SweeperSchedule:    "@every 1m",
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunStopsCleanlyWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, run(ctx, discardLogger(), testConfig()))
}

func TestRunReturnsStartupErrors(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = busy.Close() })

	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"unknown conflict mode", func(c *config.Config) { c.ConflictMode = "loose" }},
		{"bad sweeper schedule", func(c *config.Config) { c.SweeperSchedule = "every now and then" }},
		{"grpc address in use", func(c *config.Config) { c.GRPCAddr = busy.Addr().String() }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			require.Error(t, run(context.Background(), discardLogger(), cfg))
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLogLevel(in); got != want {
			t.Fatalf("parseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
