package sqlite

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"bybit-exec-bot/internal/state"
	"bybit-exec-bot/internal/strategy"

	"github.com/shopspring/decimal"
)

func TestStoreRoundTrip(t *testing.T) {
	store, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	value := []byte{0x00, 0x81, 0xff}
	if err := store.Set(ctx, "key", value); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	val, ok, err := store.Get(ctx, "key")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !ok || !bytes.Equal(val, value) {
		t.Fatalf("unexpected value: %v (ok=%v)", val, ok)
	}
	_, ok, err = store.Get(ctx, "absent")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if ok {
		t.Fatalf("expected missing key")
	}
}

func TestStrategySurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.db")
	ctx := context.Background()
	st := strategy.Strategy{Name: "trend", Instrument: "BTCUSDT", Position: decimal.RequireFromString("4"), Active: true, Mode: strategy.ModeLive}

	store, err := New(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := state.NewStrategyRepo(store).SaveStrategy(ctx, "alice", st); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := New(path)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer reopened.Close()
	decl := strategy.Strategy{Name: "trend", Instrument: "BTCUSDT", Mode: strategy.ModeSimulate}
	got, ok, err := state.NewStrategyRepo(reopened).Restore(ctx, "alice", decl)
	if err != nil || !ok {
		t.Fatalf("restore: ok=%v err=%v", ok, err)
	}
	if !got.Position.Equal(decimal.NewFromInt(4)) || got.Mode != strategy.ModeSimulate || got.Active {
		t.Fatalf("unexpected restored strategy %#v", got)
	}
}
