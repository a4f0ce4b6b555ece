package timescale

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"bybit-exec-bot/internal/config"
	"bybit-exec-bot/internal/strategy"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type execCall struct {
	query string
	args  []any
}

type fakeDB struct {
	mu    sync.Mutex
	calls []execCall
	fail  func(query string) error
	done  chan struct{}
}

func (f *fakeDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	_ = ctx
	f.mu.Lock()
	f.calls = append(f.calls, execCall{query: query, args: args})
	f.mu.Unlock()
	if f.done != nil {
		f.done <- struct{}{}
	}
	if f.fail != nil {
		if err := f.fail(query); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func (f *fakeDB) Close() error { return nil }

func (f *fakeDB) queries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.query)
	}
	return out
}

func testOrder() strategy.Order {
	price := decimal.RequireFromString("65000.5")
	return strategy.Order{
		User:       "alice",
		Strategy:   "trend",
		Instrument: "BTCUSDT",
		Price:      &price,
		Quantity:   decimal.NewFromInt(-6),
		Direction:  "sell",
		Date:       time.Unix(1700000000, 0).UTC(),
	}
}

func TestNewDisabledReturnsNil(t *testing.T) {
	w, err := New(config.TimescaleConfig{}, nil, zap.NewNop())
	if err != nil || w != nil {
		t.Fatalf("expected nil writer when disabled, got %v %v", w, err)
	}
	// A nil writer is a valid no-op recorder.
	w.Record(context.Background(), testOrder())
	w.Start(context.Background())
	if err := w.Close(); err != nil {
		t.Fatalf("close nil writer: %v", err)
	}
}

func TestNewRequiresDSN(t *testing.T) {
	if _, err := New(config.TimescaleConfig{Enabled: true}, nil, nil); err == nil {
		t.Fatalf("expected error without dsn")
	}
}

func TestEnqueueDropsWhenFull(t *testing.T) {
	w := newWriter(&fakeDB{}, "public", 2, nil, zap.NewNop())
	for i := 0; i < 5; i++ {
		w.EnqueueOrder(testOrder())
	}
	if got := w.Dropped(); got != 3 {
		t.Fatalf("expected 3 dropped records, got %d", got)
	}
}

func TestWriterInsertsOrder(t *testing.T) {
	db := &fakeDB{done: make(chan struct{}, 1)}
	w := newWriter(db, "metrics", 4, nil, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Close()

	order := testOrder()
	w.Record(ctx, order)
	select {
	case <-db.done:
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for insert")
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	call := db.calls[0]
	if !strings.Contains(call.query, "INSERT INTO metrics.order_history") {
		t.Fatalf("unexpected query %s", call.query)
	}
	if len(call.args) != 7 {
		t.Fatalf("expected 7 args, got %d", len(call.args))
	}
	if call.args[1] != "alice" || call.args[2] != "trend" || call.args[3] != "BTCUSDT" || call.args[4] != "sell" {
		t.Fatalf("unexpected args %#v", call.args)
	}
	price, ok := call.args[6].(decimal.NullDecimal)
	if !ok || !price.Valid || !price.Decimal.Equal(*order.Price) {
		t.Fatalf("unexpected price arg %#v", call.args[6])
	}
}

func TestWriterCloseFlushesQueue(t *testing.T) {
	db := &fakeDB{}
	w := newWriter(db, "public", 8, nil, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)
	// Shutdown cancels the run context before in-flight requests finish.
	cancel()
	for i := 0; i < 3; i++ {
		w.Record(context.Background(), testOrder())
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	inserts := 0
	for _, q := range db.queries() {
		if strings.Contains(q, "INSERT INTO public.order_history") {
			inserts++
		}
	}
	if inserts != 3 {
		t.Fatalf("expected 3 inserts after close, got %d", inserts)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestWriterNullPrice(t *testing.T) {
	db := &fakeDB{done: make(chan struct{}, 1)}
	w := newWriter(db, "", 4, nil, zap.NewNop())
	order := testOrder()
	order.Price = nil
	w.writeOrder(context.Background(), order)
	<-db.done
	price := db.calls[0].args[6].(decimal.NullDecimal)
	if price.Valid {
		t.Fatalf("expected NULL price")
	}
	if !strings.Contains(db.calls[0].query, "public.order_history") {
		t.Fatalf("expected public schema default, got %s", db.calls[0].query)
	}
}

func TestEnsureSchemaToleratesMissingExtension(t *testing.T) {
	db := &fakeDB{fail: func(query string) error {
		if strings.Contains(query, "EXTENSION") {
			return errors.New("permission denied")
		}
		return nil
	}}
	w := newWriter(db, "trading", 1, nil, zap.NewNop())
	if err := w.ensureSchema(context.Background()); err != nil {
		t.Fatalf("expected extension failure to be tolerated, got %v", err)
	}
	queries := db.queries()
	if len(queries) != 3 {
		t.Fatalf("expected schema, table and extension statements, got %d", len(queries))
	}
	if !strings.Contains(queries[0], "CREATE SCHEMA IF NOT EXISTS trading") {
		t.Fatalf("unexpected first statement %s", queries[0])
	}
}
