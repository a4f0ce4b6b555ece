package timescale

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"bybit-exec-bot/internal/config"
	"bybit-exec-bot/internal/metrics"
	"bybit-exec-bot/internal/strategy"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	writeTimeout = 3 * time.Second
	drainTimeout = 10 * time.Second
	orderTable   = "order_history"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	Close() error
}

// Writer stores order history asynchronously. Enqueue never blocks; records
// are dropped while the queue is full.
type Writer struct {
	db      execer
	log     *zap.Logger
	metrics *metrics.Metrics
	schema  string
	orders  chan strategy.Order
	started atomic.Bool
	dropped atomic.Uint64

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

func New(cfg config.TimescaleConfig, m *metrics.Metrics, log *zap.Logger) (*Writer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("timescale dsn is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	writer := newWriter(db, cfg.Schema, cfg.QueueSize, m, log)
	if err := writer.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return writer, nil
}

func newWriter(db execer, schema string, queueSize int, m *metrics.Metrics, log *zap.Logger) *Writer {
	schema = strings.TrimSpace(schema)
	if schema == "" {
		schema = "public"
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	if m == nil {
		m = metrics.NewNoop()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Writer{
		db:      db,
		log:     log,
		metrics: m,
		schema:  schema,
		orders:  make(chan strategy.Order, queueSize),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start runs the insert loop until Close. Cancelling ctx does not end the
// loop so rows queued during shutdown still reach the table.
func (w *Writer) Start(ctx context.Context) {
	if w == nil {
		return
	}
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run(context.WithoutCancel(ctx))
}

// Close flushes the queue, bounded by drainTimeout, and closes the database.
func (w *Writer) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	w.closeOnce.Do(func() {
		close(w.stop)
		if w.started.Load() {
			<-w.done
		}
		if n := w.Dropped(); n > 0 {
			w.log.Warn("timescale order rows dropped", zap.Uint64("count", n))
		}
		w.closeErr = w.db.Close()
	})
	return w.closeErr
}

// Record queues an order history row.
func (w *Writer) Record(ctx context.Context, order strategy.Order) {
	_ = ctx
	w.EnqueueOrder(order)
}

func (w *Writer) EnqueueOrder(order strategy.Order) {
	if w == nil {
		return
	}
	select {
	case w.orders <- order:
		return
	default:
		w.metrics.HistoryDropped.Inc()
		if w.dropped.Add(1) == 1 {
			w.log.Warn("timescale order queue full")
		}
	}
}

func (w *Writer) Dropped() uint64 {
	if w == nil {
		return 0
	}
	return w.dropped.Load()
}

func (w *Writer) run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case order := <-w.orders:
			w.writeOrder(ctx, order)
		case <-w.stop:
			w.drain(ctx)
			return
		}
	}
}

func (w *Writer) drain(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, drainTimeout)
	defer cancel()
	for {
		select {
		case order := <-w.orders:
			if ctx.Err() != nil {
				w.metrics.HistoryDropped.Inc()
				w.dropped.Add(1)
				continue
			}
			w.writeOrder(ctx, order)
		default:
			return
		}
	}
}

func (w *Writer) ensureSchema(ctx context.Context) error {
	if w.db == nil {
		return errors.New("timescale db not initialized")
	}
	if w.schema != "public" {
		if err := w.exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", w.schema)); err != nil {
			return err
		}
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		user_name TEXT NOT NULL,
		strategy TEXT NOT NULL,
		instrument TEXT NOT NULL,
		direction TEXT NOT NULL,
		quantity NUMERIC NOT NULL,
		price NUMERIC
	)`, w.table(orderTable))); err != nil {
		return err
	}
	if err := w.exec(ctx, "CREATE EXTENSION IF NOT EXISTS timescaledb"); err != nil {
		w.log.Warn("timescale extension ensure failed", zap.Error(err))
		return nil
	}
	if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", w.table(orderTable))); err != nil {
		w.log.Warn("timescale order_history hypertable create failed", zap.Error(err))
	}
	return nil
}

func (w *Writer) writeOrder(ctx context.Context, order strategy.Order) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	price := decimal.NullDecimal{}
	if order.Price != nil {
		price = decimal.NewNullDecimal(*order.Price)
	}
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, user_name, strategy, instrument, direction, quantity, price
	) VALUES (
		$1,$2,$3,$4,$5,$6,$7
	)`, w.table(orderTable))
	if _, err := w.db.ExecContext(ctx, query,
		order.Date,
		order.User,
		order.Strategy,
		order.Instrument,
		order.Direction,
		order.Quantity,
		price,
	); err != nil {
		w.log.Warn("timescale order insert failed",
			zap.String("user", order.User),
			zap.String("strategy", order.Strategy),
			zap.Error(err),
		)
	}
}

func (w *Writer) exec(ctx context.Context, query string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_, err := w.db.ExecContext(ctx, query)
	return err
}

func (w *Writer) table(name string) string {
	return w.schema + "." + name
}
