package history

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"bybit-exec-bot/internal/metrics"
	"bybit-exec-bot/internal/strategy"

	"go.uber.org/zap"
)

const (
	sendTimeout  = 10 * time.Second
	drainTimeout = 15 * time.Second
)

type OrderNotifier interface {
	NotifyOrder(ctx context.Context, order strategy.Order) error
}

// Notifier forwards order records to a message sender from its own
// goroutine so a slow sender never holds a strategy lock.
type Notifier struct {
	sender  OrderNotifier
	queue   chan strategy.Order
	metrics *metrics.Metrics
	log     *zap.Logger

	started  atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func NewNotifier(sender OrderNotifier, queueSize int, m *metrics.Metrics, log *zap.Logger) *Notifier {
	if queueSize <= 0 {
		queueSize = 64
	}
	if m == nil {
		m = metrics.NewNoop()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Notifier{
		sender:  sender,
		queue:   make(chan strategy.Order, queueSize),
		metrics: m,
		log:     log,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (n *Notifier) Record(ctx context.Context, order strategy.Order) {
	_ = ctx
	select {
	case n.queue <- order:
	default:
		n.metrics.HistoryDropped.Inc()
		n.log.Warn("order notification dropped",
			zap.String("user", order.User),
			zap.String("strategy", order.Strategy),
		)
	}
}

// Start runs the delivery loop until Stop. Cancelling ctx does not end the
// loop; records queued during shutdown are still delivered.
func (n *Notifier) Start(ctx context.Context) {
	if !n.started.CompareAndSwap(false, true) {
		return
	}
	ctx = context.WithoutCancel(ctx)
	go func() {
		defer close(n.done)
		for {
			select {
			case order := <-n.queue:
				n.deliver(ctx, order)
			case <-n.stop:
				n.drain(ctx)
				return
			}
		}
	}()
}

// Stop delivers what is still queued, bounded by drainTimeout, and waits
// for the loop to exit.
func (n *Notifier) Stop() {
	n.stopOnce.Do(func() { close(n.stop) })
	if n.started.Load() {
		<-n.done
	}
}

func (n *Notifier) drain(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, drainTimeout)
	defer cancel()
	lost := 0
	for {
		select {
		case order := <-n.queue:
			if ctx.Err() != nil {
				lost++
				n.metrics.HistoryDropped.Inc()
				continue
			}
			n.deliver(ctx, order)
		default:
			if lost > 0 {
				n.log.Warn("order notifications lost at shutdown", zap.Int("count", lost))
			}
			return
		}
	}
}

func (n *Notifier) deliver(ctx context.Context, order strategy.Order) {
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	if err := n.sender.NotifyOrder(sendCtx, order); err != nil {
		n.log.Warn("order notification failed",
			zap.String("user", order.User),
			zap.String("strategy", order.Strategy),
			zap.Error(err),
		)
	}
}
