package signal

import (
	"context"
	"time"

	"bybit-exec-bot/internal/exec"
	"bybit-exec-bot/internal/market"
	"bybit-exec-bot/internal/metrics"
	"bybit-exec-bot/internal/strategy"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const errorPrefix = "Error: "

type Gateway interface {
	Submit(ctx context.Context, dir strategy.Direction, qty decimal.Decimal, instrument string) (exec.Ack, error)
}

type PriceSource interface {
	Price(instrument string) (market.PriceEntry, error)
}

// Recorder receives one history record per processed signal. Record is
// called with the strategy lock held and must not block.
type Recorder interface {
	Record(ctx context.Context, order strategy.Order)
}

type Processor struct {
	store   *strategy.Store
	prices  PriceSource
	gateway Gateway
	history Recorder
	metrics *metrics.Metrics
	log     *zap.Logger
	now     func() time.Time
}

func NewProcessor(store *strategy.Store, prices PriceSource, gateway Gateway, history Recorder, m *metrics.Metrics, log *zap.Logger) *Processor {
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewNoop()
	}
	return &Processor{
		store:   store,
		prices:  prices,
		gateway: gateway,
		history: history,
		metrics: m,
		log:     log,
		now:     time.Now,
	}
}

// Process applies one signal. Only an unknown user or strategy is returned;
// every other failure is recorded on the strategy.
func (p *Processor) Process(ctx context.Context, sig Signal) error {
	ignored := false
	err := p.store.Update(ctx, sig.User, sig.Strategy, func(st *strategy.Strategy) bool {
		if !st.Active {
			ignored = true
			return false
		}
		order := p.apply(ctx, sig, st)
		if p.history != nil {
			p.history.Record(ctx, order)
		}
		return true
	})
	if err != nil {
		return err
	}
	if ignored {
		p.metrics.SignalsIgnored.Inc()
		p.log.Debug("signal for inactive strategy ignored",
			zap.String("user", sig.User),
			zap.String("strategy", sig.Strategy),
		)
	}
	return nil
}

func (p *Processor) apply(ctx context.Context, sig Signal, st *strategy.Strategy) strategy.Order {
	delta := sig.Quantity.Sub(st.Position)
	price, err := p.execute(ctx, sig, st, delta)
	now := p.now()
	p.metrics.SignalsProcessed.Inc()
	if err != nil {
		p.metrics.SignalsRejected.Inc()
		st.LastError = &strategy.ErrorData{Message: errorPrefix + err.Error(), Time: now}
		p.log.Warn("signal failed",
			zap.String("user", sig.User),
			zap.String("strategy", st.Name),
			zap.String("instrument", st.Instrument),
			zap.String("direction", sig.Direction),
			zap.String("requested", sig.Quantity.String()),
			zap.String("position", st.Position.String()),
			zap.Error(err),
		)
	} else {
		p.log.Info("signal processed",
			zap.String("user", sig.User),
			zap.String("strategy", st.Name),
			zap.String("instrument", st.Instrument),
			zap.String("mode", string(st.Mode)),
			zap.String("delta", delta.String()),
		)
	}
	st.Position = sig.Quantity
	return strategy.Order{
		User:       sig.User,
		Strategy:   st.Name,
		Instrument: st.Instrument,
		Price:      price,
		Quantity:   delta,
		Direction:  sig.Direction,
		Date:       now,
	}
}

func (p *Processor) execute(ctx context.Context, sig Signal, st *strategy.Strategy, delta decimal.Decimal) (*decimal.Decimal, error) {
	dir, err := ResolveDirection(sig.Direction, sig.Quantity, st.Position)
	if err != nil {
		return nil, err
	}
	switch st.Mode {
	case strategy.ModeLive:
		if _, err := p.gateway.Submit(ctx, dir, delta.Abs(), st.Instrument); err != nil {
			return nil, err
		}
		return p.cachedPrice(st.Instrument)
	case strategy.ModeSimulate:
		p.metrics.OrdersSimulated.Inc()
		return p.cachedPrice(st.Instrument)
	default:
		return nil, nil
	}
}

func (p *Processor) cachedPrice(instrument string) (*decimal.Decimal, error) {
	entry, err := p.prices.Price(instrument)
	if err != nil {
		return nil, err
	}
	price := entry.Price
	return &price, nil
}
