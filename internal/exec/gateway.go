package exec

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bybit-exec-bot/internal/bybit/rest"
	"bybit-exec-bot/internal/metrics"
	"bybit-exec-bot/internal/strategy"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const orderTypeMarket = "Market"

type OrderClient interface {
	CreateOrder(ctx context.Context, req rest.OrderRequest) (rest.Response, error)
}

// Ack is the exchange acknowledgement of an accepted order.
type Ack struct {
	OrderID string
	RetMsg  string
}

// Gateway turns a direction and quantity into one market order. It never
// retries: a rejected or timed out order is reported to the caller.
type Gateway struct {
	client   OrderClient
	category string
	timeout  time.Duration
	metrics  *metrics.Metrics
	log      *zap.Logger
}

func New(client OrderClient, category string, timeout time.Duration, m *metrics.Metrics, log *zap.Logger) *Gateway {
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewNoop()
	}
	if category == "" {
		category = "linear"
	}
	return &Gateway{client: client, category: category, timeout: timeout, metrics: m, log: log}
}

func (g *Gateway) Submit(ctx context.Context, dir strategy.Direction, qty decimal.Decimal, instrument string) (Ack, error) {
	side, err := sideFor(dir)
	if err != nil {
		return Ack{}, err
	}
	qty = qty.Abs()
	req := rest.OrderRequest{
		Category:  g.category,
		Symbol:    instrument,
		Side:      side,
		OrderType: orderTypeMarket,
		Qty:       qty.String(),
	}
	callCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	resp, err := g.client.CreateOrder(callCtx, req)
	if err != nil {
		g.metrics.OrdersFailed.Inc()
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			g.log.Warn("order submission timed out",
				zap.String("instrument", instrument),
				zap.Duration("timeout", g.timeout),
			)
			return Ack{}, &TimeoutError{Instrument: instrument, Timeout: g.timeout}
		}
		return Ack{}, fmt.Errorf("submit %s order for %s: %w", side, instrument, err)
	}
	if !resp.OK() {
		g.metrics.OrdersFailed.Inc()
		g.log.Warn("order not executed",
			zap.String("instrument", instrument),
			zap.String("side", side),
			zap.String("qty", req.Qty),
			zap.Int("ret_code", resp.RetCode),
			zap.String("ret_msg", resp.RetMsg),
		)
		return Ack{}, &OrderNotExecutedError{
			Instrument: instrument,
			Direction:  dir,
			Quantity:   qty,
			RetCode:    resp.RetCode,
			RetMsg:     resp.RetMsg,
		}
	}
	g.metrics.OrdersPlaced.Inc()
	ack := Ack{OrderID: resp.OrderID(), RetMsg: resp.RetMsg}
	g.log.Info("order placed",
		zap.String("instrument", instrument),
		zap.String("side", side),
		zap.String("qty", req.Qty),
		zap.String("order_id", ack.OrderID),
	)
	return ack, nil
}

func sideFor(dir strategy.Direction) (string, error) {
	switch dir {
	case strategy.DirectionBuy:
		return "Buy", nil
	case strategy.DirectionSell:
		return "Sell", nil
	default:
		return "", fmt.Errorf("unsupported order direction %q", dir)
	}
}
