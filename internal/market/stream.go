package market

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"bybit-exec-bot/internal/bybit/ws"
	"bybit-exec-bot/internal/metrics"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const tickerPrefix = "tickers."

// Stream consumes the public ticker feed into a PriceCache.
type Stream struct {
	cache   *PriceCache
	ws      *ws.Client
	metrics *metrics.Metrics
	log     *zap.Logger
}

func NewStream(url string, topics []string, cache *PriceCache, opts ws.Options, m *metrics.Metrics, log *zap.Logger) *Stream {
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewNoop()
	}
	s := &Stream{cache: cache, metrics: m, log: log}
	if opts.OnFailure == nil {
		opts.OnFailure = func(error) { m.StreamFailures.Inc() }
	}
	s.ws = ws.New(url, ws.Handler{
		Name:      "public",
		Topics:    topics,
		OnMessage: s.HandleMessage,
	}, opts, log)
	return s
}

func (s *Stream) Run(ctx context.Context) error {
	return s.ws.Run(ctx)
}

func (s *Stream) Close() error {
	return s.ws.Close()
}

func (s *Stream) State() ws.State {
	return s.ws.State()
}

type tickerMessage struct {
	Topic string `json:"topic"`
	TS    int64  `json:"ts"`
	Data  struct {
		LastPrice string `json:"lastPrice"`
	} `json:"data"`
}

// HandleMessage applies one ticker update. Anything that is not a
// well-formed ticker with a last price is dropped.
func (s *Stream) HandleMessage(msg json.RawMessage) {
	symbol, entry, ok := parseTicker(msg)
	if !ok {
		return
	}
	s.cache.Set(symbol, entry.Price, entry.ObservedAt)
	s.metrics.TicksApplied.Inc()
}

func parseTicker(msg json.RawMessage) (string, PriceEntry, bool) {
	var tick tickerMessage
	if err := json.Unmarshal(msg, &tick); err != nil {
		return "", PriceEntry{}, false
	}
	symbol, ok := strings.CutPrefix(tick.Topic, tickerPrefix)
	if !ok || symbol == "" {
		return "", PriceEntry{}, false
	}
	// Delta snapshots omit unchanged fields.
	if tick.Data.LastPrice == "" || tick.TS <= 0 {
		return "", PriceEntry{}, false
	}
	price, err := decimal.NewFromString(tick.Data.LastPrice)
	if err != nil {
		return "", PriceEntry{}, false
	}
	return symbol, PriceEntry{Price: price, ObservedAt: time.UnixMilli(tick.TS).UTC()}, true
}
