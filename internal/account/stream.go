package account

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"bybit-exec-bot/internal/bybit/auth"
	"bybit-exec-bot/internal/bybit/ws"
	"bybit-exec-bot/internal/metrics"

	"go.uber.org/zap"
)

const walletTopic = "wallet"

type Update struct {
	Topic     string
	CreatedAt time.Time
	Data      json.RawMessage
}

// Stream is a read-only view of the private account feed. It authenticates
// on every connection, keeps the last wallet per account type and hands
// every topic update to the observer.
type Stream struct {
	ws       *ws.Client
	observer func(Update)
	log      *zap.Logger

	mu     sync.RWMutex
	wallet map[string]Wallet
}

func NewStream(url string, topics []string, authn ws.AuthMessageBuilder, opts ws.Options, observer func(Update), m *metrics.Metrics, log *zap.Logger) *Stream {
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewNoop()
	}
	if len(topics) == 0 {
		topics = []string{walletTopic}
	}
	if opts.OnFailure == nil {
		opts.OnFailure = func(error) { m.StreamFailures.Inc() }
	}
	s := &Stream{
		observer: observer,
		log:      log,
		wallet:   make(map[string]Wallet),
	}
	s.ws = ws.New(url, ws.Handler{
		Name:      "private",
		Topics:    topics,
		OnOpen:    ws.Authenticate(authn),
		OnMessage: s.HandleMessage,
	}, opts, log)
	return s
}

var _ ws.AuthMessageBuilder = (*auth.StreamAuthenticator)(nil)

func (s *Stream) Run(ctx context.Context) error {
	return s.ws.Run(ctx)
}

func (s *Stream) Close() error {
	return s.ws.Close()
}

func (s *Stream) State() ws.State {
	return s.ws.State()
}

type topicMessage struct {
	Topic        string          `json:"topic"`
	CreationTime int64           `json:"creationTime"`
	Data         json.RawMessage `json:"data"`
}

func (s *Stream) HandleMessage(msg json.RawMessage) {
	var m topicMessage
	if err := json.Unmarshal(msg, &m); err != nil || m.Topic == "" {
		// Control replies such as pong carry no topic.
		return
	}
	update := Update{Topic: m.Topic, Data: m.Data}
	if m.CreationTime > 0 {
		update.CreatedAt = time.UnixMilli(m.CreationTime).UTC()
	}
	var wallets []Wallet
	if m.Topic == walletTopic {
		parsed, err := ParseWallets(m.Data)
		if err != nil {
			s.log.Debug("wallet update not parsed", zap.Error(err))
		}
		wallets = parsed
	}
	s.mu.Lock()
	for _, w := range wallets {
		s.wallet[w.AccountType] = w
	}
	s.mu.Unlock()
	if s.observer != nil {
		s.observer(update)
	}
}

// Wallet returns the last streamed wallet of one account type.
func (s *Stream) Wallet(accountType string) (Wallet, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.wallet[accountType]
	return w, ok
}
