package app

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"bybit-exec-bot/internal/account"
	"bybit-exec-bot/internal/alerts"
	"bybit-exec-bot/internal/bybit/auth"
	"bybit-exec-bot/internal/bybit/rest"
	"bybit-exec-bot/internal/bybit/ws"
	"bybit-exec-bot/internal/config"
	"bybit-exec-bot/internal/exec"
	"bybit-exec-bot/internal/history"
	"bybit-exec-bot/internal/market"
	"bybit-exec-bot/internal/metrics"
	"bybit-exec-bot/internal/signal"
	"bybit-exec-bot/internal/state"
	"bybit-exec-bot/internal/state/sqlite"
	"bybit-exec-bot/internal/strategy"
	"bybit-exec-bot/internal/timescale"

	"go.uber.org/zap"
)

const (
	walletAccountType = "UNIFIED"
	shutdownTimeout   = 5 * time.Second
)

type App struct {
	cfg       *config.Config
	log       *zap.Logger
	store     *sqlite.Store
	signer    *auth.Signer
	rest      *rest.Client
	prices    *market.PriceCache
	market    *market.Stream
	account   *account.Stream
	strategy  *strategy.Store
	processor *signal.Processor
	metrics   *metrics.Metrics
	prom      *metrics.Prometheus
	timescale *timescale.Writer
	notifier  *history.Notifier
	server    *http.Server
}

func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	signer, err := auth.NewSigner(cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, err
	}
	restClient, err := rest.New(cfg.REST.BaseURL, cfg.REST.Timeout, cfg.REST.RecvWindow, signer, log)
	if err != nil {
		return nil, err
	}

	m := metrics.NewNoop()
	var prom *metrics.Prometheus
	if cfg.Metrics.EnabledValue() {
		prom = metrics.NewPrometheus()
		m = prom.Metrics
	}

	store, err := sqlite.New(cfg.State.SQLitePath)
	if err != nil {
		return nil, err
	}
	repo := state.NewStrategyRepo(store)
	strategies := strategy.NewStore(repo, log)
	if err := loadStrategies(context.Background(), cfg.Users, repo, strategies, log); err != nil {
		_ = store.Close()
		return nil, err
	}

	writer, err := timescale.New(cfg.Timescale, m, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	var notifier *history.Notifier
	if cfg.Telegram.Enabled {
		tg, err := alerts.NewTelegram(cfg.Telegram, log)
		if err != nil {
			_ = writer.Close()
			_ = store.Close()
			return nil, err
		}
		notifier = history.NewNotifier(tg, 0, m, log)
	}
	recorders := history.NewFanout(historyRecorders(writer, notifier)...)

	prices := market.NewPriceCache()
	opts := ws.Options{
		PingInterval:   cfg.WS.PingInterval,
		Reconnect:      cfg.WS.ReconnectValue(),
		ReconnectDelay: cfg.WS.ReconnectDelay,
		ReconnectMax:   cfg.WS.ReconnectMax,
	}
	marketStream := market.NewStream(cfg.WS.PublicURL, cfg.WS.PublicTopics, prices, opts, m, log)
	var accountStream *account.Stream
	if cfg.WS.PrivateEnabledValue() {
		accountStream = account.NewStream(cfg.WS.PrivateURL, cfg.WS.PrivateTopics, auth.NewStreamAuthenticator(signer), opts, func(u account.Update) {
			log.Debug("account update", zap.String("topic", u.Topic), zap.Time("created_at", u.CreatedAt))
		}, m, log)
	}

	gateway := exec.New(restClient, cfg.Exec.Category, cfg.Exec.OrderTimeout, m, log)
	processor := signal.NewProcessor(strategies, prices, gateway, recorders, m, log)

	a := &App{
		cfg:       cfg,
		log:       log,
		store:     store,
		signer:    signer,
		rest:      restClient,
		prices:    prices,
		market:    marketStream,
		account:   accountStream,
		strategy:  strategies,
		processor: processor,
		metrics:   m,
		prom:      prom,
		timescale: writer,
		notifier:  notifier,
	}
	if router := a.router(); router != nil {
		a.server = &http.Server{
			Addr:              cfg.Metrics.Address,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}
	return a, nil
}

// historyRecorders skips disabled sinks so no typed nil reaches the fanout.
func historyRecorders(writer *timescale.Writer, notifier *history.Notifier) []history.Recorder {
	var out []history.Recorder
	if writer != nil {
		out = append(out, writer)
	}
	if notifier != nil {
		out = append(out, notifier)
	}
	return out
}

func (a *App) Run(ctx context.Context) error {
	defer a.signer.Wipe()
	defer a.store.Close()
	defer func() {
		if err := a.timescale.Close(); err != nil {
			a.log.Warn("timescale close failed", zap.Error(err))
		}
	}()

	a.logWallet(ctx)
	a.timescale.Start(ctx)
	if a.notifier != nil {
		a.notifier.Start(ctx)
	}

	var wg sync.WaitGroup
	a.runStream(ctx, &wg, "public", a.market.Run)
	if a.account != nil {
		a.runStream(ctx, &wg, "private", a.account.Run)
	}

	serverErr := make(chan error, 1)
	if a.server != nil {
		go func() {
			a.log.Info("http server listening", zap.String("address", a.server.Addr))
			if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		runErr = ctx.Err()
	case err := <-serverErr:
		runErr = err
	}

	_ = a.market.Close()
	if a.account != nil {
		_ = a.account.Close()
	}
	if a.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.log.Warn("http server shutdown failed", zap.Error(err))
		}
		cancel()
	}
	wg.Wait()
	// The server is down, so no more records can be queued.
	if a.notifier != nil {
		a.notifier.Stop()
	}
	return runErr
}

// runStream keeps one stream in its own goroutine. A stream that gives up
// is logged and left down; it never stops the other stream or signals.
func (a *App) runStream(ctx context.Context, wg *sync.WaitGroup, name string, run func(context.Context) error) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Error("stream stopped", zap.String("stream", name), zap.Error(err))
		}
	}()
}

func (a *App) logWallet(ctx context.Context) {
	timeout := a.cfg.REST.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	wallet, err := account.FetchWallet(reqCtx, a.rest, walletAccountType)
	if err != nil {
		a.log.Warn("wallet snapshot failed", zap.Error(err))
		return
	}
	fields := []zap.Field{
		zap.String("account_type", wallet.AccountType),
		zap.String("total_equity", wallet.TotalEquity.String()),
		zap.String("available_balance", wallet.TotalAvailableBalance.String()),
	}
	for coin, balance := range wallet.Coins {
		fields = append(fields, zap.String("coin_"+coin, balance.String()))
	}
	a.log.Info("wallet snapshot", fields...)
}
