package app

import (
	"encoding/json"
	"net/http"
	"time"

	"bybit-exec-bot/internal/signal"

	"github.com/gorilla/mux"
)

type healthResponse struct {
	Public  string                 `json:"public"`
	Private string                 `json:"private,omitempty"`
	Prices  map[string]healthPrice `json:"prices"`
	Wallet  *healthWallet          `json:"wallet,omitempty"`
}

type healthPrice struct {
	Price      string    `json:"price"`
	ObservedAt time.Time `json:"observed_at"`
}

type healthWallet struct {
	AccountType     string `json:"account_type"`
	TotalEquity     string `json:"total_equity"`
	AvailableAmount string `json:"available_balance"`
}

// router serves metrics and the signal webhook on one listener. It returns
// nil when neither is enabled.
func (a *App) router() http.Handler {
	metricsOn := a.prom != nil
	webhookOn := a.cfg.Webhook.Enabled
	if !metricsOn && !webhookOn {
		return nil
	}
	r := mux.NewRouter()
	if metricsOn {
		r.Handle(a.cfg.Metrics.Path, a.prom.Handler()).Methods(http.MethodGet)
	}
	if webhookOn {
		r.Handle(a.cfg.Webhook.Path, signal.Handler(a.processor, a.log)).Methods(http.MethodPost)
	}
	r.HandleFunc("/healthz", a.health).Methods(http.MethodGet)
	return r
}

func (a *App) health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Public: a.market.State().String(),
		Prices: make(map[string]healthPrice),
	}
	for instrument, entry := range a.prices.Snapshot() {
		resp.Prices[instrument] = healthPrice{Price: entry.Price.String(), ObservedAt: entry.ObservedAt}
	}
	if a.account != nil {
		resp.Private = a.account.State().String()
		if wallet, ok := a.account.Wallet(walletAccountType); ok {
			resp.Wallet = &healthWallet{
				AccountType:     wallet.AccountType,
				TotalEquity:     wallet.TotalEquity.String(),
				AvailableAmount: wallet.TotalAvailableBalance.String(),
			}
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
