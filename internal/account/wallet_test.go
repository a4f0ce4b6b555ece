package account

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"bybit-exec-bot/internal/bybit/rest"

	"github.com/shopspring/decimal"
)

const walletList = `[{"accountType":"UNIFIED","totalEquity":"1250.5","totalWalletBalance":"1200","totalAvailableBalance":"","coin":[{"coin":"USDT","walletBalance":"1000.25"},{"coin":"BTC","walletBalance":"0.01"}]}]`

type fakeWalletClient struct {
	resp        rest.Response
	err         error
	accountType string
}

func (f *fakeWalletClient) WalletBalance(ctx context.Context, accountType, coin string) (rest.Response, error) {
	_ = ctx
	_ = coin
	f.accountType = accountType
	return f.resp, f.err
}

func TestParseWallets(t *testing.T) {
	wallets, err := ParseWallets(json.RawMessage(walletList))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(wallets) != 1 {
		t.Fatalf("expected one wallet, got %d", len(wallets))
	}
	w := wallets[0]
	if w.AccountType != "UNIFIED" || !w.TotalEquity.Equal(decimal.RequireFromString("1250.5")) {
		t.Fatalf("unexpected wallet %#v", w)
	}
	if !w.TotalAvailableBalance.IsZero() {
		t.Fatalf("expected empty field to parse as zero, got %s", w.TotalAvailableBalance)
	}
	if !w.Coins["USDT"].Equal(decimal.RequireFromString("1000.25")) || !w.Coins["BTC"].Equal(decimal.RequireFromString("0.01")) {
		t.Fatalf("unexpected coins %#v", w.Coins)
	}
}

func TestFetchWallet(t *testing.T) {
	client := &fakeWalletClient{resp: rest.Response{RetCode: 0, Result: json.RawMessage(`{"list":` + walletList + `}`)}}
	w, err := FetchWallet(context.Background(), client, "UNIFIED")
	if err != nil {
		t.Fatalf("fetch wallet: %v", err)
	}
	if client.accountType != "UNIFIED" {
		t.Fatalf("expected UNIFIED request, got %q", client.accountType)
	}
	if !w.TotalWalletBalance.Equal(decimal.NewFromInt(1200)) {
		t.Fatalf("unexpected wallet balance %s", w.TotalWalletBalance)
	}
}

func TestFetchWalletErrors(t *testing.T) {
	boom := errors.New("boom")
	if _, err := FetchWallet(context.Background(), &fakeWalletClient{err: boom}, "UNIFIED"); !errors.Is(err, boom) {
		t.Fatalf("expected transport error, got %v", err)
	}
	rejected := &fakeWalletClient{resp: rest.Response{RetCode: 10003, RetMsg: "invalid api key"}}
	if _, err := FetchWallet(context.Background(), rejected, "UNIFIED"); err == nil {
		t.Fatalf("expected rejected error")
	}
	empty := &fakeWalletClient{resp: rest.Response{Result: json.RawMessage(`{"list":[]}`)}}
	if _, err := FetchWallet(context.Background(), empty, "UNIFIED"); err == nil {
		t.Fatalf("expected error for empty list")
	}
	if _, err := FetchWallet(context.Background(), nil, "UNIFIED"); err == nil {
		t.Fatalf("expected error for nil client")
	}
}
