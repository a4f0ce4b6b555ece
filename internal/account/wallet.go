package account

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"bybit-exec-bot/internal/bybit/rest"

	"github.com/shopspring/decimal"
)

type WalletClient interface {
	WalletBalance(ctx context.Context, accountType, coin string) (rest.Response, error)
}

type Wallet struct {
	AccountType           string
	TotalEquity           decimal.Decimal
	TotalWalletBalance    decimal.Decimal
	TotalAvailableBalance decimal.Decimal
	Coins                 map[string]decimal.Decimal
}

type walletEntry struct {
	AccountType           string `json:"accountType"`
	TotalEquity           string `json:"totalEquity"`
	TotalWalletBalance    string `json:"totalWalletBalance"`
	TotalAvailableBalance string `json:"totalAvailableBalance"`
	Coin                  []struct {
		Coin          string `json:"coin"`
		WalletBalance string `json:"walletBalance"`
	} `json:"coin"`
}

// FetchWallet reads the wallet balance for one account type over REST.
func FetchWallet(ctx context.Context, client WalletClient, accountType string) (Wallet, error) {
	if client == nil {
		return Wallet{}, errors.New("wallet client is required")
	}
	resp, err := client.WalletBalance(ctx, accountType, "")
	if err != nil {
		return Wallet{}, err
	}
	if !resp.OK() {
		return Wallet{}, fmt.Errorf("wallet balance rejected: retCode %d: %s", resp.RetCode, resp.RetMsg)
	}
	var result struct {
		List json.RawMessage `json:"list"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return Wallet{}, err
	}
	wallets, err := ParseWallets(result.List)
	if err != nil {
		return Wallet{}, err
	}
	for _, w := range wallets {
		if strings.EqualFold(w.AccountType, accountType) {
			return w, nil
		}
	}
	if len(wallets) == 0 {
		return Wallet{}, errors.New("wallet balance returned no accounts")
	}
	return wallets[0], nil
}

// ParseWallets decodes the wallet entry list shared by the REST balance
// result and the private wallet topic.
func ParseWallets(raw json.RawMessage) ([]Wallet, error) {
	var entries []walletEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, err
	}
	out := make([]Wallet, 0, len(entries))
	for _, e := range entries {
		w := Wallet{
			AccountType:           e.AccountType,
			TotalEquity:           parseAmount(e.TotalEquity),
			TotalWalletBalance:    parseAmount(e.TotalWalletBalance),
			TotalAvailableBalance: parseAmount(e.TotalAvailableBalance),
			Coins:                 make(map[string]decimal.Decimal, len(e.Coin)),
		}
		for _, c := range e.Coin {
			if c.Coin == "" {
				continue
			}
			w.Coins[c.Coin] = parseAmount(c.WalletBalance)
		}
		out = append(out, w)
	}
	return out, nil
}

// Bybit sends "" for fields that do not apply to an account type.
func parseAmount(v string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(v))
	if err != nil {
		return decimal.Zero
	}
	return d
}
