package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"bybit-exec-bot/internal/account"
	"bybit-exec-bot/internal/bybit/auth"
	"bybit-exec-bot/internal/bybit/rest"
	"bybit-exec-bot/internal/config"
	"bybit-exec-bot/internal/exec"
	"bybit-exec-bot/internal/logging"
	"bybit-exec-bot/internal/strategy"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	defaultRESTTimeout   = 10 * time.Second
	defaultRESTBaseURL   = "https://api-testnet.bybit.com"
	defaultRecvWindow    = 5000
	defaultCategory      = "linear"
	defaultVerifyEnvFile = ".env"
)

// verify checks signed REST connectivity and can place one market order.
func main() {
	configPath := flag.String("config", "", "optional config path for REST settings")
	symbol := flag.String("symbol", "", "instrument for the position query and verify order")
	side := flag.String("side", "buy", "verify order direction: buy or sell")
	qty := flag.String("qty", "", "verify order quantity; no order is sent when empty")
	dryRun := flag.Bool("dry-run", false, "print the derived order and exit")
	flag.Parse()

	if err := config.LoadEnv(defaultVerifyEnvFile); err != nil {
		fatal(err)
	}

	logCfg := config.LoggingConfig{Level: "info", Format: "console"}
	baseURL := defaultRESTBaseURL
	timeout := defaultRESTTimeout
	recvWindow := int64(defaultRecvWindow)
	category := defaultCategory
	apiKey := strings.TrimSpace(os.Getenv("BYBIT_API_KEY"))
	apiSecret := strings.TrimSpace(os.Getenv("BYBIT_API_SECRET"))
	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			fatal(err)
		}
		logCfg = cfg.Log
		baseURL = cfg.REST.BaseURL
		timeout = cfg.REST.Timeout
		recvWindow = cfg.REST.RecvWindow
		category = cfg.Exec.Category
		apiKey, apiSecret = cfg.APIKey, cfg.APISecret
	}

	log := logging.New(logCfg)
	defer func() { _ = log.Sync() }()

	signer, err := auth.NewSigner(apiKey, apiSecret)
	if err != nil {
		fatal(fmt.Errorf("BYBIT_API_KEY and BYBIT_API_SECRET: %w", err))
	}
	defer signer.Wipe()
	client, err := rest.New(baseURL, timeout, recvWindow, signer, log)
	if err != nil {
		fatal(err)
	}
	ctx := context.Background()

	wallet, err := account.FetchWallet(ctx, client, "UNIFIED")
	if err != nil {
		fatal(err)
	}
	fmt.Printf("wallet: account_type=%s total_equity=%s available=%s\n", wallet.AccountType, wallet.TotalEquity, wallet.TotalAvailableBalance)

	instrument := strings.ToUpper(strings.TrimSpace(*symbol))
	positions, err := client.PositionInfo(ctx, category, instrument)
	if err != nil {
		fatal(err)
	}
	if !positions.OK() {
		fatal(fmt.Errorf("position query rejected: retCode %d: %s", positions.RetCode, positions.RetMsg))
	}
	pretty, err := json.MarshalIndent(positions.Result, "", "  ")
	if err != nil {
		fatal(err)
	}
	fmt.Printf("positions:\n%s\n", pretty)

	if strings.TrimSpace(*qty) == "" {
		return
	}
	if instrument == "" {
		fatal(errors.New("-symbol is required to place a verify order"))
	}
	quantity, err := decimal.NewFromString(*qty)
	if err != nil || !quantity.IsPositive() {
		fatal(fmt.Errorf("invalid -qty %q", *qty))
	}
	dir := strategy.Direction(strings.ToLower(strings.TrimSpace(*side)))
	if dir != strategy.DirectionBuy && dir != strategy.DirectionSell {
		fatal(fmt.Errorf("invalid -side %q", *side))
	}
	fmt.Printf("verify order: category=%s symbol=%s side=%s qty=%s type=Market\n", category, instrument, dir, quantity)
	if *dryRun {
		return
	}
	gateway := exec.New(client, category, timeout, nil, log)
	ack, err := gateway.Submit(ctx, dir, quantity, instrument)
	if err != nil {
		log.Error("verify order failed", zap.Error(err))
		os.Exit(1)
	}
	fmt.Printf("exchange response: order_id=%s ret_msg=%s\n", ack.OrderID, ack.RetMsg)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
