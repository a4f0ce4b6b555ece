package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"bybit-exec-bot/internal/config"
	"bybit-exec-bot/internal/strategy"

	"go.uber.org/zap"
)

const (
	telegramBaseURL = "https://api.telegram.org"
	maxMessageRunes = 4096
)

// Telegram posts order notifications to one chat through the Bot API.
type Telegram struct {
	endpoint string
	chatID   string
	client   *http.Client
	log      *zap.Logger
}

func NewTelegram(cfg config.TelegramConfig, log *zap.Logger) (*Telegram, error) {
	return newTelegram(cfg, log, telegramBaseURL, &http.Client{Timeout: 10 * time.Second})
}

func newTelegram(cfg config.TelegramConfig, log *zap.Logger, baseURL string, client *http.Client) (*Telegram, error) {
	token := strings.TrimSpace(cfg.Token)
	chatID := strings.TrimSpace(cfg.ChatID)
	if token == "" || chatID == "" {
		return nil, errors.New("telegram token and chat_id are required")
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Telegram{
		endpoint: fmt.Sprintf("%s/bot%s/sendMessage", strings.TrimRight(baseURL, "/"), token),
		chatID:   chatID,
		client:   client,
		log:      log,
	}, nil
}

// APIError is a sendMessage call the Bot API did not accept.
type APIError struct {
	StatusCode  int
	Description string
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("telegram send failed: http %d: %s", e.StatusCode, e.Description)
	}
	return fmt.Sprintf("telegram send failed: %s", e.Description)
}

type sendMessageRequest struct {
	ChatID              string `json:"chat_id"`
	Text                string `json:"text"`
	DisableNotification bool   `json:"disable_notification,omitempty"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// NotifyOrder sends one order record. Records that carry a price were
// executed or simulated and go out silently; a record without one pings
// the chat.
func (t *Telegram) NotifyOrder(ctx context.Context, order strategy.Order) error {
	return t.send(ctx, sendMessageRequest{
		ChatID:              t.chatID,
		Text:                OrderMessage(order),
		DisableNotification: order.Price != nil,
	})
}

func (t *Telegram) Send(ctx context.Context, message string) error {
	return t.send(ctx, sendMessageRequest{ChatID: t.chatID, Text: message})
}

func (t *Telegram) send(ctx context.Context, msg sendMessageRequest) error {
	msg.Text = strings.TrimSpace(msg.Text)
	if msg.Text == "" {
		return errors.New("telegram message is empty")
	}
	if runes := []rune(msg.Text); len(runes) > maxMessageRunes {
		msg.Text = string(runes[:maxMessageRunes])
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		t.log.Debug("telegram send rejected", zap.Int("status", resp.StatusCode))
		return &APIError{StatusCode: resp.StatusCode, Description: strings.TrimSpace(string(raw))}
	}
	var result sendMessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil
	}
	if !result.OK {
		desc := strings.TrimSpace(result.Description)
		if desc == "" {
			desc = "unknown telegram error"
		}
		return &APIError{Description: desc}
	}
	return nil
}

// OrderMessage renders an order history record as a notification.
func OrderMessage(order strategy.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s/%s %s %s %s", order.User, order.Strategy, order.Direction, order.Quantity.String(), order.Instrument)
	if order.Price != nil {
		fmt.Fprintf(&b, " @ %s", order.Price.String())
	} else {
		b.WriteString(" (no execution)")
	}
	fmt.Fprintf(&b, "\n%s", order.Date.UTC().Format(time.RFC3339))
	return b.String()
}
