package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"bybit-exec-bot/internal/bybit/auth"

	"go.uber.org/zap"
)

// RetCodeOK is the success sentinel of every Bybit v5 response.
const RetCodeOK = 0

type Client struct {
	baseURL    string
	http       *http.Client
	signer     *auth.Signer
	recvWindow int64
	log        *zap.Logger
	now        func() time.Time
}

func New(baseURL string, timeout time.Duration, recvWindow int64, signer *auth.Signer, log *zap.Logger) (*Client, error) {
	if signer == nil {
		return nil, errors.New("signer is required")
	}
	if baseURL == "" {
		baseURL = "https://api.bybit.com"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: timeout,
		},
		signer:     signer,
		recvWindow: recvWindow,
		log:        log,
		now:        time.Now,
	}, nil
}

type OrderRequest struct {
	Category  string `json:"category"`
	Symbol    string `json:"symbol"`
	Side      string `json:"side"`
	OrderType string `json:"orderType"`
	Qty       string `json:"qty"`
}

// Response is the common v5 envelope. Result is left raw for the caller.
type Response struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
	Time    int64           `json:"time"`
}

func (r Response) OK() bool {
	return r.RetCode == RetCodeOK
}

// OrderID extracts result.orderId when present.
func (r Response) OrderID() string {
	var result struct {
		OrderID string `json:"orderId"`
	}
	if len(r.Result) == 0 {
		return ""
	}
	if err := json.Unmarshal(r.Result, &result); err != nil {
		return ""
	}
	return result.OrderID
}

func (c *Client) CreateOrder(ctx context.Context, req OrderRequest) (Response, error) {
	return c.post(ctx, "/v5/order/create", req)
}

func (c *Client) PositionInfo(ctx context.Context, category, symbol string) (Response, error) {
	q := url.Values{}
	q.Set("category", category)
	if symbol != "" {
		q.Set("symbol", symbol)
	} else {
		q.Set("settleCoin", "USDT")
	}
	return c.get(ctx, "/v5/position/list", q)
}

func (c *Client) WalletBalance(ctx context.Context, accountType, coin string) (Response, error) {
	q := url.Values{}
	q.Set("accountType", accountType)
	if coin != "" {
		q.Set("coin", coin)
	}
	return c.get(ctx, "/v5/account/wallet-balance", q)
}

func (c *Client) post(ctx context.Context, path string, req any) (Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Response{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return Response{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.sign(httpReq, string(body))
	return c.do(httpReq)
}

func (c *Client) get(ctx context.Context, path string, query url.Values) (Response, error) {
	encoded := query.Encode()
	target := c.baseURL + path
	if encoded != "" {
		target += "?" + encoded
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Response{}, err
	}
	c.sign(httpReq, encoded)
	return c.do(httpReq)
}

func (c *Client) sign(req *http.Request, payload string) {
	for key, value := range c.signer.RESTHeaders(c.now(), c.recvWindow, payload) {
		req.Header.Set(key, value)
	}
}

func (c *Client) do(req *http.Request) (Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return Response{}, fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}
	var data Response
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return Response{}, err
	}
	if !data.OK() {
		c.log.Debug("bybit request rejected",
			zap.String("path", req.URL.Path),
			zap.Int("ret_code", data.RetCode),
			zap.String("ret_msg", data.RetMsg),
		)
	}
	return data, nil
}
