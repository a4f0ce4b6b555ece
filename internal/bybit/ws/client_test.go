package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

type staticAuth struct {
	msg string
}

func (s staticAuth) BuildAuthMessage() (string, error) {
	return s.msg, nil
}

func newServer(t *testing.T, handle func(ctx context.Context, conn *websocket.Conn)) (*httptest.Server, string) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept ws: %v", err)
			return
		}
		defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()
		handle(r.Context(), conn)
	}))
	return server, "ws" + strings.TrimPrefix(server.URL, "http")
}

func readControl(ctx context.Context, conn *websocket.Conn) (map[string]any, error) {
	_, data, err := conn.Read(ctx)
	if err != nil {
		return nil, err
	}
	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func drain(ctx context.Context, conn *websocket.Conn) {
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}

func TestClientSubscribesOnOpen(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	subCh := make(chan map[string]any, 1)
	server, url := newServer(t, func(ctx context.Context, conn *websocket.Conn) {
		msg, err := readControl(ctx, conn)
		if err != nil {
			return
		}
		subCh <- msg
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"topic":"tickers.BTCUSDT"}`))
		drain(ctx, conn)
	})
	defer server.Close()

	gotCh := make(chan string, 1)
	client := New(url, Handler{
		Name:   "public",
		Topics: []string{"tickers.BTCUSDT", "tickers.ETHUSDT"},
		OnMessage: func(msg json.RawMessage) {
			select {
			case gotCh <- string(msg):
			default:
			}
		},
	}, Options{}, zap.NewNop())
	go func() {
		_ = client.Run(ctx)
	}()

	select {
	case msg := <-subCh:
		if msg["op"] != "subscribe" {
			t.Fatalf("expected subscribe, got %v", msg)
		}
		if id, _ := msg["req_id"].(string); id == "" {
			t.Fatalf("expected req_id, got %v", msg)
		}
		args, _ := msg["args"].([]any)
		if len(args) != 2 || args[0] != "tickers.BTCUSDT" || args[1] != "tickers.ETHUSDT" {
			t.Fatalf("unexpected args %v", msg["args"])
		}
	case <-ctx.Done():
		t.Fatalf("timed out waiting for subscribe")
	}

	select {
	case got := <-gotCh:
		if got != `{"topic":"tickers.BTCUSDT"}` {
			t.Fatalf("unexpected message %s", got)
		}
	case <-ctx.Done():
		t.Fatalf("timed out waiting for message")
	}
	if state := client.State(); state != StateSubscribed {
		t.Fatalf("expected subscribed state, got %s", state)
	}
}

func TestClientAuthenticatesBeforeSubscribe(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	opsCh := make(chan []string, 1)
	server, url := newServer(t, func(ctx context.Context, conn *websocket.Conn) {
		first, err := readControl(ctx, conn)
		if err != nil {
			return
		}
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"op":"pong"}`))
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"success":true,"ret_msg":"","op":"auth","conn_id":"c1"}`))
		second, err := readControl(ctx, conn)
		if err != nil {
			return
		}
		opsCh <- []string{first["op"].(string), second["op"].(string)}
		drain(ctx, conn)
	})
	defer server.Close()

	client := New(url, Handler{
		Name:   "private",
		Topics: []string{"wallet"},
		OnOpen: Authenticate(staticAuth{msg: `{"op":"auth","req_id":"r","args":["k",1,"s"]}`}),
	}, Options{}, zap.NewNop())
	go func() {
		_ = client.Run(ctx)
	}()

	select {
	case ops := <-opsCh:
		if ops[0] != "auth" || ops[1] != "subscribe" {
			t.Fatalf("expected auth then subscribe, got %v", ops)
		}
	case <-ctx.Done():
		t.Fatalf("timed out waiting for handshake")
	}
}

func TestClientAuthRejectedFails(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var subscribed atomic.Bool
	server, url := newServer(t, func(ctx context.Context, conn *websocket.Conn) {
		if _, err := readControl(ctx, conn); err != nil {
			return
		}
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"success":false,"ret_msg":"invalid signature","op":"auth"}`))
		for {
			msg, err := readControl(ctx, conn)
			if err != nil {
				return
			}
			if msg["op"] == "subscribe" {
				subscribed.Store(true)
			}
		}
	})
	defer server.Close()

	var failures atomic.Int32
	client := New(url, Handler{
		Name:   "private",
		Topics: []string{"wallet"},
		OnOpen: Authenticate(staticAuth{msg: `{"op":"auth"}`}),
	}, Options{OnFailure: func(error) { failures.Add(1) }}, zap.NewNop())

	err := client.Run(ctx)
	if err == nil || !strings.Contains(err.Error(), "invalid signature") {
		t.Fatalf("expected auth rejection error, got %v", err)
	}
	if state := client.State(); state != StateFailed {
		t.Fatalf("expected failed state, got %s", state)
	}
	if failures.Load() != 1 {
		t.Fatalf("expected one failure callback, got %d", failures.Load())
	}
	if subscribed.Load() {
		t.Fatalf("subscribe must not be sent after auth rejection")
	}
}

func TestClientReconnectsAndResubscribes(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	var conns atomic.Int32
	resubCh := make(chan struct{}, 1)
	server, url := newServer(t, func(ctx context.Context, conn *websocket.Conn) {
		n := conns.Add(1)
		msg, err := readControl(ctx, conn)
		if err != nil || msg["op"] != "subscribe" {
			return
		}
		if n == 1 {
			_ = conn.Close(websocket.StatusGoingAway, "restart")
			return
		}
		select {
		case resubCh <- struct{}{}:
		default:
		}
		drain(ctx, conn)
	})
	defer server.Close()

	client := New(url, Handler{Name: "public", Topics: []string{"tickers.BTCUSDT"}}, Options{
		Reconnect:      true,
		ReconnectDelay: 10 * time.Millisecond,
		ReconnectMax:   20 * time.Millisecond,
	}, zap.NewNop())
	go func() {
		_ = client.Run(ctx)
	}()

	select {
	case <-resubCh:
	case <-ctx.Done():
		t.Fatalf("timed out waiting for resubscribe, connections=%d", conns.Load())
	}
}

func TestClientSendsPing(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	pingCh := make(chan map[string]any, 1)
	server, url := newServer(t, func(ctx context.Context, conn *websocket.Conn) {
		for {
			msg, err := readControl(ctx, conn)
			if err != nil {
				return
			}
			if msg["op"] != "ping" {
				continue
			}
			select {
			case pingCh <- msg:
			default:
			}
		}
	})
	defer server.Close()

	client := New(url, Handler{Name: "public", Topics: []string{"tickers.BTCUSDT"}}, Options{PingInterval: 20 * time.Millisecond}, zap.NewNop())
	go func() {
		_ = client.Run(ctx)
	}()

	select {
	case msg := <-pingCh:
		if msg["op"] != "ping" {
			t.Fatalf("expected ping message, got %v", msg)
		}
	case <-ctx.Done():
		t.Fatalf("timed out waiting for ping")
	}
}

func TestCloseStopsRun(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	server, url := newServer(t, func(ctx context.Context, conn *websocket.Conn) {
		drain(ctx, conn)
	})
	defer server.Close()

	client := New(url, Handler{Name: "public", Topics: []string{"tickers.BTCUSDT"}}, Options{Reconnect: true, ReconnectDelay: 10 * time.Millisecond}, zap.NewNop())
	done := make(chan error, 1)
	go func() {
		done <- client.Run(ctx)
	}()

	deadline := time.Now().Add(time.Second)
	for client.State() != StateSubscribed {
		if time.Now().After(deadline) {
			t.Fatalf("client never subscribed, state=%s", client.State())
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil after close, got %v", err)
		}
	case <-ctx.Done():
		t.Fatalf("run did not stop after close")
	}
	if state := client.State(); state != StateClosed {
		t.Fatalf("expected closed state, got %s", state)
	}
}

func TestCloseInterruptsReconnectWait(t *testing.T) {
	server, url := newServer(t, func(ctx context.Context, conn *websocket.Conn) {
		_ = conn.Close(websocket.StatusGoingAway, "bye")
	})
	defer server.Close()

	opts := Options{Reconnect: true, ReconnectDelay: time.Minute, ReconnectMax: time.Minute}
	client := New(url, Handler{Name: "public", Topics: []string{"tickers.BTCUSDT"}}, opts, zap.NewNop())
	done := make(chan error, 1)
	go func() {
		done <- client.Run(context.Background())
	}()

	deadline := time.Now().Add(time.Second)
	for client.State() != StateFailed {
		if time.Now().After(deadline) {
			t.Fatalf("client never failed, state=%s", client.State())
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil after close, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("run kept waiting for reconnect after close")
	}
}

func TestStateString(t *testing.T) {
	if StateSubscribed.String() != "subscribed" || StateFailed.String() != "failed" {
		t.Fatalf("unexpected state names")
	}
}
