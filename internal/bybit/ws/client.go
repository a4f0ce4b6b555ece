package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

const readLimit = 1 << 20

// Session is the write/read surface handed to an OnOpen hook.
type Session interface {
	Send(ctx context.Context, data []byte) error
	SendJSON(ctx context.Context, v any) error
	Receive(ctx context.Context) (json.RawMessage, error)
}

// Handler parameterizes one stream: what to do once the socket opens,
// which topics to subscribe, and where inbound messages go.
type Handler struct {
	Name      string
	Topics    []string
	OnOpen    func(ctx context.Context, s Session) error
	OnMessage func(msg json.RawMessage)
}

type Options struct {
	PingInterval   time.Duration
	Reconnect      bool
	ReconnectDelay time.Duration
	ReconnectMax   time.Duration
	// OnFailure is called once per failed connection.
	OnFailure func(err error)
}

type Client struct {
	url     string
	handler Handler
	opts    Options
	log     *zap.Logger

	state     atomic.Int32
	closed    atomic.Bool
	done      chan struct{}
	closeOnce sync.Once

	mu   sync.Mutex
	conn *websocket.Conn
}

func New(url string, handler Handler, opts Options, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Client{
		url:     url,
		handler: handler,
		opts:    opts,
		log:     log.With(zap.String("stream", handler.Name)),
		done:    make(chan struct{}),
	}
	c.state.Store(int32(StateClosed))
	return c
}

func (c *Client) State() State {
	return State(c.state.Load())
}

// Run keeps the stream alive until ctx is done or Close is called. Without
// reconnect it returns the first connection error.
func (c *Client) Run(ctx context.Context) error {
	// Close cancels a dial or backoff wait in progress.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	bo := backoff.NewExponentialBackOff()
	if c.opts.ReconnectDelay > 0 {
		bo.InitialInterval = c.opts.ReconnectDelay
	}
	if c.opts.ReconnectMax > 0 {
		bo.MaxInterval = c.opts.ReconnectMax
	}
	bo.Reset()
	for {
		subscribed, err := c.runConn(ctx)
		if c.closed.Load() {
			c.setState(StateClosed)
			return nil
		}
		if ctx.Err() != nil {
			c.setState(StateClosed)
			return ctx.Err()
		}
		c.setState(StateFailed)
		c.logConnError(err)
		if c.opts.OnFailure != nil {
			c.opts.OnFailure(err)
		}
		if !c.opts.Reconnect {
			return err
		}
		if subscribed {
			bo.Reset()
		}
		delay := bo.NextBackOff()
		c.log.Info("ws reconnecting", zap.Duration("delay", delay))
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			c.setState(StateClosed)
			if c.closed.Load() {
				return nil
			}
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Close tears down the current connection and stops Run.
func (c *Client) Close() error {
	c.closed.Store(true)
	c.closeOnce.Do(func() { close(c.done) })
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	c.setState(StateClosed)
	if conn == nil {
		return nil
	}
	return conn.Close(websocket.StatusNormalClosure, "closed")
}

func (c *Client) runConn(ctx context.Context) (bool, error) {
	c.setState(StateConnecting)
	conn, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		return false, err
	}
	conn.SetReadLimit(readLimit)
	c.mu.Lock()
	if c.closed.Load() {
		c.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "closed")
		return false, errors.New("ws client closed")
	}
	c.conn = conn
	c.mu.Unlock()
	defer c.resetConn(conn)

	c.setState(StateOpen)
	sess := &session{conn: conn}
	if c.handler.OnOpen != nil {
		if err := c.handler.OnOpen(ctx, sess); err != nil {
			return false, err
		}
	}
	if len(c.handler.Topics) > 0 {
		if err := sess.SendJSON(ctx, NewSubscribe(c.handler.Topics)); err != nil {
			return false, err
		}
	}
	c.setState(StateSubscribed)
	c.log.Info("ws subscribed", zap.Strings("topics", c.handler.Topics))

	pingCtx, cancel := context.WithCancel(ctx)
	pingDone := make(chan struct{})
	go func() {
		defer close(pingDone)
		c.pingLoop(pingCtx, sess)
	}()
	err = c.readLoop(ctx, conn)
	cancel()
	<-pingDone
	return true, err
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if c.handler.OnMessage != nil {
			c.handler.OnMessage(json.RawMessage(data))
		}
	}
}

func (c *Client) pingLoop(ctx context.Context, sess *session) {
	interval := c.opts.PingInterval
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := sess.SendJSON(ctx, NewPing()); err != nil {
				return
			}
		}
	}
}

func (c *Client) logConnError(err error) {
	status := websocket.CloseStatus(err)
	if status == websocket.StatusNormalClosure {
		var closeErr websocket.CloseError
		if errors.As(err, &closeErr) {
			c.log.Info("ws connection ended", zap.Int("status", int(closeErr.Code)), zap.String("reason", closeErr.Reason))
			return
		}
	}
	c.log.Warn("ws connection failed", zap.Error(err))
}

func (c *Client) resetConn(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	_ = conn.Close(websocket.StatusNormalClosure, "reset")
}

func (c *Client) setState(s State) {
	c.state.Store(int32(s))
}

type session struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *session) Send(ctx context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Write(ctx, websocket.MessageText, data)
}

func (s *session) SendJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Send(ctx, data)
}

func (s *session) Receive(ctx context.Context) (json.RawMessage, error) {
	_, data, err := s.conn.Read(ctx)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}
