package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
)

type ReconnectConfig struct {
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
}

type WSClientConfig struct {
	URL         string
	DialTimeout time.Duration
	Reconnect   ReconnectConfig
	// WriteBufferSize is the number of frames that can be queued per connection.
	WriteBufferSize int
	Header          http.Header
}

type WSClientOption func(*WSClient)

func WithClientLogger(l *slog.Logger) WSClientOption {
	return func(c *WSClient) {
		c.logger = l
	}
}

func WithDialer(d *websocket.Dialer) WSClientOption {
	return func(c *WSClient) {
		c.dialer = d
	}
}

// WSClient keeps a websocket connection to the backend open, reconnecting with
// exponential backoff. Every connection gets a new session token; callbacks carry
// the token of the connection they belong to so that work queued by an old
// connection can be recognised as stale.
type WSClient struct {
	cfg    WSClientConfig
	dialer *websocket.Dialer
	logger *slog.Logger
	token  SessionToken

	mu   sync.Mutex
	conn *Conn

	onFrame        func(token uint64, f *Frame)
	onConnected    func(token uint64)
	onDisconnected func(token uint64, err error)
}

func NewWSClient(cfg WSClientConfig, opts ...WSClientOption) *WSClient {
	if cfg.WriteBufferSize <= 0 {
		cfg.WriteBufferSize = 256
	}
	c := &WSClient{
		cfg:            cfg,
		dialer:         websocket.DefaultDialer,
		logger:         slog.Default(),
		onFrame:        func(uint64, *Frame) {},
		onConnected:    func(uint64) {},
		onDisconnected: func(uint64, error) {},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnFrame is called from the read goroutine for every frame received.
func (c *WSClient) OnFrame(f func(token uint64, f *Frame)) {
	c.onFrame = f
}

func (c *WSClient) OnConnected(f func(token uint64)) {
	c.onConnected = f
}

func (c *WSClient) OnDisconnected(f func(token uint64, err error)) {
	c.onDisconnected = f
}

// Token returns the token of the current connection attempt.
func (c *WSClient) Token() uint64 {
	return c.token.Current()
}

func (c *WSClient) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

func (c *WSClient) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if c.cfg.Reconnect.BaseDelay > 0 {
		b.InitialInterval = c.cfg.Reconnect.BaseDelay
	}
	if c.cfg.Reconnect.MaxDelay > 0 {
		b.MaxInterval = c.cfg.Reconnect.MaxDelay
	}
	if c.cfg.Reconnect.Multiplier > 1 {
		b.Multiplier = c.cfg.Reconnect.Multiplier
	}
	// retry forever
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Run connects and serves connections until ctx is cancelled. Disconnects are not
// fatal; Run only returns when ctx is done.
func (c *WSClient) Run(ctx context.Context) error {
	b := backoff.WithContext(c.newBackOff(), ctx)
	for {
		if ctx.Err() != nil {
			return nil
		}
		token := c.token.Next()
		logger := c.logger.With(slog.Uint64("session", token))

		ws, err := c.dial(ctx)
		if err != nil {
			logger.Warn("failed to connect to backend", "error", err)
			if !c.wait(ctx, b) {
				return nil
			}
			continue
		}
		b.Reset()

		conn := newConn(ws, token, c.cfg.WriteBufferSize, func(f *Frame) {
			c.onFrame(token, f)
		}, logger)
		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()

		logger.Info("connected to backend", "url", c.cfg.URL)
		c.onConnected(token)
		err = conn.run(ctx)

		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		logger.Info("disconnected from backend", "error", err)
		c.onDisconnected(token, err)

		if !c.wait(ctx, b) {
			return nil
		}
	}
}

func (c *WSClient) wait(ctx context.Context, b backoff.BackOff) bool {
	d := b.NextBackOff()
	if d == backoff.Stop {
		return false
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *WSClient) dial(ctx context.Context) (*websocket.Conn, error) {
	if c.cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.DialTimeout)
		defer cancel()
	}
	ws, res, err := c.dialer.DialContext(ctx, c.cfg.URL, c.cfg.Header)
	if err != nil {
		if res != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", c.cfg.URL, err, res.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}
	return ws, nil
}

// Send queues a frame on the current connection.
func (c *WSClient) Send(f *Frame) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	return conn.send(f)
}

// Reconnect drops the current connection. Run dials again after the backoff delay.
func (c *WSClient) Reconnect() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		conn.close()
	}
}
