// Package wsprovider implements provider.Executor over a websocket
// connection to a single upstream JSON-RPC node.
//
// The client owns one connection at a time and reconnects with
// exponential backoff when it drops. Request ids are rewritten to a
// private counter on the wire so that concurrent gateway clients cannot
// collide upstream; the caller's id is restored on the response.
package wsprovider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/joeshaw/envdecode"
	"github.com/jpillora/backoff"

	"github.com/ethgate-dev/ethgate/jsonrpc"
	"github.com/ethgate-dev/ethgate/provider"
)

const (
	// wsHandshakeTimeout bounds the websocket upgrade against the node.
	wsHandshakeTimeout = 45 * time.Second

	// wsWriteWait is the time allowed to write a message to the node.
	wsWriteWait = 10 * time.Second

	// wsPongWait is the time allowed to wait for the next pong message.
	wsPongWait = 30 * time.Second

	// wsPingPeriod is the ping cadence. Must be less than wsPongWait.
	wsPingPeriod = (wsPongWait * 9) / 10

	// maxReconnectInterval caps the backoff between redial attempts.
	maxReconnectInterval = 30 * time.Second

	defaultRequestTimeout = 30 * time.Second
)

// Config captures the environment surface of the websocket provider.
type Config struct {
	URL            string        `env:"PROVIDER_URL,default=ws://localhost:8545"`
	RequestTimeout time.Duration `env:"PROVIDER_REQUEST_TIMEOUT,default=30s"`
}

// Option is a functional option for configuring the Client.
type Option func(*Client)

// WithLogger sets the logger. Nil values are ignored.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// WithHeader sets extra headers sent with the websocket handshake,
// typically auth for hosted nodes.
func WithHeader(h http.Header) Option {
	return func(c *Client) {
		c.header = h
	}
}

// Client is a websocket-backed provider.Executor.
type Client struct {
	url        string
	header     http.Header
	log        *slog.Logger
	reqTimeout time.Duration
	dialer     *websocket.Dialer

	nextID atomic.Int64

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[int64]chan *jsonrpc.Response

	writeMu sync.Mutex

	pushMu sync.RWMutex
	push   provider.PushFunc
}

var _ provider.Executor = (*Client)(nil)

// New builds a Client from explicit configuration. The connection is
// not dialed until Run is called.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("provider url is required")
	}

	c := &Client{
		url:        cfg.URL,
		log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		reqTimeout: cfg.RequestTimeout,
		dialer: &websocket.Dialer{
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
			HandshakeTimeout: wsHandshakeTimeout,
		},
		pending: make(map[int64]chan *jsonrpc.Response),
	}
	if c.reqTimeout <= 0 {
		c.reqTimeout = defaultRequestTimeout
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	return c, nil
}

// NewFromEnv builds a Client from environment variables.
func NewFromEnv(opts ...Option) (*Client, error) {
	var cfg Config
	_ = envdecode.Decode(&cfg)

	return New(cfg, opts...)
}

// OnPush implements provider.Executor.
func (c *Client) OnPush(fn provider.PushFunc) {
	c.pushMu.Lock()
	defer c.pushMu.Unlock()
	c.push = fn
}

// Run dials the upstream node and services the connection until ctx
// ends, redialing with exponential backoff after failures. In-flight
// Forward calls are failed with ErrNotConnected when the connection
// drops.
func (c *Client) Run(ctx context.Context) error {
	b := &backoff.Backoff{Max: maxReconnectInterval}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, resp, err := c.dialer.DialContext(ctx, c.url, c.header)
		if err != nil {
			if resp != nil {
				resp.Body.Close()
			}
			d := b.Duration()
			c.log.WarnContext(ctx, "upstream dial failed",
				slog.String("url", c.url),
				slog.String("err", err.Error()),
				slog.Duration("retry_in", d),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d):
			}
			continue
		}

		b.Reset()
		c.log.InfoContext(ctx, "connected to upstream node", slog.String("url", c.url))

		err = c.serve(ctx, conn)
		c.failPending()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.WarnContext(ctx, "upstream connection lost", slog.String("err", err.Error()))
	}
}

// serve reads the connection until it fails, dispatching responses and
// notifications. It installs conn as the active connection for Forward.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) error {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		conn.Close()
	}()

	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	done := make(chan struct{})
	defer close(done)

	go func() {
		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
					conn.Close()
					return
				}
			case <-ctx.Done():
				conn.Close()
				return
			case <-done:
				return
			}
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		c.dispatch(ctx, raw)
	}
}

// dispatch routes one inbound frame: frames with a method are
// notifications for the push sink, frames with an id answer a pending
// call.
func (c *Client) dispatch(ctx context.Context, raw []byte) {
	var probe struct {
		ID     *jsonrpc.RequestID `json:"id"`
		Method string             `json:"method"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		c.log.DebugContext(ctx, "discarding unparseable upstream frame", slog.String("err", err.Error()))
		return
	}

	if probe.Method != "" {
		c.pushMu.RLock()
		fn := c.push
		c.pushMu.RUnlock()
		if fn != nil {
			fn(json.RawMessage(raw))
		}
		return
	}

	key, ok := probe.ID.Value().(int64)
	if !ok {
		c.log.DebugContext(ctx, "discarding upstream frame with unrecognized id", slog.String("id", probe.ID.String()))
		return
	}

	c.mu.Lock()
	ch, ok := c.pending[key]
	if ok {
		delete(c.pending, key)
	}
	c.mu.Unlock()
	if !ok {
		c.log.DebugContext(ctx, "discarding response for unknown call", slog.Int64("id", key))
		return
	}

	var resp jsonrpc.Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		close(ch)
		return
	}
	ch <- &resp
}

// failPending drops every in-flight call. Callers blocked in Forward
// observe ErrNotConnected.
func (c *Client) failPending() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

// Forward implements provider.Executor. The request's id is rewritten
// to a connection-private counter before it goes on the wire; the
// response is returned with the caller's original id.
func (c *Client) Forward(ctx context.Context, req *jsonrpc.Payload) (*jsonrpc.Response, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil, provider.ErrNotConnected
	}

	internal := c.nextID.Add(1)
	wire := *req
	wire.ID = jsonrpc.NewRequestID(internal)

	data, err := json.Marshal(&wire)
	if err != nil {
		return nil, fmt.Errorf("marshal upstream request: %w", err)
	}

	ch := make(chan *jsonrpc.Response, 1)
	c.mu.Lock()
	c.pending[internal] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, internal)
		c.mu.Unlock()
	}()

	c.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	err = conn.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("write upstream request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.reqTimeout)
	defer cancel()

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, provider.ErrNotConnected
		}
		resp.ID = req.ID
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
