// Package websocket provides a reconnecting WebSocket subscriber for the progress stream
package websocket

import (
	"context"
	"net/http"
	"sync"
	"time"

	"basket_swap/internal/core"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
)

// MessageHandler handles one raw frame
type MessageHandler func(message []byte)

// Option configures a Client
type Option func(*Client)

// WithHeader sets request headers sent on every dial (API key, Origin)
func WithHeader(h http.Header) Option {
	return func(c *Client) { c.header = h.Clone() }
}

// WithReconnectWait sets the first pause between dial attempts. Consecutive failures back off
// up to maxReconnectWait.
func WithReconnectWait(d time.Duration) Option {
	return func(c *Client) { c.reconnectWait = d }
}

const maxReconnectWait = 30 * time.Second

// Client keeps a subscription open, redialing after failures until Stop
type Client struct {
	url           string
	header        http.Header
	handler       MessageHandler
	reconnectWait time.Duration

	conn *websocket.Conn
	mu   sync.Mutex

	logger core.ILogger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewClient(url string, handler MessageHandler, logger core.ILogger, opts ...Option) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		url:           url,
		handler:       handler,
		reconnectWait: 5 * time.Second,
		logger:        logger,
		ctx:           ctx,
		cancel:        cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Start() {
	c.wg.Add(1)
	go c.runLoop()
}

// Stop closes the connection and waits for the loop to exit
func (c *Client) Stop() {
	c.cancel()
	c.closeConn()
	c.wg.Wait()
}

func (c *Client) runLoop() {
	defer c.wg.Done()

	b := &backoff.Backoff{
		Min:    c.reconnectWait,
		Max:    maxReconnectWait,
		Factor: 2,
		Jitter: true,
	}
	if b.Max < b.Min {
		b.Max = b.Min
	}

	for {
		if err := c.connect(); err != nil {
			if c.ctx.Err() != nil {
				return
			}
			if c.logger != nil {
				c.logger.Warn("WebSocket connection failed", "error", err, "url", c.url, "attempt", b.Attempt()+1)
			}
		} else {
			b.Reset()
			c.readLoop()
		}

		select {
		case <-c.ctx.Done():
			return
		case <-time.After(b.Duration()):
		}
	}
}

func (c *Client) connect() error {
	conn, _, err := websocket.DefaultDialer.DialContext(c.ctx, c.url, c.header)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctx.Err() != nil {
		conn.Close()
		return c.ctx.Err()
	}
	c.conn = conn
	return nil
}

func (c *Client) closeConn() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) readLoop() {
	defer c.closeConn()

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil && c.logger != nil {
				c.logger.Warn("WebSocket connection lost", "error", err, "url", c.url)
			}
			return
		}
		if c.handler != nil {
			c.handler(message)
		}
	}
}
