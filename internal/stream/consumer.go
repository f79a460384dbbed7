package stream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tradeforge/internal/feed"
	"tradeforge/internal/logger"

	"github.com/gorilla/websocket"
)

// Consumer is the client side of the tick stream: it dials the hub endpoint,
// delivers messages in order, and redials with the same bounded retry policy
// the exchange connectors use. A normal-closure frame from the server means
// deliberate shutdown and is never retried.
type Consumer struct {
	url    string
	policy feed.RetryPolicy
	onTick func(Message)

	mu      sync.Mutex
	lastErr error
}

func NewConsumer(url string, policy feed.RetryPolicy, onTick func(Message)) *Consumer {
	if policy.Delay <= 0 {
		policy.Delay = feed.DefaultRetryPolicy().Delay
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = feed.DefaultRetryPolicy().MaxAttempts
	}
	return &Consumer{url: url, policy: policy, onTick: onTick}
}

// Run blocks until the server closes intentionally, ctx is cancelled, or the
// retry budget is exhausted.
func (c *Consumer) Run(ctx context.Context) error {
	attempts := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
		if err == nil {
			attempts = 0
			err = c.readLoop(ctx, conn)
			if err == nil {
				// intentional close from the server
				return nil
			}
		}
		c.setErr(err)
		attempts++
		if c.policy.Exhausted(attempts) {
			return fmt.Errorf("stream consumer: retry budget exhausted: %w", err)
		}
		logger.Warnf("stream consumer: %v, retrying in %s (attempt %d/%d)", err, c.policy.Delay, attempts, c.policy.MaxAttempts)
		timer := time.NewTimer(c.policy.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (c *Consumer) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *Consumer) setErr(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
}

// readLoop returns nil only for a deliberate server close.
func (c *Consumer) readLoop(ctx context.Context, conn *websocket.Conn) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()
	defer conn.Close()

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return err
		}
		if c.onTick != nil {
			c.onTick(msg)
		}
	}
}
