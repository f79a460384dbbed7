package feed

import (
	"context"
	"errors"
	"sync"
	"time"

	"tradeforge/internal/logger"
	"tradeforge/internal/market"
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateBackingOff
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateBackingOff:
		return "backing_off"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// RetryPolicy is the shared resilient-subscriber policy: a fixed delay between
// attempts and a bounded attempt budget. The same policy drives exchange feed
// connectors and downstream stream consumers.
type RetryPolicy struct {
	Delay       time.Duration
	MaxAttempts int
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Delay: 3 * time.Second, MaxAttempts: 10}
}

// Exhausted reports whether the attempt counter has gone past the budget.
func (p RetryPolicy) Exhausted(attempts int) bool {
	return p.MaxAttempts > 0 && attempts > p.MaxAttempts
}

var errConnectionLost = errors.New("feed: connection lost")

// Status is a read-only view of a connector for diagnostics.
type Status struct {
	Exchange  string `json:"exchange"`
	State     string `json:"state"`
	Attempts  int    `json:"attempts"`
	LastError string `json:"last_error,omitempty"`
}

// Connector owns the streaming connection to one exchange. It is the only
// writer of its connection state. Received ticks are handed to onTick in
// arrival order; reconnection follows RetryPolicy and a deliberate Stop is
// terminal and never retried.
type Connector struct {
	exchange string
	source   market.Source
	symbols  []string
	policy   RetryPolicy
	onTick   func(market.Tick)
	onState  func(exchange string, from, to State)

	mu       sync.Mutex
	state    State
	attempts int
	lastErr  error
	sess     market.Session

	wake     chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

type ConnectorOption func(*Connector)

func WithTickHandler(fn func(market.Tick)) ConnectorOption {
	return func(c *Connector) { c.onTick = fn }
}

func WithStateHandler(fn func(exchange string, from, to State)) ConnectorOption {
	return func(c *Connector) { c.onState = fn }
}

func NewConnector(source market.Source, symbols []string, policy RetryPolicy, opts ...ConnectorOption) *Connector {
	if policy.Delay <= 0 {
		policy.Delay = DefaultRetryPolicy().Delay
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = DefaultRetryPolicy().MaxAttempts
	}
	c := &Connector{
		exchange: source.Name(),
		source:   source,
		symbols:  append([]string(nil), symbols...),
		policy:   policy,
		state:    StateDisconnected,
		wake:     make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

func (c *Connector) Exchange() string { return c.exchange }

func (c *Connector) Start(ctx context.Context) {
	go c.run(ctx)
}

// Stop closes the connector deliberately. The state ends at disconnected and
// no reconnect is scheduled.
func (c *Connector) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		c.mu.Lock()
		sess := c.sess
		c.mu.Unlock()
		if sess != nil {
			_ = sess.Close()
		}
	})
	<-c.done
}

// Reconnect resets the attempt counter and, if the connector sits in failed,
// wakes it for another connection cycle. Safe to call repeatedly.
func (c *Connector) Reconnect() {
	c.mu.Lock()
	c.attempts = 0
	c.mu.Unlock()
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Connector) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Connector) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Status{
		Exchange: c.exchange,
		State:    c.state.String(),
		Attempts: c.attempts,
	}
	if c.lastErr != nil {
		st.LastError = c.lastErr.Error()
	}
	return st
}

func (c *Connector) run(ctx context.Context) {
	defer close(c.done)
	defer c.setState(StateDisconnected)
	for {
		if c.stopped(ctx) {
			return
		}
		c.setState(StateConnecting)
		sess, err := c.source.Connect(ctx, c.symbols)
		if err != nil {
			logger.Warnf("feed %s: connect failed: %v", c.exchange, err)
			if !c.afterFailure(ctx, err) {
				return
			}
			continue
		}

		c.mu.Lock()
		c.sess = sess
		c.attempts = 0
		c.lastErr = nil
		c.mu.Unlock()
		c.setState(StateConnected)
		logger.Infof("feed %s: connected symbols=%v", c.exchange, c.symbols)

		for t := range sess.Ticks() {
			if c.onTick != nil {
				c.onTick(t)
			}
		}

		c.mu.Lock()
		c.sess = nil
		c.mu.Unlock()

		if c.stopped(ctx) {
			return
		}
		err = sess.Err()
		if err == nil {
			err = errConnectionLost
		}
		logger.Warnf("feed %s: stream ended: %v", c.exchange, err)
		if !c.afterFailure(ctx, err) {
			return
		}
	}
}

// afterFailure increments the attempt counter, then either backs off, parks in
// failed until Reconnect, or reports that the connector should exit. Returns
// true when another connection cycle should run.
func (c *Connector) afterFailure(ctx context.Context, err error) bool {
	c.mu.Lock()
	c.attempts++
	c.lastErr = err
	attempts := c.attempts
	c.mu.Unlock()

	if c.policy.Exhausted(attempts) {
		c.setState(StateFailed)
		logger.Errorf("feed %s: retry budget exhausted after %d attempts, waiting for explicit reconnect", c.exchange, attempts-1)
		select {
		case <-ctx.Done():
			return false
		case <-c.stopCh:
			return false
		case <-c.wake:
			return true
		}
	}

	c.setState(StateBackingOff)
	timer := time.NewTimer(c.policy.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-c.stopCh:
		return false
	case <-c.wake:
		return true
	case <-timer.C:
		return true
	}
}

func (c *Connector) stopped(ctx context.Context) bool {
	select {
	case <-c.stopCh:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func (c *Connector) setState(to State) {
	c.mu.Lock()
	from := c.state
	c.state = to
	c.mu.Unlock()
	if from != to && c.onState != nil {
		c.onState(c.exchange, from, to)
	}
}
