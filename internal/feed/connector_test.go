package feed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tradeforge/internal/market"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	ticks chan market.Tick

	mu         sync.Mutex
	err        error
	deliberate bool
	closeOnce  sync.Once
}

func newFakeSession() *fakeSession {
	return &fakeSession{ticks: make(chan market.Tick, 16)}
}

func (s *fakeSession) Ticks() <-chan market.Tick { return s.ticks }

func (s *fakeSession) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deliberate {
		return nil
	}
	return s.err
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	s.deliberate = true
	s.mu.Unlock()
	s.closeOnce.Do(func() { close(s.ticks) })
	return nil
}

// fail ends the session as if the connection dropped.
func (s *fakeSession) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	s.closeOnce.Do(func() { close(s.ticks) })
}

type fakeSource struct {
	name string

	mu       sync.Mutex
	connects int
	script   func(attempt int) (*fakeSession, error)
}

func (f *fakeSource) Name() string {
	if f.name == "" {
		return "fake"
	}
	return f.name
}

func (f *fakeSource) Connect(ctx context.Context, symbols []string) (market.Session, error) {
	f.mu.Lock()
	f.connects++
	n := f.connects
	script := f.script
	f.mu.Unlock()
	sess, err := script(n)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func (f *fakeSource) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

func fastPolicy(maxAttempts int) RetryPolicy {
	return RetryPolicy{Delay: time.Millisecond, MaxAttempts: maxAttempts}
}

func TestConnectorDeliversTicksInOrder(t *testing.T) {
	sess := newFakeSession()
	src := &fakeSource{script: func(int) (*fakeSession, error) { return sess, nil }}

	var mu sync.Mutex
	var got []string
	c := NewConnector(src, []string{"BTCUSDT"}, fastPolicy(3), WithTickHandler(func(tk market.Tick) {
		mu.Lock()
		got = append(got, tk.Price.String())
		mu.Unlock()
	}))
	c.Start(context.Background())

	require.Eventually(t, func() bool { return c.State() == StateConnected }, time.Second, time.Millisecond)

	sess.ticks <- market.Tick{Exchange: "fake", Symbol: "BTCUSDT", Price: decimal.NewFromInt(1), At: time.Now()}
	sess.ticks <- market.Tick{Exchange: "fake", Symbol: "BTCUSDT", Price: decimal.NewFromInt(2), At: time.Now()}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, time.Second, time.Millisecond)
	mu.Lock()
	assert.Equal(t, []string{"1", "2"}, got)
	mu.Unlock()

	c.Stop()
	assert.Equal(t, StateDisconnected, c.State())
}

func TestConnectorFailsAfterRetryBudget(t *testing.T) {
	src := &fakeSource{script: func(int) (*fakeSession, error) {
		return nil, errors.New("refused")
	}}
	c := NewConnector(src, []string{"BTCUSDT"}, fastPolicy(3))
	c.Start(context.Background())

	require.Eventually(t, func() bool { return c.State() == StateFailed }, time.Second, time.Millisecond)

	// no further attempts are scheduled while failed
	settled := src.connectCount()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, settled, src.connectCount())
	assert.NotEmpty(t, c.Status().LastError)

	c.Stop()
}

func TestConnectorReconnectRecoversFailed(t *testing.T) {
	good := newFakeSession()
	src := &fakeSource{}
	src.script = func(attempt int) (*fakeSession, error) {
		if attempt <= 4 {
			return nil, errors.New("refused")
		}
		return good, nil
	}
	c := NewConnector(src, []string{"BTCUSDT"}, fastPolicy(3))
	c.Start(context.Background())

	require.Eventually(t, func() bool { return c.State() == StateFailed }, time.Second, time.Millisecond)

	c.Reconnect()
	c.Reconnect() // idempotent

	require.Eventually(t, func() bool { return c.State() == StateConnected }, time.Second, time.Millisecond)
	assert.Equal(t, 0, c.Status().Attempts)

	c.Stop()
}

func TestConnectorDeliberateStopDoesNotReconnect(t *testing.T) {
	sess := newFakeSession()
	src := &fakeSource{script: func(int) (*fakeSession, error) { return sess, nil }}
	c := NewConnector(src, []string{"BTCUSDT"}, fastPolicy(3))
	c.Start(context.Background())

	require.Eventually(t, func() bool { return c.State() == StateConnected }, time.Second, time.Millisecond)
	c.Stop()

	assert.Equal(t, StateDisconnected, c.State())
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 1, src.connectCount())
}

func TestConnectorBacksOffAfterConnectionLoss(t *testing.T) {
	var sessions []*fakeSession
	var mu sync.Mutex
	src := &fakeSource{}
	src.script = func(int) (*fakeSession, error) {
		s := newFakeSession()
		mu.Lock()
		sessions = append(sessions, s)
		mu.Unlock()
		return s, nil
	}
	c := NewConnector(src, []string{"BTCUSDT"}, fastPolicy(5))
	c.Start(context.Background())

	require.Eventually(t, func() bool { return c.State() == StateConnected }, time.Second, time.Millisecond)
	mu.Lock()
	first := sessions[0]
	mu.Unlock()
	first.fail(errors.New("reset by peer"))

	// reconnects and lands connected again on a fresh session
	require.Eventually(t, func() bool {
		return c.State() == StateConnected && src.connectCount() == 2
	}, time.Second, time.Millisecond)

	c.Stop()
}
