package feed

import (
	"context"
	"sync"
	"time"

	"tradeforge/internal/logger"
	"tradeforge/internal/pkg/circuit"
)

// LivenessPolicy selects how connector states aggregate into one signal.
type LivenessPolicy string

const (
	// PolicyAny reports live when at least one connector is connected.
	PolicyAny LivenessPolicy = "any"
	// PolicyAll reports live only when every connector is connected.
	PolicyAll LivenessPolicy = "all"
)

// Supervisor owns the connector set: it starts them, restarts failed ones
// after a cooldown (gated by a per-exchange circuit breaker), and aggregates
// their states into a single liveness signal.
type Supervisor struct {
	policy      LivenessPolicy
	cooldown    time.Duration
	autoRestart bool

	mu          sync.Mutex
	connectors  []*Connector
	breakers    map[string]*circuit.Breaker
	lastRestart map[string]time.Time
}

type SupervisorOption func(*Supervisor)

func WithLivenessPolicy(p LivenessPolicy) SupervisorOption {
	return func(s *Supervisor) {
		if p == PolicyAll {
			s.policy = PolicyAll
		}
	}
}

func WithRestartCooldown(d time.Duration) SupervisorOption {
	return func(s *Supervisor) {
		if d > 0 {
			s.cooldown = d
		}
	}
}

func WithAutoRestart(enabled bool) SupervisorOption {
	return func(s *Supervisor) { s.autoRestart = enabled }
}

func NewSupervisor(opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{
		policy:      PolicyAny,
		cooldown:    30 * time.Second,
		autoRestart: true,
		breakers:    make(map[string]*circuit.Breaker),
		lastRestart: make(map[string]time.Time),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Register adds a connector before Run. The supervisor installs its own state
// handler chained after any existing one so breaker bookkeeping stays intact.
func (s *Supervisor) Register(c *Connector) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connectors = append(s.connectors, c)

	br := circuit.NewBreaker(c.Exchange(), 3, 2*s.cooldown)
	s.breakers[c.Exchange()] = br

	prev := c.onState
	c.onState = func(exchange string, from, to State) {
		switch to {
		case StateConnected:
			br.RecordSuccess()
		case StateFailed:
			br.RecordFailure()
		}
		if prev != nil {
			prev(exchange, from, to)
		}
	}
}

// Run starts every registered connector and blocks until ctx is done, probing
// failed connectors on each cooldown tick.
func (s *Supervisor) Run(ctx context.Context) error {
	s.mu.Lock()
	conns := append([]*Connector(nil), s.connectors...)
	s.mu.Unlock()

	for _, c := range conns {
		c.Start(ctx)
	}
	logger.Infof("supervisor: %d feed connectors started (policy=%s)", len(conns), s.policy)

	ticker := time.NewTicker(s.cooldown)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			for _, c := range conns {
				c.Stop()
			}
			return ctx.Err()
		case <-ticker.C:
			if s.autoRestart {
				s.restartFailed(conns)
			}
		}
	}
}

func (s *Supervisor) restartFailed(conns []*Connector) {
	now := time.Now()
	for _, c := range conns {
		if c.State() != StateFailed {
			continue
		}
		name := c.Exchange()
		s.mu.Lock()
		last := s.lastRestart[name]
		br := s.breakers[name]
		s.mu.Unlock()
		if now.Sub(last) < s.cooldown {
			continue
		}
		if br != nil && !br.Allow() {
			logger.Warnf("supervisor: %s failed but breaker is open, skip restart", name)
			continue
		}
		logger.Infof("supervisor: restarting failed connector %s", name)
		c.Reconnect()
		s.mu.Lock()
		s.lastRestart[name] = now
		s.mu.Unlock()
	}
}

// IsLive aggregates connector states per the configured policy.
func (s *Supervisor) IsLive() bool {
	s.mu.Lock()
	conns := append([]*Connector(nil), s.connectors...)
	s.mu.Unlock()
	if len(conns) == 0 {
		return false
	}
	connected := 0
	for _, c := range conns {
		if c.State() == StateConnected {
			connected++
		}
	}
	if s.policy == PolicyAll {
		return connected == len(conns)
	}
	return connected > 0
}

// Status reports per-exchange connector state for diagnostics.
func (s *Supervisor) Status() []Status {
	s.mu.Lock()
	conns := append([]*Connector(nil), s.connectors...)
	s.mu.Unlock()
	out := make([]Status, 0, len(conns))
	for _, c := range conns {
		out = append(out, c.Status())
	}
	return out
}
