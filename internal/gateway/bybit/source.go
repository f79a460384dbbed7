package bybit

import (
	"context"
	"net/http"
	"sync"
	"time"

	"tradeforge/internal/logger"
	"tradeforge/internal/market"
	symbolpkg "tradeforge/internal/pkg/symbol"

	"github.com/gorilla/websocket"
)

const (
	defaultEndpoint   = "wss://stream.bybit.com/v5/public/spot"
	defaultTickBuffer = 1024
	pingInterval      = 20 * time.Second
	writeTimeout      = 5 * time.Second
)

type Config struct {
	Endpoint    string
	Buffer      int
	DialTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Endpoint == "" {
		c.Endpoint = defaultEndpoint
	}
	if c.Buffer <= 0 {
		c.Buffer = defaultTickBuffer
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	return c
}

// Source streams public spot trades from Bybit over a raw websocket. Payloads
// are loosely shaped JSON, so every message passes through gjson validation at
// the boundary and malformed entries are dropped without touching the
// connection.
type Source struct {
	cfg Config
}

func New(cfg Config) *Source {
	return &Source{cfg: cfg.withDefaults()}
}

func (s *Source) Name() string { return "bybit" }

func (s *Source) Connect(ctx context.Context, symbols []string) (market.Session, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: s.cfg.DialTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, s.cfg.Endpoint, nil)
	if err != nil {
		return nil, err
	}

	sess := &session{
		conn:  conn,
		ticks: make(chan market.Tick, s.cfg.Buffer),
		done:  make(chan struct{}),
	}

	args := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		if norm := symbolpkg.Normalize(sym); norm != "" {
			args = append(args, "publicTrade."+norm)
		}
	}
	if err := sess.writeJSON(map[string]any{"op": "subscribe", "args": args}); err != nil {
		_ = conn.Close()
		return nil, err
	}

	go sess.readLoop()
	go sess.pingLoop()
	go func() {
		select {
		case <-ctx.Done():
			sess.shutdown()
		case <-sess.done:
		}
	}()
	return sess, nil
}

type session struct {
	conn  *websocket.Conn
	ticks chan market.Tick
	done  chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once

	mu         sync.Mutex
	err        error
	deliberate bool
}

func (s *session) Ticks() <-chan market.Tick { return s.ticks }

func (s *session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deliberate {
		return nil
	}
	return s.err
}

// Close sends a normal-closure frame so the peer (and any middlebox logging)
// can tell a deliberate shutdown from a dropped connection.
func (s *session) Close() error {
	s.mu.Lock()
	s.deliberate = true
	s.mu.Unlock()

	s.writeMu.Lock()
	_ = s.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"),
		time.Now().Add(writeTimeout),
	)
	s.writeMu.Unlock()

	s.shutdown()
	return nil
}

func (s *session) shutdown() {
	s.closeOnce.Do(func() {
		_ = s.conn.Close()
	})
}

func (s *session) writeJSON(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteJSON(v)
}

func (s *session) readLoop() {
	defer close(s.ticks)
	defer close(s.done)
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				s.mu.Lock()
				if s.err == nil {
					s.err = err
				}
				s.mu.Unlock()
			}
			return
		}
		for _, t := range parseTradeMessage(raw) {
			select {
			case s.ticks <- t:
			default:
				logger.Warnf("[bybit] tick channel full, drop %s", t.Symbol)
			}
		}
	}
}

func (s *session) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if err := s.writeJSON(map[string]any{"op": "ping"}); err != nil {
				return
			}
		}
	}
}
