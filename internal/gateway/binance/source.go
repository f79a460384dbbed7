package binance

import (
	"context"
	"strings"
	"sync"
	"time"

	"tradeforge/internal/logger"
	"tradeforge/internal/market"
	symbolpkg "tradeforge/internal/pkg/symbol"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"
)

const defaultTickBuffer = 1024

type Config struct {
	Buffer int
}

func (c Config) withDefaults() Config {
	if c.Buffer <= 0 {
		c.Buffer = defaultTickBuffer
	}
	return c
}

// Source streams aggregated trades from Binance via the go-binance SDK. One
// Connect call opens exactly one combined stream; the feed connector decides
// when to redial.
type Source struct {
	cfg Config
}

func New(cfg Config) *Source {
	return &Source{cfg: cfg.withDefaults()}
}

func (s *Source) Name() string { return "binance" }

func (s *Source) Connect(ctx context.Context, symbols []string) (market.Session, error) {
	clean := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		if norm := symbolpkg.Normalize(sym); norm != "" {
			clean = append(clean, norm)
		}
	}

	sess := &session{ticks: make(chan market.Tick, s.cfg.Buffer)}
	handler := func(ev *futures.WsAggTradeEvent) {
		t, ok := convertAggTrade(ev)
		if !ok {
			logger.Debugf("[binance] dropped malformed tick: %+v", ev)
			return
		}
		select {
		case sess.ticks <- t:
		default:
			logger.Warnf("[binance] tick channel full, drop %s", t.Symbol)
		}
	}
	errHandler := func(err error) {
		if err != nil {
			sess.recordErr(err)
		}
	}

	doneC, stopC, err := futures.WsCombinedAggTradeServe(clean, handler, errHandler)
	if err != nil {
		return nil, err
	}
	sess.stopC = stopC

	go func() {
		select {
		case <-ctx.Done():
			sess.shutdown()
			<-doneC
		case <-doneC:
		}
		close(sess.ticks)
	}()
	return sess, nil
}

type session struct {
	ticks chan market.Tick
	stopC chan struct{}

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

func (s *session) Close() error {
	s.mu.Lock()
	s.deliberate = true
	s.mu.Unlock()
	s.shutdown()
	return nil
}

func (s *session) shutdown() {
	s.closeOnce.Do(func() {
		if s.stopC != nil {
			close(s.stopC)
		}
	})
}

func (s *session) recordErr(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
}

func convertAggTrade(ev *futures.WsAggTradeEvent) (market.Tick, bool) {
	if ev == nil {
		return market.Tick{}, false
	}
	sym := strings.ToUpper(strings.TrimSpace(ev.Symbol))
	if sym == "" {
		return market.Tick{}, false
	}
	price, err := decimal.NewFromString(strings.TrimSpace(ev.Price))
	if err != nil || price.Sign() <= 0 {
		return market.Tick{}, false
	}
	volume, err := decimal.NewFromString(strings.TrimSpace(ev.Quantity))
	if err != nil {
		volume = decimal.Zero
	}
	at := ev.TradeTime
	if at == 0 {
		at = ev.Time
	}
	if at == 0 {
		return market.Tick{}, false
	}
	return market.Tick{
		Exchange: "binance",
		Symbol:   sym,
		Price:    price,
		Volume:   volume,
		At:       time.UnixMilli(at),
	}, true
}
