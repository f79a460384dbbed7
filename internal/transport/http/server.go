package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"tradeforge/internal/executor"
	"tradeforge/internal/feed"
	"tradeforge/internal/ledger"
	"tradeforge/internal/logger"
	"tradeforge/internal/valuator"

	"github.com/gin-gonic/gin"
)

// OrderExecutor is implemented by the trade executor.
type OrderExecutor interface {
	ExecuteOrder(ctx context.Context, req executor.OrderRequest) (ledger.TradeRecord, error)
}

// PortfolioReader is implemented by the valuator.
type PortfolioReader interface {
	Snapshot(ctx context.Context, accountID string) (valuator.PortfolioSnapshot, error)
}

// AccountStore is the subset of the ledger store the API needs.
type AccountStore interface {
	EnsureAccount(ctx context.Context, id string, startingBalance int64) (ledger.Account, error)
	Trades(ctx context.Context, accountID string, limit int) ([]ledger.TradeRecord, error)
}

// FeedHealth is implemented by the feed supervisor.
type FeedHealth interface {
	IsLive() bool
	Status() []feed.Status
}

// TickStreamer is implemented by the stream hub.
type TickStreamer interface {
	HandleWS(c *gin.Context)
}

type ServerConfig struct {
	Addr            string
	Executor        OrderExecutor
	Portfolio       PortfolioReader
	Accounts        AccountStore
	Feeds           FeedHealth
	Stream          TickStreamer
	StartingBalance int64
}

// Server exposes the order, portfolio and feed-status API plus the websocket
// price stream.
type Server struct {
	addr   string
	router *gin.Engine
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Executor == nil || cfg.Portfolio == nil || cfg.Accounts == nil {
		return nil, errors.New("http server requires executor, portfolio and account store")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	h := &handlers{cfg: cfg}
	api := router.Group("/api")
	api.POST("/accounts", h.createAccount)
	api.POST("/orders", h.placeOrder)
	api.GET("/portfolio/:account", h.portfolio)
	api.GET("/portfolio/:account/trades", h.trades)
	if cfg.Feeds != nil {
		api.GET("/feeds/status", h.feedStatus)
	}
	if cfg.Stream != nil {
		router.GET("/ws/prices", cfg.Stream.HandleWS)
	}

	return &Server{addr: cfg.Addr, router: router}, nil
}

func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery
		client := c.ClientIP()
		c.Next()
		dur := time.Since(start)
		status := c.Writer.Status()
		fullPath := path
		if query != "" {
			fullPath = path + "?" + query
		}
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s", method, fullPath, status, client, dur)
	}
}
