package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"tradeforge/internal/executor"
	"tradeforge/internal/ledger"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type handlers struct {
	cfg ServerConfig
}

type createAccountRequest struct {
	AccountID string `json:"account_id" binding:"required"`
}

func (h *handlers) createAccount(c *gin.Context) {
	var req createAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	acct, err := h.cfg.Accounts.EnsureAccount(c.Request.Context(), strings.TrimSpace(req.AccountID), h.cfg.StartingBalance)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "account provisioning failed"})
		return
	}
	c.JSON(http.StatusOK, acct)
}

type orderRequest struct {
	AccountID string          `json:"account_id" binding:"required"`
	Symbol    string          `json:"symbol" binding:"required"`
	Side      string          `json:"side" binding:"required"`
	Quantity  decimal.Decimal `json:"quantity"`
}

func (h *handlers) placeOrder(c *gin.Context) {
	var req orderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	record, err := h.cfg.Executor.ExecuteOrder(c.Request.Context(), executor.OrderRequest{
		AccountID: req.AccountID,
		Symbol:    req.Symbol,
		Side:      req.Side,
		Quantity:  req.Quantity,
	})
	if err != nil {
		status, body := orderErrorResponse(err)
		c.JSON(status, body)
		return
	}
	c.JSON(http.StatusOK, record)
}

// orderErrorResponse maps executor failures onto statuses a client can act
// on: 4xx means change the order, 503 means retry later. Internal lock and
// storage details never leak into the body.
func orderErrorResponse(err error) (int, gin.H) {
	switch {
	case errors.Is(err, executor.ErrInvalidQuantity),
		errors.Is(err, executor.ErrInvalidSide),
		errors.Is(err, executor.ErrUnknownSymbol):
		return http.StatusBadRequest, gin.H{"error": err.Error(), "retryable": false}
	case errors.Is(err, executor.ErrInsufficientBalance),
		errors.Is(err, executor.ErrInsufficientHoldings):
		return http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "retryable": false}
	case errors.Is(err, ledger.ErrAccountNotFound):
		return http.StatusNotFound, gin.H{"error": "account not found", "retryable": false}
	case executor.Retryable(err):
		return http.StatusServiceUnavailable, gin.H{"error": err.Error(), "retryable": true}
	default:
		return http.StatusInternalServerError, gin.H{"error": "order execution failed", "retryable": false}
	}
}

func (h *handlers) portfolio(c *gin.Context) {
	snap, err := h.cfg.Portfolio.Snapshot(c.Request.Context(), c.Param("account"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "valuation failed"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *handlers) trades(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	records, err := h.cfg.Accounts.Trades(c.Request.Context(), c.Param("account"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "trade history query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": records, "count": len(records)})
}

func (h *handlers) feedStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"live":      h.cfg.Feeds.IsLive(),
		"exchanges": h.cfg.Feeds.Status(),
	})
}
