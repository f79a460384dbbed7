package stream

import (
	"net/http"
	"sync"
	"time"

	"tradeforge/internal/logger"
	"tradeforge/internal/market"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	subscriberBuffer = 256
	writeTimeout     = 5 * time.Second
	pingInterval     = 20 * time.Second
)

// Message is the outbound tick shape pushed to UI-facing consumers.
type Message struct {
	Symbol    string `json:"symbol"`
	Price     string `json:"price"`
	Exchange  string `json:"exchange"`
	Timestamp int64  `json:"timestamp"`
}

func messageFromTick(t market.Tick) Message {
	return Message{
		Symbol:    t.Symbol,
		Price:     t.Price.String(),
		Exchange:  t.Exchange,
		Timestamp: t.At.UnixMilli(),
	}
}

type subscriber struct {
	send chan Message
}

// Hub fans accepted ticks out to websocket subscribers. Slow subscribers are
// dropped rather than allowed to stall the feed path.
type Hub struct {
	mu       sync.Mutex
	subs     map[*subscriber]struct{}
	closed   bool
	upgrader websocket.Upgrader
}

func NewHub() *Hub {
	return &Hub{
		subs: make(map[*subscriber]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Publish delivers a tick to every subscriber without blocking the caller.
func (h *Hub) Publish(t market.Tick) {
	msg := messageFromTick(t)
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		select {
		case sub.send <- msg:
		default:
			// subscriber cannot keep up; drop it so the feed never stalls
			close(sub.send)
			delete(h.subs, sub)
			logger.Warnf("stream: dropped slow subscriber (%d left)", len(h.subs))
		}
	}
}

func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close detaches all subscribers; their write pumps send a normal-closure
// frame so well-behaved consumers stop without retrying.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subs {
		close(sub.send)
		delete(h.subs, sub)
	}
}

// HandleWS upgrades the request and streams ticks until the client leaves or
// the hub shuts down.
func (h *Hub) HandleWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warnf("stream: upgrade failed: %v", err)
		return
	}
	sub := &subscriber{send: make(chan Message, subscriberBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	go h.writePump(conn, sub)
	h.readPump(conn, sub)
}

func (h *Hub) writePump(conn *websocket.Conn, sub *subscriber) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer conn.Close()
	for {
		select {
		case msg, ok := <-sub.send:
			if !ok {
				_ = conn.WriteControl(
					websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"),
					time.Now().Add(writeTimeout),
				)
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}

// readPump discards inbound frames; its job is noticing the client going
// away so the subscriber can be detached.
func (h *Hub) readPump(conn *websocket.Conn, sub *subscriber) {
	defer func() {
		h.mu.Lock()
		if _, ok := h.subs[sub]; ok {
			close(sub.send)
			delete(h.subs, sub)
		}
		h.mu.Unlock()
		_ = conn.Close()
	}()
	conn.SetReadLimit(512)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
