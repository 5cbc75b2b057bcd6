package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"BazaarPull/internal/domain/models"
	xlogger "BazaarPull/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 4
)

// QuickStatus is the per-product entry of a stream frame.
type QuickStatus struct {
	ProductID        string  `json:"product_id"`
	InstantBuyPrice  float64 `json:"instant_buy_price"`
	InstantSellPrice float64 `json:"instant_sell_price"`
	BuyMovingWeek    int64   `json:"buy_moving_week"`
	SellMovingWeek   int64   `json:"sell_moving_week"`
}

// Frame is one poll result as sent to subscribers.
type Frame struct {
	Type      string        `json:"type"`
	FetchedAt time.Time     `json:"fetched_at"`
	Products  []QuickStatus `json:"products"`
}

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
}

// StreamHub pushes every poll to connected WebSocket clients. A client that
// cannot keep up is disconnected rather than slowing the poller.
type StreamHub struct {
	upgrader websocket.Upgrader
	logger   *xlogger.Logger

	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

func NewStreamHub(logger *xlogger.Logger) *StreamHub {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &StreamHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 8192,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger,
		subs:   make(map[*subscriber]struct{}),
	}
}

// Subscribers returns the number of connected clients.
func (h *StreamHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Broadcast encodes snaps once and queues the frame for every subscriber.
func (h *StreamHub) Broadcast(snaps []*models.RawSnapshot) {
	if len(snaps) == 0 || h.Subscribers() == 0 {
		return
	}
	f := Frame{Type: "quick_status", FetchedAt: snaps[0].FetchedAt, Products: make([]QuickStatus, len(snaps))}
	for i, s := range snaps {
		f.Products[i] = QuickStatus{
			ProductID:        s.ProductID,
			InstantBuyPrice:  s.InstantBuyPrice,
			InstantSellPrice: s.InstantSellPrice,
			BuyMovingWeek:    s.BuyMovingWeek,
			SellMovingWeek:   s.SellMovingWeek,
		}
	}
	b, err := json.Marshal(f)
	if err != nil {
		h.logger.Error("encode stream frame", xlogger.Error(err))
		return
	}

	h.mu.RLock()
	var slow []*subscriber
	for s := range h.subs {
		select {
		case s.send <- b:
		default:
			slow = append(slow, s)
		}
	}
	h.mu.RUnlock()
	for _, s := range slow {
		h.logger.Warn("dropping slow stream subscriber", xlogger.String("remote", s.conn.RemoteAddr().String()))
		h.remove(s)
	}
}

// Serve upgrades the request and streams frames until the client goes away.
func (h *StreamHub) Serve(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader already replied
		return nil
	}
	s := &subscriber{conn: conn, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()

	go h.writeLoop(s)
	h.readLoop(s)
	return nil
}

// Close disconnects every subscriber.
func (h *StreamHub) Close() {
	h.mu.RLock()
	subs := make([]*subscriber, 0, len(h.subs))
	for s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.RUnlock()
	for _, s := range subs {
		h.remove(s)
	}
}

func (h *StreamHub) remove(s *subscriber) {
	h.mu.Lock()
	if _, ok := h.subs[s]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.subs, s)
	close(s.send)
	h.mu.Unlock()
}

// readLoop only tracks liveness; clients do not send anything meaningful.
func (h *StreamHub) readLoop(s *subscriber) {
	defer func() {
		h.remove(s)
		_ = s.conn.Close()
	}()
	s.conn.SetReadLimit(512)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *StreamHub) writeLoop(s *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
