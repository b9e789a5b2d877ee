// Package gateway 把告警事件实时推送到站点看板的 websocket 连接
package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"GuardWatch/internal/model"
	"GuardWatch/pkg/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 32
)

// Session 一个看板连接；所有写操作都在 writePump 中完成
type Session struct {
	ID     string
	SiteID int64

	conn *websocket.Conn
	send chan []byte
	once sync.Once
	done chan struct{}
}

func (s *Session) close() {
	s.once.Do(func() {
		close(s.done)
	})
}

// Hub 按站点管理看板连接
type Hub struct {
	mu      sync.RWMutex
	sites   map[int64]map[*Session]struct{}
	logger  *zap.Logger
	metrics *metrics.OTelMetrics
}

func NewHub(logger *zap.Logger, m *metrics.OTelMetrics) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.GetMetrics()
	}
	return &Hub{
		sites:   make(map[int64]map[*Session]struct{}),
		logger:  logger,
		metrics: m,
	}
}

func (h *Hub) register(s *Session) {
	h.mu.Lock()
	if h.sites[s.SiteID] == nil {
		h.sites[s.SiteID] = make(map[*Session]struct{})
	}
	h.sites[s.SiteID][s] = struct{}{}
	h.mu.Unlock()

	h.metrics.AddGatewaySession(context.Background(), 1)
}

func (h *Hub) unregister(s *Session) {
	h.mu.Lock()
	clients, ok := h.sites[s.SiteID]
	if ok {
		if _, exists := clients[s]; !exists {
			ok = false
		}
		delete(clients, s)
		if len(clients) == 0 {
			delete(h.sites, s.SiteID)
		}
	}
	h.mu.Unlock()

	s.close()
	if ok {
		h.metrics.AddGatewaySession(context.Background(), -1)
	}
}

// Sessions 站点当前连接数
func (h *Hub) Sessions(siteID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sites[siteID])
}

// Broadcast 把事件发给站点的所有连接，返回成功入队的连接数。
// 发送缓冲已满的连接视为过慢，直接断开，由看板重连后通过 open alerts 接口对账
func (h *Hub) Broadcast(ctx context.Context, ev model.AlertEvent) int {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("Failed to marshal alert event", zap.String("message_id", ev.MessageID), zap.Error(err))
		return 0
	}

	h.mu.RLock()
	clients := make([]*Session, 0, len(h.sites[ev.SiteID]))
	for s := range h.sites[ev.SiteID] {
		clients = append(clients, s)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, s := range clients {
		select {
		case s.send <- payload:
			delivered++
		case <-s.done:
		default:
			h.logger.Warn("Dashboard session too slow, disconnecting",
				zap.String("session_id", s.ID),
				zap.Int64("site_id", s.SiteID),
			)
			h.unregister(s)
		}
	}

	h.metrics.RecordGatewayDelivered(ctx, int64(delivered))
	return delivered
}

// Deliver 满足 Sink
func (h *Hub) Deliver(ctx context.Context, ev model.AlertEvent) {
	h.Broadcast(ctx, ev)
}

// Close 断开全部连接
func (h *Hub) Close() {
	h.mu.RLock()
	var all []*Session
	for _, clients := range h.sites {
		for s := range clients {
			all = append(all, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range all {
		h.unregister(s)
	}
}

// serve 接管连接直到断开
func (h *Hub) serve(conn *websocket.Conn, siteID int64) {
	s := &Session{
		ID:     uuid.NewString(),
		SiteID: siteID,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
	}
	log := h.logger.With(zap.String("session_id", s.ID), zap.Int64("site_id", siteID))

	h.register(s)
	log.Info("Dashboard session connected")

	go h.writePump(s, log)
	h.readPump(s, log)

	h.unregister(s)
	log.Info("Dashboard session closed")
}

// readPump 只处理 pong 和关闭帧，看板不发送业务消息
func (h *Hub) readPump(s *Session, log *zap.Logger) {
	s.conn.SetReadLimit(maxMessageSize)
	if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debug("Dashboard session read error", zap.Error(err))
			}
			return
		}
	}
}

func (h *Hub) writePump(s *Session, log *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	hello, _ := json.Marshal(map[string]interface{}{
		"type":       "connected",
		"site_id":    s.SiteID,
		"session_id": s.ID,
	})
	if err := h.write(s, websocket.TextMessage, hello); err != nil {
		log.Debug("Failed to send welcome message", zap.Error(err))
		return
	}

	for {
		select {
		case <-s.done:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case msg := <-s.send:
			if err := h.write(s, websocket.TextMessage, msg); err != nil {
				log.Debug("Failed to write alert event", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := h.write(s, websocket.PingMessage, nil); err != nil {
				log.Debug("Ping failed", zap.Error(err))
				return
			}
		}
	}
}

func (h *Hub) write(s *Session, messageType int, data []byte) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.conn.WriteMessage(messageType, data)
}
