package gateway

import (
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Authenticator 校验看板连接，返回错误则拒绝升级
type Authenticator func(r *http.Request) error

// Server websocket 入口：GET /ws/sites/{site_id}
type Server struct {
	hub      *Hub
	upgrader websocket.Upgrader
	auth     Authenticator
	logger   *zap.Logger
}

func NewServer(hub *Hub, allowedOrigins []string, auth Authenticator, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}

	return &Server{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					// 非浏览器客户端
					return true
				}
				_, ok := allowed[origin]
				return ok
			},
		},
		auth:   auth,
		logger: logger,
	}
}

// Handler 返回挂好路由的 http.Handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/sites/{site_id}", s.serveSite)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}

func (s *Server) serveSite(w http.ResponseWriter, r *http.Request) {
	siteID, err := strconv.ParseInt(r.PathValue("site_id"), 10, 64)
	if err != nil || siteID <= 0 {
		http.Error(w, `{"error":{"code":"INVALID_SITE_ID","message":"Invalid site ID format"}}`, http.StatusBadRequest)
		return
	}

	if s.auth != nil {
		if err := s.auth(r); err != nil {
			s.logger.Debug("Dashboard connection rejected", zap.Int64("site_id", siteID), zap.Error(err))
			http.Error(w, `{"error":{"code":"UNAUTHORIZED","message":"Unauthorized"}}`, http.StatusUnauthorized)
			return
		}
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade 已写回错误响应
		s.logger.Debug("WebSocket upgrade failed", zap.Int64("site_id", siteID), zap.Error(err))
		return
	}

	s.hub.serve(conn, siteID)
}
