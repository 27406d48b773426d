package eventserver

import (
	"fmt"
	"log"
	"net/http"

	"relations-go/internal/auth"
	"relations-go/internal/config"
	ws "relations-go/internal/websocket"
)

// WebSocketHandler 负责处理事件推送的 WebSocket 连接请求。
type WebSocketHandler struct {
	hub *ws.Hub
	cfg config.Config
}

// NewWebSocketHandler 创建一个新的 WebSocketHandler 实例。
func NewWebSocketHandler(hub *ws.Hub, cfg config.Config) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, cfg: cfg}
}

// ServeWS 将 HTTP 连接升级为 WebSocket 连接并注册到 Hub。
// 事件会话必须携带有效令牌：匿名连接收不到任何用户的事件，直接拒绝。
func (h *WebSocketHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "缺少认证令牌", http.StatusUnauthorized)
		return
	}

	claims, err := auth.ValidateToken(token, h.cfg.Auth.JWTSecretKey)
	if err != nil {
		log.Printf("WebSocket 连接尝试失败：令牌无效: %v", err)
		http.Error(w, fmt.Sprintf("令牌无效: %v", err), http.StatusUnauthorized)
		return
	}

	ws.ServeWsPerConnection(h.hub, claims.UserID, w, r, h.cfg.WebSocket)
}
