package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"helpdesk/backend/internal/ingest"
)

// JWTClaims 坐席 JWT 声明
type JWTClaims struct {
	AgentID string `json:"sub"`
	Email   string `json:"email"`
	jwt.RegisteredClaims
}

// upgraderFactory 创建带有 Origin 验证的 WebSocket 升级器
func upgraderFactory(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			for _, origin := range allowedOrigins {
				if origin == "*" {
					return true
				}
			}
			requestOrigin := r.Header.Get("Origin")
			if requestOrigin == "" {
				// 没有 Origin 视为同源请求
				return true
			}
			for _, origin := range allowedOrigins {
				if requestOrigin == origin {
					return true
				}
			}
			return false
		},
	}
}

// MessageType WebSocket 消息类型
type MessageType string

const (
	MessageTypeConversationsChanged MessageType = "conversations-changed"
	MessageTypePing                 MessageType = "ping"
	MessageTypePong                 MessageType = "pong"
	MessageTypeError                MessageType = "error"
)

// Message WebSocket 消息结构
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// ConversationChange 单条会话变更
type ConversationChange struct {
	Action          string `json:"action"`
	ConversationID  string `json:"conversationId"`
	MessageID       string `json:"messageId"`
	NewConversation bool   `json:"newConversation"`
}

// ConversationsChangedData 一次同步批次的变更通知载荷
type ConversationsChangedData struct {
	AccountID string               `json:"accountId"`
	Changes   []ConversationChange `json:"changes"`
}

// Client 一个已认证的坐席 WebSocket 连接
type Client struct {
	ID      string
	AgentID string
	conn    *websocket.Conn
	send    chan []byte
	hub     *Hub
	log     *zap.Logger
}

// Hub 管理所有坐席连接。
//
// 帮助台坐席共享全部会话视图，通知对所有在线坐席广播，
// 不做按会话的订阅过滤。
type Hub struct {
	clients        map[string]*Client
	register       chan *Client
	unregister     chan *Client
	broadcast      chan *Message
	mu             sync.RWMutex
	log            *zap.Logger
	allowedOrigins []string
	jwtSecret      string
}

// NewHub 创建 WebSocket Hub。
func NewHub(allowedOrigins []string, jwtSecret string, log *zap.Logger) *Hub {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	return &Hub{
		clients:        make(map[string]*Client),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		broadcast:      make(chan *Message, 256),
		log:            log,
		allowedOrigins: allowedOrigins,
		jwtSecret:      jwtSecret,
	}
}

// Run 启动 Hub 主循环，ctx 取消后关闭所有连接。
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.log.Info("websocket hub stopped")
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()
			h.log.Info("agent connected",
				zap.String("client_id", client.ID),
				zap.String("agent_id", client.AgentID),
			)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				close(client.send)
				h.log.Info("agent disconnected", zap.String("client_id", client.ID))
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.broadcastToAll(msg)

		case <-ticker.C:
			h.pingAllClients()
		}
	}
}

// ConversationsChanged 实现 ingest.Notifier：
// 把一次同步批次的全部新消息打包成单条通知广播出去。
func (h *Hub) ConversationsChanged(accountID string, results []*ingest.Result) {
	changes := make([]ConversationChange, 0, len(results))
	for _, r := range results {
		changes = append(changes, ConversationChange{
			Action:          "new_message",
			ConversationID:  r.ConversationID,
			MessageID:       r.MessageID,
			NewConversation: r.NewConversation,
		})
	}

	data, err := json.Marshal(ConversationsChangedData{
		AccountID: accountID,
		Changes:   changes,
	})
	if err != nil {
		h.log.Error("failed to marshal change notification", zap.Error(err))
		return
	}

	select {
	case h.broadcast <- &Message{
		Type:      MessageTypeConversationsChanged,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}:
	default:
		h.log.Warn("broadcast queue full, dropping change notification",
			zap.String("account_id", accountID),
			zap.Int("changes", len(changes)),
		)
	}
}

// broadcastToAll 向所有在线坐席广播消息。
func (h *Hub) broadcastToAll(msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("failed to marshal message", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		select {
		case client.send <- data:
		default:
			// 客户端阻塞，跳过
			h.log.Warn("client channel blocked, skipping", zap.String("client_id", client.ID))
		}
	}
}

// pingAllClients 向所有客户端发送 ping
func (h *Hub) pingAllClients() {
	msg := &Message{
		Type:      MessageTypePing,
		Timestamp: time.Now().UTC(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		select {
		case client.send <- data:
		default:
		}
	}
}

// closeAllClients 关闭所有客户端连接
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.clients {
		close(client.send)
	}
	h.clients = make(map[string]*Client)
}

// authenticateClient 从查询参数或 Authorization 头取 JWT 并验证。
func (h *Hub) authenticateClient(c *gin.Context) (*Client, error) {
	token := c.Query("token")
	if token == "" {
		authHeader := c.GetHeader("Authorization")
		if authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) == 2 && parts[0] == "Bearer" {
				token = parts[1]
			}
		}
	}
	if token == "" {
		return nil, errors.New("missing authentication token")
	}

	agentID, err := h.validateJWT(token)
	if err != nil {
		return nil, err
	}

	return &Client{
		ID:      uuid.NewString(),
		AgentID: agentID,
		log:     h.log,
	}, nil
}

// validateJWT 验证坐席 JWT。
func (h *Hub) validateJWT(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(h.jwtSecret), nil
	})
	if err != nil {
		return "", err
	}
	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
		return claims.AgentID, nil
	}
	return "", errors.New("invalid token claims")
}

// HandleWebSocket 处理 WebSocket 升级请求。
func HandleWebSocket(hub *Hub) gin.HandlerFunc {
	upgrader := upgraderFactory(hub.allowedOrigins)

	return func(c *gin.Context) {
		client, err := hub.authenticateClient(c)
		if err != nil {
			hub.log.Warn("websocket authentication failed",
				zap.Error(err),
				zap.String("remote_addr", c.ClientIP()),
			)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			hub.log.Error("failed to upgrade connection",
				zap.Error(err),
				zap.String("origin", c.Request.Header.Get("Origin")),
				zap.String("remote_addr", c.ClientIP()),
			)
			return
		}

		client.conn = conn
		client.hub = hub
		client.send = make(chan []byte, 256)

		hub.register <- client

		go client.writePump()
		go client.readPump()
	}
}

// readPump 处理客户端消息
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Error("websocket error", zap.Error(err))
			}
			break
		}

		switch msg.Type {
		case MessageTypePong:
			c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		default:
			c.log.Warn("unknown message type", zap.String("type", string(msg.Type)))
		}
	}
}

// writePump 发送消息给客户端
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.WriteMessage(websocket.TextMessage, message)

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
