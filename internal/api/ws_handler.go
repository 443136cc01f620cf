package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"bioforge/internal/auth"
	"bioforge/internal/worker"
)

const (
	// wsAuthTimeout 内未完成鉴权的连接直接关闭。
	wsAuthTimeout  = 10 * time.Second
	wsWriteTimeout = 5 * time.Second
	wsPingInterval = 30 * time.Second
)

// 推送给客户端的事件类型。
const (
	wsEventAuthOK      = "auth_ok"
	wsEventUsageUpdate = "usage_update"
	wsEventUsageError  = "usage_error"
)

// wsEvent 是 WebSocket 下行消息的统一信封。
type wsEvent struct {
	Type   string                     `json:"type"`
	UserID uint                       `json:"user_id,omitempty"`
	Usage  *worker.UsageNotifyMessage `json:"usage,omitempty"`
}

type wsAuthMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// WsHandler 把用量计量事件从 Redis Pub/Sub 推送到已鉴权的客户端。
type WsHandler struct {
	redisClient    *redis.Client
	authService    *auth.AuthService
	logger         *slog.Logger
	upgrader       websocket.Upgrader
	allowedOrigins []string
}

// NewWsHandler 构造 WebSocket 处理器。
func NewWsHandler(redisClient *redis.Client, authService *auth.AuthService, logger *slog.Logger, allowedOrigins []string) *WsHandler {
	h := &WsHandler{
		redisClient:    redisClient,
		authService:    authService,
		logger:         logger,
		allowedOrigins: allowedOrigins,
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			if len(h.allowedOrigins) == 0 {
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			}
			for _, allowed := range h.allowedOrigins {
				if origin == allowed {
					return true
				}
			}
			return false
		},
	}
	return h
}

// HandleConnection 升级连接，鉴权后转发该用户的用量事件。
// 协议：客户端首条消息必须是 {"type":"auth","token":<access token>}，
// 服务端回 auth_ok 后开始推送 usage_update / usage_error 事件。
func (h *WsHandler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("upgrade websocket failed", slog.Any("error", err))
		return
	}
	defer conn.Close()

	log := h.logger.With(slog.String("client_ip", c.ClientIP()))

	userID, err := h.authenticate(conn)
	if err != nil {
		log.Warn("websocket authentication failed", slog.Any("error", err))
		return
	}
	log = log.With(slog.Uint64("user_id", uint64(userID)))

	if err := h.writeEvent(conn, wsEvent{Type: wsEventAuthOK, UserID: userID}); err != nil {
		log.Warn("websocket ack failed", slog.Any("error", err))
		return
	}
	log.Info("websocket authenticated")

	// 读泵只为探测客户端断开；鉴权后的上行消息没有协议含义。
	disconnected := make(chan struct{})
	go func() {
		defer close(disconnected)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	h.forwardUsageEvents(c, conn, userID, disconnected, log)
}

// authenticate 读取首条消息并校验访问令牌。
func (h *WsHandler) authenticate(conn *websocket.Conn) (uint, error) {
	_ = conn.SetReadDeadline(time.Now().Add(wsAuthTimeout))
	defer conn.SetReadDeadline(time.Time{})

	_, message, err := conn.ReadMessage()
	if err != nil {
		return 0, fmt.Errorf("read auth message: %w", err)
	}

	var authMsg wsAuthMessage
	if err := json.Unmarshal(message, &authMsg); err != nil {
		h.writeClose(conn, websocket.ClosePolicyViolation, "invalid auth payload")
		return 0, fmt.Errorf("decode auth payload: %w", err)
	}
	if authMsg.Type != "auth" || authMsg.Token == "" {
		h.writeClose(conn, websocket.ClosePolicyViolation, "auth required")
		return 0, fmt.Errorf("invalid auth message")
	}

	claims, err := h.authService.ValidateToken(authMsg.Token)
	if err != nil {
		h.writeClose(conn, websocket.ClosePolicyViolation, "unauthorized")
		return 0, fmt.Errorf("validate token: %w", err)
	}
	if claims.TokenType != "access" {
		h.writeClose(conn, websocket.ClosePolicyViolation, "access token required")
		return 0, fmt.Errorf("invalid token type: %s", claims.TokenType)
	}

	return claims.UserID, nil
}

// forwardUsageEvents 订阅 user_notify:{id}，把 worker 发布的用量消息
// 包成事件信封推给客户端，直到任一端断开。
func (h *WsHandler) forwardUsageEvents(c *gin.Context, conn *websocket.Conn, userID uint, disconnected <-chan struct{}, log *slog.Logger) {
	channel := fmt.Sprintf("user_notify:%d", userID)
	pubsub := h.redisClient.Subscribe(c.Request.Context(), channel)
	defer pubsub.Close()

	log.Info("subscribed to usage channel", slog.String("channel", channel))

	messages := pubsub.Channel()
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-disconnected:
			log.Info("websocket client disconnected")
			return
		case msg, ok := <-messages:
			if !ok {
				log.Warn("usage channel closed")
				return
			}

			var usage worker.UsageNotifyMessage
			if err := json.Unmarshal([]byte(msg.Payload), &usage); err != nil {
				// 非本协议的杂音消息直接丢弃。
				log.Warn("discarding malformed usage message", slog.Any("error", err))
				continue
			}

			eventType := wsEventUsageUpdate
			if usage.Status == "error" {
				eventType = wsEventUsageError
			}
			if err := h.writeEvent(conn, wsEvent{Type: eventType, Usage: &usage}); err != nil {
				log.Info("websocket write failed", slog.Any("error", err))
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(wsWriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), deadline); err != nil {
				log.Info("websocket ping failed", slog.Any("error", err))
				return
			}
		}
	}
}

func (h *WsHandler) writeEvent(conn *websocket.Conn, event wsEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (h *WsHandler) writeClose(conn *websocket.Conn, code int, text string) {
	deadline := time.Now().Add(wsWriteTimeout)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), deadline)
}
