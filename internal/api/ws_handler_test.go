package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
)

func newWsTestServer(t *testing.T) (*httptest.Server, *WsHandler) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	// 测试只走到鉴权应答，Redis 订阅不会真正建连。
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { rdb.Close() })

	h := NewWsHandler(rdb, newTestAuthService(t), logger, nil)
	engine := gin.New()
	engine.GET("/v1/ws", h.HandleConnection)

	srv := httptest.NewServer(engine)
	t.Cleanup(srv.Close)
	return srv, h
}

func dialWs(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWebsocketRejectsInvalidToken(t *testing.T) {
	srv, _ := newWsTestServer(t)
	conn := dialWs(t, srv)

	if err := conn.WriteJSON(wsAuthMessage{Type: "auth", Token: "not-a-token"}); err != nil {
		t.Fatalf("write auth message: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	if !ok {
		t.Fatalf("expected close error, got %v", err)
	}
	if closeErr.Code != websocket.ClosePolicyViolation {
		t.Fatalf("close code = %d, want %d", closeErr.Code, websocket.ClosePolicyViolation)
	}
}

func TestWebsocketRejectsRefreshToken(t *testing.T) {
	srv, h := newWsTestServer(t)

	pair, err := h.authService.GenerateTokenPair(7, false)
	if err != nil {
		t.Fatalf("generate token pair: %v", err)
	}

	conn := dialWs(t, srv)
	if err := conn.WriteJSON(wsAuthMessage{Type: "auth", Token: pair.RefreshToken}); err != nil {
		t.Fatalf("write auth message: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	if !ok {
		t.Fatalf("expected close error, got %v", err)
	}
	if closeErr.Code != websocket.ClosePolicyViolation {
		t.Fatalf("close code = %d, want %d", closeErr.Code, websocket.ClosePolicyViolation)
	}
}

func TestWebsocketAcksAuthenticatedClient(t *testing.T) {
	srv, h := newWsTestServer(t)

	pair, err := h.authService.GenerateTokenPair(42, false)
	if err != nil {
		t.Fatalf("generate token pair: %v", err)
	}

	conn := dialWs(t, srv)
	if err := conn.WriteJSON(wsAuthMessage{Type: "auth", Token: pair.AccessToken}); err != nil {
		t.Fatalf("write auth message: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, message, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read ack: %v", err)
	}

	var event wsEvent
	if err := json.Unmarshal(message, &event); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if event.Type != wsEventAuthOK {
		t.Fatalf("event type = %q, want %q", event.Type, wsEventAuthOK)
	}
	if event.UserID != 42 {
		t.Fatalf("user_id = %d, want 42", event.UserID)
	}
}
