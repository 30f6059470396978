package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"govjobs/internal/auth"
	"govjobs/internal/notify"
)

const (
	wsAuthTimeout  = 10 * time.Second
	wsPingInterval = 30 * time.Second
	wsWriteWait    = 5 * time.Second
)

// WsHandler 把 Redis 上的申请通知推送给已登录的浏览器连接。
//
// 连接建立后客户端必须在 wsAuthTimeout 内发送 {"type":"auth","token":"<access token>"}，
// 否则以 1008 关闭。之后服务端只下发通知，客户端发来的帧被丢弃。
type WsHandler struct {
	redis          redis.UniversalClient
	authService    *auth.AuthService
	logger         *slog.Logger
	upgrader       websocket.Upgrader
	allowedOrigins []string
}

func NewWsHandler(redisClient redis.UniversalClient, authService *auth.AuthService, logger *slog.Logger, allowedOrigins []string) *WsHandler {
	h := &WsHandler{
		redis:          redisClient,
		authService:    authService,
		logger:         logger,
		allowedOrigins: allowedOrigins,
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: h.originAllowed}
	return h
}

// originAllowed 未配置白名单时只接受同源请求。
func (h *WsHandler) originAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if len(h.allowedOrigins) > 0 {
		return slices.Contains(h.allowedOrigins, origin)
	}
	u, err := url.Parse(origin)
	return err == nil && strings.EqualFold(u.Host, r.Host)
}

// wsRejection 描述握手阶段拒绝连接时要发送的关闭帧。
type wsRejection struct {
	reason string
	cause  error
}

func (r *wsRejection) Error() string {
	if r.cause != nil {
		return r.reason + ": " + r.cause.Error()
	}
	return r.reason
}

func (r *wsRejection) Unwrap() error { return r.cause }

func reject(reason string, cause error) error {
	return &wsRejection{reason: reason, cause: cause}
}

// HandleConnection 升级连接，完成首帧鉴权后转发该用户频道上的通知。
func (h *WsHandler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("upgrade websocket failed", slog.Any("error", err))
		return
	}
	defer conn.Close()

	log := h.logger.With(slog.String("client_ip", c.ClientIP()))

	claims, err := h.authenticate(conn)
	if err != nil {
		var rej *wsRejection
		if errors.As(err, &rej) {
			writeClose(conn, websocket.ClosePolicyViolation, rej.reason)
		}
		log.Info("websocket rejected", slog.Any("error", err))
		return
	}

	log = log.With(slog.Uint64("user_id", uint64(claims.UserID)), slog.String("role", claims.Role))
	log.Info("websocket authenticated")

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	go discardIncoming(conn, cancel)

	if err := h.forward(ctx, conn, claims.UserID); err != nil {
		log.Info("websocket connection closed", slog.Any("error", err))
		return
	}
	log.Info("websocket connection closed")
}

// authenticate 读取首帧并校验其中的 access token。
func (h *WsHandler) authenticate(conn *websocket.Conn) (*auth.TokenClaims, error) {
	_ = conn.SetReadDeadline(time.Now().Add(wsAuthTimeout))
	_, message, err := conn.ReadMessage()
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, reject("auth timeout", err)
		}
		return nil, err
	}
	_ = conn.SetReadDeadline(time.Time{})

	var msg struct {
		Type  string `json:"type"`
		Token string `json:"token"`
	}
	if err := json.Unmarshal(message, &msg); err != nil {
		return nil, reject("invalid auth payload", err)
	}
	if msg.Type != "auth" || msg.Token == "" {
		return nil, reject("auth required", nil)
	}

	claims, err := h.authService.ValidateToken(msg.Token)
	switch {
	case err != nil:
		return nil, reject("unauthorized", err)
	case claims.TokenType != auth.TokenTypeAccess:
		return nil, reject("access token required", nil)
	case claims.MustChangePassword:
		return nil, reject("password change required", nil)
	}
	return claims, nil
}

// discardIncoming 读掉客户端的心跳，读失败即视为断开。
func discardIncoming(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}

func (h *WsHandler) forward(ctx context.Context, conn *websocket.Conn, userID uint) error {
	pubsub := h.redis.Subscribe(ctx, notify.Channel(userID))
	defer pubsub.Close()

	messages := pubsub.Channel()
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return errors.New("pubsub channel closed")
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg.Payload)); err != nil {
				return err
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return err
			}
		}
	}
}

func writeClose(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(wsWriteWait))
}
