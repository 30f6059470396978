package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"govjobs/internal/auth"
)

func newTestWsServer(t *testing.T, svc *auth.AuthService, origins []string) string {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h := NewWsHandler(newUnreachableRedis(t), svc, slog.New(slog.NewTextHandler(io.Discard, nil)), origins)
	r := gin.New()
	r.GET("/ws", h.HandleConnection)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func expectPolicyClose(t *testing.T, conn *websocket.Conn, reason string) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) {
		t.Fatalf("expected close frame, got %v", err)
	}
	if closeErr.Code != websocket.ClosePolicyViolation || closeErr.Text != reason {
		t.Fatalf("expected 1008 %q, got %d %q", reason, closeErr.Code, closeErr.Text)
	}
}

func TestWsHandler_RejectsBadFirstFrame(t *testing.T) {
	svc := newTestAuthService(t)
	url := newTestWsServer(t, svc, nil)

	refreshPair, err := svc.GenerateTokenPair(auth.Identity{UserID: 3, Role: "applicant"})
	if err != nil {
		t.Fatalf("generate tokens: %v", err)
	}
	mustChange, err := svc.GenerateTokenPair(auth.Identity{UserID: 4, Role: "hr", MustChangePassword: true})
	if err != nil {
		t.Fatalf("generate tokens: %v", err)
	}

	cases := []struct {
		name   string
		frame  string
		reason string
	}{
		{"not json", "hello", "invalid auth payload"},
		{"wrong type", `{"type":"ping","token":"x"}`, "auth required"},
		{"garbage token", `{"type":"auth","token":"not-a-jwt"}`, "unauthorized"},
		{"refresh token", `{"type":"auth","token":"` + refreshPair.RefreshToken + `"}`, "access token required"},
		{"must change password", `{"type":"auth","token":"` + mustChange.AccessToken + `"}`, "password change required"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			conn, _, err := websocket.DefaultDialer.Dial(url, nil)
			if err != nil {
				t.Fatalf("dial: %v", err)
			}
			defer conn.Close()

			if err := conn.WriteMessage(websocket.TextMessage, []byte(tc.frame)); err != nil {
				t.Fatalf("write: %v", err)
			}
			expectPolicyClose(t, conn, tc.reason)
		})
	}
}

func TestWsHandler_OriginCheck(t *testing.T) {
	svc := newTestAuthService(t)
	url := newTestWsServer(t, svc, []string{"https://portal.example.gov"})

	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err == nil {
		t.Fatal("expected handshake to fail for foreign origin")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %+v", resp)
	}

	header = http.Header{"Origin": []string{"https://portal.example.gov"}}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial allowed origin: %v", err)
	}
	conn.Close()
}

func TestWsHandler_SameHostWhenNoAllowList(t *testing.T) {
	h := NewWsHandler(nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)

	req := httptest.NewRequest(http.MethodGet, "http://jobs.example.gov/ws", nil)
	req.Header.Set("Origin", "https://JOBS.example.gov")
	if !h.originAllowed(req) {
		t.Fatal("same host origin should be allowed")
	}
	req.Header.Set("Origin", "https://other.example.gov")
	if h.originAllowed(req) {
		t.Fatal("foreign origin should be rejected")
	}
	req.Header.Del("Origin")
	if !h.originAllowed(req) {
		t.Fatal("non-browser clients without Origin should be allowed")
	}
}
