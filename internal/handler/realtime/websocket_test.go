package realtime

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zhouzirui/chat-relay/backend/internal/config"
	chatservice "github.com/zhouzirui/chat-relay/backend/internal/service/chat"
	"github.com/zhouzirui/chat-relay/backend/internal/service/history"
	"github.com/zhouzirui/chat-relay/backend/internal/service/relay"
	"github.com/zhouzirui/chat-relay/backend/internal/service/session"
)

type stubRelay struct{ err error }

func (s stubRelay) Detect(_ context.Context, _, text, _ string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "echo: " + text, nil
}

func newServer(t *testing.T, r relay.Relay, origins []string) *httptest.Server {
	t.Helper()
	chatSvc := chatservice.NewService(history.NewMemoryStore(), r, 256, zap.NewNop())
	sessions := session.NewProvider(config.SessionConfig{
		Scoped:     true,
		CookieName: "chat_session",
		HeaderName: "X-Session-Id",
		SameSite:   http.SameSiteLaxMode,
		MaxAge:     time.Hour,
	})

	router := chi.NewRouter()
	New(chatSvc, sessions, true, origins, zap.NewNop()).RegisterRoutes(router)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, header http.Header) (*websocket.Conn, *http.Response) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn, resp
}

func roundTrip(t *testing.T, conn *websocket.Conn, frame any) map[string]any {
	t.Helper()
	require.NoError(t, conn.WriteJSON(frame))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var out map[string]any
	require.NoError(t, conn.ReadJSON(&out))
	return out
}

func TestWebSocketChatAndHistory(t *testing.T) {
	srv := newServer(t, stubRelay{}, nil)
	conn, resp := dial(t, srv, nil)

	token := resp.Header.Get("X-Session-Id")
	require.True(t, session.WellFormed(token))
	assert.Contains(t, resp.Header.Get("Set-Cookie"), "chat_session="+token)

	out := roundTrip(t, conn, Inbound{Type: TypeChat, Message: "salut"})
	assert.Equal(t, TypeReply, out["type"])
	assert.Equal(t, "echo: salut", out["reply"])

	out = roundTrip(t, conn, Inbound{Type: TypeHistory})
	assert.Equal(t, TypeHistory, out["type"])
	messages, ok := out["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)
	assert.Equal(t, "salut", messages[0].(map[string]any)["content"])

	// A reconnect with the issued token sees the same history and gets no new token.
	conn2, resp2 := dial(t, srv, http.Header{"X-Session-Id": {token}})
	assert.Empty(t, resp2.Header.Get("X-Session-Id"))
	out = roundTrip(t, conn2, Inbound{Type: TypeHistory})
	assert.Len(t, out["messages"], 2)
}

func TestWebSocketEmptyHistory(t *testing.T) {
	srv := newServer(t, stubRelay{}, nil)
	conn, _ := dial(t, srv, nil)

	out := roundTrip(t, conn, Inbound{Type: TypeHistory})
	assert.Equal(t, []any{}, out["messages"])
}

func TestWebSocketErrors(t *testing.T) {
	srv := newServer(t, stubRelay{err: &relay.Error{Kind: relay.KindMalformed, Err: errors.New("nil")}}, nil)
	conn, _ := dial(t, srv, nil)

	out := roundTrip(t, conn, Inbound{Type: "dance"})
	assert.Equal(t, TypeError, out["type"])
	assert.Equal(t, chatservice.CodeInvalidRequest, out["code"])

	out = roundTrip(t, conn, Inbound{Type: TypeChat, Message: "  "})
	assert.Equal(t, chatservice.CodeInvalidRequest, out["code"])

	out = roundTrip(t, conn, Inbound{Type: TypeChat, Message: "hello"})
	assert.Equal(t, chatservice.CodeRelayMalformed, out["code"])

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{oops")))
	var raw map[string]any
	require.NoError(t, conn.ReadJSON(&raw))
	assert.Equal(t, chatservice.CodeInvalidRequest, raw["code"])
}

func TestWebSocketRejectsForeignOrigin(t *testing.T) {
	srv := newServer(t, stubRelay{}, []string{"http://localhost:3000"})
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"http://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"http://localhost:3000"}})
	require.NoError(t, err)
	conn.Close()
}
