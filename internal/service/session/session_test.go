package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/chat-relay/backend/internal/config"
)

func newTestProvider() *Provider {
	return NewProvider(config.SessionConfig{
		Scoped:     true,
		CookieName: "chat_session",
		HeaderName: "X-Session-Id",
		SameSite:   http.SameSiteLaxMode,
		MaxAge:     24 * time.Hour,
	})
}

func TestResolveKeepsWellFormedCredential(t *testing.T) {
	p := newTestProvider()
	token := "0b9c6c1e-3f0a-4c55-9d3e-6a7e2b1f4c11"

	id, isNew := p.Resolve(token)
	assert.Equal(t, token, id)
	assert.False(t, isNew)
}

func TestResolveIssuesDistinctTokens(t *testing.T) {
	p := newTestProvider()

	first, isNew := p.Resolve("")
	require.True(t, isNew)
	second, isNew := p.Resolve("")
	require.True(t, isNew)

	assert.NotEqual(t, first, second)
	assert.True(t, WellFormed(first))
	assert.True(t, WellFormed(second))
}

func TestResolveTreatsMalformedAsAbsent(t *testing.T) {
	p := newTestProvider()

	for _, bad := range []string{"abc", "{0b9c6c1e-3f0a-4c55-9d3e-6a7e2b1f4c11}", "0b9c6c1e3f0a4c559d3e6a7e2b1f4c11", "zzzzzzzz-zzzz-zzzz-zzzz-zzzzzzzzzzzz"} {
		id, isNew := p.Resolve(bad)
		assert.True(t, isNew, bad)
		assert.NotEqual(t, bad, id)
	}
}

func TestCredentialPrefersCookie(t *testing.T) {
	p := newTestProvider()
	cookieToken := "0b9c6c1e-3f0a-4c55-9d3e-6a7e2b1f4c11"
	headerToken := "5f1d7c2a-8b4e-4d1f-a0c3-9e8d7c6b5a41"

	req := httptest.NewRequest(http.MethodGet, "/api/messages", nil)
	req.AddCookie(&http.Cookie{Name: "chat_session", Value: cookieToken})
	req.Header.Set("X-Session-Id", headerToken)
	assert.Equal(t, cookieToken, p.Credential(req))

	req = httptest.NewRequest(http.MethodGet, "/api/messages", nil)
	req.Header.Set("X-Session-Id", headerToken)
	assert.Equal(t, headerToken, p.Credential(req))

	req = httptest.NewRequest(http.MethodGet, "/api/messages", nil)
	req.AddCookie(&http.Cookie{Name: "chat_session", Value: "garbage"})
	assert.Empty(t, p.Credential(req))
}

func TestIssueSetsCookieAndHeader(t *testing.T) {
	p := newTestProvider()
	token := "0b9c6c1e-3f0a-4c55-9d3e-6a7e2b1f4c11"

	rec := httptest.NewRecorder()
	p.Issue(rec, token)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "chat_session", cookies[0].Name)
	assert.Equal(t, token, cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, "/", cookies[0].Path)
	assert.Equal(t, 86400, cookies[0].MaxAge)
	assert.Equal(t, token, rec.Header().Get("X-Session-Id"))

	h := p.Header(token)
	assert.Contains(t, h.Get("Set-Cookie"), "chat_session="+token)
}
