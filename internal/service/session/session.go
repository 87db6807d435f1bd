// Package session issues and recognises the opaque token that groups a client's turns.
// The token lives only on the client; the server never stores it.
package session

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/chat-relay/backend/internal/config"
)

// Provider resolves session tokens and writes them back to clients.
type Provider struct {
	cookieName string
	headerName string
	secure     bool
	sameSite   http.SameSite
	maxAge     time.Duration
	newID      func() string
}

// NewProvider creates a provider using the configured cookie and header names.
func NewProvider(cfg config.SessionConfig) *Provider {
	return &Provider{
		cookieName: cfg.CookieName,
		headerName: cfg.HeaderName,
		secure:     cfg.CookieSecure,
		sameSite:   cfg.SameSite,
		maxAge:     cfg.MaxAge,
		newID:      uuid.NewString,
	}
}

// Resolve returns a well-formed credential unchanged, or a fresh token with isNew set.
func (p *Provider) Resolve(credential string) (sessionID string, isNew bool) {
	if WellFormed(credential) {
		return credential, false
	}
	return p.newID(), true
}

// WellFormed reports whether token looks like a token this service issues: the
// canonical 36 character UUID form.
func WellFormed(token string) bool {
	if len(token) != 36 {
		return false
	}
	_, err := uuid.Parse(token)
	return err == nil
}

// Credential extracts the client-held token from the cookie, falling back to the header.
// It returns "" when neither carries a well-formed token.
func (p *Provider) Credential(r *http.Request) string {
	if c, err := r.Cookie(p.cookieName); err == nil && WellFormed(c.Value) {
		return c.Value
	}
	if p.headerName != "" {
		if v := strings.TrimSpace(r.Header.Get(p.headerName)); WellFormed(v) {
			return v
		}
	}
	return ""
}

// Issue hands a newly created token to the client.
func (p *Provider) Issue(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, p.cookie(sessionID))
	if p.headerName != "" {
		w.Header().Set(p.headerName, sessionID)
	}
}

// Header returns the response headers that issue the token, for callers that cannot
// write to a ResponseWriter directly such as a WebSocket upgrade.
func (p *Provider) Header(sessionID string) http.Header {
	h := http.Header{}
	h.Add("Set-Cookie", p.cookie(sessionID).String())
	if p.headerName != "" {
		h.Set(p.headerName, sessionID)
	}
	return h
}

func (p *Provider) cookie(sessionID string) *http.Cookie {
	return &http.Cookie{
		Name:     p.cookieName,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   int(p.maxAge / time.Second),
		HttpOnly: true,
		Secure:   p.secure,
		SameSite: p.sameSite,
	}
}
