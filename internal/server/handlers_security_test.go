package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCSRFRejectsUnsafeRequestsWithoutToken(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name   string
		header string
		cookie string
	}{
		{name: "no token at all"},
		{name: "header without cookie", header: "abc"},
		{name: "cookie without header", cookie: "abc"},
		{name: "mismatched token", header: "abc", cookie: "def"},
		{name: "unknown token", header: "abc", cookie: "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
				strings.NewReader(`{"email":"a@b.c","password":"motdepasse"}`))
			if tt.header != "" {
				req.Header.Set("X-CSRF-Token", tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "agora_csrf", Value: tt.cookie})
			}
			rr := httptest.NewRecorder()
			ts.server.router.ServeHTTP(rr, req)
			expectMessage(t, rr, http.StatusForbidden, "Jeton CSRF invalide.")
		})
	}
}

func TestCSRFTokenIsReused(t *testing.T) {
	ts := newTestServer(t)
	c := ts.newClient(t)
	first := c.csrf

	rr := c.do(http.MethodGet, "/api/csrf", nil)
	var body struct {
		CSRFToken string `json:"csrfToken"`
	}
	decodeBody(t, rr, &body)
	if body.CSRFToken != first {
		t.Errorf("Expected the live token to be reused, got a new one")
	}
}

func TestCSRFExpiredToken(t *testing.T) {
	c := NewCSRF(DefaultConfig())
	defer c.Close()

	rr := httptest.NewRecorder()
	token, err := c.Token(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if err != nil {
		t.Fatalf("Token() error: %v", err)
	}

	c.now = func() time.Time { return time.Now().Add(25 * time.Hour) }
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("X-CSRF-Token", token)
	req.AddCookie(&http.Cookie{Name: "agora_csrf", Value: token})
	if err := c.validateRequest(req); err != ErrTokenInvalid {
		t.Errorf("Expected ErrTokenInvalid for an expired token, got %v", err)
	}

	c.cleanup()
	if _, ok := c.tokens.Load(token); ok {
		t.Error("Expected expired token to be removed")
	}
}

func TestSecurityHeaders(t *testing.T) {
	ts := newTestServer(t)
	rr := httptest.NewRecorder()
	ts.server.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/posts", nil))

	expected := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
	}
	for header, value := range expected {
		if got := rr.Header().Get(header); got != value {
			t.Errorf("Expected %s %q, got %q", header, value, got)
		}
	}
	if rr.Header().Get("Strict-Transport-Security") != "" {
		t.Error("Expected no HSTS header without HTTPS")
	}
}

func TestSessionCookieFlags(t *testing.T) {
	ts := newTestServer(t)
	c := ts.newClient(t)
	rr := c.do(http.MethodPost, "/api/auth/signup", map[string]string{
		"name": "Frank", "email": "frank@example.com", "password": "motdepasse",
	})

	var session *http.Cookie
	for _, cookie := range rr.Result().Cookies() {
		if cookie.Name == sessionCookieName {
			session = cookie
		}
	}
	if session == nil {
		t.Fatal("Expected session cookie")
	}
	if !session.HttpOnly {
		t.Error("Expected HttpOnly session cookie")
	}
	if len(session.Value) != 96 {
		t.Errorf("Expected 96 hex chars of session token, got %d", len(session.Value))
	}
	if time.Until(session.Expires) < 6*24*time.Hour {
		t.Errorf("Expected a session close to 7 days, expires %v", session.Expires)
	}
}

func TestForgedSessionCookieIsRejected(t *testing.T) {
	ts := newTestServer(t)
	c := ts.newClient(t)
	c.cookies[sessionCookieName] = &http.Cookie{Name: sessionCookieName, Value: strings.Repeat("a", 96)}
	expectMessage(t, c.do(http.MethodGet, "/api/auth/me", nil), http.StatusUnauthorized, "Authentification requise.")
}
