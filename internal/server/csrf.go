package server

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"net/http"
	"sync"
	"time"
)

var (
	ErrTokenMissing = errors.New("CSRF token missing")
	ErrTokenInvalid = errors.New("CSRF token invalid")
)

// CSRFConfig holds configuration for CSRF protection
type CSRFConfig struct {
	Cookie string
	Header string
	Secure bool
	Expiry time.Duration
}

// DefaultConfig returns the default CSRF configuration
func DefaultConfig() CSRFConfig {
	return CSRFConfig{
		Cookie: "agora_csrf",
		Header: "X-CSRF-Token",
		Secure: true, // Will be overridden by server config
		Expiry: 24 * time.Hour,
	}
}

// CSRF implements double-submit cookie protection. The API client reads the
// token from GET /api/csrf and echoes it in the header on unsafe requests.
type CSRF struct {
	config CSRFConfig
	tokens sync.Map
	done   chan struct{}
	once   sync.Once
	now    func() time.Time
}

func NewCSRF(config CSRFConfig) *CSRF {
	c := &CSRF{
		config: config,
		done:   make(chan struct{}),
		now:    time.Now,
	}
	go c.startCleanupLoop()
	return c
}

func (c *CSRF) generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// Token returns the caller's live token, issuing a new one (and its cookie)
// when there is none.
func (c *CSRF) Token(w http.ResponseWriter, r *http.Request) (string, error) {
	if cookie, err := r.Cookie(c.config.Cookie); err == nil && cookie.Value != "" {
		if expiry, ok := c.tokens.Load(cookie.Value); ok && expiry.(time.Time).After(c.now()) {
			return cookie.Value, nil
		}
	}

	token, err := c.generateToken()
	if err != nil {
		return "", err
	}
	c.tokens.Store(token, c.now().Add(c.config.Expiry))

	http.SetCookie(w, &http.Cookie{
		Name:     c.config.Cookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.config.Secure,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(c.config.Expiry.Seconds()),
	})
	return token, nil
}

// Middleware rejects unsafe requests that lack a valid token.
func (c *CSRF) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isSafeMethod(r.Method) {
			next.ServeHTTP(w, r)
			return
		}
		if err := c.validateRequest(r); err != nil {
			respondWithError(w, http.StatusForbidden, "Jeton CSRF invalide.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (c *CSRF) validateRequest(r *http.Request) error {
	token := r.Header.Get(c.config.Header)
	if token == "" {
		return ErrTokenMissing
	}

	cookie, err := r.Cookie(c.config.Cookie)
	if err != nil || cookie.Value == "" {
		return ErrTokenMissing
	}

	if subtle.ConstantTimeCompare([]byte(token), []byte(cookie.Value)) != 1 {
		return ErrTokenInvalid
	}

	expiry, ok := c.tokens.Load(token)
	if !ok {
		return ErrTokenInvalid
	}
	if expiry.(time.Time).Before(c.now()) {
		c.tokens.Delete(token)
		return ErrTokenInvalid
	}
	return nil
}

// cleanup removes expired tokens
func (c *CSRF) cleanup() {
	now := c.now()
	c.tokens.Range(func(key, value any) bool {
		if expiry := value.(time.Time); expiry.Before(now) {
			c.tokens.Delete(key)
		}
		return true
	})
}

func (c *CSRF) startCleanupLoop() {
	ticker := time.NewTicker(6 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.done:
			return
		}
	}
}

// Close stops the cleanup loop.
func (c *CSRF) Close() {
	c.once.Do(func() { close(c.done) })
}

func isSafeMethod(method string) bool {
	return method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions
}
