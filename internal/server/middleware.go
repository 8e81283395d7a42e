package server

import (
	"net/http"

	"agora/internal/auth"
)

// currentUser resolves the session cookie, if any, to its user.
func (s *Server) currentUser(r *http.Request) (*auth.User, bool) {
	if user, ok := getUser(r.Context()); ok {
		return user, true
	}
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil, false
	}
	_, user, err := s.auth.ValidateSession(r.Context(), s.db.DB, cookie.Value)
	if err != nil {
		if err != auth.ErrSessionNotFound {
			s.logger.Printf("Error validating session: %v", err)
		}
		return nil, false
	}
	return user, true
}

func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := s.currentUser(r)
		if !ok {
			respondWithError(w, http.StatusUnauthorized, "Authentification requise.")
			return
		}
		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user)))
	}
}

// requireAdmin answers 403 to anonymous callers as well as to non-admins.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := s.currentUser(r)
		if !ok || !user.IsAdmin() {
			respondWithError(w, http.StatusForbidden, "Accès administrateur requis.")
			return
		}
		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user)))
	}
}

func securityHeaders(next http.Handler, useHTTPS bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		if useHTTPS {
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}
