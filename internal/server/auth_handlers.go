package server

import (
	"errors"
	"net/http"
	"strings"

	"agora/internal/auth"
)

type signupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithDecodeError(w, err)
		return
	}

	user, err := s.auth.SignUp(r.Context(), s.db.DB, req.Name, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrNameRequired):
			respondWithError(w, http.StatusBadRequest, "Le nom est obligatoire.")
		case errors.Is(err, auth.ErrEmailRequired):
			respondWithError(w, http.StatusBadRequest, "L'email est obligatoire.")
		case errors.Is(err, auth.ErrWeakPassword):
			respondWithError(w, http.StatusBadRequest, "Le mot de passe doit contenir au moins 8 caractères.")
		case errors.Is(err, auth.ErrEmailTaken):
			respondWithError(w, http.StatusConflict, "Un compte existe déjà avec cet email.")
		default:
			s.logger.Printf("Error creating account: %v", err)
			respondWithError(w, http.StatusInternalServerError, "Impossible de créer le compte.")
		}
		return
	}

	session, err := s.auth.CreateSession(r.Context(), s.db.DB, user.ID)
	if err != nil {
		s.logger.Printf("Error creating session for user %s: %v", user.ID, err)
		respondWithError(w, http.StatusInternalServerError, "Impossible d'ouvrir la session.")
		return
	}
	s.setSessionCookie(w, session)

	s.logger.Printf("Account %s created with role %s", user.ID, user.Role)
	respondWithJSON(w, http.StatusCreated, user)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithDecodeError(w, err)
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		respondWithError(w, http.StatusBadRequest, "L'email est obligatoire.")
		return
	}
	if req.Password == "" {
		respondWithError(w, http.StatusBadRequest, "Le mot de passe est obligatoire.")
		return
	}

	user, session, err := s.auth.Authenticate(r.Context(), s.db.DB, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			respondWithError(w, http.StatusUnauthorized, "Identifiants invalides.")
			return
		}
		s.logger.Printf("Authentication error: %v", err)
		respondWithError(w, http.StatusInternalServerError, "Impossible d'ouvrir la session.")
		return
	}
	s.setSessionCookie(w, session)
	respondWithJSON(w, http.StatusOK, user)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookieName)
	if err == nil && cookie.Value != "" {
		if err := s.auth.InvalidateSession(r.Context(), s.db.DB, cookie.Value); err != nil {
			s.logger.Printf("Error invalidating session: %v", err)
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   s.config.UseHTTPS,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1, // Delete cookie
	})
	respondWithJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, _ := getUser(r.Context())
	respondWithJSON(w, http.StatusOK, user)
}

func (s *Server) setSessionCookie(w http.ResponseWriter, session *auth.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    session.Token,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.config.UseHTTPS,
		SameSite: http.SameSiteLaxMode,
		Expires:  session.ExpiresAt,
	})
}
