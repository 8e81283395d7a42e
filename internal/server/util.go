package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
)

const maxRequestBodyBytes = 1 << 20

var (
	errEmptyBody     = errors.New("request body missing")
	errInvalidFields = errors.New("request body has invalid fields")
)

// respondWithError sends a JSON error response.
// It's a convenience wrapper around respondWithJSON.
func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"message": message})
}

// respondWithJSON sends a JSON response with the given status code and payload.
// If the payload is nil, no body is sent.
func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		// Headers are already written, nothing useful can be done on failure.
		_ = json.NewEncoder(w).Encode(payload)
	}
}

// decodeJSON reads a JSON object into v. A missing or unparsable body yields
// errEmptyBody and a body with mistyped fields yields errInvalidFields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	err := json.NewDecoder(body).Decode(v)
	if err == nil {
		return nil
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return errInvalidFields
	}
	return errEmptyBody
}

// respondWithDecodeError maps a decodeJSON failure to its response.
func respondWithDecodeError(w http.ResponseWriter, err error) {
	if errors.Is(err, errInvalidFields) {
		respondWithError(w, http.StatusBadRequest, "Champs invalides.")
		return
	}
	respondWithError(w, http.StatusBadRequest, "Corps de requête manquant.")
}

// isHTTPURL reports whether raw parses as an absolute http(s) URL.
func isHTTPURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
