package server

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}
	tests := []struct {
		name     string
		body     string
		expected error
	}{
		{name: "Valid body", body: `{"name":"Agora"}`, expected: nil},
		{name: "Empty body", body: "", expected: errEmptyBody},
		{name: "Malformed JSON", body: `{"name":`, expected: errEmptyBody},
		{name: "Wrong field type", body: `{"name":42}`, expected: errInvalidFields},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var p payload
			err := decodeJSON(httptest.NewRecorder(), r, &p)
			if err != tt.expected {
				t.Errorf("decodeJSON(%q) = %v, want %v", tt.body, err, tt.expected)
			}
		})
	}
}

func TestIsHTTPURL(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"https://example.com/a", true},
		{"http://example.com", true},
		{"  https://example.com/padded  ", true},
		{"ftp://example.com", false},
		{"javascript:alert(1)", false},
		{"/relative/path", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := isHTTPURL(tt.input); got != tt.expected {
			t.Errorf("isHTTPURL(%q) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}

func TestGzipMiddleware(t *testing.T) {
	large := strings.Repeat("Agora ", 400)
	handler := gzipMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/small" {
			respondWithJSON(w, http.StatusCreated, map[string]string{"status": "ok"})
			return
		}
		respondWithJSON(w, http.StatusOK, map[string]string{"text": large})
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("Expected gzip encoding, got %q", rr.Header().Get("Content-Encoding"))
	}
	zr, err := gzip.NewReader(rr.Body)
	if err != nil {
		t.Fatalf("Failed to open gzip body: %v", err)
	}
	body, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("Failed to read gzip body: %v", err)
	}
	if !strings.Contains(string(body), large) {
		t.Errorf("Expected the full body after decompression, got %d bytes", len(body))
	}

	small := httptest.NewRequest(http.MethodGet, "/small", nil)
	small.Header.Set("Accept-Encoding", "gzip")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, small)
	if rr.Header().Get("Content-Encoding") != "" {
		t.Error("Expected small bodies to be sent uncompressed")
	}
	if rr.Code != http.StatusCreated {
		t.Errorf("Expected status 201 to survive buffering, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"ok"`) {
		t.Errorf("Unexpected body %q", rr.Body.String())
	}

	plain := httptest.NewRecorder()
	handler.ServeHTTP(plain, httptest.NewRequest(http.MethodGet, "/", nil))
	if plain.Header().Get("Content-Encoding") != "" {
		t.Error("Expected no compression without Accept-Encoding")
	}
}

func TestGzipMiddleware_NoContent(t *testing.T) {
	handler := gzipMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodDelete, "/", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent || rr.Body.Len() != 0 {
		t.Errorf("Expected empty 204, got %d with %d bytes", rr.Code, rr.Body.Len())
	}
	if rr.Header().Get("Content-Encoding") != "" {
		t.Error("Expected no Content-Encoding on 204")
	}
}
