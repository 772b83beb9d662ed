package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCORS(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := CORS(DefaultCORSConfig("http://localhost:6274"))(ok)

	tests := []struct {
		name        string
		method      string
		origin      string
		wantStatus  int
		wantOrigin  string
		wantMethods bool
	}{
		{"no origin", http.MethodPost, "", http.StatusOK, "", false},
		{"default origin", http.MethodPost, "https://claude.ai", http.StatusOK, "https://claude.ai", false},
		{"extra origin", http.MethodPost, "http://localhost:6274", http.StatusOK, "http://localhost:6274", false},
		{"unknown origin", http.MethodPost, "https://evil.example", http.StatusOK, "", false},
		{"preflight", http.MethodOptions, "https://claude.ai", http.StatusNoContent, "https://claude.ai", true},
		{"preflight from unknown origin", http.MethodOptions, "https://evil.example", http.StatusForbidden, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/mcp", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tt.wantMethods, rec.Header().Get("Access-Control-Allow-Methods") != "")
		})
	}
}

func TestCORS_Wildcard(t *testing.T) {
	handler := CORS(DefaultCORSConfig("*"))(http.NotFoundHandler())

	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	req.Header.Set("Origin", "https://anywhere.example")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "https://anywhere.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Mcp-Session-Id, X-Request-Id", rec.Header().Get("Access-Control-Expose-Headers"))
}
