package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware(t *testing.T) {
	h := AuthMiddleware("secret")(okHandler())

	tests := []struct {
		name     string
		path     string
		user     string
		pass     string
		withAuth bool
		want     int
	}{
		{name: "liveness is public", path: "/health", want: http.StatusOK},
		{name: "missing credentials", path: "/api/services", want: http.StatusUnauthorized},
		{name: "wrong password", path: "/api/services", user: "admin", pass: "nope", withAuth: true, want: http.StatusUnauthorized},
		{name: "wrong user", path: "/api/services", user: "root", pass: "secret", withAuth: true, want: http.StatusUnauthorized},
		{name: "valid credentials", path: "/api/services", user: "admin", pass: "secret", withAuth: true, want: http.StatusOK},
		{name: "websocket is protected", path: "/ws", want: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.withAuth {
				req.SetBasicAuth(tt.user, tt.pass)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestAuthMiddlewareWithoutPassword(t *testing.T) {
	h := AuthMiddleware("")(okHandler())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/services", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
