package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"busline/internal/config"

	"github.com/stretchr/testify/assert"
)

func TestHTTPAuth(t *testing.T) {
	cfg := config.APIConfig{
		Auth: config.APIAuthConfig{
			APIKeys: []config.APIClientKey{
				{Key: "scoped", Permissions: []string{permWritePayments}},
				{Key: "root"},
			},
		},
	}
	auth := NewHTTPAuth(cfg)
	handler := auth.Wrap(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name   string
		path   string
		key    string
		status int
	}{
		{"Public path needs no key", "/api/v1/bookings/lookup", "", http.StatusOK},
		{"Missing key", "/api/v1/payments/confirmed", "", http.StatusUnauthorized},
		{"Unknown key", "/api/v1/payments/confirmed", "nope", http.StatusUnauthorized},
		{"Scoped key allowed", "/api/v1/payments/confirmed", "scoped", http.StatusOK},
		{"Scoped key denied", "/api/v1/admin/schedules/generate", "scoped", http.StatusForbidden},
		{"Empty permissions allow all", "/api/v1/admin/schedules/generate", "root", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tt.path, http.NoBody)
			if tt.key != "" {
				req.Header.Set(apiKeyHeaderDefault, tt.key)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestClientKey(t *testing.T) {
	auth := NewHTTPAuth(config.APIConfig{Auth: config.APIAuthConfig{
		HeaderAPIKey: "X-Partner-Key",
		APIKeys:      []config.APIClientKey{{Key: "k", Name: "partner"}},
	}})

	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "ip:10.0.0.1", auth.clientKey(req))

	// Self-asserted identities share the host bucket
	req.Header.Set(headerGuestID, "g1")
	assert.Equal(t, "ip:10.0.0.1", auth.clientKey(req))
	req.Header.Set(headerUserID, "9")
	assert.Equal(t, "ip:10.0.0.1", auth.clientKey(req))

	req.Header.Set("X-Partner-Key", "made-up")
	assert.Equal(t, "ip:10.0.0.1", auth.clientKey(req))

	req.Header.Set("X-Partner-Key", "k")
	assert.Equal(t, "key:k", auth.clientKey(req))

	req = httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.RemoteAddr = "garbage"
	assert.Equal(t, clientKeyUnknown, auth.clientKey(req))
}

func TestRateLimiter(t *testing.T) {
	l := newRateLimiter(config.APIRateLimitConfig{})
	for i := 0; i < 100; i++ {
		assert.True(t, l.allow("k"))
	}

	l = newRateLimiter(config.APIRateLimitConfig{RPS: 0.001, Burst: 2})
	assert.True(t, l.allow("k"))
	assert.True(t, l.allow("k"))
	assert.False(t, l.allow("k"))
	assert.Same(t, l.getLimiter("k"), l.getLimiter("k"))
}
