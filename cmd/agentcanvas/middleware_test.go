package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agentcanvas/api/handlers"
	"github.com/BaSui01/agentcanvas/config"
	"github.com/BaSui01/agentcanvas/types"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp handlers.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	return resp.Error.Code
}

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeaders()(okHandler())

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", w.Header().Get("Referrer-Policy"))
	assert.Equal(t, "1; mode=block", w.Header().Get("X-XSS-Protection"))
	assert.Equal(t, "default-src 'self'", w.Header().Get("Content-Security-Policy"))
}

func TestRequestID(t *testing.T) {
	var seen string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = types.RequestID(r.Context())
	})
	handler := Chain(inner, SecurityHeaders(), RequestID())

	t.Run("generated", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
		id := w.Header().Get("X-Request-ID")
		assert.Regexp(t, `^req-[0-9a-f]{32}$`, id)
		assert.Equal(t, id, seen)
		assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	})

	t.Run("propagated", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/test", nil)
		r.Header.Set("X-Request-ID", "client-42")
		handler.ServeHTTP(w, r)
		assert.Equal(t, "client-42", w.Header().Get("X-Request-ID"))
		assert.Equal(t, "client-42", seen)
	})
}

func TestRecovery(t *testing.T) {
	handler := Recovery(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, string(types.ErrInternalError), errorCode(t, w))
}

func TestAPIKeyAuth(t *testing.T) {
	handler := APIKeyAuth([]string{"secret"}, []string{"/health"}, zap.NewNop())(okHandler())

	tests := []struct {
		name   string
		path   string
		key    string
		status int
	}{
		{"valid key", "/api/v1/workflows", "secret", http.StatusOK},
		{"wrong key", "/api/v1/workflows", "nope", http.StatusUnauthorized},
		{"missing key", "/api/v1/workflows", "", http.StatusUnauthorized},
		{"skipped path", "/health", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.key != "" {
				r.Header.Set("X-API-Key", tt.key)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)
			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusUnauthorized {
				assert.Equal(t, string(types.ErrUnauthorized), errorCode(t, w))
			}
		})
	}

	t.Run("no keys configured", func(t *testing.T) {
		w := httptest.NewRecorder()
		APIKeyAuth(nil, nil, zap.NewNop())(okHandler()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func signHS256(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestJWTAuth(t *testing.T) {
	cfg := config.JWTConfig{Secret: "s3cret", Issuer: "agentcanvas"}

	var tenant, user string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant, _ = types.TenantID(r.Context())
		user, _ = types.UserID(r.Context())
	})
	handler := JWTAuth(cfg, []string{"/health"}, zap.NewNop())(inner)

	valid := jwt.MapClaims{
		"iss":       "agentcanvas",
		"sub":       "alice",
		"tenant_id": "acme",
		"exp":       time.Now().Add(time.Hour).Unix(),
	}

	t.Run("bearer header", func(t *testing.T) {
		tenant, user = "", ""
		r := httptest.NewRequest(http.MethodGet, "/api/v1/workflows", nil)
		r.Header.Set("Authorization", "Bearer "+signHS256(t, "s3cret", valid))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "acme", tenant)
		assert.Equal(t, "alice", user)
	})

	t.Run("query token", func(t *testing.T) {
		user = ""
		r := httptest.NewRequest(http.MethodGet, "/api/v1/workflows/w1/stream?access_token="+signHS256(t, "s3cret", valid), nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "alice", user)
	})

	rejected := map[string]string{
		"missing":      "",
		"wrong secret": signHS256(t, "other", valid),
		"expired": signHS256(t, "s3cret", jwt.MapClaims{
			"iss": "agentcanvas", "sub": "alice", "exp": time.Now().Add(-time.Minute).Unix(),
		}),
		"no expiry":    signHS256(t, "s3cret", jwt.MapClaims{"iss": "agentcanvas", "sub": "alice"}),
		"wrong issuer": signHS256(t, "s3cret", jwt.MapClaims{"iss": "evil", "exp": time.Now().Add(time.Hour).Unix()}),
	}
	for name, token := range rejected {
		t.Run(name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/v1/workflows", nil)
			if token != "" {
				r.Header.Set("Authorization", "Bearer "+token)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.NotEmpty(t, w.Header().Get("WWW-Authenticate"))
		})
	}

	t.Run("skipped path", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("disabled", func(t *testing.T) {
		w := httptest.NewRecorder()
		JWTAuth(config.JWTConfig{}, nil, zap.NewNop())(okHandler()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestParseRSAPublicKey_Invalid(t *testing.T) {
	_, err := parseRSAPublicKey("not pem")
	assert.Error(t, err)
}

func TestRateLimiter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	handler := RateLimiter(ctx, 1, 1, zap.NewNop())(okHandler())

	do := func(addr string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = addr
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		return w
	}

	assert.Equal(t, http.StatusOK, do("10.0.0.1:1234").Code)
	limited := do("10.0.0.1:5678")
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, string(types.ErrRateLimited), errorCode(t, limited))
	// 不同 IP 独立计数
	assert.Equal(t, http.StatusOK, do("10.0.0.2:1234").Code)

	t.Run("disabled", func(t *testing.T) {
		h := RateLimiter(ctx, 0, 0, zap.NewNop())(okHandler())
		for range 5 {
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
			assert.Equal(t, http.StatusOK, w.Code)
		}
	})
}

func TestCORS(t *testing.T) {
	handler := CORS([]string{"https://canvas.example.com"})(okHandler())

	t.Run("allowed origin", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Origin", "https://canvas.example.com")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		assert.Equal(t, "https://canvas.example.com", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "Origin", w.Header().Get("Vary"))
	})

	t.Run("other origin", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Origin", "https://evil.example.com")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	preflight := func(origin string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodOptions, "/api/v1/workflows", nil)
		r.Header.Set("Origin", origin)
		r.Header.Set("Access-Control-Request-Method", "POST")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		return w
	}
	assert.Equal(t, http.StatusNoContent, preflight("https://canvas.example.com").Code)
	assert.Equal(t, http.StatusForbidden, preflight("https://evil.example.com").Code)

	t.Run("wildcard", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Origin", "http://localhost:5173")
		w := httptest.NewRecorder()
		CORS([]string{"*"})(okHandler()).ServeHTTP(w, r)
		assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
	})
}

type recordedRequest struct {
	method, path string
	status       int
}

type fakeHTTPRecorder struct{ got []recordedRequest }

func (f *fakeHTTPRecorder) RecordHTTPRequest(method, path string, status int, _ time.Duration) {
	f.got = append(f.got, recordedRequest{method, path, status})
}

func TestRequestLogger_RecordsNormalizedPath(t *testing.T) {
	rec := &fakeHTTPRecorder{}
	handler := RequestLogger(zap.NewNop(), rec)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/workflows/wf-7/nodes", nil))

	require.Len(t, rec.got, 1)
	assert.Equal(t, recordedRequest{http.MethodPost, "/api/v1/workflows/:id/nodes", http.StatusCreated}, rec.got[0])
}

func TestNormalizePath(t *testing.T) {
	tests := map[string]string{
		"/health":                                  "/health",
		"/api/v1/workflows":                        "/api/v1/workflows",
		"/api/v1/workflows/import":                 "/api/v1/workflows/import",
		"/api/v1/workflows/my-flow/export":         "/api/v1/workflows/:id/export",
		"/api/v1/workflows/w1/nodes/n1":            "/api/v1/workflows/:id/nodes/:id",
		"/api/v1/workflows/w1/versions/3":          "/api/v1/workflows/:id/versions/:id",
		"/api/v1/workflows/w1/versions/compare":    "/api/v1/workflows/:id/versions/compare",
		"/api/v1/executions/0f8c2b1e-1c2d-4e5f-9a0b-123456789abc": "/api/v1/executions/:id",
		"/api/v1/mcp/servers/srv-1/tools/query/call":              "/api/v1/mcp/servers/:id/tools/:id/call",
	}
	for in, want := range tests {
		assert.Equal(t, want, normalizePath(in), in)
	}
}

func TestOriginPatterns(t *testing.T) {
	assert.Equal(t,
		[]string{"canvas.example.com", "localhost:5173", "*"},
		originPatterns([]string{"https://canvas.example.com", "http://localhost:5173", "*"}))
}
