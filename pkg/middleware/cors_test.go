package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func corsHandler(cfg CORSConfig, reached *bool) http.Handler {
	return CORS(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reached != nil {
			*reached = true
		}
		w.WriteHeader(http.StatusOK)
	}))
}

func corsRequest(h http.Handler, method, origin string, preflight bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/api/v1/pipelines", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	if preflight {
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestCORS_Wildcard(t *testing.T) {
	h := corsHandler(DefaultCORSConfig(), nil)

	rr := corsRequest(h, http.MethodPost, "https://shop.test", false)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, CorrelationIDHeader, rr.Header().Get("Access-Control-Expose-Headers"))
	assert.Empty(t, rr.Header().Get("Vary"))
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Methods"), "methods belong to preflight responses only")
}

func TestCORS_NoOriginHeader(t *testing.T) {
	var reached bool
	h := corsHandler(DefaultCORSConfig(), &reached)

	rr := corsRequest(h, http.MethodGet, "", false)
	assert.True(t, reached)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_ExplicitOrigins(t *testing.T) {
	cfg := CORSConfig{AllowedOrigins: []string{"https://shop.test/", " https://admin.shop.test "}}
	h := corsHandler(cfg, nil)

	tests := []struct {
		origin string
		want   string
	}{
		{origin: "https://shop.test", want: "https://shop.test"},
		{origin: "https://admin.shop.test", want: "https://admin.shop.test"},
		{origin: "https://evil.test", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			rr := corsRequest(h, http.MethodPost, tt.origin, false)
			assert.Equal(t, http.StatusOK, rr.Code)
			assert.Equal(t, tt.want, rr.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, "Origin", rr.Header().Get("Vary"))
		})
	}
}

func TestCORS_Preflight(t *testing.T) {
	var reached bool
	cfg := DefaultCORSConfig()
	cfg.AllowedOrigins = []string{"https://shop.test"}
	h := corsHandler(cfg, &reached)

	rr := corsRequest(h, http.MethodOptions, "https://shop.test", true)

	assert.False(t, reached)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "GET, POST, OPTIONS", rr.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "Accept, Content-Type, Idempotency-Key, X-Correlation-ID", rr.Header().Get("Access-Control-Allow-Headers"))
	assert.Equal(t, "600", rr.Header().Get("Access-Control-Max-Age"))
	assert.Empty(t, rr.Header().Get("Access-Control-Expose-Headers"))
}

func TestCORS_PreflightFromUnknownOrigin(t *testing.T) {
	cfg := CORSConfig{AllowedOrigins: []string{"https://shop.test"}}
	h := corsHandler(cfg, nil)

	rr := corsRequest(h, http.MethodOptions, "https://evil.test", true)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Methods"))
}

func TestCORS_PlainOptionsReachesHandler(t *testing.T) {
	var reached bool
	h := corsHandler(DefaultCORSConfig(), &reached)

	rr := corsRequest(h, http.MethodOptions, "https://shop.test", false)
	assert.True(t, reached)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestCORS_Credentials(t *testing.T) {
	cfg := CORSConfig{AllowedOrigins: []string{"https://shop.test"}, AllowCredentials: true}
	rr := corsRequest(corsHandler(cfg, nil), http.MethodGet, "https://shop.test", false)
	assert.Equal(t, "true", rr.Header().Get("Access-Control-Allow-Credentials"))

	cfg.AllowedOrigins = []string{"*"}
	rr = corsRequest(corsHandler(cfg, nil), http.MethodGet, "https://shop.test", false)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORS_CustomExposedHeaders(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.ExposedHeaders = append(cfg.ExposedHeaders, "X-Run-ID")

	rr := corsRequest(corsHandler(cfg, nil), http.MethodPost, "https://shop.test", false)
	assert.Equal(t, "X-Correlation-ID, X-Run-ID", rr.Header().Get("Access-Control-Expose-Headers"))
}
