package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLimiter(t *testing.T, cfg Config) *Limiter {
	t.Helper()
	l := New(cfg)
	t.Cleanup(l.Stop)
	return l
}

func TestAllowBurstThenDeny(t *testing.T) {
	l := testLimiter(t, Config{
		RequestsPerMinute: 60,
		BurstSize:         5,
		CleanupInterval:   time.Minute,
	})

	for i := 0; i < 5; i++ {
		assert.True(t, l.Allow("ip"), "request %d within burst", i)
	}
	assert.False(t, l.Allow("ip"))
}

func TestAllowTokensRefill(t *testing.T) {
	l := testLimiter(t, Config{
		RequestsPerMinute: 6000, // 100/sec so the test refills fast
		BurstSize:         1,
		CleanupInterval:   time.Minute,
	})

	require.True(t, l.Allow("ip"))
	require.False(t, l.Allow("ip"))

	time.Sleep(50 * time.Millisecond)
	assert.True(t, l.Allow("ip"))
}

func TestAllowIsPerKey(t *testing.T) {
	l := testLimiter(t, Config{
		RequestsPerMinute: 60,
		BurstSize:         1,
		CleanupInterval:   time.Minute,
	})

	require.True(t, l.Allow("a"))
	require.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"))
}

func TestMiddlewareExemptsWebhooks(t *testing.T) {
	gin.SetMode(gin.TestMode)

	l := testLimiter(t, Config{
		RequestsPerMinute: 60,
		BurstSize:         1,
		CleanupInterval:   time.Minute,
		ExemptPrefixes:    []string{"/webhooks/"},
	})

	r := gin.New()
	r.Use(l.Middleware())
	r.POST("/webhooks/telegram", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/api/v1/stats", func(c *gin.Context) { c.Status(http.StatusOK) })

	// Webhooks never see 429 regardless of volume
	for i := 0; i < 20; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhooks/telegram", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}

	// The API burns its single token, then throttles
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}
