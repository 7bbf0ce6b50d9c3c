package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func echoActorRouter(jwtSecret, pepper string) *gin.Engine {
	r := gin.New()
	r.Use(ActorResolver(jwtSecret, pepper))
	r.GET("/whoami", func(c *gin.Context) {
		c.String(http.StatusOK, ActorKey(c))
	})
	return r
}

func TestActorResolverUsesJWTSubject(t *testing.T) {
	const secret = "test-secret"
	r := echoActorRouter(secret, "pepper")

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "42"}).
		SignedString([]byte(secret))
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "user:42", w.Body.String())
}

func TestActorResolverFallsBackToDeviceFingerprint(t *testing.T) {
	r := echoActorRouter("test-secret", "pepper")

	whoami := func(ua, auth string) string {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set("User-Agent", ua)
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
		return w.Body.String()
	}

	anon := whoami("agent-a", "")
	require.True(t, len(anon) > len("device:"))
	require.Equal(t, "device:", anon[:7])

	// 同一设备指纹稳定，不同 UA 指纹不同
	require.Equal(t, anon, whoami("agent-a", ""))
	require.NotEqual(t, anon, whoami("agent-b", ""))

	// 坏 token 按匿名处理而不是拒绝
	require.Equal(t, anon, whoami("agent-a", "Bearer not.a.jwt"))
}

func TestActorResolverPepperChangesFingerprint(t *testing.T) {
	get := func(pepper string) string {
		r := echoActorRouter("s", pepper)
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set("User-Agent", "agent-a")
		r.ServeHTTP(w, req)
		return w.Body.String()
	}
	require.NotEqual(t, get("pepper-1"), get("pepper-2"))
}

func TestCronAuth(t *testing.T) {
	newRouter := func(secret string) *gin.Engine {
		r := gin.New()
		r.Use(CronAuth(secret))
		r.POST("/drain", func(c *gin.Context) { c.Status(http.StatusOK) })
		return r
	}

	call := func(r *gin.Engine, header string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/drain", nil)
		if header != "" {
			req.Header.Set("X-Cron-Secret", header)
		}
		r.ServeHTTP(w, req)
		return w.Code
	}

	// 未配置口令：全部拒绝
	r := newRouter("")
	require.Equal(t, http.StatusUnauthorized, call(r, ""))
	require.Equal(t, http.StatusUnauthorized, call(r, "anything"))

	r = newRouter("s3cret")
	require.Equal(t, http.StatusUnauthorized, call(r, ""))
	require.Equal(t, http.StatusUnauthorized, call(r, "wrong"))
	require.Equal(t, http.StatusOK, call(r, "s3cret"))
}

func TestRateLimitRejectsBurstOverflow(t *testing.T) {
	r := gin.New()
	r.Use(RateLimit(1, 2))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	require.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}
