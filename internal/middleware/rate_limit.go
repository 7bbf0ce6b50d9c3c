package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/time/rate"

	"github.com/d60-Lab/clipvote/pkg/response"
)

// RateLimit 按客户端 IP 限流。限流器表用并发 map，热路径无锁读。
// 表不做淘汰：条目只有 IP 数量级，重启自然清零。
func RateLimit(rps float64, burst int) gin.HandlerFunc {
	if rps <= 0 {
		rps = 20
	}
	if burst <= 0 {
		burst = int(rps) * 2
	}
	limiters := xsync.NewMapOf[string, *rate.Limiter]()

	return func(c *gin.Context) {
		lim, _ := limiters.LoadOrCompute(c.ClientIP(), func() *rate.Limiter {
			return rate.NewLimiter(rate.Limit(rps), burst)
		})
		if !lim.Allow() {
			response.TooManyRequests(c)
			c.Abort()
			return
		}
		c.Next()
	}
}
