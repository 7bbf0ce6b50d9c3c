package middleware

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/clipvote/pkg/response"
)

// CronAuth 校验定时任务触发口令（X-Cron-Secret 头）。
// 没配置口令时一律拒绝：内部排水接口绝不能裸奔。
func CronAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			response.Unauthorized(c, "cron endpoints disabled: no secret configured")
			c.Abort()
			return
		}
		got := c.GetHeader("X-Cron-Secret")
		if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			response.Unauthorized(c, "bad cron secret")
			c.Abort()
			return
		}
		c.Next()
	}
}
