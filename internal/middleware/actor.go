package middleware

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/blake2b"
)

const actorKeyContext = "actor_key"

// ActorResolver 解析请求方身份写入上下文。带有效 JWT 的请求用
// "user:{sub}"，其余（含坏 token）按匿名处理，用加盐指纹 "device:{hash}"。
// 平台允许匿名投票，所以这里从不拒绝请求，只负责给出稳定的 actor key。
func ActorResolver(jwtSecret, pepper string) gin.HandlerFunc {
	// blake2b 的 key 上限 64 字节
	key := []byte(pepper)
	if len(key) > 64 {
		key = key[:64]
	}

	return func(c *gin.Context) {
		if sub := subjectFromJWT(c.GetHeader("Authorization"), jwtSecret); sub != "" {
			c.Set(actorKeyContext, "user:"+sub)
			c.Next()
			return
		}
		c.Set(actorKeyContext, "device:"+deviceFingerprint(key, c.ClientIP(), c.Request.UserAgent()))
		c.Next()
	}
}

// ActorKey 取出 ActorResolver 写入的身份；没挂中间件时返回空串。
func ActorKey(c *gin.Context) string {
	return c.GetString(actorKeyContext)
}

func subjectFromJWT(header, secret string) string {
	if secret == "" {
		return ""
	}
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || raw == "" {
		return ""
	}

	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return ""
	}
	sub, err := token.Claims.GetSubject()
	if err != nil {
		return ""
	}
	return sub
}

// deviceFingerprint 对 ip|ua 做带盐 blake2b，截前 16 字节。
// 盐防止离线枚举 IP+UA 反推出具体设备。
func deviceFingerprint(key []byte, ip, ua string) string {
	h, err := blake2b.New256(key)
	if err != nil {
		h, _ = blake2b.New256(nil)
	}
	h.Write([]byte(ip))
	h.Write([]byte{'|'})
	h.Write([]byte(ua))
	return hex.EncodeToString(h.Sum(nil)[:16])
}
