package api

import (
	"github.com/VictoriaMetrics/metrics"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	_ "github.com/d60-Lab/clipvote/docs"

	"github.com/d60-Lab/clipvote/config"
	"github.com/d60-Lab/clipvote/internal/api/handler"
	"github.com/d60-Lab/clipvote/internal/middleware"
)

// SetupRouter 组装全部路由与中间件。
// 公开接口走限流 + 身份解析；/internal 下的 cron 触发口令保护。
func SetupRouter(cfg *config.Config, h *handler.Handler, sentryEnabled bool) *gin.Engine {
	registerValidators()

	r := gin.New()
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestLogger())
	if sentryEnabled {
		r.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	}
	if cfg.Telemetry.Enabled {
		r.Use(otelgin.Middleware("clipvote"))
	}
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", func(c *gin.Context) {
		metrics.WritePrometheus(c.Writer, true)
	})
	if cfg.Swagger.Enabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group("/api/v1")
	api.Use(middleware.RateLimit(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
	api.Use(middleware.ActorResolver(cfg.Actor.JWTSecret, cfg.Actor.Pepper))
	{
		api.POST("/clips", h.CreateClip)
		api.GET("/clips", h.ListClips)
		api.GET("/clips/:id", h.GetClip)

		api.POST("/clips/:id/votes", h.CastVote)
		api.DELETE("/clips/:id/votes", h.RevokeVote)
		api.GET("/clips/:id/votes/me", h.MyBallot)
		api.POST("/tallies/query", h.QueryTallies)

		api.POST("/clips/:id/comments", h.CreateComment)
		api.GET("/clips/:id/comments", h.ListComments)
		api.GET("/comments/:id", h.GetComment)
		api.DELETE("/comments/:id", h.DeleteComment)
		api.POST("/comments/:id/like", h.LikeComment)
		api.DELETE("/comments/:id/like", h.UnlikeComment)
	}

	internal := r.Group("/internal")
	internal.Use(middleware.CronAuth(cfg.Cron.Secret))
	{
		internal.POST("/queues/:name/drain", h.DrainQueue)
		internal.GET("/queues/:name/health", h.QueueHealth)
		internal.GET("/queues/:name/dead-letters", h.ListDeadLetters)
		internal.POST("/sync", h.SyncCounters)
	}

	return r
}

// registerValidators 注册 entityid 规则：请求体里的 clip / comment ID 必须是 UUID。
func registerValidators() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("entityid", func(fl validator.FieldLevel) bool {
			return uuid.Validate(fl.Field().String()) == nil
		})
	}
}
