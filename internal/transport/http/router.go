package http

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/richardliu001/ledger-service/internal/auth"
	"github.com/richardliu001/ledger-service/internal/config"
	"go.uber.org/zap"
)

func NewRouter(svc Services, srv config.ServerConfig, rl config.RateLimitConfig, jwtManager *auth.JWTManager, log *zap.SugaredLogger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware(log))
	if len(srv.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:  srv.CORSOrigins,
			AllowMethods:  []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:  []string{"Authorization", "Content-Type", "Idempotency-Key", "X-Request-ID"},
			ExposeHeaders: []string{"X-Request-ID"},
			MaxAge:        12 * time.Hour,
		}))
	}
	r.Use(RateLimitMiddleware(rl.RPS, rl.Burst))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) { c.JSON(200, gin.H{"status": "ok"}) })
	RegisterHandlers(r, svc, AuthMiddleware(jwtManager))
	return r
}
