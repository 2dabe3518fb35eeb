package http

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/richardliu001/ledger-service/internal/apperr"
	"github.com/richardliu001/ledger-service/internal/auth"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	actorKey     = "actor_id"
	requestIDKey = "request_id"
)

// LoggingMiddleware prints request/response metrics.
func LoggingMiddleware(log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqID := c.GetHeader("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Set(requestIDKey, reqID)
		c.Header("X-Request-ID", reqID)
		c.Next()

		fields := []interface{}{
			"method", c.Request.Method, "path", c.Request.URL.Path, "status", c.Writer.Status(),
			"latency", time.Since(start).String(), "request_id", reqID,
		}
		if len(c.Errors) > 0 {
			fields = append(fields, "err", c.Errors.String())
		}
		log.Infow("request", fields...)
	}
}

// RateLimitMiddleware simple token bucket per IP.
func RateLimitMiddleware(rps, burst int) gin.HandlerFunc {
	var mu sync.Mutex
	buckets := make(map[string]*rate.Limiter)
	newLimiter := func() *rate.Limiter { return rate.NewLimiter(rate.Limit(rps), burst) }
	return func(c *gin.Context) {
		ip, _, err := net.SplitHostPort(c.Request.RemoteAddr)
		if err != nil {
			ip = c.Request.RemoteAddr
		}
		mu.Lock()
		lim, ok := buckets[ip]
		if !ok {
			lim = newLimiter()
			buckets[ip] = lim
		}
		mu.Unlock()
		if !lim.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

// AuthMiddleware validates the bearer token and stores the actor id.
func AuthMiddleware(jwtManager *auth.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			writeError(c, apperr.Wrap(apperr.Unauthenticated, auth.ErrMissingToken, "missing bearer token"))
			return
		}
		parts := strings.Split(header, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			writeError(c, apperr.Wrap(apperr.Unauthenticated, auth.ErrInvalidToken, "malformed authorization header"))
			return
		}
		claims, err := jwtManager.Validate(parts[1])
		if err != nil {
			writeError(c, apperr.Wrap(apperr.Unauthenticated, err, "invalid bearer token"))
			return
		}
		c.Set(actorKey, claims.UserID)
		c.Next()
	}
}

// actorID returns the authenticated user, or "" when none.
func actorID(c *gin.Context) string { return c.GetString(actorKey) }
