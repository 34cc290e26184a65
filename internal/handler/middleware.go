package handler

import (
	"log"
	"sync"
	"time"

	"quizwallet/internal/config"
	"quizwallet/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const requestIDHeader = "X-Request-ID"

// RequestIDMiddleware 透传或生成请求ID
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("request_id", requestID)
		c.Header(requestIDHeader, requestID)
		c.Next()
	}
}

// LoggerMiddleware 日志中间件
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		if query != "" {
			path = path + "?" + query
		}

		log.Printf("[HTTP] %d | %13v | %15s | %-7s %s | %s",
			status,
			latency,
			c.ClientIP(),
			c.Request.Method,
			path,
			c.GetString("request_id"),
		)
	}
}

// RecoveryMiddleware 恢复中间件，防止 panic 导致服务崩溃
func RecoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("[PANIC] %v", err)
				response.ServerError(c, "服务器内部错误")
			}
		}()
		c.Next()
	}
}

// CORSMiddleware 跨域中间件
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, X-Request-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// RateLimiter 按客户端 IP 的令牌桶限流，只挂在写接口上
type RateLimiter struct {
	mu       sync.Mutex
	perSec   rate.Limit
	burst    int
	visitors map[string]*visitor
	ttl      time.Duration
	swept    time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	perSecond := cfg.RequestsPerMinute / 60.0
	if perSecond <= 0 {
		perSecond = 1
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		perSec:   rate.Limit(perSecond),
		burst:    burst,
		visitors: make(map[string]*visitor),
		ttl:      5 * time.Minute,
	}
}

func (r *RateLimiter) limiter(id string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	// 每个 ttl 周期顺带清理一次长时间没有请求的客户端
	if now.Sub(r.swept) > r.ttl {
		for key, v := range r.visitors {
			if now.Sub(v.lastSeen) > r.ttl {
				delete(r.visitors, key)
			}
		}
		r.swept = now
	}

	v, ok := r.visitors[id]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(r.perSec, r.burst)}
		r.visitors[id] = v
	}
	v.lastSeen = now
	return v.limiter
}

func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !r.limiter(c.ClientIP()).Allow() {
			response.TooManyRequests(c)
			return
		}
		c.Next()
	}
}
