package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Gamechiefx/flashmath-backend/pkg/ratelimit"
	"github.com/gin-gonic/gin"
)

// RateLimitConfig Rate Limit 설정
type RateLimitConfig struct {
	Capacity   int64                     // 버스트 허용량
	RefillRate int64                     // 초당 충전량
	KeyFunc    func(*gin.Context) string // 키 추출 함수
}

// DefaultKeyFunc 인증된 사용자는 userId, 아니면 IP
func DefaultKeyFunc(c *gin.Context) string {
	if userID, exists := c.Get("userId"); exists {
		return fmt.Sprintf("user:%v", userID)
	}
	return fmt.Sprintf("ip:%s", c.ClientIP())
}

// UserKeyFunc userId 전용 (인증 필요)
func UserKeyFunc(c *gin.Context) string {
	if userID, exists := c.Get("userId"); exists {
		return fmt.Sprintf("user:%v", userID)
	}
	return ""
}

// RateLimitMiddleware 토큰 버킷 기반 Rate Limiting 미들웨어
func RateLimitMiddleware(config RateLimitConfig) gin.HandlerFunc {
	limiter := ratelimit.NewRateLimiter(config.Capacity, config.RefillRate)

	if config.KeyFunc == nil {
		config.KeyFunc = DefaultKeyFunc
	}

	return func(c *gin.Context) {
		key := config.KeyFunc(c)

		if key == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication required for rate limiting",
			})
			c.Abort()
			return
		}

		if !limiter.Allow(key) {
			c.Header("X-RateLimit-Limit", strconv.FormatInt(config.Capacity, 10))
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Second).Unix(), 10))
			c.Header("Retry-After", "1")

			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":   "Rate limit exceeded",
				"message": fmt.Sprintf("Too many requests. Limit: %d requests per second", config.RefillRate),
			})
			c.Abort()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(config.Capacity, 10))

		c.Next()
	}
}

// PollRateLimit 폴링 엔드포인트용 (사용자당 초당 4회, 버스트 8)
func PollRateLimit() gin.HandlerFunc {
	return RateLimitMiddleware(RateLimitConfig{
		Capacity:   8,
		RefillRate: 4,
		KeyFunc:    UserKeyFunc,
	})
}

// QueueActionRateLimit 큐 시작/취소용 (사용자당 분당 약 30회)
func QueueActionRateLimit() gin.HandlerFunc {
	return RateLimitMiddleware(RateLimitConfig{
		Capacity:   10,
		RefillRate: 1,
		KeyFunc:    UserKeyFunc,
	})
}
