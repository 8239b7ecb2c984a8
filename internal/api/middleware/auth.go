package middleware

import (
	"net/http"
	"strings"

	"github.com/Gamechiefx/flashmath-backend/internal/config"
	jwtutil "github.com/Gamechiefx/flashmath-backend/pkg/jwt"
	"github.com/gin-gonic/gin"
)

// Auth JWT 인증 미들웨어. 검증된 userId를 context에 싣는다.
func Auth(cfg *config.Config) gin.HandlerFunc {
	jwtManager := jwtutil.NewManager(cfg.JWTSecret, cfg.JWTExpiration)

	return func(c *gin.Context) {
		// Authorization 헤더에서 토큰 추출
		authHeader := c.GetHeader("Authorization")

		// 웹소켓 업그레이드 요청은 헤더를 못 실으므로 쿼리로도 받는다
		if authHeader == "" {
			if token := c.Query("token"); token != "" {
				authHeader = "Bearer " + token
			}
		}

		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization header required",
			})
			c.Abort()
			return
		}

		// "Bearer <token>" 형식 파싱
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid authorization header format",
			})
			c.Abort()
			return
		}

		// 토큰 검증
		claims, err := jwtManager.Verify(parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired token",
			})
			c.Abort()
			return
		}

		// 검증 성공 - 사용자 정보를 context에 저장
		c.Set("userId", claims.UserID)
		c.Set("displayName", claims.DisplayName)

		c.Next()
	}
}
