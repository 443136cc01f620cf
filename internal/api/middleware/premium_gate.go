package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const premiumRequiredMessage = "premium required"

// RequirePremiumMiddleware 阻止免费层级账号访问付费接口。
// 仅依赖 access token 内的 is_premium 声明，避免每次请求都查库。
func RequirePremiumMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		value, ok := c.Get("isPremium")
		if ok {
			if premium, ok := value.(bool); ok && premium {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": premiumRequiredMessage})
	}
}
