package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"bioforge/internal/auth"
)

func abortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
}

// AuthMiddleware 校验访问令牌并将 userID、isPremium 注入上下文。
func AuthMiddleware(authService *auth.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := accessClaims(c, authService)
		if !ok {
			abortUnauthorized(c)
			return
		}

		c.Set("userID", claims.UserID)
		c.Set("isPremium", claims.IsPremium)
		c.Next()
	}
}

// OptionalAuthMiddleware 在携带有效令牌时注入用户信息，匿名请求照常放行。
// 用于营销页试用生成：有会话则持久化，无会话则只返回结果。
func OptionalAuthMiddleware(authService *auth.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims, ok := accessClaims(c, authService); ok {
			c.Set("userID", claims.UserID)
			c.Set("isPremium", claims.IsPremium)
		}
		c.Next()
	}
}

func accessClaims(c *gin.Context, authService *auth.AuthService) (*auth.TokenClaims, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return nil, false
	}

	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return nil, false
	}

	rawToken := strings.TrimSpace(parts[1])
	if rawToken == "" {
		return nil, false
	}

	claims, err := authService.ValidateToken(rawToken)
	if err != nil || claims.TokenType != "access" {
		return nil, false
	}
	return claims, true
}
