// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"legal-rag-go/pkg/token"
)

// 上下文中保存身份信息的键。
const (
	ContextClaims = "claims"
	ContextUserID = "userID"
	ContextRole   = "role"
)

// AuthMiddleware 创建一个 Gin 中间件，用于 JWT 认证。
// 用户账号由外部认证服务管理，这里只校验 token 并把 userId 与角色放入上下文。
func AuthMiddleware(jwtManager *token.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abort(c, http.StatusUnauthorized, "请求未包含授权头")
			return
		}

		const bearerPrefix = "Bearer "
		if !strings.HasPrefix(authHeader, bearerPrefix) {
			abort(c, http.StatusUnauthorized, "无效的授权头格式")
			return
		}
		tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, bearerPrefix))

		claims, err := jwtManager.VerifyToken(tokenString)
		if err != nil {
			abort(c, http.StatusUnauthorized, "无效或已过期的 token")
			return
		}

		c.Set(ContextClaims, claims)
		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextRole, claims.Role)
		c.Next()
	}
}

// UserID 返回 AuthMiddleware 写入的用户标识。
func UserID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}

func abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"code": status, "message": message, "data": nil})
}
