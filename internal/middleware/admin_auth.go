package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"legal-rag-go/pkg/token"
)

// RequireRole 只放行角色在 roles 中的请求，必须挂在 AuthMiddleware 之后。
func RequireRole(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		if _, exists := c.Get(ContextClaims); !exists {
			abort(c, http.StatusUnauthorized, "无法获取用户信息")
			return
		}
		if _, ok := allowed[c.GetString(ContextRole)]; !ok {
			abort(c, http.StatusForbidden, "权限不足")
			return
		}
		c.Next()
	}
}

// AdminAuthMiddleware 知识库维护和全局统计只对管理员开放。
func AdminAuthMiddleware() gin.HandlerFunc {
	return RequireRole(token.RoleAdmin)
}
