package middleware

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Tracing 为每个请求创建服务端 span。
func Tracing(serviceName string) gin.HandlerFunc {
	return otelgin.Middleware(serviceName)
}

// EnrichTrace 在认证之后把用户信息写入当前 span。
func EnrichTrace() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		if userID := UserID(c); userID != "" {
			span.SetAttributes(
				attribute.String("user.id", userID),
				attribute.String("user.role", c.GetString(ContextRole)),
			)
		}
		c.Next()
	}
}
