// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"legal-rag-go/internal/service"
	"legal-rag-go/pkg/llm"
	"legal-rag-go/pkg/log"
)

// 所有接口都返回 {"code", "message", "data"}。
func success(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": message, "data": data})
}

func fail(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"code": status, "message": message, "data": nil})
}

// respondError 把业务错误映射为 HTTP 状态码。生成失败只返回通用提示，细节写日志。
func respondError(c *gin.Context, op string, err error) {
	var ve *service.ValidationError
	var nf *service.NotFoundError
	var ge *llm.GenerationError
	switch {
	case errors.As(err, &ve):
		fail(c, http.StatusBadRequest, ve.Error())
	case errors.As(err, &nf):
		fail(c, http.StatusNotFound, nf.Error())
	case errors.As(err, &ge):
		status := http.StatusBadGateway
		if ge.Retryable {
			status = http.StatusServiceUnavailable
		}
		fail(c, status, ge.UserMessage())
	default:
		log.Error(op+": failed", err)
		fail(c, http.StatusInternalServerError, "服务器内部错误")
	}
}
