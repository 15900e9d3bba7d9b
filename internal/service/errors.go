package service

import (
	"errors"
	"fmt"
)

// ValidationError 表示请求参数不合法或资源状态不允许该操作，不应重试。
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NotFoundError 表示引用的文档或知识条目不存在（或不属于当前用户）。
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

// ErrRetrievalDegraded 包装检索阶段的底层故障。检索器记录后按零结果继续。
var ErrRetrievalDegraded = errors.New("retrieval degraded")

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

func notFound(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}
