package handler

import (
	"github.com/gin-gonic/gin"

	"legal-rag-go/internal/middleware"
	"legal-rag-go/internal/service"
)

// StatsHandler 返回向量索引统计信息。
type StatsHandler struct {
	ingestService service.IngestService
}

func NewStatsHandler(ingestService service.IngestService) *StatsHandler {
	return &StatsHandler{ingestService: ingestService}
}

// UserStats 统计信息附带当前用户的文档块数。
func (h *StatsHandler) UserStats(c *gin.Context) {
	stats, err := h.ingestService.Stats(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respondError(c, "UserStats", err)
		return
	}
	success(c, "success", stats)
}

func (h *StatsHandler) AdminStats(c *gin.Context) {
	stats, err := h.ingestService.Stats(c.Request.Context(), "")
	if err != nil {
		respondError(c, "AdminStats", err)
		return
	}
	success(c, "success", stats)
}
