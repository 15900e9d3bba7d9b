package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"legal-rag-go/internal/middleware"
	"legal-rag-go/internal/service"
)

// KnowledgeHandler 处理管理员维护法律知识库的请求。
type KnowledgeHandler struct {
	knowledgeService service.KnowledgeService
}

func NewKnowledgeHandler(knowledgeService service.KnowledgeService) *KnowledgeHandler {
	return &KnowledgeHandler{knowledgeService: knowledgeService}
}

type createKnowledgeRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	Source      string `json:"source"`
	Category    string `json:"category"`
	Text        string `json:"text" binding:"required"`
}

func (h *KnowledgeHandler) Create(c *gin.Context) {
	var req createKnowledgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "请求参数无效: title 和 text 不能为空")
		return
	}
	entry, err := h.knowledgeService.Create(c.Request.Context(), service.KnowledgeCreate{
		Title:       req.Title,
		Description: req.Description,
		Source:      req.Source,
		Category:    req.Category,
		Text:        req.Text,
		CreatedBy:   middleware.UserID(c),
	})
	if err != nil {
		respondError(c, "CreateKnowledge", err)
		return
	}
	success(c, "知识条目已入库", entry)
}

func (h *KnowledgeHandler) List(c *gin.Context) {
	entries, err := h.knowledgeService.List(c.Request.Context(), c.Query("category"))
	if err != nil {
		respondError(c, "ListKnowledge", err)
		return
	}
	success(c, "success", entries)
}

func (h *KnowledgeHandler) Delete(c *gin.Context) {
	n, err := h.knowledgeService.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "DeleteKnowledge", err)
		return
	}
	success(c, "知识条目已删除", gin.H{"kb_id": c.Param("id"), "chunks_deleted": n})
}
