package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"legal-rag-go/internal/chunker"
	"legal-rag-go/internal/middleware"
	"legal-rag-go/internal/prompt"
	"legal-rag-go/internal/service"
	"legal-rag-go/pkg/log"
)

// maxUploadBytes 单个上传文件的大小上限。
const maxUploadBytes = 50 << 20

// DocumentHandler 负责处理所有与用户文档相关的 API 请求。
type DocumentHandler struct {
	docService service.DocumentService
	ragService service.RAGService
}

// NewDocumentHandler 创建一个新的 DocumentHandler 实例。
func NewDocumentHandler(docService service.DocumentService, ragService service.RAGService) *DocumentHandler {
	return &DocumentHandler{docService: docService, ragService: ragService}
}

type registerDocumentRequest struct {
	Name        string         `json:"name" binding:"required"`
	ContentType string         `json:"content_type"`
	Text        string         `json:"text" binding:"required"`
	Pages       []chunker.Page `json:"pages"`
}

// Register 登记一份已完成文本抽取的文档，入库异步进行。
func (h *DocumentHandler) Register(c *gin.Context) {
	var req registerDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "请求参数无效: name 和 text 不能为空")
		return
	}
	doc, err := h.docService.Register(c.Request.Context(), service.DocumentInput{
		UserID:      middleware.UserID(c),
		Name:        req.Name,
		ContentType: req.ContentType,
		Text:        req.Text,
		Pages:       req.Pages,
	})
	if err != nil {
		respondError(c, "RegisterDocument", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"code": http.StatusAccepted, "message": "文档已提交处理", "data": doc})
}

// Upload 接收 multipart 文件，抽取文本后异步入库。
func (h *DocumentHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		fail(c, http.StatusBadRequest, "缺少上传文件")
		return
	}
	if fileHeader.Size > maxUploadBytes {
		fail(c, http.StatusRequestEntityTooLarge, "文件过大")
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		log.Error("UploadDocument: open file", err)
		fail(c, http.StatusBadRequest, "无法读取上传文件")
		return
	}
	defer file.Close()

	doc, err := h.docService.Upload(c.Request.Context(), middleware.UserID(c), fileHeader.Filename, file)
	if err != nil {
		respondError(c, "UploadDocument", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"code": http.StatusAccepted, "message": "文档已提交处理", "data": doc})
}

func (h *DocumentHandler) List(c *gin.Context) {
	docs, err := h.docService.List(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respondError(c, "ListDocuments", err)
		return
	}
	success(c, "获取文档列表成功", docs)
}

func (h *DocumentHandler) Get(c *gin.Context) {
	doc, err := h.docService.Get(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		respondError(c, "GetDocument", err)
		return
	}
	success(c, "success", doc)
}

// Delete 删除文档及其全部向量。
func (h *DocumentHandler) Delete(c *gin.Context) {
	n, err := h.docService.Delete(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		respondError(c, "DeleteDocument", err)
		return
	}
	success(c, "文档删除成功", gin.H{"document_id": c.Param("id"), "chunks_deleted": n})
}

type documentQueryRequest struct {
	Query string `json:"query" binding:"required"`
}

// Query 只在指定文档内检索并回答。
func (h *DocumentHandler) Query(c *gin.Context) {
	var req documentQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "请求参数无效: query 不能为空")
		return
	}
	answer, err := h.ragService.AnswerForDocument(c.Request.Context(), req.Query, c.Param("id"), middleware.UserID(c))
	if err != nil {
		respondError(c, "QueryDocument", err)
		return
	}
	success(c, "success", answer)
}

type analyzeRequest struct {
	AnalysisType string `json:"analysis_type"`
	CustomQuery  string `json:"custom_query"`
}

// Analyze 对文档做摘要、风险、关键条款或自定义分析，默认为摘要。
func (h *DocumentHandler) Analyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		fail(c, http.StatusBadRequest, "请求参数无效")
		return
	}
	kind := prompt.AnalysisKind(req.AnalysisType)
	if kind == "" {
		kind = prompt.AnalysisSummary
	}
	out, err := h.ragService.AnalyzeDocument(c.Request.Context(), c.Param("id"), middleware.UserID(c), kind, req.CustomQuery)
	if err != nil {
		respondError(c, "AnalyzeDocument", err)
		return
	}
	success(c, "success", out)
}
