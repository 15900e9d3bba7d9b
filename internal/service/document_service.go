package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"legal-rag-go/internal/chunker"
	"legal-rag-go/internal/model"
	"legal-rag-go/internal/repository"
	"legal-rag-go/pkg/log"
	"legal-rag-go/pkg/storage"
	"legal-rag-go/pkg/tasks"
	"legal-rag-go/pkg/tika"
)

// IngestQueue 投递入库任务。生产环境是 Kafka，本地开发可以直接在进程内执行。
type IngestQueue interface {
	Enqueue(ctx context.Context, task tasks.IngestTask) error
}

// DocumentInput 是已完成文本抽取的文档。Pages 为空时整篇视为一页。
type DocumentInput struct {
	UserID      string
	Name        string
	ContentType string
	Text        string
	Pages       []chunker.Page
}

// DocumentService 接口定义了用户文档管理相关的业务操作。
type DocumentService interface {
	Register(ctx context.Context, in DocumentInput) (*model.Document, error)
	Upload(ctx context.Context, userID, fileName string, r io.Reader) (*model.Document, error)
	Get(ctx context.Context, userID, documentID string) (*model.Document, error)
	List(ctx context.Context, userID string) ([]model.Document, error)
	Delete(ctx context.Context, userID, documentID string) (int, error)
}

type documentService struct {
	docRepo   repository.DocumentRepository
	ingest    IngestService
	store     storage.PayloadStore
	queue     IngestQueue
	extractor tika.Extractor
}

// NewDocumentService 创建一个新的 DocumentService 实例。extractor 为 nil 时不支持文件上传。
func NewDocumentService(docRepo repository.DocumentRepository, ingest IngestService, store storage.PayloadStore, queue IngestQueue, extractor tika.Extractor) DocumentService {
	return &documentService{
		docRepo:   docRepo,
		ingest:    ingest,
		store:     store,
		queue:     queue,
		extractor: extractor,
	}
}

// Register 创建 pending 状态的文档记录，保存抽取结果并投递入库任务。
func (s *documentService) Register(ctx context.Context, in DocumentInput) (*model.Document, error) {
	if strings.TrimSpace(in.UserID) == "" {
		return nil, invalid("user_id", "user_id must not be empty")
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalid("name", "document name must not be empty")
	}
	if strings.TrimSpace(in.Text) == "" {
		return nil, invalid("text", "document text is empty")
	}
	pages := in.Pages
	if len(pages) == 0 {
		pages = []chunker.Page{{PageNum: 1, CharCount: runeCount(in.Text)}}
	}

	doc := &model.Document{
		ID:           uuid.NewString(),
		UserID:       in.UserID,
		OriginalName: name,
		ContentType:  in.ContentType,
		Status:       model.StatusPending,
		PageCount:    chunker.PageCount(pages),
		CharCount:    runeCount(in.Text),
	}
	if err := s.docRepo.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document record: %w", err)
	}

	key := storage.ExtractedKey(doc.UserID, doc.ID)
	if err := s.store.PutExtracted(ctx, key, &storage.ExtractedText{Text: in.Text, Pages: pages}); err != nil {
		s.markFailed(ctx, doc, "failed to store extracted text")
		return nil, fmt.Errorf("store extracted text: %w", err)
	}

	task := tasks.IngestTask{
		DocumentID:   doc.ID,
		UserID:       doc.UserID,
		DocumentName: doc.OriginalName,
		ObjectKey:    key,
		EnqueuedAt:   time.Now(),
	}
	if err := s.queue.Enqueue(ctx, task); err != nil {
		s.markFailed(ctx, doc, "failed to enqueue processing task")
		return nil, fmt.Errorf("enqueue ingest task: %w", err)
	}
	log.Infof("[Document] 文档 %s (%s) 已登记, 用户 %s, %d 页, %d 字符", doc.ID, doc.OriginalName, doc.UserID, doc.PageCount, doc.CharCount)
	return doc, nil
}

// Upload 通过 Tika 抽取文件文本后走与 Register 相同的异步入库流程。
func (s *documentService) Upload(ctx context.Context, userID, fileName string, r io.Reader) (*model.Document, error) {
	if s.extractor == nil {
		return nil, errors.New("text extraction is not configured")
	}
	if strings.TrimSpace(fileName) == "" {
		return nil, invalid("file", "file name must not be empty")
	}
	out, err := s.extractor.ExtractPages(ctx, r, fileName)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", fileName, err)
	}
	if strings.TrimSpace(out.Text) == "" {
		return nil, invalid("file", "no text could be extracted from the file")
	}
	return s.Register(ctx, DocumentInput{
		UserID:      userID,
		Name:        fileName,
		ContentType: tika.DetectMimeType(fileName),
		Text:        out.Text,
		Pages:       out.Pages,
	})
}

// Get 返回文档记录，不属于当前用户的文档按不存在处理。
func (s *documentService) Get(ctx context.Context, userID, documentID string) (*model.Document, error) {
	doc, err := s.docRepo.FindByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("document", documentID)
		}
		return nil, fmt.Errorf("load document %s: %w", documentID, err)
	}
	if doc.UserID != userID {
		return nil, notFound("document", documentID)
	}
	return doc, nil
}

func (s *documentService) List(ctx context.Context, userID string) ([]model.Document, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, invalid("user_id", "user_id must not be empty")
	}
	return s.docRepo.FindByUserID(ctx, userID)
}

// Delete 删除文档的全部向量、抽取结果和记录，返回删除的向量数。
func (s *documentService) Delete(ctx context.Context, userID, documentID string) (int, error) {
	doc, err := s.Get(ctx, userID, documentID)
	if err != nil {
		return 0, err
	}
	n, err := s.ingest.DeleteDocument(ctx, doc.UserID, doc.ID)
	if err != nil {
		return 0, err
	}
	if err := s.store.Remove(ctx, storage.ExtractedKey(doc.UserID, doc.ID)); err != nil {
		log.Warnf("[Document] 删除文档 %s 的抽取结果失败: %v", doc.ID, err)
	}
	if err := s.docRepo.Delete(ctx, doc.ID); err != nil {
		return n, fmt.Errorf("delete document record %s: %w", doc.ID, err)
	}
	log.Infof("[Document] 文档 %s 已删除, 向量 %d 个", doc.ID, n)
	return n, nil
}

func (s *documentService) markFailed(ctx context.Context, doc *model.Document, reason string) {
	doc.Status = model.StatusFailed
	doc.ErrorMessage = reason
	if err := s.docRepo.UpdateStatus(ctx, doc.ID, model.StatusFailed, reason); err != nil {
		log.Errorf("[Document] 更新文档 %s 状态失败: %v", doc.ID, err)
	}
}
