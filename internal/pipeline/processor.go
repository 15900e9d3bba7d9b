// Package pipeline 定义了文档入库的核心流程。
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"gorm.io/gorm"

	"legal-rag-go/internal/chunker"
	"legal-rag-go/internal/model"
	"legal-rag-go/internal/repository"
	"legal-rag-go/internal/service"
	"legal-rag-go/pkg/log"
	"legal-rag-go/pkg/storage"
	"legal-rag-go/pkg/tasks"
)

// Processor 封装了文档入库的所有依赖和逻辑。
// 返回 nil 表示任务已终结（成功或不可重试的失败），返回错误表示需要重试。
type Processor struct {
	docRepo repository.DocumentRepository
	store   storage.PayloadStore
	ingest  service.IngestService
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(docRepo repository.DocumentRepository, store storage.PayloadStore, ingest service.IngestService) *Processor {
	return &Processor{docRepo: docRepo, store: store, ingest: ingest}
}

// Process 是入库任务的主函数。
func (p *Processor) Process(ctx context.Context, task tasks.IngestTask) error {
	log.Infof("[Processor] 开始处理文档, DocumentID: %s, Name: %s, UserID: %s", task.DocumentID, task.DocumentName, task.UserID)

	// 1. 确认文档记录仍然存在
	doc, err := p.docRepo.FindByID(ctx, task.DocumentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnf("[Processor] 文档 %s 已不存在, 丢弃任务", task.DocumentID)
			return nil
		}
		return fmt.Errorf("查询文档记录失败: %w", err)
	}
	if doc.UserID != task.UserID {
		log.Warnf("[Processor] 任务归属 %s 与文档归属 %s 不一致, 丢弃任务", task.UserID, doc.UserID)
		return nil
	}
	if err := p.docRepo.UpdateStatus(ctx, doc.ID, model.StatusProcessing, ""); err != nil {
		return fmt.Errorf("更新文档状态失败: %w", err)
	}

	// 2. 从对象存储读取抽取结果
	log.Infof("[Processor] 步骤1: 读取抽取结果, Object: %s", task.ObjectKey)
	payload, err := p.store.GetExtracted(ctx, task.ObjectKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			p.fail(ctx, doc.ID, "extracted text is missing, please upload the document again")
			return nil
		}
		return fmt.Errorf("读取抽取结果失败: %w", err)
	}
	log.Infof("[Processor] 步骤1: 读取成功, 内容长度: %d 字符, %d 页", utf8.RuneCountInString(payload.Text), chunker.PageCount(payload.Pages))

	// 3. 切块、向量化并写入向量索引
	log.Info("[Processor] 步骤2: 切块、向量化并写入向量索引")
	name := doc.OriginalName
	if name == "" {
		name = task.DocumentName
	}
	n, err := p.ingest.IngestDocument(ctx, service.DocumentScope{
		UserID:       doc.UserID,
		DocumentID:   doc.ID,
		DocumentName: name,
	}, payload.Text, payload.Pages)
	if err != nil {
		var ve *service.ValidationError
		if errors.As(err, &ve) {
			p.fail(ctx, doc.ID, ve.Message)
			return nil
		}
		p.fail(ctx, doc.ID, "indexing failed")
		return fmt.Errorf("文档入库失败: %w", err)
	}

	// 4. 标记完成
	if err := p.docRepo.MarkReady(ctx, doc.ID, n, chunker.PageCount(payload.Pages), utf8.RuneCountInString(payload.Text)); err != nil {
		return fmt.Errorf("更新文档状态失败: %w", err)
	}
	log.Infof("[Processor] 文档处理成功完成, DocumentID: %s, 块数: %d", doc.ID, n)
	return nil
}

func (p *Processor) fail(ctx context.Context, documentID, reason string) {
	log.Warnf("[Processor] 文档 %s 处理失败: %s", documentID, reason)
	if err := p.docRepo.UpdateStatus(ctx, documentID, model.StatusFailed, reason); err != nil {
		log.Errorf("[Processor] 更新文档 %s 状态失败: %v", documentID, err)
	}
}
