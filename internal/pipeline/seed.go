package pipeline

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"legal-rag-go/internal/service"
	"legal-rag-go/pkg/log"
	"legal-rag-go/pkg/tika"
)

// SeedCreator 是导入种子知识时所需的知识库操作。
type SeedCreator interface {
	Create(ctx context.Context, in service.KnowledgeCreate) error
	Exists(ctx context.Context, title string) (bool, error)
}

type knowledgeSeedCreator struct {
	svc service.KnowledgeService
}

// NewSeedCreator 把 KnowledgeService 适配为 SeedCreator，按标题判断是否已导入。
func NewSeedCreator(svc service.KnowledgeService) SeedCreator {
	return &knowledgeSeedCreator{svc: svc}
}

func (k *knowledgeSeedCreator) Create(ctx context.Context, in service.KnowledgeCreate) error {
	_, err := k.svc.Create(ctx, in)
	return err
}

func (k *knowledgeSeedCreator) Exists(ctx context.Context, title string) (bool, error) {
	entries, err := k.svc.List(ctx, "")
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if strings.EqualFold(e.Title, title) {
			return true, nil
		}
	}
	return false, nil
}

// SeedKnowledge 扫描目录下的文件并导入知识库（幂等）。
// 一级子目录名作为分类，文件名（去掉扩展名）作为标题；同名条目已存在则跳过。
// 单个文件失败只记录日志，返回成功导入的条目数。
func SeedKnowledge(ctx context.Context, dir string, extractor tika.Extractor, creator SeedCreator) int {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		log.Infof("SeedKnowledge: 目录 '%s' 不存在或不可用，跳过初始化导入", dir)
		return 0
	}

	imported := 0
	walkErr := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if info.IsDir() || strings.HasPrefix(info.Name(), ".") {
			return nil
		}

		fileName := info.Name()
		title := strings.TrimSuffix(fileName, filepath.Ext(fileName))
		if exists, err := creator.Exists(ctx, title); err != nil {
			log.Warnf("SeedKnowledge: 查询知识库失败: %s, err=%v", title, err)
			return nil
		} else if exists {
			log.Infof("SeedKnowledge: 已存在，跳过: %s", title)
			return nil
		}

		text, err := readSeedText(ctx, path, fileName, extractor)
		if err != nil {
			log.Warnf("SeedKnowledge: 读取文件失败: %s, err=%v", path, err)
			return nil
		}
		if strings.TrimSpace(text) == "" {
			log.Infof("SeedKnowledge: 空文件跳过: %s", path)
			return nil
		}

		in := service.KnowledgeCreate{
			Title:     title,
			Source:    fileName,
			Category:  seedCategory(dir, path),
			Text:      text,
			CreatedBy: "seed",
		}
		if err := creator.Create(ctx, in); err != nil {
			log.Warnf("SeedKnowledge: 导入失败: %s, err=%v", path, err)
			return nil
		}
		imported++
		log.Infof("SeedKnowledge: 导入完成: %s", title)
		return nil
	})
	if walkErr != nil {
		log.Warnf("SeedKnowledge: 遍历目录发生错误: %v", walkErr)
	}
	return imported
}

// readSeedText 纯文本文件直接读取，其余格式交给抽取器。
func readSeedText(ctx context.Context, path, fileName string, extractor tika.Extractor) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".txt", ".md":
		b, err := io.ReadAll(f)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	if extractor == nil {
		return "", nil
	}
	ext, err := extractor.ExtractPages(ctx, f, fileName)
	if err != nil {
		return "", err
	}
	return ext.Text, nil
}

func seedCategory(root, path string) string {
	rel, err := filepath.Rel(root, filepath.Dir(path))
	if err != nil || rel == "." {
		return ""
	}
	return strings.Split(filepath.ToSlash(rel), "/")[0]
}
