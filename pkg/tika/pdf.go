package tika

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"legal-rag-go/pkg/log"
)

// maxLocalPDFBytes 本地抽取会把整个文件读入内存。
const maxLocalPDFBytes = 100 << 20

// PDFExtractor 在进程内逐页抽取 PDF 文本，不依赖 Tika 服务。
type PDFExtractor struct{}

var _ Extractor = PDFExtractor{}

func (PDFExtractor) ExtractPages(ctx context.Context, r io.Reader, fileName string) (*Extraction, error) {
	if !IsPDF(fileName) {
		return nil, fmt.Errorf("本地抽取只支持 PDF: %s", fileName)
	}
	content, err := io.ReadAll(io.LimitReader(r, maxLocalPDFBytes+1))
	if err != nil {
		return nil, fmt.Errorf("读取 PDF 失败: %w", err)
	}
	if len(content) > maxLocalPDFBytes {
		return nil, errors.New("PDF 文件过大，无法在本地抽取")
	}

	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("解析 PDF 失败: %w", err)
	}

	total := reader.NumPage()
	pages := make([]string, 0, total)
	fonts := make(map[string]*pdf.Font)
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(fonts)
		if err != nil {
			log.Warnf("[PDF] 第 %d 页文本抽取失败: %v", i, err)
			pages = append(pages, "")
			continue
		}
		pages = append(pages, strings.TrimSpace(text))
	}
	return BuildExtraction(pages), nil
}

// IsPDF 按扩展名判断是否为 PDF。
func IsPDF(fileName string) bool {
	return strings.EqualFold(filepath.Ext(fileName), ".pdf")
}

// FallbackExtractor 优先使用 primary，失败且文件是 PDF 时改用本地抽取。
type FallbackExtractor struct {
	Primary  Extractor
	Fallback Extractor
}

var _ Extractor = FallbackExtractor{}

func (f FallbackExtractor) ExtractPages(ctx context.Context, r io.Reader, fileName string) (*Extraction, error) {
	if !IsPDF(fileName) || f.Fallback == nil {
		return f.Primary.ExtractPages(ctx, r, fileName)
	}
	// 主抽取器会消费 reader，兜底需要重读
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("读取文件失败: %w", err)
	}
	out, err := f.Primary.ExtractPages(ctx, bytes.NewReader(content), fileName)
	if err == nil {
		return out, nil
	}
	log.Warnf("[Extractor] Tika 抽取失败，改用本地 PDF 抽取: %v", err)
	return f.Fallback.ExtractPages(ctx, bytes.NewReader(content), fileName)
}
