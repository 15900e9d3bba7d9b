// Package tika 提供了一个与 Apache Tika 服务器交互的客户端，以及本地 PDF 抽取的兜底实现。
package tika

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"legal-rag-go/internal/chunker"
	"legal-rag-go/internal/config"
)

// pageSeparator 连接各页文本。页的字符数包含其后的分隔符，使累计偏移与全文一致。
const pageSeparator = "\n\n"

// Extraction 是一次抽取的结果。
type Extraction struct {
	Text  string
	Pages []chunker.Page
}

// Extractor 从文件中抽取带页码信息的纯文本。
type Extractor interface {
	ExtractPages(ctx context.Context, r io.Reader, fileName string) (*Extraction, error)
}

// Client 是 Tika 服务器的客户端。
type Client struct {
	serverURL  string
	httpClient *http.Client
}

var _ Extractor = (*Client)(nil)

// NewClient 创建一个新的 Tika 客户端实例。
func NewClient(cfg config.TikaConfig) *Client {
	return &Client{serverURL: strings.TrimRight(cfg.ServerURL, "/"), httpClient: &http.Client{}}
}

// ExtractPages 请求 Tika 返回 XHTML，PDF 的每一页对应一个 <div class="page">。
// 没有分页信息的格式（DOCX、TXT 等）整体作为第 1 页。
func (c *Client) ExtractPages(ctx context.Context, r io.Reader, fileName string) (*Extraction, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.serverURL+"/tika", r)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Accept", "text/html")
	req.Header.Set("Content-Type", DetectMimeType(fileName))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("调用 Tika 失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("Tika 返回错误 [%d]: %s", resp.StatusCode, string(body))
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("解析 Tika XHTML 失败: %w", err)
	}

	var pages []string
	doc.Find("div.page").Each(func(_ int, s *goquery.Selection) {
		pages = append(pages, blockText(s))
	})
	if len(pages) == 0 {
		pages = []string{blockText(doc.Find("body"))}
	}
	return BuildExtraction(pages), nil
}

// blockText 以段落为单位取文本，段落之间保留换行以便后续按句切分。
func blockText(s *goquery.Selection) string {
	var paras []string
	s.Find("p, h1, h2, h3, h4, h5, h6, li").Each(func(_ int, p *goquery.Selection) {
		if t := strings.TrimSpace(p.Text()); t != "" {
			paras = append(paras, t)
		}
	})
	if len(paras) == 0 {
		return strings.TrimSpace(s.Text())
	}
	return strings.Join(paras, "\n")
}

// BuildExtraction 把逐页文本拼成全文并计算每页字符数。
func BuildExtraction(pageTexts []string) *Extraction {
	pages := make([]chunker.Page, len(pageTexts))
	sepLen := utf8.RuneCountInString(pageSeparator)
	for i, t := range pageTexts {
		n := utf8.RuneCountInString(t)
		if i < len(pageTexts)-1 {
			n += sepLen
		}
		pages[i] = chunker.Page{PageNum: i + 1, CharCount: n}
	}
	return &Extraction{Text: strings.Join(pageTexts, pageSeparator), Pages: pages}
}

// DetectMimeType 根据文件扩展名判断 Content-Type
func DetectMimeType(fileName string) string {
	ext := filepath.Ext(fileName)
	if ext == "" {
		return "application/octet-stream"
	}
	mimeType := mime.TypeByExtension(ext)
	if mimeType == "" {
		return "application/octet-stream"
	}
	return mimeType
}
