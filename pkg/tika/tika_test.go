package tika

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legal-rag-go/internal/chunker"
	"legal-rag-go/internal/config"
)

const pagedXHTML = `<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml"><head><title>lease</title></head>
<body>
<div class="page"><p>LEASE AGREEMENT</p><p>This lease is made on 1 April.</p></div>
<div class="page"><p>Either party may terminate with notice.</p></div>
</body></html>`

func TestExtractPagesSplitsTikaPages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/tika", r.URL.Path)
		assert.Equal(t, "text/html", r.Header.Get("Accept"))
		assert.Equal(t, "application/pdf", r.Header.Get("Content-Type"))
		_, _ = w.Write([]byte(pagedXHTML))
	}))
	defer srv.Close()

	c := NewClient(config.TikaConfig{ServerURL: srv.URL})
	out, err := c.ExtractPages(context.Background(), strings.NewReader("%PDF"), "lease.pdf")
	require.NoError(t, err)

	page1 := "LEASE AGREEMENT\nThis lease is made on 1 April."
	page2 := "Either party may terminate with notice."
	assert.Equal(t, page1+"\n\n"+page2, out.Text)
	require.Len(t, out.Pages, 2)
	assert.Equal(t, chunker.Page{PageNum: 1, CharCount: len(page1) + 2}, out.Pages[0])
	assert.Equal(t, chunker.Page{PageNum: 2, CharCount: len(page2)}, out.Pages[1])

	total := 0
	for _, p := range out.Pages {
		total += p.CharCount
	}
	assert.Equal(t, len(out.Text), total)
}

func TestExtractPagesWithoutPagesIsOnePage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><p>First para.</p><p>Second para.</p></body></html>`))
	}))
	defer srv.Close()

	out, err := NewClient(config.TikaConfig{ServerURL: srv.URL}).ExtractPages(context.Background(), strings.NewReader("x"), "notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "First para.\nSecond para.", out.Text)
	assert.Len(t, out.Pages, 1)
}

func TestExtractPagesErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unsupported", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	_, err := NewClient(config.TikaConfig{ServerURL: srv.URL}).ExtractPages(context.Background(), strings.NewReader("x"), "a.bin")
	assert.Error(t, err)
}

type stubExtractor struct {
	out  *Extraction
	err  error
	seen string
}

func (s *stubExtractor) ExtractPages(_ context.Context, r io.Reader, _ string) (*Extraction, error) {
	b, _ := io.ReadAll(r)
	s.seen = string(b)
	return s.out, s.err
}

func TestFallbackExtractor(t *testing.T) {
	primary := &stubExtractor{err: errors.New("tika down")}
	fallback := &stubExtractor{out: BuildExtraction([]string{"local"})}
	f := FallbackExtractor{Primary: primary, Fallback: fallback}

	out, err := f.ExtractPages(context.Background(), strings.NewReader("%PDF-1.4"), "a.PDF")
	require.NoError(t, err)
	assert.Equal(t, "local", out.Text)
	assert.Equal(t, "%PDF-1.4", primary.seen)
	assert.Equal(t, "%PDF-1.4", fallback.seen)

	fallback.seen = ""
	_, err = f.ExtractPages(context.Background(), strings.NewReader("doc"), "a.docx")
	assert.Error(t, err)
	assert.Empty(t, fallback.seen)
}

func TestDetectMimeType(t *testing.T) {
	assert.Equal(t, "application/pdf", DetectMimeType("x.pdf"))
	assert.Equal(t, "application/octet-stream", DetectMimeType("noext"))
}
