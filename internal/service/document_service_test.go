package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legal-rag-go/internal/chunker"
	"legal-rag-go/internal/model"
	"legal-rag-go/internal/vectorindex"
	"legal-rag-go/pkg/storage"
)

type documentFixture struct {
	repo   *fakeDocRepo
	store  *storage.MemoryStore
	queue  *fakeQueue
	docs   *vectorindex.MemoryCollection
	ingest IngestService
	svc    DocumentService
}

func newDocumentFixture(extractor stubExtractor) *documentFixture {
	f := &documentFixture{
		repo:  newFakeDocRepo(),
		store: storage.NewMemoryStore(),
		queue: &fakeQueue{},
		docs:  vectorindex.NewMemoryCollection("user_documents"),
	}
	f.ingest = NewIngestService(chunker.New(500, 50), hashingEmbedder(), vectorindex.NewMemoryCollection("legal_knowledge"), f.docs, "memory")
	f.svc = NewDocumentService(f.repo, f.ingest, f.store, f.queue, extractor)
	return f
}

func TestRegisterStoresPayloadAndEnqueues(t *testing.T) {
	ctx := context.Background()
	f := newDocumentFixture(stubExtractor{})
	pages := []chunker.Page{{PageNum: 1, CharCount: 10}, {PageNum: 2, CharCount: 5}}

	doc, err := f.svc.Register(ctx, DocumentInput{UserID: "alice", Name: " lease.pdf ", Text: "0123456789abcde", Pages: pages})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, doc.Status)
	assert.Equal(t, "lease.pdf", doc.OriginalName)
	assert.Equal(t, 2, doc.PageCount)
	assert.Equal(t, 15, doc.CharCount)

	require.Len(t, f.queue.tasks, 1)
	task := f.queue.tasks[0]
	assert.Equal(t, doc.ID, task.DocumentID)
	assert.Equal(t, storage.ExtractedKey("alice", doc.ID), task.ObjectKey)

	payload, err := f.store.GetExtracted(ctx, task.ObjectKey)
	require.NoError(t, err)
	assert.Equal(t, "0123456789abcde", payload.Text)
	assert.Equal(t, pages, payload.Pages)
}

func TestRegisterWithoutPagesTreatsTextAsOnePage(t *testing.T) {
	ctx := context.Background()
	f := newDocumentFixture(stubExtractor{})

	doc, err := f.svc.Register(ctx, DocumentInput{UserID: "alice", Name: "note.txt", Text: "नमस्ते"})
	require.NoError(t, err)
	payload, err := f.store.GetExtracted(ctx, storage.ExtractedKey("alice", doc.ID))
	require.NoError(t, err)
	assert.Equal(t, []chunker.Page{{PageNum: 1, CharCount: 6}}, payload.Pages)
}

func TestRegisterValidation(t *testing.T) {
	f := newDocumentFixture(stubExtractor{})
	tests := []struct {
		name string
		in   DocumentInput
	}{
		{"missing user", DocumentInput{Name: "a.pdf", Text: "x"}},
		{"missing name", DocumentInput{UserID: "alice", Text: "x"}},
		{"empty text", DocumentInput{UserID: "alice", Name: "a.pdf", Text: "  "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Register(context.Background(), tt.in)
			var ve *ValidationError
			assert.ErrorAs(t, err, &ve)
		})
	}
	assert.Empty(t, f.queue.tasks)
}

func TestRegisterMarksFailedWhenEnqueueFails(t *testing.T) {
	f := newDocumentFixture(stubExtractor{})
	f.queue.err = errBoom

	_, err := f.svc.Register(context.Background(), DocumentInput{UserID: "alice", Name: "a.pdf", Text: "some text"})
	require.ErrorIs(t, err, errBoom)

	docs, err := f.repo.FindByUserID(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, model.StatusFailed, docs[0].Status)
	assert.NotEmpty(t, docs[0].ErrorMessage)
}

func TestUploadExtractsThenRegisters(t *testing.T) {
	f := newDocumentFixture(stubExtractor{text: "Page one.\n\nPage two.", pages: []chunker.Page{{PageNum: 1, CharCount: 11}, {PageNum: 2, CharCount: 9}}})

	doc, err := f.svc.Upload(context.Background(), "alice", "contract.pdf", strings.NewReader("%PDF"))
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", doc.ContentType)
	assert.Equal(t, 2, doc.PageCount)
	assert.Len(t, f.queue.tasks, 1)

	empty := newDocumentFixture(stubExtractor{text: "  "})
	_, err = empty.svc.Upload(context.Background(), "alice", "scan.pdf", strings.NewReader("%PDF"))
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestGetHidesOtherUsersDocuments(t *testing.T) {
	f := newDocumentFixture(stubExtractor{})
	doc, err := f.svc.Register(context.Background(), DocumentInput{UserID: "alice", Name: "a.pdf", Text: "text"})
	require.NoError(t, err)

	_, err = f.svc.Get(context.Background(), "bob", doc.ID)
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)

	got, err := f.svc.Get(context.Background(), "alice", doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, got.ID)
}

func TestDeleteRemovesVectorsPayloadAndRecord(t *testing.T) {
	ctx := context.Background()
	f := newDocumentFixture(stubExtractor{})
	doc, err := f.svc.Register(ctx, DocumentInput{UserID: "alice", Name: "lease.pdf", Text: legalText("rent")})
	require.NoError(t, err)
	n, err := f.ingest.IngestDocument(ctx, DocumentScope{UserID: "alice", DocumentID: doc.ID, DocumentName: doc.OriginalName}, legalText("rent"), nil)
	require.NoError(t, err)

	removed, err := f.svc.Delete(ctx, "alice", doc.ID)
	require.NoError(t, err)
	assert.Equal(t, n, removed)

	count, err := f.docs.Count(ctx, vectorindex.Filter{})
	require.NoError(t, err)
	assert.Zero(t, count)
	_, err = f.store.GetExtracted(ctx, storage.ExtractedKey("alice", doc.ID))
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)
	assert.Nil(t, f.repo.get(doc.ID))

	_, err = f.svc.Delete(ctx, "alice", doc.ID)
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}
