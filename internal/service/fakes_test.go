package service

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"legal-rag-go/internal/chunker"
	"legal-rag-go/internal/model"
	"legal-rag-go/internal/prompt"
	"legal-rag-go/internal/vectorindex"
	"legal-rag-go/pkg/embedding"
	"legal-rag-go/pkg/llm"
	"legal-rag-go/pkg/tasks"
	"legal-rag-go/pkg/tika"
)

func hashingEmbedder() *embedding.Embedder {
	return embedding.NewEmbedder(embedding.NewHashingClient(64), 64, 16)
}

// fixedEmbedder 对所有输入返回同一个向量，便于在测试里精确控制距离。
type fixedEmbedder struct {
	vec []float32
	err error
}

func (f *fixedEmbedder) EmbedOne(context.Context, string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

func (f *fixedEmbedder) EmbedMany(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, nil
}

func (f *fixedEmbedder) Model() string  { return "fixed" }
func (f *fixedEmbedder) Dimension() int { return len(f.vec) }

type fakeGenerator struct {
	mu       sync.Mutex
	calls    int
	messages [][]prompt.Message
	params   []llm.Params
	text     string
	err      error
}

func (g *fakeGenerator) Generate(_ context.Context, msgs []prompt.Message, params llm.Params) (*llm.Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.messages = append(g.messages, msgs)
	g.params = append(g.params, params)
	if g.err != nil {
		return nil, g.err
	}
	text := g.text
	if text == "" {
		text = "Generated answer."
	}
	return &llm.Result{Text: text, TokensUsed: 42, Model: "fake-model", ElapsedMs: 7}, nil
}

type fakeDocRepo struct {
	mu   sync.Mutex
	docs map[string]*model.Document
}

func newFakeDocRepo(docs ...*model.Document) *fakeDocRepo {
	r := &fakeDocRepo{docs: map[string]*model.Document{}}
	for _, d := range docs {
		r.docs[d.ID] = d
	}
	return r
}

func (r *fakeDocRepo) Create(_ context.Context, doc *model.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *doc
	r.docs[doc.ID] = &cp
	return nil
}

func (r *fakeDocRepo) FindByID(_ context.Context, id string) (*model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *fakeDocRepo) FindByUserID(_ context.Context, userID string) ([]model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []model.Document{}
	for _, d := range r.docs {
		if d.UserID == userID {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeDocRepo) UpdateStatus(_ context.Context, id string, status model.ProcessingStatus, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	d.Status = status
	d.ErrorMessage = errMsg
	return nil
}

func (r *fakeDocRepo) MarkReady(_ context.Context, id string, chunkCount, pageCount, charCount int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	d.Status = model.StatusReady
	d.ChunkCount, d.PageCount, d.CharCount = chunkCount, pageCount, charCount
	d.ErrorMessage = ""
	return nil
}

func (r *fakeDocRepo) FailStale(context.Context, time.Time, string) (int64, error) {
	return 0, nil
}

func (r *fakeDocRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.docs, id)
	return nil
}

func (r *fakeDocRepo) get(id string) *model.Document {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.docs[id]
}

type fakeKnowledgeRepo struct {
	entries map[string]*model.KnowledgeEntry
}

func newFakeKnowledgeRepo() *fakeKnowledgeRepo {
	return &fakeKnowledgeRepo{entries: map[string]*model.KnowledgeEntry{}}
}

func (r *fakeKnowledgeRepo) Create(_ context.Context, e *model.KnowledgeEntry) error {
	cp := *e
	r.entries[e.ID] = &cp
	return nil
}

func (r *fakeKnowledgeRepo) FindByID(_ context.Context, id string) (*model.KnowledgeEntry, error) {
	e, ok := r.entries[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *e
	return &cp, nil
}

func (r *fakeKnowledgeRepo) List(_ context.Context, category string) ([]model.KnowledgeEntry, error) {
	out := []model.KnowledgeEntry{}
	for _, e := range r.entries {
		if category == "" || e.Category == category {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (r *fakeKnowledgeRepo) Update(_ context.Context, e *model.KnowledgeEntry) error {
	cp := *e
	r.entries[e.ID] = &cp
	return nil
}

func (r *fakeKnowledgeRepo) Delete(_ context.Context, id string) error {
	delete(r.entries, id)
	return nil
}

type fakeConversationRepo struct {
	history map[string][]model.ConversationTurn
	getErr  error
}

func newFakeConversationRepo() *fakeConversationRepo {
	return &fakeConversationRepo{history: map[string][]model.ConversationTurn{}}
}

func (r *fakeConversationRepo) GetHistory(_ context.Context, userID, sessionID string) ([]model.ConversationTurn, error) {
	if r.getErr != nil {
		return nil, r.getErr
	}
	return r.history[userID+"/"+sessionID], nil
}

func (r *fakeConversationRepo) AppendMessages(_ context.Context, userID, sessionID string, msgs ...model.ConversationTurn) error {
	key := userID + "/" + sessionID
	r.history[key] = append(r.history[key], msgs...)
	return nil
}

func (r *fakeConversationRepo) DeleteHistory(_ context.Context, userID, sessionID string) error {
	delete(r.history, userID+"/"+sessionID)
	return nil
}

type fakeQueue struct {
	tasks []tasks.IngestTask
	err   error
}

func (q *fakeQueue) Enqueue(_ context.Context, t tasks.IngestTask) error {
	if q.err != nil {
		return q.err
	}
	q.tasks = append(q.tasks, t)
	return nil
}

type stubExtractor struct {
	text  string
	pages []chunker.Page
}

func (s stubExtractor) ExtractPages(context.Context, io.Reader, string) (*tika.Extraction, error) {
	return &tika.Extraction{Text: s.text, Pages: s.pages}, nil
}

// flakyCollection 在内存集合外包一层，可注入 Upsert / Query 故障。
type flakyCollection struct {
	*vectorindex.MemoryCollection
	upsertErr error
	queryErr  error
}

func (f *flakyCollection) Upsert(ctx context.Context, entries []vectorindex.Entry) error {
	if f.upsertErr != nil {
		// 模拟部分写入后失败
		if len(entries) > 0 {
			_ = f.MemoryCollection.Upsert(ctx, entries[:1])
		}
		return f.upsertErr
	}
	return f.MemoryCollection.Upsert(ctx, entries)
}

func (f *flakyCollection) Query(ctx context.Context, vec []float32, k int, filter vectorindex.Filter) ([]vectorindex.Result, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.MemoryCollection.Query(ctx, vec, k, filter)
}

var errBoom = errors.New("boom")

func readyDoc(id, user, name string) *model.Document {
	return &model.Document{ID: id, UserID: user, OriginalName: name, Status: model.StatusReady}
}

func legalText(topic string) string {
	return strings.Repeat("The "+topic+" clause binds both parties. ", 20)
}
