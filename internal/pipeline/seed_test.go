package pipeline

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legal-rag-go/internal/service"
	"legal-rag-go/pkg/tika"
)

type recordingCreator struct {
	existing map[string]bool
	created  []service.KnowledgeCreate
	failOn   string
}

func (r *recordingCreator) Create(_ context.Context, in service.KnowledgeCreate) error {
	if in.Title == r.failOn {
		return errors.New("boom")
	}
	r.created = append(r.created, in)
	return nil
}

func (r *recordingCreator) Exists(_ context.Context, title string) (bool, error) {
	return r.existing[title], nil
}

type textExtractor struct{ text string }

func (e textExtractor) ExtractPages(_ context.Context, r io.Reader, _ string) (*tika.Extraction, error) {
	_, _ = io.Copy(io.Discard, r)
	return &tika.Extraction{Text: e.text}, nil
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestSeedKnowledgeImportsNewFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "criminal", "IPC Section 420.txt"), "Cheating and dishonestly inducing delivery of property.")
	writeFile(t, filepath.Join(dir, "Constitution Article 21.md"), "Protection of life and personal liberty.")
	writeFile(t, filepath.Join(dir, "contracts", "Indian Contract Act.pdf"), "%PDF-binary")
	writeFile(t, filepath.Join(dir, "empty.txt"), "   ")
	writeFile(t, filepath.Join(dir, ".hidden"), "ignored")

	creator := &recordingCreator{existing: map[string]bool{}}
	n := SeedKnowledge(context.Background(), dir, textExtractor{text: "Section 10 defines valid contracts."}, creator)

	assert.Equal(t, 3, n)
	byTitle := map[string]service.KnowledgeCreate{}
	for _, c := range creator.created {
		byTitle[c.Title] = c
	}
	assert.Equal(t, "criminal", byTitle["IPC Section 420"].Category)
	assert.Equal(t, "", byTitle["Constitution Article 21"].Category)
	assert.Equal(t, "Section 10 defines valid contracts.", byTitle["Indian Contract Act"].Text)
	assert.Equal(t, "IPC Section 420.txt", byTitle["IPC Section 420"].Source)
	assert.Equal(t, "seed", byTitle["IPC Section 420"].CreatedBy)
}

func TestSeedKnowledgeSkipsExistingAndFailures(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "Already imported.")
	writeFile(t, filepath.Join(dir, "b.txt"), "Fails to import.")
	writeFile(t, filepath.Join(dir, "c.txt"), "Imported now.")

	creator := &recordingCreator{existing: map[string]bool{"a": true}, failOn: "b"}
	n := SeedKnowledge(context.Background(), dir, nil, creator)

	assert.Equal(t, 1, n)
	require.Len(t, creator.created, 1)
	assert.Equal(t, "c", creator.created[0].Title)
}

func TestSeedKnowledgeMissingDirectory(t *testing.T) {
	creator := &recordingCreator{}
	assert.Equal(t, 0, SeedKnowledge(context.Background(), filepath.Join(t.TempDir(), "missing"), nil, creator))
}
