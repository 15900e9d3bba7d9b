package chunker

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func longText(n int) (string, []string) {
	sentences := make([]string, n)
	for i := range sentences {
		sentences[i] = fmt.Sprintf("Sentence number %d is here.", i)
	}
	return strings.Join(sentences, " "), sentences
}

func TestSplitEmptyInput(t *testing.T) {
	c := New(500, 50)
	assert.Empty(t, c.Split(""))
	assert.Empty(t, c.Split("   \n\t  \n"))
}

func TestSplitShortTextSingleChunk(t *testing.T) {
	chunks := New(500, 50).Split("Hello world. This is a test.")

	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, "Hello world. This is a test.", chunks[0].Content)
	assert.Equal(t, 0, chunks[0].CharStart)
	assert.Equal(t, 28, chunks[0].CharCount)
	assert.Equal(t, 0, chunks[0].OverlapCount)
}

func TestSplitOversizedSentenceKeptWhole(t *testing.T) {
	text := "This sentence is definitely longer than ten characters."
	chunks := New(10, 2).Split(text)

	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0].Content)
}

func TestSplitParagraphBoundaries(t *testing.T) {
	chunks := New(500, 50).Split("Line one\nLine two.")

	require.Len(t, chunks, 1)
	assert.Equal(t, "Line one Line two.", chunks[0].Content)
}

func TestSplitSizeBoundAndOverlap(t *testing.T) {
	text, _ := longText(50)
	chunks := New(100, 30).Split(text)

	require.Greater(t, len(chunks), 1)
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.LessOrEqual(t, c.CharCount, 100, "chunk %d", i)
		assert.Equal(t, utf8.RuneCountInString(c.Content), c.CharCount, "chunk %d", i)
		if i > 0 {
			assert.Greater(t, c.OverlapCount, 0, "chunk %d should carry overlap", i)
			assert.Less(t, c.OverlapCount, c.CharCount)
		}
	}
}

func TestSplitCoverageReconstructsSentences(t *testing.T) {
	text, sentences := longText(40)
	chunks := New(120, 40).Split(text)

	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		parts = append(parts, string([]rune(c.Content)[c.OverlapCount:]))
	}
	assert.Equal(t, strings.Join(sentences, " "), strings.Join(parts, " "))
}

func TestSplitDeterministic(t *testing.T) {
	text, _ := longText(30)
	c := New(90, 20)
	assert.Equal(t, c.Split(text), c.Split(text))
}

func TestSplitRecordsSourceOffsets(t *testing.T) {
	chunks := New(8, 0).Split("  First. Second!")

	require.Len(t, chunks, 2)
	assert.Equal(t, 2, chunks[0].CharStart)
	assert.Equal(t, 8, chunks[0].CharEnd)
	assert.Equal(t, 9, chunks[1].CharStart)
	assert.Equal(t, 16, chunks[1].CharEnd)
}

func TestSplitOffsetsCountRunes(t *testing.T) {
	chunks := New(6, 0).Split("Café. Next.")

	require.Len(t, chunks, 2)
	assert.Equal(t, 5, chunks[0].CharCount)
	assert.Equal(t, 6, chunks[1].CharStart)
}

func TestNewSanitizesParameters(t *testing.T) {
	c := New(0, -1)
	assert.Equal(t, DefaultChunkSize, c.size)
	assert.Equal(t, 0, c.overlap)

	c = New(100, 100)
	assert.Equal(t, 10, c.overlap)
}

func TestAssignPagesSinglePage(t *testing.T) {
	chunks := []Chunk{{CharStart: 0, CharEnd: 10}, {CharStart: 900, CharEnd: 1000}}

	for _, pages := range [][]Page{nil, {{PageNum: 1, CharCount: 5}}} {
		got := AssignPages(chunks, pages)
		for _, c := range got {
			assert.Equal(t, 1, c.StartPage)
			assert.Equal(t, 1, c.EndPage)
		}
	}
}

func TestAssignPagesMultiPage(t *testing.T) {
	pages := []Page{{PageNum: 1, CharCount: 10}, {PageNum: 2, CharCount: 10}, {PageNum: 3, CharCount: 10}}
	tests := []struct {
		name       string
		start, end int
		wantStart  int
		wantEnd    int
	}{
		{"within first page", 0, 5, 1, 1},
		{"ends exactly at page boundary", 0, 10, 1, 1},
		{"spans two pages", 8, 15, 1, 2},
		{"starts on boundary", 10, 20, 2, 2},
		{"runs past the last page", 25, 40, 3, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AssignPages([]Chunk{{CharStart: tt.start, CharEnd: tt.end}}, pages)
			assert.Equal(t, tt.wantStart, got[0].StartPage)
			assert.Equal(t, tt.wantEnd, got[0].EndPage)
		})
	}
}

func TestAssignPagesDoesNotMutateInput(t *testing.T) {
	chunks := []Chunk{{CharStart: 12, CharEnd: 14}}
	_ = AssignPages(chunks, []Page{{PageNum: 1, CharCount: 10}, {PageNum: 2, CharCount: 10}})
	assert.Zero(t, chunks[0].StartPage)
}
