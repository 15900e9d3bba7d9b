// Package chunker 把文档全文切分成按句子对齐、带重叠窗口的文本块，并为每个块标注页码。
package chunker

import (
	"strings"
	"unicode"
)

const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 50
)

// Chunk 是文档中一段连续的文本，作为向量化和检索的最小单位。
// 所有长度与偏移都以 rune 计。
type Chunk struct {
	Index   int    `json:"chunk_index"`
	Content string `json:"content"`
	// CharStart/CharEnd 是块在原文中的 [起, 止) 偏移，包含重叠部分。
	CharStart int `json:"char_start"`
	CharEnd   int `json:"char_end"`
	CharCount int `json:"char_count"`
	// OverlapCount 是 Content 开头与上一块重复的长度（含连接空格）。
	OverlapCount int `json:"overlap_count"`
	StartPage    int `json:"start_page"`
	EndPage      int `json:"end_page"`
}

// Page 描述抽取结果中的一页。
type Page struct {
	PageNum   int `json:"page_num"`
	CharCount int `json:"char_count"`
}

// Chunker 按目标长度贪心累积句子。
type Chunker struct {
	size    int
	overlap int
}

// New 创建 Chunker；非法参数回落到默认值。
func New(size, overlap int) *Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 10
	}
	return &Chunker{size: size, overlap: overlap}
}

type sentence struct {
	text  string
	start int
	n     int
}

func joinedLen(ss []sentence) int {
	if len(ss) == 0 {
		return 0
	}
	total := len(ss) - 1
	for _, s := range ss {
		total += s.n
	}
	return total
}

// Split 切分文本。空白输入返回 nil；超长的单句整体成块，不会被截断。
func (c *Chunker) Split(text string) []Chunk {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var (
		chunks     []Chunk
		current    []sentence
		currentLen int
		overlapLen int
	)
	for _, s := range sentences {
		added := s.n
		if len(current) > 0 {
			added++
		}
		if len(current) > 0 && currentLen+added > c.size {
			chunks = append(chunks, buildChunk(len(chunks), current, currentLen, overlapLen))

			current = c.overlapTail(current)
			for len(current) > 0 && joinedLen(current)+1+s.n > c.size {
				current = current[1:]
			}
			currentLen = joinedLen(current)
			overlapLen = 0
			added = s.n
			if len(current) > 0 {
				overlapLen = currentLen + 1
				added++
			}
		}
		current = append(current, s)
		currentLen += added
	}
	chunks = append(chunks, buildChunk(len(chunks), current, currentLen, overlapLen))
	return chunks
}

// overlapTail 返回末尾若干句，其拼接长度不超过 overlap。
func (c *Chunker) overlapTail(ss []sentence) []sentence {
	start, total := len(ss), 0
	for i := len(ss) - 1; i >= 0; i-- {
		l := ss[i].n
		if total > 0 {
			l++
		}
		if total+l > c.overlap {
			break
		}
		total += l
		start = i
	}
	tail := make([]sentence, len(ss)-start)
	copy(tail, ss[start:])
	return tail
}

func buildChunk(index int, ss []sentence, length, overlapLen int) Chunk {
	parts := make([]string, len(ss))
	for i, s := range ss {
		parts[i] = s.text
	}
	last := ss[len(ss)-1]
	return Chunk{
		Index:        index,
		Content:      strings.Join(parts, " "),
		CharStart:    ss[0].start,
		CharEnd:      last.start + last.n,
		CharCount:    length,
		OverlapCount: overlapLen,
	}
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// splitSentences 先按换行切段落，再在 . ! ? 后跟空白处断句，并记录每句在原文中的 rune 偏移。
func splitSentences(text string) []sentence {
	runes := []rune(text)
	var out []sentence
	start := -1
	flush := func(end int) {
		if start < 0 {
			return
		}
		s := strings.TrimRightFunc(string(runes[start:end]), unicode.IsSpace)
		if s != "" {
			out = append(out, sentence{text: s, start: start, n: len([]rune(s))})
		}
		start = -1
	}
	for i, r := range runes {
		if r == '\n' {
			flush(i)
			continue
		}
		if start < 0 {
			if unicode.IsSpace(r) {
				continue
			}
			start = i
		}
		if isTerminal(r) && i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
			flush(i + 1)
		}
	}
	flush(len(runes))
	return out
}

// AssignPages 根据每页字符数计算累计偏移，为块标注起止页码。
// 页数不超过 1 时所有块都在第 1 页；超出末页的位置归到最后一页。
func AssignPages(chunks []Chunk, pages []Page) []Chunk {
	out := make([]Chunk, len(chunks))
	copy(out, chunks)
	if len(pages) <= 1 {
		for i := range out {
			out[i].StartPage = 1
			out[i].EndPage = 1
		}
		return out
	}

	ends := make([]int, len(pages))
	pos := 0
	for i, p := range pages {
		pos += p.CharCount
		ends[i] = pos
	}
	pageAt := func(offset int) int {
		for i, end := range ends {
			if offset < end {
				return pages[i].PageNum
			}
		}
		return pages[len(pages)-1].PageNum
	}

	for i := range out {
		last := out[i].CharEnd - 1
		if last < out[i].CharStart {
			last = out[i].CharStart
		}
		out[i].StartPage = pageAt(out[i].CharStart)
		out[i].EndPage = pageAt(last)
	}
	return out
}

// PageCount 返回页码映射中的页数，至少为 1。
func PageCount(pages []Page) int {
	if len(pages) == 0 {
		return 1
	}
	return len(pages)
}
