package chunking

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/svjt78/ragmesh/ai"
	"github.com/svjt78/ragmesh/core"
)

// ErrTokenizerRequired is returned when NewChunker gets a nil tokenizer.
var ErrTokenizerRequired = errors.New("tokenizer is required")

// Chunker turns document pages into chunks sized in tokens.
type Chunker struct {
	tokenizer ai.Tokenizer
	logger    *slog.Logger
}

// Option configures a Chunker.
type Option func(*Chunker) error

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Chunker) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}

// NewChunker creates a chunker counting tokens with tokenizer.
func NewChunker(tokenizer ai.Tokenizer, opts ...Option) (*Chunker, error) {
	if tokenizer == nil {
		return nil, ErrTokenizerRequired
	}
	c := &Chunker{tokenizer: tokenizer, logger: slog.Default()}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	c.logger = c.logger.With("component", "chunker")
	return c, nil
}

type section struct {
	pageNo   int
	text     string
	metadata map[string]string
}

// Chunk splits the pages of doc according to profile. Chunk ids are
// deterministic so re-ingesting a document replaces its chunks. CharStart
// and CharEnd are rune offsets into the whitespace-normalized page text.
func (c *Chunker) Chunk(doc *core.Document, profile core.ChunkingProfile) ([]*core.Chunk, error) {
	if err := core.ValidateChunkingProfile(profile); err != nil {
		return nil, err
	}

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(profile.ChunkSize),
		textsplitter.WithChunkOverlap(profile.ChunkOverlap),
		textsplitter.WithSeparators(separators(profile.SentenceAware)),
		textsplitter.WithLenFunc(c.tokenizer.CountTokens),
	)

	var chunks []*core.Chunk
	for _, sec := range sections(doc, profile.PageAware) {
		normalized := normalize(sec.text, profile.SentenceAware)
		if normalized == "" {
			continue
		}
		parts, err := splitter.SplitText(normalized)
		if err != nil {
			return nil, fmt.Errorf("splitting page %d of %s: %w", sec.pageNo, doc.DocID, err)
		}

		cursor := 0
		for _, part := range parts {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			start := locate(normalized, part, cursor)
			cursor = start + 1
			for _, text := range c.capTokens(collapse(part), profile.ChunkSize) {
				chunks = append(chunks, c.newChunk(doc, sec, text, len(chunks),
					utf8.RuneCountInString(normalized[:start]), utf8.RuneCountInString(part)))
			}
		}
	}

	if profile.MaxChunksPerDoc > 0 && len(chunks) > profile.MaxChunksPerDoc {
		c.logger.Warn("limiting chunks per document", "doc_id", doc.DocID, "chunks", len(chunks), "limit", profile.MaxChunksPerDoc)
		chunks = chunks[:profile.MaxChunksPerDoc]
	}
	c.logger.Debug("document chunked", "doc_id", doc.DocID, "chunks", len(chunks))
	return chunks, nil
}

func (c *Chunker) newChunk(doc *core.Document, sec section, text string, index, start, length int) *core.Chunk {
	metadata := make(map[string]string, len(doc.Metadata)+len(sec.metadata)+3)
	for k, v := range doc.Metadata {
		metadata[k] = v
	}
	for k, v := range sec.metadata {
		metadata[k] = v
	}
	for k, v := range map[string]string{"doc_type": doc.DocType, "form_number": doc.FormNumber, "state": doc.State} {
		if v != "" {
			metadata[k] = v
		}
	}
	return &core.Chunk{
		ChunkID:   fmt.Sprintf("%s_p%d_c%03d", doc.DocID, sec.pageNo, index),
		DocID:     doc.DocID,
		Text:      text,
		PageNo:    sec.pageNo,
		CharStart: start,
		CharEnd:   start + length,
		Tokens:    c.tokenizer.CountTokens(text),
		Metadata:  metadata,
	}
}

// capTokens re-splits text on words when the tokenizer counts the merged
// text higher than the sum of its pieces.
func (c *Chunker) capTokens(text string, limit int) []string {
	if c.tokenizer.CountTokens(text) <= limit {
		return []string{text}
	}
	var out []string
	current := ""
	for _, word := range strings.Fields(text) {
		candidate := word
		if current != "" {
			candidate = current + " " + word
		}
		if c.tokenizer.CountTokens(candidate) <= limit {
			current = candidate
			continue
		}
		if current != "" {
			out = append(out, current)
		}
		current = ""
		for _, piece := range c.capRunes(word, limit) {
			if c.tokenizer.CountTokens(piece) <= limit && current == "" {
				current = piece
				continue
			}
			out = append(out, piece)
		}
	}
	if current != "" {
		out = append(out, current)
	}
	return out
}

// capRunes splits a single oversized word into pieces that fit limit.
func (c *Chunker) capRunes(word string, limit int) []string {
	if c.tokenizer.CountTokens(word) <= limit {
		return []string{word}
	}
	var out []string
	runes := []rune(word)
	for len(runes) > 0 {
		n := 1
		for n < len(runes) && c.tokenizer.CountTokens(string(runes[:n+1])) <= limit {
			n++
		}
		out = append(out, string(runes[:n]))
		runes = runes[n:]
	}
	return out
}

func sections(doc *core.Document, pageAware bool) []section {
	if pageAware {
		out := make([]section, 0, len(doc.Pages))
		for _, page := range doc.Pages {
			out = append(out, section{pageNo: page.PageNo, text: page.Text, metadata: page.Metadata})
		}
		return out
	}
	if len(doc.Pages) == 0 {
		return nil
	}
	texts := make([]string, len(doc.Pages))
	for i, page := range doc.Pages {
		texts[i] = page.Text
	}
	return []section{{pageNo: doc.Pages[0].PageNo, text: strings.Join(texts, "\n\n")}}
}

func separators(sentenceAware bool) []string {
	if sentenceAware {
		return []string{"\n\n", "\n", " ", ""}
	}
	return []string{"\n\n", " ", ""}
}

// normalize collapses whitespace inside paragraphs and separates paragraphs
// with a blank line. Sentence-aware text puts each sentence on its own line.
func normalize(text string, sentenceAware bool) string {
	var paragraphs []string
	var lines []string
	flush := func() {
		if len(lines) == 0 {
			return
		}
		p := collapse(strings.Join(lines, " "))
		if sentenceAware {
			p = strings.Join(splitSentences(p), "\n")
		}
		paragraphs = append(paragraphs, p)
		lines = lines[:0]
	}
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		lines = append(lines, line)
	}
	flush()
	return strings.Join(paragraphs, "\n\n")
}

// splitSentences cuts a collapsed paragraph after '.', '!' or '?' when a
// space and an upper-case letter follow.
func splitSentences(p string) []string {
	var out []string
	start := 0
	for i := 0; i+2 < len(p); i++ {
		if !strings.ContainsRune(".!?", rune(p[i])) || p[i+1] != ' ' {
			continue
		}
		next, _ := utf8.DecodeRuneInString(p[i+2:])
		if !unicode.IsUpper(next) {
			continue
		}
		out = append(out, p[start:i+1])
		start = i + 2
	}
	return append(out, p[start:])
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// locate finds part in text at or after from, falling back to the first
// occurrence.
func locate(text, part string, from int) int {
	if from < len(text) {
		if i := strings.Index(text[from:], part); i >= 0 {
			return from + i
		}
	}
	if i := strings.Index(text, part); i >= 0 {
		return i
	}
	return min(from, len(text))
}
