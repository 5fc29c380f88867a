// Package chunker splits extracted document text into fixed-size word windows.
package chunker

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"

	"docqa/pkg/domain"
)

// DefaultChunkSize is the default number of words per chunk.
const DefaultChunkSize = 500

// DefaultMinChunkChars is the content length a chunk must exceed to be kept.
const DefaultMinChunkChars = 50

// MinContentChars is the shortest cleaned text accepted for chunking.
const MinContentChars = 10

// ErrNoReadableContent is returned when cleaned text is too short to index.
var ErrNoReadableContent = errors.New("no readable content found in document")

// Chunker splits text into consecutive, non-overlapping word windows.
type Chunker struct {
	chunkSize     int
	minChunkChars int
}

// Option configures the chunker.
type Option func(*Chunker)

// WithChunkSize sets the window size in words.
func WithChunkSize(words int) Option {
	return func(c *Chunker) {
		if words > 0 {
			c.chunkSize = words
		}
	}
}

// WithMinChunkChars sets the length a chunk's content must exceed to be emitted.
func WithMinChunkChars(n int) Option {
	return func(c *Chunker) {
		if n >= 0 {
			c.minChunkChars = n
		}
	}
}

// New creates a chunker with the given options.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		chunkSize:     DefaultChunkSize,
		minChunkChars: DefaultMinChunkChars,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ChunkSize returns the configured window size in words.
func (c *Chunker) ChunkSize() int {
	return c.chunkSize
}

// Chunk cleans text and splits it into chunks attributed to filename.
// Windows whose content is not longer than the minimum are dropped and do not
// consume a chunk index.
func (c *Chunker) Chunk(text, filename string) ([]domain.Chunk, error) {
	cleaned := Clean(text)
	if utf8.RuneCountInString(cleaned) < MinContentChars {
		return nil, ErrNoReadableContent
	}

	words := strings.Split(cleaned, " ")
	chunks := make([]domain.Chunk, 0, (len(words)+c.chunkSize-1)/c.chunkSize)
	for start := 0; start < len(words); start += c.chunkSize {
		end := start + c.chunkSize
		if end > len(words) {
			end = len(words)
		}
		window := words[start:end]
		content := strings.Join(window, " ")
		if utf8.RuneCountInString(content) <= c.minChunkChars {
			continue
		}
		chunks = append(chunks, domain.Chunk{
			Content:    content,
			Filename:   filename,
			ChunkIndex: len(chunks),
			WordCount:  len(window),
		})
	}
	return chunks, nil
}

// Clean collapses whitespace runs to single spaces and trims the result.
func Clean(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	prevSpace := false
	for _, r := range text {
		if isSpace(r) {
			if !prevSpace {
				b.WriteByte(' ')
				prevSpace = true
			}
			continue
		}
		b.WriteRune(r)
		prevSpace = false
	}
	return strings.TrimFunc(b.String(), isSpace)
}

// isSpace reports Unicode white space and the BOM. NEL (U+0085) is content.
func isSpace(r rune) bool {
	if r == '\u0085' {
		return false
	}
	return unicode.IsSpace(r) || r == '\ufeff'
}
