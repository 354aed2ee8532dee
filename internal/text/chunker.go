// Package text splits extracted article text into overlapping token windows
// for embedding and per-window model calls.
package text

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Defaults for the chunker. Window and overlap are measured in approximate
// tokens, not characters.
const (
	DefaultWindowTokens  = 512
	DefaultOverlapTokens = 32

	// charsPerToken approximates English subword tokenization. Good enough
	// for sizing embedding windows; exactness is not required.
	charsPerToken = 4

	// MinTextTokens is the floor below which a text is not worth chunking
	// or enriching.
	MinTextTokens = 16
)

// Chunk is one window of the source text.
type Chunk struct {
	Index int32
	Text  string
}

// Chunker splits text into windows of windowTokens with overlapTokens of
// trailing context carried into the next window.
type Chunker struct {
	windowTokens  int
	overlapTokens int
}

// NewChunker creates a chunker. Overlap must be smaller than the window or
// the split cannot make progress.
func NewChunker(windowTokens, overlapTokens int) (*Chunker, error) {
	if windowTokens <= 0 {
		return nil, fmt.Errorf("window must be positive, got %d", windowTokens)
	}
	if overlapTokens < 0 || overlapTokens >= windowTokens {
		return nil, fmt.Errorf("overlap %d must be in [0, window)", overlapTokens)
	}
	return &Chunker{windowTokens: windowTokens, overlapTokens: overlapTokens}, nil
}

// ApproxTokens estimates the token count of a text.
func ApproxTokens(text string) int {
	return utf8.RuneCountInString(text) / charsPerToken
}

// Split breaks the text into overlapping windows on word boundaries. Texts
// at or under one window come back as a single chunk. Whitespace-only input
// yields no chunks.
func (c *Chunker) Split(text string) []Chunk {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	windowChars := c.windowTokens * charsPerToken
	overlapChars := c.overlapTokens * charsPerToken

	var chunks []Chunk
	var window []string
	windowLen := 0

	flush := func() {
		if len(window) == 0 {
			return
		}
		chunks = append(chunks, Chunk{
			Index: int32(len(chunks)),
			Text:  strings.Join(window, " "),
		})

		// Carry the tail of the window forward as overlap.
		var tail []string
		tailLen := 0
		for i := len(window) - 1; i >= 0 && tailLen < overlapChars; i-- {
			tail = append([]string{window[i]}, tail...)
			tailLen += utf8.RuneCountInString(window[i]) + 1
		}
		window = tail
		windowLen = tailLen
	}

	for _, w := range words {
		wLen := utf8.RuneCountInString(w) + 1
		if windowLen+wLen > windowChars && windowLen > overlapChars {
			flush()
		}
		window = append(window, w)
		windowLen += wLen
	}
	if len(window) > 0 {
		// Skip a final window that is pure overlap of the previous one.
		last := strings.Join(window, " ")
		if len(chunks) == 0 || !strings.HasSuffix(chunks[len(chunks)-1].Text, last) {
			chunks = append(chunks, Chunk{Index: int32(len(chunks)), Text: last})
		}
	}
	return chunks
}
