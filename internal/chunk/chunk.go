// Package chunk splits raw document text into overlapping chunks suitable
// for embedding.
//
// Splitting is deterministic: the same input always yields the same chunk
// boundaries and texts. Content hashes computed over normalized chunk text
// therefore detect unchanged content across re-ingestion runs.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Chunk is one bounded span of a document's text, the unit of embedding
// and retrieval.
type Chunk struct {
	Ordinal int    // dense position within the document, starting at 0
	Text    string // chunk text
	Hash    string // SHA-256 hex digest of the normalized text
}

// Splitter splits documents into chunks of at most maxSize runes, with
// overlap runes shared between consecutive window chunks.
//
// Splitter is stateless and safe for concurrent use.
type Splitter struct {
	maxSize int
	overlap int
}

// New creates a Splitter.
// maxSize must be positive and overlap must be in [0, maxSize).
func New(maxSize, overlap int) (*Splitter, error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("max size must be positive, got %d", maxSize)
	}
	if overlap < 0 || overlap >= maxSize {
		return nil, fmt.Errorf("overlap %d must be in [0, %d)", overlap, maxSize)
	}
	return &Splitter{maxSize: maxSize, overlap: overlap}, nil
}

// Split splits text into ordered chunks.
//
// Semantic boundaries (headings, then blank-line paragraphs) are preferred;
// blocks are greedily packed up to the size limit. A single block larger
// than the limit falls back to fixed-size windows sharing overlap runes, so
// context spanning a window boundary appears in both chunks.
//
// Guarantees: every chunk is non-empty after trimming, ordinals are dense
// starting at 0, and concatenating the chunks (minus overlap) reconstructs
// the document within whitespace normalization.
func (s *Splitter) Split(text string) []Chunk {
	blocks := splitBlocks(text)

	var texts []string
	var pending strings.Builder
	flush := func() {
		if pending.Len() > 0 {
			texts = append(texts, pending.String())
			pending.Reset()
		}
	}

	for _, block := range blocks {
		if len([]rune(block)) > s.maxSize {
			// Oversized block: emit what we packed so far, then window it.
			flush()
			texts = append(texts, s.window(block)...)
			continue
		}

		joined := pending.Len() + len("\n\n") + len(block)
		if pending.Len() > 0 && joined > s.maxSize {
			flush()
		}
		if pending.Len() > 0 {
			pending.WriteString("\n\n")
		}
		pending.WriteString(block)
	}
	flush()

	chunks := make([]Chunk, 0, len(texts))
	for _, t := range texts {
		trimmed := strings.TrimSpace(t)
		if trimmed == "" {
			continue
		}
		chunks = append(chunks, Chunk{
			Ordinal: len(chunks),
			Text:    trimmed,
			Hash:    Hash(trimmed),
		})
	}
	return chunks
}

// window slices an oversized block into fixed-size rune windows, each
// sharing overlap runes with its predecessor.
func (s *Splitter) window(block string) []string {
	runes := []rune(block)
	step := s.maxSize - s.overlap

	var out []string
	for start := 0; start < len(runes); start += step {
		end := min(start+s.maxSize, len(runes))
		out = append(out, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return out
}

// splitBlocks breaks text into semantic blocks: a heading line starts a new
// block, and blank lines separate paragraphs. Line endings are normalized
// to \n first so CRLF input chunks identically to LF input.
func splitBlocks(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var blocks []string
	var current strings.Builder
	flush := func() {
		if b := strings.TrimSpace(current.String()); b != "" {
			blocks = append(blocks, b)
		}
		current.Reset()
	}

	for _, line := range strings.Split(text, "\n") {
		switch {
		case strings.TrimSpace(line) == "":
			flush()
		case strings.HasPrefix(strings.TrimSpace(line), "#"):
			flush()
			current.WriteString(line)
			current.WriteString("\n")
		default:
			current.WriteString(line)
			current.WriteString("\n")
		}
	}
	flush()

	return blocks
}

// Hash returns the SHA-256 hex digest of the whitespace-normalized text.
// Two chunks that differ only in whitespace produce the same hash, so
// formatting-only edits do not trigger re-embedding.
func Hash(text string) string {
	normalized := strings.Join(strings.Fields(text), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
