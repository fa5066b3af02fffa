// Package memory implements the retrieval subsystem: chunking, embedding,
// and similarity search over interchangeable vector store backends.
package memory

import (
	"fmt"
	"regexp"
	"strings"
)

// ChunkOptions controls how a document is split.
type ChunkOptions struct {
	MaxChunkSize       int // characters; default 1000
	Overlap            int // characters; carried as ~Overlap/5 tail words
	PreserveParagraphs bool
}

func (o ChunkOptions) withDefaults() ChunkOptions {
	if o.MaxChunkSize <= 0 {
		o.MaxChunkSize = 1000
	}
	if o.Overlap <= 0 {
		o.Overlap = 200
	}
	return o
}

var paragraphSplit = regexp.MustCompile(`\n\n+`)

// ChunkText splits text into chunks of at most MaxChunkSize characters.
// With PreserveParagraphs it packs whole paragraphs and carries a tail-word
// overlap from each chunk into the next; otherwise it windows over words.
// A single paragraph longer than MaxChunkSize stays intact in its own chunk.
func ChunkText(text string, opts ChunkOptions) []string {
	opts = opts.withDefaults()

	if len(text) <= opts.MaxChunkSize {
		return []string{text}
	}

	if opts.PreserveParagraphs {
		return chunkByParagraphs(text, opts)
	}
	return chunkByWords(text, opts)
}

func chunkByParagraphs(text string, opts ChunkOptions) []string {
	var chunks []string
	var current strings.Builder

	for _, para := range paragraphSplit.Split(text, -1) {
		if strings.TrimSpace(para) == "" {
			continue
		}
		if current.Len()+len(para) > opts.MaxChunkSize && current.Len() > 0 {
			chunk := strings.TrimSpace(current.String())
			chunks = append(chunks, chunk)
			current.Reset()
			current.WriteString(tailWords(chunk, opts.Overlap/5))
			current.WriteString(" ")
		}
		current.WriteString(para)
		current.WriteString("\n\n")
	}

	if tail := strings.TrimSpace(current.String()); tail != "" {
		chunks = append(chunks, tail)
	}
	return chunks
}

func chunkByWords(text string, opts ChunkOptions) []string {
	words := strings.Fields(text)
	overlapWords := opts.Overlap / 5

	var chunks []string
	i := 0
	for i < len(words) {
		start := i
		length := 0
		for i < len(words) && length < opts.MaxChunkSize {
			length += len(words[i]) + 1
			i++
		}
		chunks = append(chunks, strings.Join(words[start:i], " "))

		// Rewind for overlap, but always make forward progress.
		if i < len(words) && i-overlapWords > start {
			i -= overlapWords
		}
	}
	return chunks
}

// tailWords returns the last n whitespace-separated words of s.
func tailWords(s string, n int) string {
	if n <= 0 {
		return ""
	}
	words := strings.Fields(s)
	if len(words) > n {
		words = words[len(words)-n:]
	}
	return strings.Join(words, " ")
}

// ChunkID derives the stored id for one chunk. Deterministic so re-ingesting
// a document overwrites its chunks instead of duplicating them.
func ChunkID(documentID string, index int) string {
	return fmt.Sprintf("%s_chunk_%d", documentID, index)
}
