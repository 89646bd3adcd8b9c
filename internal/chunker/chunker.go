package chunker

import (
	"fmt"
	"strings"
)

// separators is the boundary hierarchy tried in order when a span exceeds
// the chunk size: paragraph break, line break, word break, then a hard cut.
var separators = []string{"\n\n", "\n", " ", ""}

// Splitter cuts document text into overlapping fixed-size chunks.
type Splitter struct {
	maxSize int
	overlap int
}

func NewSplitter(maxSize, overlap int) (*Splitter, error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", maxSize)
	}
	if overlap < 0 || overlap >= maxSize {
		return nil, fmt.Errorf("overlap must be in [0, %d), got %d", maxSize, overlap)
	}
	return &Splitter{maxSize: maxSize, overlap: overlap}, nil
}

func (s *Splitter) MaxSize() int { return s.maxSize }
func (s *Splitter) Overlap() int { return s.overlap }

// Split returns the ordered chunks of text. Chunks are at most maxSize
// characters, each chunk after the first begins with the last overlap
// characters of its predecessor, and no chunk is empty or whitespace-only.
// Output is fully determined by (text, maxSize, overlap).
func (s *Splitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	pieces := splitRecursive(text, s.maxSize, separators)

	// Greedily merge pieces up to maxSize, carrying the overlap tail forward.
	var chunks []string
	current := ""
	carried := 0 // bytes of current that are overlap carried from the prior chunk
	for _, piece := range pieces {
		if len(current) > carried && len(current)+len(piece) > s.maxSize {
			chunks = appendChunk(chunks, current)
			current = overlapTail(current, s.overlap)
			carried = len(current)
			if len(current)+len(piece) > s.maxSize {
				// Overlap would push the next chunk past maxSize, drop it.
				current = ""
				carried = 0
			}
		}
		current += piece
	}
	return appendChunk(chunks, current)
}

// splitRecursive breaks text into pieces no longer than limit, preferring
// the earliest separator in seps that applies. The final "" separator cuts
// at exact character boundaries so a single oversized token still splits.
func splitRecursive(text string, limit int, seps []string) []string {
	if len(text) <= limit {
		return []string{text}
	}

	sep := seps[0]
	rest := seps[1:]

	if sep == "" {
		var out []string
		runes := []rune(text)
		for start := 0; start < len(runes); start += limit {
			end := start + limit
			if end > len(runes) {
				end = len(runes)
			}
			out = append(out, string(runes[start:end]))
		}
		return out
	}

	parts := strings.SplitAfter(text, sep)
	if len(parts) == 1 {
		// Separator absent, fall through to the next one.
		return splitRecursive(text, limit, rest)
	}

	var out []string
	for _, part := range parts {
		if part == "" {
			continue
		}
		if len(part) <= limit {
			out = append(out, part)
		} else {
			out = append(out, splitRecursive(part, limit, rest)...)
		}
	}
	return out
}

func appendChunk(chunks []string, chunk string) []string {
	trimmed := strings.TrimSpace(chunk)
	if trimmed == "" {
		return chunks
	}
	return append(chunks, trimmed)
}

// overlapTail returns the trailing overlap characters of chunk, aligned to
// a rune boundary.
func overlapTail(chunk string, overlap int) string {
	if overlap == 0 {
		return ""
	}
	runes := []rune(chunk)
	if len(runes) <= overlap {
		return chunk
	}
	return string(runes[len(runes)-overlap:])
}
