// Package chunk splits raw document text into overlapping segments sized for
// embedding.
//
// Splitting is deterministic: the same text with the same parameters always
// yields identical chunk boundaries, so re-ingesting a document reproduces
// the same chunk ids. Sizes are measured in runes, not tokens.
package chunk

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidParams indicates an unusable size/overlap combination.
var ErrInvalidParams = errors.New("invalid splitter parameters")

// separators in preference order: paragraph, line, sentence end, word.
// A window is cut at the latest qualifying occurrence of the highest-priority
// separator; only if none fits does the splitter fall back to a hard cut.
var separators = []string{"\n\n", "\n", ". ", "! ", "? ", " "}

// Splitter splits text into chunks of at most ChunkSize runes, with adjacent
// chunks sharing up to Overlap runes.
type Splitter struct {
	chunkSize int
	overlap   int
}

// NewSplitter creates a Splitter. overlap must be non-negative and strictly
// smaller than size.
func NewSplitter(size, overlap int) (*Splitter, error) {
	if size < 1 {
		return nil, fmt.Errorf("%w: size %d < 1", ErrInvalidParams, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap %d must be in [0, size)", ErrInvalidParams, overlap)
	}
	return &Splitter{chunkSize: size, overlap: overlap}, nil
}

// ChunkSize returns the configured maximum chunk length in runes.
func (s *Splitter) ChunkSize() int { return s.chunkSize }

// Overlap returns the configured overlap in runes.
func (s *Splitter) Overlap() int { return s.overlap }

// Split cuts text into chunks. Leading/trailing whitespace of each chunk is
// trimmed for output, but boundary positions are computed on the raw text so
// overlap behavior stays deterministic. Whitespace-only input yields nil.
func (s *Splitter) Split(text string) []string {
	runes := []rune(text)
	if len(strings.TrimSpace(text)) == 0 {
		return nil
	}
	if len(runes) <= s.chunkSize {
		return []string{strings.TrimSpace(text)}
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + s.chunkSize
		if end >= len(runes) {
			if piece := strings.TrimSpace(string(runes[start:])); piece != "" {
				chunks = append(chunks, piece)
			}
			break
		}

		cut := s.cutPoint(runes, start, end)
		if piece := strings.TrimSpace(string(runes[start:cut])); piece != "" {
			chunks = append(chunks, piece)
		}

		// Step back by the overlap, but always make forward progress.
		next := cut - s.overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}

	return chunks
}

// cutPoint picks where to end the chunk starting at start whose window ends
// at end. It prefers the latest occurrence of the highest-priority separator
// in the second half of the window, then any occurrence that makes progress,
// then a hard cut at the window end.
func (s *Splitter) cutPoint(runes []rune, start, end int) int {
	window := string(runes[start:end])
	minCut := s.chunkSize / 2

	for _, sep := range separators {
		if idx := lastIndexFrom(window, sep, minCut); idx >= 0 {
			return start + idx
		}
	}
	for _, sep := range separators {
		if idx := lastIndexFrom(window, sep, 1); idx >= 0 {
			return start + idx
		}
	}
	return end
}

// lastIndexFrom returns the rune index just past the last occurrence of sep
// in window whose cut position is at least min, or -1.
func lastIndexFrom(window, sep string, min int) int {
	wr := []rune(window)
	sr := []rune(sep)
	for i := len(wr) - len(sr); i >= 0; i-- {
		if string(wr[i:i+len(sr)]) == sep {
			cut := i + len(sr)
			if cut >= min {
				return cut
			}
			return -1
		}
	}
	return -1
}
