// Package chunk splits normalized document text into overlapping fixed-size
// segments and computes the content hash that makes ingestion idempotent.
//
// Chunks are the atomic unit of retrieval: each chunk is embedded and
// searched independently, and the pair (content hash, chunk index) is the
// uniqueness key that turns duplicate ingestion into a no-op.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"unicode"
)

const (
	// DefaultSize is the target chunk length in characters.
	DefaultSize = 1000

	// DefaultOverlap is the number of trailing characters of each chunk
	// repeated at the start of the next one (25% of DefaultSize).
	DefaultOverlap = 250
)

// Hash returns the hex-encoded SHA-256 digest of the full normalized document
// text. Ingesting byte-identical content twice produces the same hash, which
// the store's uniqueness constraint collapses into a no-op.
func Hash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Split divides text into ordered overlapping chunks of at most size
// characters. Boundaries snap to the nearest whitespace at or before the
// target size so words are never split; when a window contains no whitespace
// at all the split is hard. Each chunk after the first begins with the
// trailing overlap characters of the previous chunk to preserve
// cross-boundary context. Text shorter than size yields exactly one chunk;
// empty text yields none.
//
// size and overlap fall back to DefaultSize / DefaultOverlap when out of
// range. Lengths are measured in runes so multi-byte text is never split
// mid-character.
func Split(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 4
	}

	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= size {
		return []string{text}
	}

	var chunks []string
	start := 0
	for {
		end := start + size
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			break
		}

		cut := snapToWhitespace(runes, start, end)
		chunks = append(chunks, string(runes[start:cut]))

		next := cut - overlap
		if next <= start {
			// Overlap would stall the walk (tiny chunk after a hard
			// snap) — advance without overlap instead.
			next = cut
		}
		start = next
	}

	return chunks
}

// snapToWhitespace returns the largest index in (start, end] such that the
// rune immediately before it is whitespace, or end when the window contains
// no whitespace at all (hard split).
func snapToWhitespace(runes []rune, start, end int) int {
	for cut := end; cut > start; cut-- {
		if unicode.IsSpace(runes[cut-1]) {
			return cut
		}
	}
	return end
}
