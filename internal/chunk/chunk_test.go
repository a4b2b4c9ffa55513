package chunk

import (
	"strings"
	"testing"
	"unicode"
)

// wordText builds a text of approximately n characters made of space-separated
// five-character words, so every chunk boundary has whitespace to snap to.
func wordText(n int) string {
	var b strings.Builder
	for b.Len() < n {
		b.WriteString("lorem ")
	}
	return b.String()[:n]
}

func Test_Split_ShortTextSingleChunk(t *testing.T) {
	t.Parallel()
	text := wordText(500)
	chunks := Split(text, DefaultSize, DefaultOverlap)
	if len(chunks) != 1 {
		t.Fatalf("want 1 chunk for 500-char text, got %d", len(chunks))
	}
	if chunks[0] != text {
		t.Errorf("single chunk must be the whole text")
	}
}

func Test_Split_EmptyText(t *testing.T) {
	t.Parallel()
	if got := Split("", DefaultSize, DefaultOverlap); got != nil {
		t.Errorf("want nil for empty text, got %d chunks", len(got))
	}
}

func Test_Split_ThreeThousandCharsFourChunks(t *testing.T) {
	t.Parallel()
	// 1000-char target with 250-char overlap strides ~750 chars per chunk:
	// windows cover roughly 0-1000, 750-1750, 1500-2500, 2250-3000.
	chunks := Split(wordText(3000), DefaultSize, DefaultOverlap)
	if len(chunks) != 4 {
		t.Fatalf("want 4 chunks for 3000-char text, got %d", len(chunks))
	}
}

func Test_Split_OverlapRepeatsTrailingContent(t *testing.T) {
	t.Parallel()
	chunks := Split(wordText(3000), DefaultSize, DefaultOverlap)
	if len(chunks) < 2 {
		t.Fatalf("need at least 2 chunks, got %d", len(chunks))
	}
	for i := 1; i < len(chunks); i++ {
		prev := []rune(chunks[i-1])
		tail := string(prev[len(prev)-DefaultOverlap:])
		if !strings.HasPrefix(chunks[i], tail) {
			t.Errorf("chunk %d does not begin with the trailing %d chars of chunk %d", i, DefaultOverlap, i-1)
		}
	}
}

func Test_Split_BoundariesSnapToWhitespace(t *testing.T) {
	t.Parallel()
	chunks := Split(wordText(5000), DefaultSize, DefaultOverlap)
	// Every chunk except the last must end at a whitespace boundary so no
	// word is split across chunks.
	for i := 0; i < len(chunks)-1; i++ {
		runes := []rune(chunks[i])
		if !unicode.IsSpace(runes[len(runes)-1]) {
			t.Errorf("chunk %d ends mid-word: %q", i, chunks[i][len(chunks[i])-10:])
		}
	}
}

func Test_Split_NoWhitespaceHardSplit(t *testing.T) {
	t.Parallel()
	// A 2500-char run with no whitespace cannot snap — hard splits at the
	// target size keep the walk progressing.
	text := strings.Repeat("x", 2500)
	chunks := Split(text, 1000, 250)
	if len(chunks) == 0 {
		t.Fatal("want chunks for unbroken text")
	}
	var rebuilt strings.Builder
	rebuilt.WriteString(chunks[0])
	for i := 1; i < len(chunks); i++ {
		prev := []rune(chunks[i-1])
		overlapLen := 250
		if overlapLen > len(prev) {
			overlapLen = len(prev)
		}
		rebuilt.WriteString(chunks[i][overlapLen:])
	}
	if rebuilt.String() != text {
		t.Errorf("chunks do not reassemble to the original text")
	}
}

func Test_Split_DefaultsApplied(t *testing.T) {
	t.Parallel()
	// Out-of-range size/overlap fall back to usable values.
	chunks := Split(wordText(3000), 0, -1)
	if len(chunks) != 4 {
		t.Errorf("want 4 chunks with defaulted parameters, got %d", len(chunks))
	}
	chunks = Split(wordText(3000), 100, 100)
	for _, c := range chunks {
		if len([]rune(c)) > 100 {
			t.Errorf("chunk exceeds clamped size: %d runes", len([]rune(c)))
		}
	}
}

func Test_Split_MultibyteSafe(t *testing.T) {
	t.Parallel()
	text := strings.Repeat("日本語テキスト ", 400)
	chunks := Split(text, 1000, 250)
	for i, c := range chunks {
		if !strings.HasSuffix(text, c) && !strings.Contains(text, c) {
			t.Errorf("chunk %d is not a substring of the source — rune boundary violated", i)
		}
	}
}

func Test_Hash_DeterministicAndDistinct(t *testing.T) {
	t.Parallel()
	a := Hash("the same content")
	b := Hash("the same content")
	c := Hash("different content")
	if a != b {
		t.Errorf("identical content must hash identically")
	}
	if a == c {
		t.Errorf("distinct content must hash differently")
	}
	if len(a) != 64 {
		t.Errorf("want 64 hex chars for a 256-bit digest, got %d", len(a))
	}
}
