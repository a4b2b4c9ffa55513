package rag

import (
	"fmt"
	"strings"
)

const (
	// DefaultContextBudget bounds the assembled context length in runes.
	// Conservative enough for common model input limits.
	DefaultContextBudget = 8000

	// DefaultMaxBlocks bounds the number of retrieved chunks included.
	DefaultMaxBlocks = 10

	// snippetLength is the rune length of the per-source snippet returned
	// alongside the answer.
	snippetLength = 300

	// blockSeparator joins context sections and retrieved blocks.
	blockSeparator = "\n\n---\n\n"
)

// Source is the attribution record for one chunk that made it into the
// assembled context.
type Source struct {
	Filename   string  `json:"filename"`
	ChunkIndex int     `json:"chunk_index"`
	Similarity float64 `json:"similarity"`
	Snippet    string  `json:"snippet"`
}

// Assembled is the outcome of context assembly for one query.
type Assembled struct {
	// Context is the full context string handed to generation: model
	// context, then caller context, then retrieved blocks.
	Context string

	// Sources lists the chunks included in Context, best first.
	Sources []Source

	// LowConfidence is set when no chunk passed the similarity threshold.
	// The query still proceeds with whatever context the caller supplied.
	LowConfidence bool
}

// Assembler builds budget-bounded context strings from search hits. Hits are
// consumed best-first; once the budget or block cap is reached the remaining
// (lower-similarity) hits are dropped.
type Assembler struct {
	// budget is the maximum assembled context length in runes.
	budget int

	// maxBlocks is the maximum number of retrieved chunks to include.
	maxBlocks int
}

// NewAssembler constructs an Assembler. Non-positive arguments select the
// defaults (8000 runes, 10 blocks).
func NewAssembler(budget, maxBlocks int) *Assembler {
	if budget <= 0 {
		budget = DefaultContextBudget
	}
	if maxBlocks <= 0 {
		maxBlocks = DefaultMaxBlocks
	}
	return &Assembler{budget: budget, maxBlocks: maxBlocks}
}

// Assemble combines the model's stored context, the caller's ad-hoc context,
// and the retrieved hits into one context string. Hits must already be
// ordered best-first (the retriever guarantees this). Zero hits is not an
// error: the result carries LowConfidence instead.
func (a *Assembler) Assemble(modelContext, callerContext string, hits []Hit) Assembled {
	var out Assembled

	perBlock := a.budget / a.maxBlocks
	var blocks []string
	used := 0

	for _, h := range hits {
		if len(blocks) >= a.maxBlocks {
			break
		}

		content := truncateRunes(h.Chunk.Content, perBlock)
		block := fmt.Sprintf("Source: %s (Chunk %d)\n%s", h.Chunk.Filename, h.Chunk.Index, content)

		cost := len([]rune(block))
		if len(blocks) > 0 {
			cost += len([]rune(blockSeparator))
		}
		if used+cost > a.budget {
			break
		}

		blocks = append(blocks, block)
		used += cost
		out.Sources = append(out.Sources, Source{
			Filename:   h.Chunk.Filename,
			ChunkIndex: h.Chunk.Index,
			Similarity: h.Similarity,
			Snippet:    snippet(h.Chunk.Content),
		})
	}

	if len(blocks) == 0 {
		out.LowConfidence = true
	}

	sections := make([]string, 0, 3)
	if modelContext != "" {
		sections = append(sections, modelContext)
	}
	if callerContext != "" {
		sections = append(sections, callerContext)
	}
	if len(blocks) > 0 {
		sections = append(sections, strings.Join(blocks, blockSeparator))
	}
	out.Context = strings.Join(sections, blockSeparator)

	return out
}

// snippet returns a short, rune-safe preview of the chunk content.
func snippet(content string) string {
	r := []rune(content)
	if len(r) <= snippetLength {
		return content
	}
	return string(r[:snippetLength]) + "..."
}

// truncateRunes cuts content to at most limit runes, preferring to break at
// the end of a sentence. Truncated content is marked so the model never
// mistakes a cut-off block for a complete source.
func truncateRunes(content string, limit int) string {
	r := []rune(content)
	if limit <= 0 || len(r) <= limit {
		return content
	}

	cut := limit
	for i := limit - 1; i >= 0; i-- {
		if c := r[i]; c == '.' || c == '!' || c == '?' {
			cut = i + 1
			break
		}
	}
	return string(r[:cut]) + "... [TRUNCATED]"
}
