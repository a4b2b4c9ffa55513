package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"

	"github.com/ragstack/ragserve/internal/rag"
)

// Fallback implements rag.Embedder with a deterministic pseudo-embedding
// derived entirely from the input text. It keeps the pipeline functioning in
// degraded mode when the real provider is unreachable or misconfigured:
// identical text always maps to the identical vector, so dedup, search, and
// the dimension invariant all continue to hold. The vectors carry no semantic
// meaning — they are a hash expanded to rag.Dimensions and L2-normalized.
type Fallback struct{}

// Embed synthesizes one deterministic vector per input text. It never fails.
func (Fallback) Embed(_ context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		embeddings[i] = pseudoEmbedding(text)
	}
	return embeddings, nil
}

// pseudoEmbedding expands the SHA-256 digest of text into rag.Dimensions
// float32 values in [-1, 1) and L2-normalizes the result. The expansion
// re-hashes the seed with a block counter, eight values per block.
func pseudoEmbedding(text string) []float32 {
	seed := sha256.Sum256([]byte(text))

	vec := make([]float32, rag.Dimensions)
	var block [sha256.Size + 8]byte
	copy(block[:], seed[:])

	for i := 0; i < rag.Dimensions; i += 8 {
		binary.LittleEndian.PutUint64(block[sha256.Size:], uint64(i/8))
		digest := sha256.Sum256(block[:])
		for j := 0; j < 8 && i+j < rag.Dimensions; j++ {
			u := binary.LittleEndian.Uint32(digest[j*4 : j*4+4])
			// Map the uint32 range onto [-1, 1).
			vec[i+j] = float32(u)/float32(1<<31) - 1
		}
	}

	return normalize(vec)
}

// normalize scales vec to unit L2 norm in place. A zero vector (impossible
// in practice for hash-derived values) is returned unchanged.
func normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	inv := 1 / math.Sqrt(sum)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) * inv)
	}
	return vec
}
