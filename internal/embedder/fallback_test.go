package embedder

import (
	"context"
	"math"
	"testing"

	"github.com/ragstack/ragserve/internal/rag"
)

func Test_Fallback_Deterministic(t *testing.T) {
	t.Parallel()
	var fb Fallback
	a, err := fb.Embed(context.Background(), []string{"eventual consistency"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	b, _ := fb.Embed(context.Background(), []string{"eventual consistency"})

	for i := range a[0] {
		if a[0][i] != b[0][i] {
			t.Fatalf("identical text produced different vectors at index %d", i)
		}
	}
}

func Test_Fallback_DistinctTextsDistinctVectors(t *testing.T) {
	t.Parallel()
	var fb Fallback
	vecs, err := fb.Embed(context.Background(), []string{"alpha", "beta"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	same := true
	for i := range vecs[0] {
		if vecs[0][i] != vecs[1][i] {
			same = false
			break
		}
	}
	if same {
		t.Error("distinct texts produced identical vectors")
	}
}

func Test_Fallback_DimensionInvariant(t *testing.T) {
	t.Parallel()
	var fb Fallback
	vecs, err := fb.Embed(context.Background(), []string{"", "x", "a much longer input text"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	for i, v := range vecs {
		if len(v) != rag.Dimensions {
			t.Errorf("vector %d has %d dimensions, want %d", i, len(v), rag.Dimensions)
		}
	}
}

func Test_Fallback_UnitNorm(t *testing.T) {
	t.Parallel()
	var fb Fallback
	vecs, _ := fb.Embed(context.Background(), []string{"normalize me"})

	var sum float64
	for _, v := range vecs[0] {
		sum += float64(v) * float64(v)
	}
	if math.Abs(sum-1.0) > 1e-4 {
		t.Errorf("want unit L2 norm, got squared norm %f", sum)
	}
}
