package store

import (
	"context"
	"errors"
	"testing"
)

func Test_Vectors_CreateStartsEmpty(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	v, err := s.CreateVector(context.Background(), "docs", "docs-folder", "project docs")
	if err != nil {
		t.Fatalf("create vector: %v", err)
	}
	if v.State != VectorStateEmpty {
		t.Errorf("new vector state = %q, want empty", v.State)
	}
	if v.DocumentCount != 0 || v.EmbeddingCount != 0 {
		t.Errorf("new vector has nonzero counts: %+v", v)
	}
}

func Test_Vectors_CountsDerivedFromFolder(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	v, err := s.CreateVector(ctx, "docs", "shared-folder", "")
	if err != nil {
		t.Fatalf("create vector: %v", err)
	}
	ingestDoc(t, s, "a.md", "shared-folder", "content a", []string{"c0", "c1"}, 0)
	ingestDoc(t, s, "b.md", "other-folder", "content b", []string{"c0"}, 0)

	got, err := s.GetVector(ctx, v.ID)
	if err != nil {
		t.Fatalf("get vector: %v", err)
	}
	if got.DocumentCount != 1 || got.EmbeddingCount != 2 {
		t.Errorf("counts must reflect only the bound folder: %+v", got)
	}
}

func Test_Vectors_StateTransitions(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	v, _ := s.CreateVector(ctx, "docs", "f", "")

	for _, state := range []VectorState{VectorStateProcessing, VectorStateReady, VectorStateProcessing, VectorStateFailed} {
		if err := s.SetVectorState(ctx, v.ID, state); err != nil {
			t.Fatalf("set state %q: %v", state, err)
		}
		got, _ := s.GetVector(ctx, v.ID)
		if got.State != state {
			t.Errorf("state = %q, want %q", got.State, state)
		}
	}
}

func Test_Vectors_TryClaimProcessing(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	v, _ := s.CreateVector(ctx, "docs", "f", "")

	claimed, err := s.TryClaimProcessing(ctx, v.ID)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !claimed {
		t.Fatal("first claim on an empty vector must succeed")
	}

	claimed, err = s.TryClaimProcessing(ctx, v.ID)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if claimed {
		t.Error("claim while already processing must be rejected")
	}

	// After the run finishes, a re-claim (reprocessing) succeeds again.
	if err := s.SetVectorState(ctx, v.ID, VectorStateReady); err != nil {
		t.Fatalf("set ready: %v", err)
	}
	claimed, err = s.TryClaimProcessing(ctx, v.ID)
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if !claimed {
		t.Error("claim on a ready vector must succeed (reprocessing)")
	}
}

func Test_Vectors_GetMissingReturnsNotFound(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	if _, err := s.GetVector(context.Background(), 9999); !errors.Is(err, ErrNotFound) {
		t.Errorf("want ErrNotFound, got %v", err)
	}
	if err := s.DeleteVector(context.Background(), 9999); !errors.Is(err, ErrNotFound) {
		t.Errorf("delete: want ErrNotFound, got %v", err)
	}
}

func Test_Vectors_DeleteCascadesRagModels(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	v, _ := s.CreateVector(ctx, "docs", "f", "")
	m, err := s.CreateRagModel(ctx, "assistant", v.ID, "You answer from the docs.", "")
	if err != nil {
		t.Fatalf("create rag model: %v", err)
	}

	if err := s.DeleteVector(ctx, v.ID); err != nil {
		t.Fatalf("delete vector: %v", err)
	}
	if _, err := s.GetRagModel(ctx, m.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("rag model must be removed with its vector, got %v", err)
	}
}

func Test_RagModels_UpdateKeepsVectorBinding(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	v, _ := s.CreateVector(ctx, "docs", "f", "")
	m, _ := s.CreateRagModel(ctx, "assistant", v.ID, "old prompt", "old context")

	updated, err := s.UpdateRagModel(ctx, m.ID, "new prompt", "new context", true)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.SystemPrompt != "new prompt" || updated.Context != "new context" {
		t.Errorf("update did not apply: %+v", updated)
	}
	if updated.VectorID != v.ID {
		t.Errorf("vector binding changed on update: %d != %d", updated.VectorID, v.ID)
	}
}

func Test_RagModels_InactiveHiddenFromLookup(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	v, _ := s.CreateVector(ctx, "docs", "f", "")
	m, _ := s.CreateRagModel(ctx, "assistant", v.ID, "prompt", "")

	if _, err := s.UpdateRagModel(ctx, m.ID, "prompt", "", false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := s.GetRagModel(ctx, m.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("inactive model must not resolve, got %v", err)
	}
	if _, err := s.GetRagModelByName(ctx, "assistant"); !errors.Is(err, ErrNotFound) {
		t.Errorf("inactive model must not resolve by name, got %v", err)
	}
}

func Test_Vectors_ListNewestFirst(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"first", "second", "third"} {
		if _, err := s.CreateVector(ctx, name, name+"-folder", ""); err != nil {
			t.Fatalf("create %q: %v", name, err)
		}
	}

	vs, err := s.ListVectors(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(vs) != 3 {
		t.Fatalf("want 3 vectors, got %d", len(vs))
	}
	for i := 1; i < len(vs); i++ {
		if vs[i].ID > vs[i-1].ID {
			t.Errorf("vectors not newest-first: id %d after %d", vs[i].ID, vs[i-1].ID)
		}
	}
}
