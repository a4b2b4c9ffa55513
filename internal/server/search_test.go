package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ragstack/ragserve/internal/rag"
)

func TestHandleSearch_MissingQuery(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, &fakeRetriever{}, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/search",
		strings.NewReader(`{"rag_model_id":1}`))
	w := httptest.NewRecorder()

	s.handleSearch(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestHandleSearch_UnknownModel(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, &fakeRetriever{}, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/search",
		strings.NewReader(`{"query":"hi","rag_model_name":"nope"}`))
	w := httptest.NewRecorder()

	s.handleSearch(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

// TestHandleSearch_Success verifies the hit-to-document response mapping and
// that no generation is involved.
func TestHandleSearch_Success(t *testing.T) {
	t.Parallel()

	ret := &fakeRetriever{hits: []rag.Hit{
		testHit(7, "faq.md", 2, "Resets happen on the account page.", 0.9),
		testHit(9, "guide.md", 0, "See the admin console.", 0.7),
	}}
	s, st := newTestServer(t, ret, nil, nil)
	_, m := seedModel(t, st, "docs")

	body := fmt.Sprintf(`{"query":"reset password","rag_model_id":%d,"limit":5}`, m.ID)
	req := httptest.NewRequest(http.MethodPost, "/api/search", strings.NewReader(body))
	w := httptest.NewRecorder()

	s.handleSearch(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}
	if ret.gotScope != "docs" {
		t.Errorf("scope: expected %q, got %q", "docs", ret.gotScope)
	}
	if ret.gotLimit != 5 {
		t.Errorf("limit: expected 5, got %d", ret.gotLimit)
	}

	var resp searchResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Documents) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(resp.Documents))
	}
	first := resp.Documents[0]
	if first.Document.ID != 7 || first.Document.Filename != "faq.md" || first.Document.ChunkIndex != 2 {
		t.Errorf("first document: got %+v", first.Document)
	}
	if first.Similarity != 0.9 {
		t.Errorf("similarity: expected 0.9, got %v", first.Similarity)
	}
}

// TestHandleSearch_NoResults verifies an empty result set yields an empty
// documents array, not null.
func TestHandleSearch_NoResults(t *testing.T) {
	t.Parallel()

	s, st := newTestServer(t, &fakeRetriever{}, nil, nil)
	_, m := seedModel(t, st, "docs")

	body := fmt.Sprintf(`{"query":"nothing matches","rag_model_id":%d}`, m.ID)
	req := httptest.NewRequest(http.MethodPost, "/api/search", strings.NewReader(body))
	w := httptest.NewRecorder()

	s.handleSearch(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"documents":[]`) {
		t.Errorf("expected empty documents array, got: %s", w.Body.String())
	}
}
