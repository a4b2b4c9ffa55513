package generate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func Test_Generate_SendsDefaultsAndReturnsAnswer(t *testing.T) {
	t.Parallel()

	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(Response{Answer: "the answer"})
	}))
	defer srv.Close()

	c, err := NewClient(Config{Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	resp, err := c.Generate(context.Background(), Request{
		SystemPrompt: "be helpful",
		Context:      "some context",
		Query:        "what is it?",
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if resp.Answer != "the answer" {
		t.Errorf("answer = %q", resp.Answer)
	}
	if got.MaxTokens != DefaultMaxTokens {
		t.Errorf("max_tokens = %d, want default %d", got.MaxTokens, DefaultMaxTokens)
	}
	if got.Temperature != DefaultTemperature {
		t.Errorf("temperature = %v, want default %v", got.Temperature, DefaultTemperature)
	}
}

func Test_Generate_ExplicitParamsKept(t *testing.T) {
	t.Parallel()

	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(Response{Answer: "ok"})
	}))
	defer srv.Close()

	c, _ := NewClient(Config{Endpoint: srv.URL})
	_, err := c.Generate(context.Background(), Request{Query: "q", MaxTokens: 50, Temperature: 0.1})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got.MaxTokens != 50 || got.Temperature != 0.1 {
		t.Errorf("explicit params overridden: %+v", got)
	}
}

func Test_Generate_BearerTokenSent(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer secret-key" {
			t.Errorf("authorization = %q", auth)
		}
		json.NewEncoder(w).Encode(Response{Answer: "ok"})
	}))
	defer srv.Close()

	c, _ := NewClient(Config{Endpoint: srv.URL, APIKey: "secret-key"})
	if _, err := c.Generate(context.Background(), Request{Query: "q"}); err != nil {
		t.Fatalf("generate: %v", err)
	}
}

func Test_Generate_ServiceErrorSurfaces(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, _ := NewClient(Config{Endpoint: srv.URL})
	_, err := c.Generate(context.Background(), Request{Query: "q"})
	if err == nil {
		t.Fatal("want error on 503")
	}
	if !strings.Contains(err.Error(), "503") {
		t.Errorf("error must carry the status: %v", err)
	}
}

func Test_Generate_TransportErrorSurfaces(t *testing.T) {
	t.Parallel()

	c, _ := NewClient(Config{Endpoint: "http://127.0.0.1:1"})
	if _, err := c.Generate(context.Background(), Request{Query: "q"}); err == nil {
		t.Fatal("want error on unreachable endpoint")
	}
}

func Test_NewClient_RequiresEndpoint(t *testing.T) {
	t.Parallel()

	if _, err := NewClient(Config{}); err == nil {
		t.Fatal("empty endpoint must be rejected")
	}
}
