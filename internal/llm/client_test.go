package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

type stubProvider struct {
	calls   int
	results []error
	text    string
	models  []string
}

func (p *stubProvider) complete(_ context.Context, model, _ string) (string, error) {
	p.models = append(p.models, model)
	idx := p.calls
	p.calls++
	if idx < len(p.results) && p.results[idx] != nil {
		return "", p.results[idx]
	}
	return p.text, nil
}

func (p *stubProvider) modelFor(premium bool) string {
	if premium {
		return "pro-model"
	}
	return "base-model"
}

func (p *stubProvider) name() string { return "stub" }

func newTestClient(p provider) *Client {
	return &Client{
		provider:   p,
		limiter:    rate.NewLimiter(rate.Inf, 1),
		retryPause: time.Millisecond,
	}
}

func TestCompleteRetriesOnServerError(t *testing.T) {
	stub := &stubProvider{
		results: []error{&statusError{status: 503, body: "overloaded"}},
		text:    "second time lucky",
	}
	client := newTestClient(stub)

	got, err := client.Complete(context.Background(), "prompt", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "second time lucky" {
		t.Fatalf("got %q", got)
	}
	if stub.calls != 2 {
		t.Fatalf("calls = %d, want 2", stub.calls)
	}
}

func TestCompleteDoesNotRetryClientError(t *testing.T) {
	stub := &stubProvider{
		results: []error{&statusError{status: 401, body: "bad key"}},
	}
	client := newTestClient(stub)

	_, err := client.Complete(context.Background(), "prompt", false)
	if err == nil {
		t.Fatal("expected error")
	}
	var se *statusError
	if !errors.As(err, &se) || se.status != 401 {
		t.Fatalf("error = %v", err)
	}
	if stub.calls != 1 {
		t.Fatalf("calls = %d, want 1", stub.calls)
	}
}

func TestCompleteSelectsModelByTier(t *testing.T) {
	stub := &stubProvider{text: "ok"}
	client := newTestClient(stub)

	if _, err := client.Complete(context.Background(), "prompt", true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := client.Complete(context.Background(), "prompt", false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(stub.models) != 2 || stub.models[0] != "pro-model" || stub.models[1] != "base-model" {
		t.Fatalf("models = %v", stub.models)
	}
}

func TestCompleteStopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stub := &stubProvider{text: "ok"}
	client := newTestClient(stub)

	if _, err := client.Complete(ctx, "prompt", false); err == nil {
		t.Fatal("expected error from canceled context")
	}
	if stub.calls != 0 {
		t.Fatalf("calls = %d, want 0", stub.calls)
	}
}

func TestOpenAIProviderRoundTrip(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization header = %q", got)
		}

		var req openaiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "base-model" {
			t.Errorf("model = %q", req.Model)
		}

		_ = json.NewEncoder(w).Encode(openaiResponse{
			Choices: []struct {
				Message openaiMessage `json:"message"`
			}{{Message: openaiMessage{Role: "assistant", Content: "hello from upstream"}}},
		})
	}))
	defer server.Close()

	p := &openaiProvider{
		apiKey:     "test-key",
		model:      "base-model",
		proModel:   "pro-model",
		httpClient: server.Client(),
		baseURL:    server.URL,
	}
	client := newTestClient(p)

	got, err := client.Complete(context.Background(), "say hello", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "hello from upstream" {
		t.Fatalf("got %q", got)
	}
	if requests.Load() != 1 {
		t.Fatalf("requests = %d, want 1", requests.Load())
	}
}

func TestOpenAIProviderSurfacesUpstreamStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	p := &openaiProvider{
		apiKey:     "test-key",
		model:      "base-model",
		httpClient: server.Client(),
		baseURL:    server.URL,
	}

	_, err := p.complete(context.Background(), "base-model", "prompt")
	var se *statusError
	if !errors.As(err, &se) {
		t.Fatalf("expected statusError, got %v", err)
	}
	if se.status != http.StatusTooManyRequests {
		t.Fatalf("status = %d", se.status)
	}
}

func TestGeminiProviderRoundTrip(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if r.URL.Path != "/base-model:generateContent" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("key"); got != "test-key" {
			t.Errorf("key = %q", got)
		}

		var req geminiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Contents) != 1 || len(req.Contents[0].Parts) != 1 {
			t.Errorf("contents = %+v", req.Contents)
		} else if req.Contents[0].Parts[0].Text != "say hello" {
			t.Errorf("prompt = %q", req.Contents[0].Parts[0].Text)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"hello from gemini"}]}}]}`))
	}))
	defer server.Close()

	p := &geminiProvider{
		apiKey:     "test-key",
		model:      "base-model",
		proModel:   "pro-model",
		httpClient: server.Client(),
		baseURL:    server.URL,
	}
	client := newTestClient(p)

	got, err := client.Complete(context.Background(), "say hello", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "hello from gemini" {
		t.Fatalf("got %q", got)
	}
	if requests.Load() != 1 {
		t.Fatalf("requests = %d, want 1", requests.Load())
	}
}

func TestGeminiProviderSurfacesUpstreamStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "backend overloaded", http.StatusInternalServerError)
	}))
	defer server.Close()

	p := &geminiProvider{
		apiKey:     "test-key",
		model:      "base-model",
		httpClient: server.Client(),
		baseURL:    server.URL,
	}

	_, err := p.complete(context.Background(), "base-model", "prompt")
	var se *statusError
	if !errors.As(err, &se) {
		t.Fatalf("expected statusError, got %v", err)
	}
	if se.status != http.StatusInternalServerError {
		t.Fatalf("status = %d", se.status)
	}
}

func TestGeminiProviderRejectsEmptyCandidates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	defer server.Close()

	p := &geminiProvider{
		apiKey:     "test-key",
		model:      "base-model",
		httpClient: server.Client(),
		baseURL:    server.URL,
	}

	if _, err := p.complete(context.Background(), "base-model", "prompt"); err == nil {
		t.Fatal("expected error for empty candidates")
	}
}
