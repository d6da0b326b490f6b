package vision

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func newTestGemini(srv *httptest.Server) *Gemini {
	g := NewGemini("test-key", "test-model")
	g.BaseURL = srv.URL
	g.HTTPClient = srv.Client()
	return g
}

func okResponse(text string) string {
	return `{"candidates":[{"content":{"parts":[{"text":` + jsonString(text) + `}]}}]}`
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestAnalyzeSendsInlineImage(t *testing.T) {
	var gotBody generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "test-model") {
			t.Errorf("model missing from path: %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write([]byte(okResponse("распознано")))
	}))
	defer srv.Close()

	text, err := newTestGemini(srv).Analyze(context.Background(), []byte{0xff, 0xd8}, "что на фото?")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if text != "распознано" {
		t.Errorf("text = %q", text)
	}
	parts := gotBody.Contents[0].Parts
	if len(parts) != 2 || parts[0].Text != "что на фото?" || parts[1].InlineData == nil {
		t.Errorf("unexpected request parts: %+v", parts)
	}
	if parts[1].InlineData.Data == "" {
		t.Error("image not encoded into the request")
	}
}

func TestAnalyzeRetriesOnOverload(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(okResponse("ok")))
	}))
	defer srv.Close()

	text, err := newTestGemini(srv).Analyze(context.Background(), nil, "p")
	if err != nil {
		t.Fatalf("Analyze after retries: %v", err)
	}
	if text != "ok" {
		t.Errorf("text = %q", text)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("requests = %d, want 3", got)
	}
}

func TestAnalyzeGivesUpAfterThreeOverloads(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestGemini(srv).Analyze(context.Background(), nil, "p")
	if err == nil || !strings.Contains(err.Error(), "overloaded") {
		t.Fatalf("expected overload error, got %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("requests = %d, want 3", got)
	}
}

func TestAnalyzeAPIErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"error":{"code":400,"message":"invalid argument"}}`))
	}))
	defer srv.Close()

	_, err := newTestGemini(srv).Analyze(context.Background(), nil, "p")
	if err == nil || !strings.Contains(err.Error(), "invalid argument") {
		t.Fatalf("expected api error, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("requests = %d, want 1", got)
	}
}

func TestAnalyzeTokenLimitTruncation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[{"finishReason":"MAX_TOKENS","content":{"parts":[]}}]}`))
	}))
	defer srv.Close()

	_, err := newTestGemini(srv).Analyze(context.Background(), nil, "p")
	if err == nil || !strings.Contains(err.Error(), "token limit") {
		t.Fatalf("expected truncation error, got %v", err)
	}
}

func TestAnalyzeEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[]}`))
	}))
	defer srv.Close()

	_, err := newTestGemini(srv).Analyze(context.Background(), nil, "p")
	if err == nil || !strings.Contains(err.Error(), "empty response") {
		t.Fatalf("expected empty-response error, got %v", err)
	}
}
