package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"storydub/internal/services"
)

func completionServer(t *testing.T, status int, content string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test" {
			t.Errorf("missing bearer token")
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "nope"})
			return
		}
		payload := map[string]any{
			"choices": []any{
				map[string]any{
					"finish_reason": "stop",
					"message": map[string]any{
						"content": content,
					},
				},
			},
		}
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			t.Errorf("encode response: %v", err)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestCompleteJSONReturnsContent(t *testing.T) {
	server := completionServer(t, http.StatusOK, `{"ok":true}`)
	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	content, err := client.CompleteJSON(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("CompleteJSON returned error: %v", err)
	}
	if content != `{"ok":true}` {
		t.Fatalf("unexpected content %q", content)
	}
}

func TestCompleteJSONCodeFenceDecodes(t *testing.T) {
	server := completionServer(t, http.StatusOK, "```json\n{\"ok\":true}\n```")
	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	content, err := client.CompleteJSON(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("CompleteJSON returned error: %v", err)
	}
	var parsed struct {
		OK bool `json:"ok"`
	}
	if err := DecodeLLMJSON(content, &parsed); err != nil || !parsed.OK {
		t.Fatalf("decode fenced reply: %v ok=%v", err, parsed.OK)
	}
}

func TestClientStatusErrors(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{http.StatusUnauthorized, false},
		{http.StatusTooManyRequests, true},
		{http.StatusServiceUnavailable, true},
	}
	for _, tt := range tests {
		server := completionServer(t, tt.status, "")
		client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo"})
		_, err := client.CompleteJSON(context.Background(), "system", "user")
		if err == nil {
			t.Fatalf("status %d: expected error", tt.status)
		}
		if services.IsRetryable(err) != tt.retryable {
			t.Fatalf("status %d: retryable = %v, want %v", tt.status, !tt.retryable, tt.retryable)
		}
	}
}

func TestClientEmptyContentIsTransient(t *testing.T) {
	server := completionServer(t, http.StatusOK, "")
	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo"})
	_, err := client.CompleteJSON(context.Background(), "system", "user")
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	var empty *emptyContentError
	if !errors.As(err, &empty) || empty.FinishReason != "stop" {
		t.Fatalf("expected empty content detail, got %v", err)
	}
}

func TestClientRequiresAPIKey(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://127.0.0.1:1"})
	if _, err := client.CompleteJSON(context.Background(), "s", "u"); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestBreakdownOrdersScenesAndBuildsMetadata(t *testing.T) {
	reply := `Here you go:
{"title": "लोमड़ी और अंगूर", "moral": "जो नहीं मिलता उसे बुरा मत कहो।",
 "scenes": [
  {"scene_number": 2, "narration": "अंगूर ऊँचे थे।", "image_prompt": "grapes high on a vine", "duration_hint": 3},
  {"scene_number": 1, "narration": "एक भूखी लोमड़ी थी।", "image_prompt": "a hungry fox", "duration_hint": 3},
  {"scene_number": 3, "narration": "", "image_prompt": "empty", "duration_hint": 1}
 ],
 "youtube_title": "The Fox and the Grapes", "youtube_description": "A classic fable.",
 "youtube_tags": ["fable", " ", "fox"]}`
	var prompt string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req completionRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if len(req.Messages) == 2 {
			prompt = req.Messages[1].Content
		}
		if req.ResponseFormat["type"] != "json_object" {
			t.Errorf("expected json mode, got %v", req.ResponseFormat)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"content": reply}}},
		})
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo"},
		WithLanguageNames(map[string]string{"hi-IN": "Hindi"}))
	got, err := client.Breakdown(context.Background(), "A fox saw grapes.", "hi-IN")
	if err != nil {
		t.Fatalf("Breakdown: %v", err)
	}
	if !strings.Contains(prompt, "Write in Hindi") || !strings.Contains(prompt, "A fox saw grapes.") {
		t.Fatalf("prompt missing language or story: %q", prompt)
	}
	if got.Title != "The Fox and the Grapes" {
		t.Fatalf("unexpected title %q", got.Title)
	}
	if len(got.Scenes) != 2 || got.Scenes[0].ImagePrompt != "a hungry fox" {
		t.Fatalf("scenes should be ordered and filtered, got %+v", got.Scenes)
	}
	if len(got.Tags) != 2 || !strings.Contains(got.Description, "जो नहीं मिलता") {
		t.Fatalf("unexpected metadata %+v", got)
	}
}

func TestBreakdownUnparseableReplyIsTransient(t *testing.T) {
	server := completionServer(t, http.StatusOK, "no json here")
	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo"})
	_, err := client.Breakdown(context.Background(), "story", "hi-IN")
	if !services.IsRetryable(err) {
		t.Fatalf("expected retryable parse failure, got %v", err)
	}
}

func TestDecodeLLMJSON(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{"plain", `{"ok":true}`, false},
		{"fenced", "```json\n{\"ok\":true}\n```", false},
		{"prose", `Sure! {"ok":true} Hope that helps.`, false},
		{"empty", "   ", true},
		{"garbage", "nothing", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out struct {
				OK bool `json:"ok"`
			}
			err := DecodeLLMJSON(tt.content, &out)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeLLMJSON err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !out.OK {
				t.Fatal("expected ok=true")
			}
		})
	}
}
