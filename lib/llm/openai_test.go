// Copyright 2026 The Maestro Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

// openaiTestServer creates a test HTTP server and returns an OpenAI
// provider connected to it.
func openaiTestServer(t *testing.T, handler http.Handler) *OpenAI {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewOpenAI(OpenAIOptions{
		BaseURL: server.URL + "/v1",
		APIKey:  "sk-test-key",
		Model:   "gpt-4o",
	})
}

func TestOpenAIComplete(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", func(writer http.ResponseWriter, request *http.Request) {
		if auth := request.Header.Get("Authorization"); auth != "Bearer sk-test-key" {
			t.Errorf("Authorization = %q, want Bearer sk-test-key", auth)
		}
		if contentType := request.Header.Get("Content-Type"); contentType != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", contentType)
		}

		// Verify request format.
		var wireRequest struct {
			Model       string   `json:"model"`
			MaxTokens   int      `json:"max_tokens"`
			Temperature *float64 `json:"temperature"`
			Messages    []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(request.Body).Decode(&wireRequest); err != nil {
			writer.WriteHeader(http.StatusBadRequest)
			return
		}

		if wireRequest.Model != "gpt-4o" {
			t.Errorf("model = %q, want gpt-4o", wireRequest.Model)
		}
		if wireRequest.MaxTokens != 1024 {
			t.Errorf("max_tokens = %d, want 1024", wireRequest.MaxTokens)
		}
		if wireRequest.Temperature == nil || *wireRequest.Temperature != 0.5 {
			t.Errorf("temperature = %v, want 0.5", wireRequest.Temperature)
		}

		// Should have 2 messages: system + user.
		if length := len(wireRequest.Messages); length != 2 {
			t.Errorf("messages length = %d, want 2", length)
		} else {
			if wireRequest.Messages[0].Role != "system" {
				t.Errorf("messages[0].role = %q, want system", wireRequest.Messages[0].Role)
			}
			if wireRequest.Messages[0].Content != "You are a campaign strategist." {
				t.Errorf("system content = %q", wireRequest.Messages[0].Content)
			}
			if wireRequest.Messages[1].Role != "user" {
				t.Errorf("messages[1].role = %q, want user", wireRequest.Messages[1].Role)
			}
		}

		writer.Header().Set("Content-Type", "application/json")
		json.NewEncoder(writer).Encode(map[string]any{
			"id":    "chatcmpl-test",
			"model": "gpt-4o",
			"choices": []map[string]any{{
				"index": 0,
				"message": map[string]any{
					"role":    "assistant",
					"content": "Lead with the loyalty discount.",
				},
				"finish_reason": "stop",
			}},
			"usage": map[string]any{
				"prompt_tokens":     100,
				"completion_tokens": 15,
			},
		})
	})

	provider := openaiTestServer(t, mux)

	temperature := 0.5
	response, err := provider.Complete(context.Background(), Request{
		System: "You are a campaign strategist.",
		Messages: []Message{
			{Role: RoleUser, Content: "Plan a reactivation campaign."},
		},
		Temperature: &temperature,
		MaxTokens:   1024,
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if response.Text != "Lead with the loyalty discount." {
		t.Errorf("text = %q", response.Text)
	}
	if response.Model != "gpt-4o" {
		t.Errorf("model = %q, want gpt-4o", response.Model)
	}
	if response.StopReason != StopReasonEndTurn {
		t.Errorf("stop reason = %q, want end_turn", response.StopReason)
	}
	if response.Usage.InputTokens != 100 || response.Usage.OutputTokens != 15 {
		t.Errorf("usage = %+v, want 100/15", response.Usage)
	}
}

func TestOpenAICompleteDefaultModel(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", func(writer http.ResponseWriter, request *http.Request) {
		var wireRequest struct {
			Model string `json:"model"`
		}
		json.NewDecoder(request.Body).Decode(&wireRequest)
		if wireRequest.Model != "gpt-4o" {
			t.Errorf("model = %q, want configured default gpt-4o", wireRequest.Model)
		}

		writer.Header().Set("Content-Type", "application/json")
		json.NewEncoder(writer).Encode(map[string]any{
			"model": "gpt-4o",
			"choices": []map[string]any{{
				"message":       map[string]any{"role": "assistant", "content": "ok"},
				"finish_reason": "stop",
			}},
		})
	})

	provider := openaiTestServer(t, mux)

	// No Model on the request: the provider's configured model is used.
	response, err := provider.Complete(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Content: "hello"}},
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if response.Text != "ok" {
		t.Errorf("text = %q, want ok", response.Text)
	}
}

func TestOpenAICompleteTruncated(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Set("Content-Type", "application/json")
		json.NewEncoder(writer).Encode(map[string]any{
			"model": "gpt-4o",
			"choices": []map[string]any{{
				"message":       map[string]any{"role": "assistant", "content": "partial out"},
				"finish_reason": "length",
			}},
		})
	})

	provider := openaiTestServer(t, mux)

	response, err := provider.Complete(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Content: "hello"}},
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if response.StopReason != StopReasonMaxTokens {
		t.Errorf("stop reason = %q, want max_tokens", response.StopReason)
	}
}

func TestOpenAICompleteAPIError(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Set("Content-Type", "application/json")
		writer.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(writer).Encode(map[string]any{
			"error": map[string]any{
				"type":    "rate_limit_error",
				"message": "Rate limit exceeded",
			},
		})
	})

	provider := openaiTestServer(t, mux)

	_, err := provider.Complete(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Content: "hello"}},
	})
	if err == nil {
		t.Fatal("expected error for 429 response")
	}

	var providerError *ProviderError
	if !errors.As(err, &providerError) {
		t.Fatalf("expected *ProviderError, got %T: %v", err, err)
	}
	if providerError.StatusCode != 429 {
		t.Errorf("status code = %d, want 429", providerError.StatusCode)
	}
	if providerError.Type != "rate_limit_error" {
		t.Errorf("type = %q, want rate_limit_error", providerError.Type)
	}
	if !providerError.IsRateLimited() {
		t.Error("IsRateLimited should be true for 429")
	}
	if !providerError.IsTransient() {
		t.Error("IsTransient should be true for 429")
	}
}

func TestOpenAICompletePlainTextError(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusBadGateway)
		writer.Write([]byte("upstream unavailable"))
	})

	provider := openaiTestServer(t, mux)

	_, err := provider.Complete(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Content: "hello"}},
	})

	var providerError *ProviderError
	if !errors.As(err, &providerError) {
		t.Fatalf("expected *ProviderError, got %T: %v", err, err)
	}
	if providerError.StatusCode != 502 {
		t.Errorf("status code = %d, want 502", providerError.StatusCode)
	}
	if providerError.Message != "upstream unavailable" {
		t.Errorf("message = %q", providerError.Message)
	}
	if !providerError.IsTransient() {
		t.Error("IsTransient should be true for 502")
	}
}

func TestOpenAICompletePermanentError(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Set("Content-Type", "application/json")
		writer.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(writer).Encode(map[string]any{
			"error": map[string]any{
				"type":    "invalid_request_error",
				"message": "model not found",
			},
		})
	})

	provider := openaiTestServer(t, mux)

	_, err := provider.Complete(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Content: "hello"}},
	})

	var providerError *ProviderError
	if !errors.As(err, &providerError) {
		t.Fatalf("expected *ProviderError, got %T: %v", err, err)
	}
	if providerError.IsTransient() {
		t.Error("IsTransient should be false for 400")
	}
	if providerError.IsRateLimited() {
		t.Error("IsRateLimited should be false for 400")
	}
}

func TestOpenAICompleteContextCanceled(t *testing.T) {
	t.Parallel()

	provider := openaiTestServer(t, http.NotFoundHandler())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := provider.Complete(ctx, Request{
		Messages: []Message{{Role: RoleUser, Content: "hello"}},
	})
	if err == nil {
		t.Fatal("expected error for canceled context")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled in chain, got %v", err)
	}
}

func TestNewOpenAIDefaults(t *testing.T) {
	t.Parallel()

	provider := NewOpenAI(OpenAIOptions{
		BaseURL: "https://api.openai.com/v1/",
		Model:   "gpt-4o",
	})

	if provider.httpClient != http.DefaultClient {
		t.Error("nil HTTPClient should default to http.DefaultClient")
	}
	if provider.limiter != nil {
		t.Error("zero RequestsPerMinute should disable the limiter")
	}
	if got := provider.endpoint(); got != "https://api.openai.com/v1/chat/completions" {
		t.Errorf("endpoint = %q", got)
	}

	limited := NewOpenAI(OpenAIOptions{BaseURL: "http://x", RequestsPerMinute: 60})
	if limited.limiter == nil {
		t.Error("RequestsPerMinute=60 should install a limiter")
	}
}

func TestMapOpenAIFinishReason(t *testing.T) {
	t.Parallel()

	tests := []struct {
		reason string
		want   StopReason
	}{
		{"stop", StopReasonEndTurn},
		{"length", StopReasonMaxTokens},
		{"content_filter", StopReason("content_filter")},
	}

	for _, tt := range tests {
		if got := mapOpenAIFinishReason(tt.reason); got != tt.want {
			t.Errorf("mapOpenAIFinishReason(%q) = %q, want %q", tt.reason, got, tt.want)
		}
	}
}

func TestProviderErrorMessage(t *testing.T) {
	t.Parallel()

	withType := &ProviderError{StatusCode: 429, Type: "rate_limit_error", Message: "slow down"}
	if got := withType.Error(); got != "llm: HTTP 429: rate_limit_error: slow down" {
		t.Errorf("Error() = %q", got)
	}

	withoutType := &ProviderError{StatusCode: 500, Message: "boom"}
	if got := withoutType.Error(); got != "llm: HTTP 500: boom" {
		t.Errorf("Error() = %q", got)
	}

	overloaded := &ProviderError{StatusCode: 529}
	if !overloaded.IsOverloaded() {
		t.Error("IsOverloaded should be true for 529")
	}
	if !overloaded.IsTransient() {
		t.Error("IsTransient should be true for 529")
	}
}
