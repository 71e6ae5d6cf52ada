// Copyright 2026 The Maestro Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// OpenAI implements [Generator] for the OpenAI Chat Completions API.
// It is compatible with any API that implements the OpenAI chat
// completions wire format (OpenAI, Azure OpenAI, OpenRouter, vLLM,
// Ollama, llama.cpp, etc.).
type OpenAI struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	limiter    *rate.Limiter
}

// OpenAIOptions configures [NewOpenAI].
type OpenAIOptions struct {
	// HTTPClient is used for all requests. nil uses http.DefaultClient.
	HTTPClient *http.Client

	// BaseURL is the API root, e.g. "https://api.openai.com/v1".
	// The chat completions path is appended.
	BaseURL string

	// APIKey is sent as a bearer token when non-empty.
	APIKey string

	// Model is the default model for requests that do not set one.
	Model string

	// RequestsPerMinute caps the request rate with evenly spaced
	// client-side throttling, so bursts of concurrent campaign runs
	// queue instead of tripping the provider's 429 responses.
	// Zero disables throttling.
	RequestsPerMinute int
}

// NewOpenAI creates an OpenAI-compatible generator.
func NewOpenAI(options OpenAIOptions) *OpenAI {
	httpClient := options.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	var limiter *rate.Limiter
	if options.RequestsPerMinute > 0 {
		interval := time.Minute / time.Duration(options.RequestsPerMinute)
		limiter = rate.NewLimiter(rate.Every(interval), 1)
	}

	return &OpenAI{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(options.BaseURL, "/"),
		apiKey:     options.APIKey,
		model:      options.Model,
		limiter:    limiter,
	}
}

// Complete sends a non-streaming request and returns the full response.
func (provider *OpenAI) Complete(ctx context.Context, request Request) (*Response, error) {
	if provider.limiter != nil {
		if err := provider.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("llm/openai: waiting for rate limit: %w", err)
		}
	}

	wireRequest := provider.buildRequest(request)

	httpResponse, err := doProviderRequest(ctx, provider.httpClient,
		provider.endpoint(), provider.apiKey, wireRequest, "llm/openai")
	if err != nil {
		return nil, err
	}
	defer httpResponse.Body.Close()

	var wireResp openaiResponse
	if err := json.NewDecoder(httpResponse.Body).Decode(&wireResp); err != nil {
		return nil, fmt.Errorf("llm/openai: decoding response: %w", err)
	}

	return wireResp.toResponse(), nil
}

// endpoint returns the chat completions URL.
func (provider *OpenAI) endpoint() string {
	return provider.baseURL + "/chat/completions"
}

// buildRequest converts our types to the OpenAI wire format.
func (provider *OpenAI) buildRequest(request Request) openaiRequest {
	wireRequest := openaiRequest{
		Model:     request.Model,
		MaxTokens: request.MaxTokens,
	}
	if wireRequest.Model == "" {
		wireRequest.Model = provider.model
	}
	if request.Temperature != nil {
		wireRequest.Temperature = request.Temperature
	}

	// System prompt becomes the first message with role "system".
	if request.System != "" {
		wireRequest.Messages = append(wireRequest.Messages, openaiMessage{
			Role:    "system",
			Content: request.System,
		})
	}

	for _, message := range request.Messages {
		wireRequest.Messages = append(wireRequest.Messages, openaiMessage{
			Role:    string(message.Role),
			Content: message.Content,
		})
	}

	return wireRequest
}

// --- OpenAI wire types ---
//
// These map directly to the OpenAI Chat Completions API JSON format.
// They are separate from the public types because the wire format uses
// different field names and conventions. Content is carried as a plain
// JSON string: campaign generation is text-only, so the polymorphic
// content-parts array form is never needed.

type openaiRequest struct {
	Model       string          `json:"model"`
	Messages    []openaiMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiResponse struct {
	ID      string         `json:"id"`
	Model   string         `json:"model"`
	Choices []openaiChoice `json:"choices"`
	Usage   openaiUsage    `json:"usage"`
}

type openaiChoice struct {
	Index        int           `json:"index"`
	Message      openaiMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type openaiUsage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
}

func (wireResponse *openaiResponse) toResponse() *Response {
	response := &Response{
		Model: wireResponse.Model,
		Usage: Usage{
			InputTokens:  wireResponse.Usage.PromptTokens,
			OutputTokens: wireResponse.Usage.CompletionTokens,
		},
	}

	if len(wireResponse.Choices) == 0 {
		return response
	}

	choice := wireResponse.Choices[0]
	response.StopReason = mapOpenAIFinishReason(choice.FinishReason)
	response.Text = choice.Message.Content

	return response
}

func mapOpenAIFinishReason(reason string) StopReason {
	switch reason {
	case "stop":
		return StopReasonEndTurn
	case "length":
		return StopReasonMaxTokens
	default:
		// Preserve unknown reasons (e.g., "content_filter") as-is
		// rather than silently mapping to a default.
		return StopReason(reason)
	}
}
