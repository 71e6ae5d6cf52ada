// Copyright 2026 The Maestro Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Generator is the interface for text generation backends.
// Implementations translate between the common types in this package
// and each vendor's wire format.
type Generator interface {
	// Complete sends a request and blocks until the full response is
	// available.
	Complete(ctx context.Context, request Request) (*Response, error)
}

// GeneratorFunc adapts a function to the [Generator] interface.
type GeneratorFunc func(ctx context.Context, request Request) (*Response, error)

// Complete calls the wrapped function.
func (f GeneratorFunc) Complete(ctx context.Context, request Request) (*Response, error) {
	return f(ctx, request)
}

// Role identifies the author of a conversation message.
type Role string

const (
	// RoleUser marks input supplied to the model.
	RoleUser Role = "user"
	// RoleAssistant marks prior model output carried as context.
	RoleAssistant Role = "assistant"
)

// Message is a single conversation turn.
type Message struct {
	Role    Role
	Content string
}

// Request is a provider-agnostic completion request.
type Request struct {
	// Model overrides the provider's configured default when non-empty.
	Model string

	// System is the system prompt, sent ahead of Messages.
	System string

	// Messages is the conversation so far, oldest first.
	Messages []Message

	// Temperature controls sampling variance. nil uses the provider's
	// default.
	Temperature *float64

	// MaxTokens caps the response length. Zero uses the provider's
	// default cap.
	MaxTokens int
}

// StopReason reports why the model stopped generating.
type StopReason string

const (
	// StopReasonEndTurn means the model finished naturally.
	StopReasonEndTurn StopReason = "end_turn"
	// StopReasonMaxTokens means the response was truncated at the
	// MaxTokens cap. Callers that parse structured output out of the
	// response should treat this as a failed attempt.
	StopReasonMaxTokens StopReason = "max_tokens"
)

// Usage reports token consumption for a completion.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Response is a provider-agnostic completion response.
type Response struct {
	// Model is the model that produced the response, as reported by
	// the provider.
	Model string

	// Text is the generated output.
	Text string

	// StopReason reports why generation stopped.
	StopReason StopReason

	// Usage reports token consumption.
	Usage Usage
}

// ProviderError is returned when the generation API responds with an error.
type ProviderError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Type is the provider-specific error type string
	// (e.g., "invalid_request_error", "rate_limit_error").
	Type string

	// Message is the human-readable error description.
	Message string
}

func (err *ProviderError) Error() string {
	if err.Type != "" {
		return fmt.Sprintf("llm: HTTP %d: %s: %s", err.StatusCode, err.Type, err.Message)
	}
	return fmt.Sprintf("llm: HTTP %d: %s", err.StatusCode, err.Message)
}

// IsRateLimited returns true if the error is a rate limit response (HTTP 429).
func (err *ProviderError) IsRateLimited() bool {
	return err.StatusCode == 429
}

// IsOverloaded returns true if the error is a server overload response (HTTP 529).
func (err *ProviderError) IsOverloaded() bool {
	return err.StatusCode == 529
}

// IsTransient returns true when a retry may succeed: rate limits and
// server-side failures. Other 4xx responses are permanent.
func (err *ProviderError) IsTransient() bool {
	return err.StatusCode == 429 || err.StatusCode >= 500
}

// doProviderRequest marshals wireRequest as JSON, POSTs it to endpoint
// via httpClient, and returns the HTTP response. Returns a ProviderError
// for non-200 status codes. When apiKey is non-empty it is sent as a
// bearer token.
//
// On success the caller is responsible for closing the response body.
// On error the body is already closed.
func doProviderRequest(ctx context.Context, httpClient *http.Client, endpoint, apiKey string, wireRequest any, prefix string) (*http.Response, error) {
	body, err := json.Marshal(wireRequest)
	if err != nil {
		return nil, fmt.Errorf("%s: marshaling request: %w", prefix, err)
	}

	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost,
		endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: creating request: %w", prefix, err)
	}
	httpRequest.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		httpRequest.Header.Set("Authorization", "Bearer "+apiKey)
	}

	httpResponse, err := httpClient.Do(httpRequest)
	if err != nil {
		return nil, fmt.Errorf("%s: sending request: %w", prefix, err)
	}

	if httpResponse.StatusCode != http.StatusOK {
		defer httpResponse.Body.Close()
		return nil, readProviderError(httpResponse)
	}

	return httpResponse, nil
}

// readProviderError parses an error response body in the common provider
// error format used by OpenAI and compatible APIs:
// {"error":{"type":"...","message":"..."}}. Extra fields in the error
// object (such as "code" and "param") are silently ignored.
func readProviderError(httpResponse *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(httpResponse.Body, 4096))

	var wireError struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &wireError) == nil && wireError.Error.Message != "" {
		return &ProviderError{
			StatusCode: httpResponse.StatusCode,
			Type:       wireError.Error.Type,
			Message:    wireError.Error.Message,
		}
	}

	return &ProviderError{
		StatusCode: httpResponse.StatusCode,
		Message:    string(body),
	}
}
