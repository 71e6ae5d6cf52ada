// Copyright 2026 The Maestro Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"slices"
	"strings"
	"sync"
)

// Scripted implements [Generator] with deterministic canned responses
// and no network access. It serves development deployments and tests.
//
// Rules are tried in order; the first rule whose Match substring
// appears in the request's system prompt wins. Requests matching no
// rule receive the Fallback response, or an echo of the last user
// message when no Fallback is set.
type Scripted struct {
	// Rules are tried in order against the request's system prompt.
	Rules []ScriptRule

	// Fallback builds the response when no rule matches. nil echoes
	// the last user message.
	Fallback func(Request) string

	mutex sync.Mutex
	calls []Request
}

// ScriptRule pairs a system-prompt marker with a response builder.
type ScriptRule struct {
	// Match is a substring searched for in the request's system prompt.
	Match string

	// Respond builds the response text from the request.
	Respond func(Request) string
}

// Complete returns the scripted response for the request. Generation
// never fails, but context cancellation is honored so timeout paths
// behave the same as with a live provider.
func (provider *Scripted) Complete(ctx context.Context, request Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	provider.mutex.Lock()
	provider.calls = append(provider.calls, request)
	provider.mutex.Unlock()

	text := provider.respond(request)
	return &Response{
		Model:      "scripted",
		Text:       text,
		StopReason: StopReasonEndTurn,
		// Rough 4-characters-per-token estimate, for log lines only.
		Usage: Usage{OutputTokens: int64(len(text) / 4)},
	}, nil
}

func (provider *Scripted) respond(request Request) string {
	for _, rule := range provider.Rules {
		if rule.Match != "" && strings.Contains(request.System, rule.Match) {
			return rule.Respond(request)
		}
	}
	if provider.Fallback != nil {
		return provider.Fallback(request)
	}
	// Echo the last user message so unmatched requests show up in
	// transcripts rather than coming back silently empty.
	for i := len(request.Messages) - 1; i >= 0; i-- {
		if request.Messages[i].Role == RoleUser {
			return request.Messages[i].Content
		}
	}
	return ""
}

// Calls returns a copy of every request received, in order.
func (provider *Scripted) Calls() []Request {
	provider.mutex.Lock()
	defer provider.mutex.Unlock()
	return slices.Clone(provider.calls)
}
