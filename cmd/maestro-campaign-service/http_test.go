// Copyright 2026 The Maestro Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/maestro-foundation/maestro/lib/schema/campaign"
)

func startTestHTTP(t *testing.T, cs *CampaignService) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(cs.httpHandler())
	t.Cleanup(server.Close)
	return server
}

// sseEvent is one parsed server-sent event.
type sseEvent struct {
	name string
	data string
}

// readSSE parses the event stream until the server closes it. Comment
// lines (heartbeats) are skipped.
func readSSE(t *testing.T, body io.Reader) []sseEvent {
	t.Helper()
	scanner := bufio.NewScanner(body)
	var events []sseEvent
	var current sseEvent
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if current.name != "" {
				events = append(events, current)
			}
			current = sseEvent{}
		case strings.HasPrefix(line, "event: "):
			current.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			current.data = strings.TrimPrefix(line, "data: ")
		case strings.HasPrefix(line, ":"):
			// Heartbeat comment.
		default:
			t.Fatalf("unexpected SSE line %q", line)
		}
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("reading SSE stream: %v", err)
	}
	return events
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	encoded, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	response, err := http.Post(url, "application/json", bytes.NewReader(encoded))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return response
}

func TestCreateCampaignSSE(t *testing.T) {
	cs, _ := newTestService(t)
	server := startTestHTTP(t, cs)

	response := postJSON(t, server.URL+"/v1/campaigns", map[string]any{
		"name":      "SSE Launch",
		"objective": "Convert trial users into paying subscribers",
	})
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", response.StatusCode)
	}
	if got := response.Header.Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("content type = %q", got)
	}

	events := readSSE(t, response.Body)
	if len(events) < 3 {
		t.Fatalf("got %d events, want at least started + messages + completed", len(events))
	}
	if events[0].name != "started" || events[len(events)-1].name != "completed" {
		t.Errorf("event names = %v", eventNames(events))
	}
	for _, middle := range events[1 : len(events)-1] {
		if middle.name != "agent_message" {
			t.Errorf("middle event = %q, want agent_message", middle.name)
		}
	}

	var completed campaign.Event
	if err := json.Unmarshal([]byte(events[len(events)-1].data), &completed); err != nil {
		t.Fatalf("decoding completed event: %v", err)
	}
	if completed.Status != campaign.StatusCompleted || completed.CampaignID == "" {
		t.Errorf("completed event = %+v", completed)
	}

	aggregate, err := cs.store.Get(t.Context(), completed.CampaignID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if aggregate.Name != "SSE Launch" || aggregate.Status != campaign.StatusCompleted {
		t.Errorf("aggregate = %s/%s", aggregate.Name, aggregate.Status)
	}
}

func eventNames(events []sseEvent) []string {
	names := make([]string, len(events))
	for i, event := range events {
		names[i] = event.name
	}
	return names
}

func TestCreateCampaignRejectsInvalidBody(t *testing.T) {
	cs, _ := newTestService(t)
	server := startTestHTTP(t, cs)

	response := postJSON(t, server.URL+"/v1/campaigns", map[string]any{
		"name":      "ab",
		"objective": "name below the minimum length",
	})
	defer response.Body.Close()

	if response.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", response.StatusCode)
	}
	var body errorBody
	if err := json.NewDecoder(response.Body).Decode(&body); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	if !strings.Contains(body.Error, "name") {
		t.Errorf("error = %q, want mention of name", body.Error)
	}
}

func TestGetCampaignHTTP(t *testing.T) {
	cs, _ := newTestService(t)
	created := runCampaign(t, cs)
	server := startTestHTTP(t, cs)

	response, err := http.Get(server.URL + "/v1/campaigns/" + created.ID)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", response.StatusCode)
	}

	var aggregate campaign.Campaign
	if err := json.NewDecoder(response.Body).Decode(&aggregate); err != nil {
		t.Fatalf("decoding aggregate: %v", err)
	}
	if aggregate.ID != created.ID || len(aggregate.Messages) != len(created.Messages) {
		t.Errorf("aggregate = %s with %d messages, want %s with %d",
			aggregate.ID, len(aggregate.Messages), created.ID, len(created.Messages))
	}

	missing, err := http.Get(server.URL + "/v1/campaigns/camp_000000000000")
	if err != nil {
		t.Fatalf("GET missing: %v", err)
	}
	defer missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Errorf("missing campaign status = %d, want 404", missing.StatusCode)
	}
}

func TestListCampaignsHTTP(t *testing.T) {
	cs, _ := newTestService(t)
	runCampaign(t, cs)
	runCampaign(t, cs)
	server := startTestHTTP(t, cs)

	response, err := http.Get(server.URL + "/v1/campaigns?status=completed&limit=10")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", response.StatusCode)
	}
	var list listResponse
	if err := json.NewDecoder(response.Body).Decode(&list); err != nil {
		t.Fatalf("decoding list: %v", err)
	}
	if list.Count != 2 || len(list.Campaigns) != 2 {
		t.Errorf("list = %+v, want 2 campaigns", list)
	}

	for _, bad := range []string{"?status=bogus", "?limit=x", "?limit=-1"} {
		response, err := http.Get(server.URL + "/v1/campaigns" + bad)
		if err != nil {
			t.Fatalf("GET %s: %v", bad, err)
		}
		response.Body.Close()
		if response.StatusCode != http.StatusBadRequest {
			t.Errorf("%s status = %d, want 400", bad, response.StatusCode)
		}
	}
}

func TestExperimentEndpointsHTTP(t *testing.T) {
	cs, _ := newTestService(t)
	created := runCampaign(t, cs)
	server := startTestHTTP(t, cs)
	experimentID := created.Experiment.ID

	// Analysis before any metrics: caller-addressable error.
	response, err := http.Get(fmt.Sprintf("%s/v1/experiments/%s/analysis", server.URL, experimentID))
	if err != nil {
		t.Fatalf("GET analysis: %v", err)
	}
	response.Body.Close()
	if response.StatusCode != http.StatusBadRequest {
		t.Errorf("analysis without metrics status = %d, want 400", response.StatusCode)
	}

	response = postJSON(t, fmt.Sprintf("%s/v1/experiments/%s/results", server.URL, experimentID), map[string]any{
		"variants": []map[string]any{
			{"label": "control", "impressions": 10000, "clicks": 1200, "conversions": 805},
			{"label": "A", "impressions": 10000, "clicks": 1350, "conversions": 895},
		},
	})
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		t.Fatalf("record status = %d, want 200", response.StatusCode)
	}
	var recorded recordResponse
	if err := json.NewDecoder(response.Body).Decode(&recorded); err != nil {
		t.Fatalf("decoding record response: %v", err)
	}
	if recorded.Recorded != 2 || recorded.Result == nil || recorded.Result.WinningVariant != "A" {
		t.Errorf("record response = %+v", recorded)
	}

	response, err = http.Get(fmt.Sprintf("%s/v1/experiments/%s/analysis", server.URL, experimentID))
	if err != nil {
		t.Fatalf("GET analysis: %v", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		t.Fatalf("analysis status = %d, want 200", response.StatusCode)
	}
	var result campaign.SignificanceResult
	if err := json.NewDecoder(response.Body).Decode(&result); err != nil {
		t.Fatalf("decoding analysis: %v", err)
	}
	if !result.IsSignificant || result.WinningVariant != "A" {
		t.Errorf("analysis = %+v, want significant winner A", result)
	}

	missing, err := http.Get(server.URL + "/v1/experiments/exp_000000000000/analysis")
	if err != nil {
		t.Fatalf("GET missing experiment: %v", err)
	}
	missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Errorf("missing experiment status = %d, want 404", missing.StatusCode)
	}
}

func TestHealthzHTTP(t *testing.T) {
	cs, _ := newTestService(t)
	server := startTestHTTP(t, cs)

	response, err := http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", response.StatusCode)
	}
	var health healthResponse
	if err := json.NewDecoder(response.Body).Decode(&health); err != nil {
		t.Fatalf("decoding health: %v", err)
	}
	if health.Status != "ok" {
		t.Errorf("health = %+v", health)
	}
}

func TestMethodNotAllowedHTTP(t *testing.T) {
	cs, _ := newTestService(t)
	created := runCampaign(t, cs)
	server := startTestHTTP(t, cs)

	for _, probe := range []struct {
		method string
		path   string
	}{
		{http.MethodDelete, "/v1/campaigns"},
		{http.MethodPost, "/v1/campaigns/" + created.ID},
		{http.MethodPost, "/v1/experiments/" + created.Experiment.ID + "/analysis"},
		{http.MethodGet, "/v1/experiments/" + created.Experiment.ID + "/results"},
		{http.MethodPost, "/healthz"},
	} {
		request, err := http.NewRequest(probe.method, server.URL+probe.path, nil)
		if err != nil {
			t.Fatalf("NewRequest: %v", err)
		}
		response, err := http.DefaultClient.Do(request)
		if err != nil {
			t.Fatalf("%s %s: %v", probe.method, probe.path, err)
		}
		response.Body.Close()
		if response.StatusCode != http.StatusMethodNotAllowed {
			t.Errorf("%s %s status = %d, want 405", probe.method, probe.path, response.StatusCode)
		}
	}
}
