// Copyright 2026 The Maestro Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/maestro-foundation/maestro/lib/schema/campaign"
)

// maxHTTPBodySize bounds request bodies on the HTTP surface, matching
// the socket protocol's request limit.
const maxHTTPBodySize = 1 << 20

// httpHandler assembles the HTTP surface. The routes mirror the socket
// actions for clients that cannot speak the CBOR protocol:
//
//	POST /v1/campaigns                     start a run, stream events as SSE
//	GET  /v1/campaigns                     list campaign summaries
//	GET  /v1/campaigns/{id}                fetch the full aggregate
//	GET  /v1/experiments/{id}/analysis     significance analysis
//	POST /v1/experiments/{id}/results      record observed metrics
//	GET  /healthz                          liveness probe
func (cs *CampaignService) httpHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/campaigns", cs.handleCampaigns)
	mux.HandleFunc("/v1/campaigns/", cs.handleCampaignByID)
	mux.HandleFunc("/v1/experiments/", cs.handleExperimentHTTP)
	mux.HandleFunc("/healthz", cs.handleHealthz)
	return requestLogger(cs.logger, mux)
}

// handleCampaigns serves the campaign collection: GET lists summaries,
// POST starts a run and streams its events.
func (cs *CampaignService) handleCampaigns(writer http.ResponseWriter, request *http.Request) {
	switch request.Method {
	case http.MethodGet:
		cs.handleListHTTP(writer, request)
	case http.MethodPost:
		cs.handleCreateSSE(writer, request)
	default:
		http.Error(writer, "", http.StatusMethodNotAllowed)
	}
}

// handleCreateSSE starts a campaign run and streams its events as
// server-sent events: one "event:" line carrying the campaign event
// type, one "data:" line carrying the event JSON. Idle gaps carry SSE
// comment lines as heartbeats. The run is not tied to the connection;
// a client that disconnects mid-run can resume via watch or re-fetch
// the aggregate.
func (cs *CampaignService) handleCreateSSE(writer http.ResponseWriter, request *http.Request) {
	var createRequest campaign.CreateRequest
	if err := json.NewDecoder(io.LimitReader(request.Body, maxHTTPBodySize)).Decode(&createRequest); err != nil {
		writeError(writer, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := createRequest.Validate(); err != nil {
		writeError(writer, http.StatusBadRequest, err.Error())
		return
	}

	flusher, ok := writer.(http.Flusher)
	if !ok {
		writeError(writer, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	campaignID, bus, err := cs.pipeline.Start(request.Context(), createRequest)
	if err != nil {
		writeError(writer, http.StatusInternalServerError, err.Error())
		return
	}

	writer.Header().Set("Content-Type", "text/event-stream")
	writer.Header().Set("Cache-Control", "no-cache")
	writer.Header().Set("Connection", "keep-alive")
	writer.WriteHeader(http.StatusOK)
	flusher.Flush()

	cs.logger.Info("campaign SSE stream started", "campaign", campaignID, "name", createRequest.Name)
	defer cs.logger.Info("campaign SSE stream ended", "campaign", campaignID)

	subscription := bus.Subscribe()
	defer bus.Unsubscribe(subscription)

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-request.Context().Done():
			return

		case event, ok := <-subscription.Events():
			if !ok {
				if subscription.Overflowed() {
					cs.logger.Warn("SSE stream overflowed", "campaign", campaignID)
					writeSSE(writer, flusher, "overflow", nil)
				}
				return
			}
			if err := writeSSE(writer, flusher, string(event.Type), event); err != nil {
				cs.logger.Debug("SSE stream write error",
					"campaign", campaignID, "error", err)
				return
			}

		case <-heartbeat.C:
			// Comment line: EventSource clients ignore it, proxies see
			// traffic.
			if _, err := io.WriteString(writer, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// handleListHTTP serves GET /v1/campaigns with optional status and
// limit query parameters.
func (cs *CampaignService) handleListHTTP(writer http.ResponseWriter, request *http.Request) {
	query := request.URL.Query()

	statusFilter := campaign.Status(query.Get("status"))
	if statusFilter != "" && !campaign.IsValidStatus(statusFilter) {
		writeError(writer, http.StatusBadRequest, fmt.Sprintf("unknown status %q", string(statusFilter)))
		return
	}

	limit := 0
	if raw := query.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(writer, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", raw))
			return
		}
		limit = parsed
	}

	campaigns, err := cs.store.List(request.Context(), statusFilter, limit)
	if err != nil {
		writeError(writer, http.StatusInternalServerError, err.Error())
		return
	}

	summaries := make([]campaignSummary, 0, len(campaigns))
	for _, c := range campaigns {
		summaries = append(summaries, summarize(c))
	}
	writeJSON(writer, http.StatusOK, listResponse{Campaigns: summaries, Count: len(summaries)})
}

// handleCampaignByID serves GET /v1/campaigns/{id}, returning the full
// aggregate including the transcript.
func (cs *CampaignService) handleCampaignByID(writer http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodGet {
		http.Error(writer, "", http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimPrefix(request.URL.Path, "/v1/campaigns/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(writer, request)
		return
	}

	aggregate, err := cs.store.Get(request.Context(), id)
	if errors.Is(err, ErrNotFound) {
		writeError(writer, http.StatusNotFound, "campaign "+id+": not found")
		return
	}
	if err != nil {
		writeError(writer, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(writer, http.StatusOK, aggregate)
}

// handleExperimentHTTP routes /v1/experiments/{id}/analysis and
// /v1/experiments/{id}/results.
func (cs *CampaignService) handleExperimentHTTP(writer http.ResponseWriter, request *http.Request) {
	rest := strings.TrimPrefix(request.URL.Path, "/v1/experiments/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" {
		http.NotFound(writer, request)
		return
	}
	experimentID := parts[0]

	switch parts[1] {
	case "analysis":
		if request.Method != http.MethodGet {
			http.Error(writer, "", http.StatusMethodNotAllowed)
			return
		}
		var confidence float64
		if raw := request.URL.Query().Get("confidence"); raw != "" {
			parsed, err := strconv.ParseFloat(raw, 64)
			if err != nil || parsed <= 0 || parsed >= 1 {
				writeError(writer, http.StatusBadRequest, "confidence must be a number in (0, 1)")
				return
			}
			confidence = parsed
		}
		result, err := cs.analyzeExperiment(request.Context(), experimentID, confidence)
		if err != nil {
			writeError(writer, httpStatusFor(err), err.Error())
			return
		}
		writeJSON(writer, http.StatusOK, result)

	case "results":
		if request.Method != http.MethodPost {
			http.Error(writer, "", http.StatusMethodNotAllowed)
			return
		}
		cs.handleRecordHTTP(writer, request, experimentID)

	default:
		http.NotFound(writer, request)
	}
}

// handleRecordHTTP decodes a results body and records it for the
// experiment named in the URL path.
func (cs *CampaignService) handleRecordHTTP(writer http.ResponseWriter, request *http.Request, experimentID string) {
	var body recordRequest
	if err := json.NewDecoder(io.LimitReader(request.Body, maxHTTPBodySize)).Decode(&body); err != nil {
		writeError(writer, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(body.Variants) == 0 {
		writeError(writer, http.StatusBadRequest, "missing required field: variants")
		return
	}

	recordedAt := cs.clock.Now().UnixNano()
	metrics := make([]campaign.VariantMetrics, len(body.Variants))
	for i, v := range body.Variants {
		metrics[i] = campaign.VariantMetrics{
			VariantLabel: v.Label,
			Impressions:  v.Impressions,
			Clicks:       v.Clicks,
			Conversions:  v.Conversions,
			RecordedAt:   recordedAt,
		}
		if err := metrics[i].Validate(); err != nil {
			writeError(writer, http.StatusBadRequest, err.Error())
			return
		}
	}

	response, err := cs.recordMetrics(request.Context(), experimentID, metrics)
	if err != nil {
		writeError(writer, httpStatusFor(err), err.Error())
		return
	}
	writeJSON(writer, http.StatusOK, response)
}

// handleHealthz is the liveness probe.
func (cs *CampaignService) handleHealthz(writer http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodGet {
		http.Error(writer, "", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(writer, http.StatusOK, healthResponse{
		Status:        "ok",
		UptimeSeconds: cs.clock.Now().Sub(cs.startedAt).Seconds(),
	})
}

// healthResponse is the healthz body.
type healthResponse struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// errorBody is the JSON error shape for all non-2xx responses.
type errorBody struct {
	Error string `json:"error"`
}

// httpStatusFor maps handler errors onto coarse HTTP classes: missing
// resources to 404, concurrent-update exhaustion to 409, and every
// other caller-addressable condition (insufficient metrics, unknown
// arm) to 400.
func httpStatusFor(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrVersionConflict):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

// writeJSON writes v as the JSON response body. Encode failures are
// connection failures; the status already went out, so there is
// nothing left to report to the client.
func writeJSON(writer http.ResponseWriter, status int, v any) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	json.NewEncoder(writer).Encode(v)
}

// writeError writes a JSON error body with the given status.
func writeError(writer http.ResponseWriter, status int, message string) {
	writeJSON(writer, status, errorBody{Error: message})
}

// writeSSE writes one server-sent event and flushes it. A nil payload
// sends an empty JSON object.
func writeSSE(writer http.ResponseWriter, flusher http.Flusher, eventType string, payload any) error {
	data := []byte("{}")
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		data = encoded
	}
	if _, err := fmt.Fprintf(writer, "event: %s\ndata: %s\n\n", eventType, data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

// requestLogger logs one line per completed request. SSE streams log
// on disconnect with the full stream duration.
func requestLogger(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: writer, status: http.StatusOK}
		next.ServeHTTP(recorder, request)
		logger.Info("http request",
			"method", request.Method,
			"path", request.URL.Path,
			"status", recorder.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// statusRecorder captures the response status for request logging. It
// forwards Flush so SSE handlers can stream through it.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
