package http

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"finsent/ml"
	"finsent/monitoring"
)

// handleAnalyze scores a single text. Validation failures are 400s with the
// exact error strings clients match on; inference failures surface as 500s
// with the error message in the body.
func (h *Handlers) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeBody(w, r)
	if !ok {
		return
	}

	text, ok := req["text"].(string)
	if !ok {
		respondError(w, http.StatusBadRequest, `Missing "text" field`)
		return
	}
	if strings.TrimSpace(text) == "" {
		respondError(w, http.StatusBadRequest, "Empty text")
		return
	}

	if h.analyzer == nil {
		respondError(w, http.StatusServiceUnavailable, ml.ErrNotLoaded.Error())
		return
	}

	start := time.Now()
	result, err := h.analyzer.Analyze(text)
	if err != nil {
		if h.collector != nil {
			h.collector.IncrCounter("analyze_errors", 1, nil)
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	elapsed := time.Since(start)

	if h.collector != nil {
		h.collector.IncrCounter("analyze_requests", 1, nil)
		h.collector.RecordTiming("analyze_latency", elapsed)
	}
	if h.stream != nil {
		h.stream.PublishResult(monitoring.ResultEvent{
			Snippet:    monitoring.Snippet(text, 50),
			Sentiment:  result.Sentiment,
			Score:      result.Score,
			Confidence: result.Confidence,
			ElapsedMS:  float64(elapsed.Microseconds()) / 1000,
		})
	}

	zap.S().Infof("Analyzed: %q -> %s (%.3f)", monitoring.Snippet(text, 50), result.Sentiment, result.Score)
	respondJSON(w, http.StatusOK, result)
}

// handleBatch scores a list of texts in order. Entries that are not strings
// or are blank after trimming are skipped, so the result list may be
// shorter than the input.
func (h *Handlers) handleBatch(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeBody(w, r)
	if !ok {
		return
	}

	raw, ok := req["texts"]
	if !ok {
		respondError(w, http.StatusBadRequest, `Missing "texts" field`)
		return
	}
	items, ok := raw.([]interface{})
	if !ok {
		respondError(w, http.StatusBadRequest, `"texts" must be an array`)
		return
	}

	if h.analyzer == nil {
		respondError(w, http.StatusServiceUnavailable, ml.ErrNotLoaded.Error())
		return
	}

	texts := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			texts = append(texts, s)
		}
	}

	start := time.Now()
	results, err := h.analyzer.AnalyzeBatch(texts)
	if err != nil {
		if h.collector != nil {
			h.collector.IncrCounter("batch_errors", 1, nil)
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	elapsed := time.Since(start)

	if h.collector != nil {
		h.collector.IncrCounter("batch_requests", 1, nil)
		h.collector.IncrCounter("batch_texts", float64(len(results)), nil)
		h.collector.RecordTiming("batch_latency", elapsed)
	}

	zap.S().Infof("Batch analyzed: %d texts", len(results))
	respondJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

// decodeBody parses the request body as a JSON object. On failure it writes
// the 400 response itself and reports false.
func decodeBody(w http.ResponseWriter, r *http.Request) (map[string]interface{}, bool) {
	var req map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON body")
		return nil, false
	}
	return req, true
}
