package http

import (
	"net/http"

	"finsent/ml"
)

// handleStats reports pipeline counters, model info and process figures as
// one JSON document.
func (h *Handlers) handleStats(w http.ResponseWriter, r *http.Request) {
	if h.analyzer == nil {
		respondError(w, http.StatusServiceUnavailable, ml.ErrNotLoaded.Error())
		return
	}

	response := map[string]interface{}{
		"pipeline": h.analyzer.GetStats(),
		"model":    h.analyzer.ModelInfo(),
		"cache": map[string]interface{}{
			"entries": h.analyzer.CacheLen(),
		},
	}

	if h.collector != nil {
		response["uptime_seconds"] = h.collector.GetUptime().Seconds()
		response["system"] = h.collector.GetSystemStats()
		response["latency"] = map[string]interface{}{
			"analyze": h.collector.TimingSummary("analyze_latency"),
			"batch":   h.collector.TimingSummary("batch_latency"),
		}
	}
	if h.stream != nil {
		response["stream_clients"] = h.stream.ClientCount()
	}

	respondJSON(w, http.StatusOK, response)
}

// handleMetrics serves the Prometheus text exposition.
func (h *Handlers) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if h.collector == nil {
		respondError(w, http.StatusServiceUnavailable, "metrics disabled")
		return
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.Write([]byte(h.collector.ExportPrometheus()))
}
