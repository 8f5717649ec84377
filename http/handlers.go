package http

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"finsent/monitoring"
	"finsent/pipeline"
)

// Handlers bundles the dependencies the HTTP layer serves from. They are
// constructed once at startup and passed in; handlers never reach for
// package globals.
type Handlers struct {
	analyzer  *pipeline.Analyzer
	collector *monitoring.MetricsCollector
	stream    *monitoring.StreamHub
}

// NewHandlers wires the handler set. collector and stream may be nil; the
// matching endpoints degrade instead of failing.
func NewHandlers(analyzer *pipeline.Analyzer, collector *monitoring.MetricsCollector, stream *monitoring.StreamHub) *Handlers {
	return &Handlers{
		analyzer:  analyzer,
		collector: collector,
		stream:    stream,
	}
}

// Register attaches all routes to the mux.
func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("POST /analyze", h.handleAnalyze)
	mux.HandleFunc("POST /batch", h.handleBatch)
	mux.HandleFunc("GET /api/stats", h.handleStats)
	mux.HandleFunc("GET /metrics", h.handleMetrics)
	mux.HandleFunc("GET /ws/results", h.handleResultStream)
}

func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	loaded := h.analyzer != nil
	accelerated := false
	if loaded {
		accelerated = h.analyzer.ModelInfo().Accelerated
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "healthy",
		"model_loaded":  loaded,
		"gpu_available": accelerated,
	})
}

func (h *Handlers) handleResultStream(w http.ResponseWriter, r *http.Request) {
	if h.stream == nil {
		respondError(w, http.StatusServiceUnavailable, "result stream disabled")
		return
	}
	h.stream.HandleWebSocket(w, r)
}

// respondJSON writes a JSON response with the given status.
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.S().Warnf("Failed to encode JSON response: %v", err)
	}
}

// respondError writes the error contract body {"error": msg}.
func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
