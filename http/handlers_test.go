package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"finsent/ml"
	"finsent/monitoring"
	"finsent/pipeline"
)

// fakeModel returns fixed probabilities per input text, or err for
// everything.
type fakeModel struct {
	probs       map[string]ml.ClassProbabilities
	err         error
	accelerated bool
}

func (m *fakeModel) Infer(text string) (ml.ClassProbabilities, error) {
	if m.err != nil {
		return ml.ClassProbabilities{}, m.err
	}
	if probs, ok := m.probs[text]; ok {
		return probs, nil
	}
	return ml.ClassProbabilities{0.1, 0.2, 0.7}, nil
}

func (m *fakeModel) Info() ml.ModelInfo {
	return ml.ModelInfo{
		Name:        "finbert",
		Version:     "v1",
		VocabSize:   8,
		MaxTokens:   512,
		Backend:     "serial",
		Accelerated: m.accelerated,
	}
}

func newTestHandlers(t *testing.T, model ml.Model) *Handlers {
	t.Helper()
	analyzer, err := pipeline.NewAnalyzer(model, 0)
	if err != nil {
		t.Fatalf("NewAnalyzer: %v", err)
	}
	return NewHandlers(analyzer, nil, nil)
}

func doJSON(handler http.HandlerFunc, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func decodeMap(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestHandleAnalyze(t *testing.T) {
	h := newTestHandlers(t, &fakeModel{})

	rec := doJSON(h.handleAnalyze, "POST", "/analyze", `{"text":"Company reports strong earnings"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %q)", rec.Code, http.StatusOK, rec.Body.String())
	}

	out := decodeMap(t, rec)
	if out["text"] != "Company reports strong earnings" {
		t.Errorf("text = %v, want input echoed", out["text"])
	}
	if out["sentiment"] != "positive" {
		t.Errorf("sentiment = %v, want positive", out["sentiment"])
	}
	if out["score"] != 0.6 {
		t.Errorf("score = %v, want 0.6", out["score"])
	}
	if out["confidence"] != 0.7 {
		t.Errorf("confidence = %v, want 0.7", out["confidence"])
	}
}

func TestHandleAnalyzeEchoesTextUntrimmed(t *testing.T) {
	h := newTestHandlers(t, &fakeModel{})

	rec := doJSON(h.handleAnalyze, "POST", "/analyze", `{"text":"  padded input  "}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if out := decodeMap(t, rec); out["text"] != "  padded input  " {
		t.Errorf("text = %q, want whitespace preserved", out["text"])
	}
}

func TestHandleAnalyzeValidation(t *testing.T) {
	h := newTestHandlers(t, &fakeModel{})

	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"missing field", `{}`, `Missing "text" field`},
		{"non-string text", `{"text":42}`, `Missing "text" field`},
		{"null text", `{"text":null}`, `Missing "text" field`},
		{"empty text", `{"text":""}`, "Empty text"},
		{"whitespace only", `{"text":"   \t\n "}`, "Empty text"},
		{"malformed json", `{"text":`, "Invalid JSON body"},
		{"array body", `[1,2,3]`, "Invalid JSON body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(h.handleAnalyze, "POST", "/analyze", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
			}
			if out := decodeMap(t, rec); out["error"] != tt.wantErr {
				t.Errorf("error = %q, want %q", out["error"], tt.wantErr)
			}
		})
	}
}

func TestHandleAnalyzeInferenceError(t *testing.T) {
	h := newTestHandlers(t, &fakeModel{err: errors.New("inference failed: tensor shape mismatch")})

	rec := doJSON(h.handleAnalyze, "POST", "/analyze", `{"text":"some text"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	if out := decodeMap(t, rec); out["error"] != "inference failed: tensor shape mismatch" {
		t.Errorf("error = %q, want the model error message", out["error"])
	}
}

func TestHandleAnalyzeModelUnavailable(t *testing.T) {
	h := NewHandlers(nil, nil, nil)

	rec := doJSON(h.handleAnalyze, "POST", "/analyze", `{"text":"some text"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
	if out := decodeMap(t, rec); out["error"] != "model not loaded" {
		t.Errorf("error = %q, want model not loaded", out["error"])
	}
}

func TestHandleBatch(t *testing.T) {
	h := newTestHandlers(t, &fakeModel{probs: map[string]ml.ClassProbabilities{
		"good news": {0.1, 0.2, 0.7},
		"bad news":  {0.8, 0.15, 0.05},
	}})

	rec := doJSON(h.handleBatch, "POST", "/batch", `{"texts":["good news","bad news",""]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %q)", rec.Code, http.StatusOK, rec.Body.String())
	}

	var out struct {
		Results []pipeline.Result `json:"results"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(out.Results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(out.Results))
	}
	if out.Results[0].Text != "good news" || out.Results[0].Sentiment != "positive" {
		t.Errorf("results[0] = %+v, want positive good news", out.Results[0])
	}
	if out.Results[1].Text != "bad news" || out.Results[1].Sentiment != "negative" {
		t.Errorf("results[1] = %+v, want negative bad news", out.Results[1])
	}
}

func TestHandleBatchValidation(t *testing.T) {
	h := newTestHandlers(t, &fakeModel{})

	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"missing field", `{}`, `Missing "texts" field`},
		{"string instead of array", `{"texts":"not a list"}`, `"texts" must be an array`},
		{"object instead of array", `{"texts":{"a":1}}`, `"texts" must be an array`},
		{"null texts", `{"texts":null}`, `"texts" must be an array`},
		{"malformed json", `{"texts":[`, "Invalid JSON body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(h.handleBatch, "POST", "/batch", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
			}
			if out := decodeMap(t, rec); out["error"] != tt.wantErr {
				t.Errorf("error = %q, want %q", out["error"], tt.wantErr)
			}
		})
	}
}

func TestHandleBatchSkipsNonStrings(t *testing.T) {
	h := newTestHandlers(t, &fakeModel{})

	rec := doJSON(h.handleBatch, "POST", "/batch", `{"texts":[42,"market rally",true,null]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var out struct {
		Results []pipeline.Result `json:"results"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(out.Results) != 1 || out.Results[0].Text != "market rally" {
		t.Errorf("results = %+v, want only the string entry", out.Results)
	}
}

func TestHandleBatchEmptyArray(t *testing.T) {
	h := newTestHandlers(t, &fakeModel{})

	rec := doJSON(h.handleBatch, "POST", "/batch", `{"texts":[]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var out struct {
		Results []pipeline.Result `json:"results"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(out.Results) != 0 {
		t.Errorf("results = %+v, want empty", out.Results)
	}
}

func TestHandleBatchInferenceError(t *testing.T) {
	h := newTestHandlers(t, &fakeModel{err: errors.New("inference failed: bad weights")})

	rec := doJSON(h.handleBatch, "POST", "/batch", `{"texts":["some text"]}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	if out := decodeMap(t, rec); out["error"] != "inference failed: bad weights" {
		t.Errorf("error = %q, want the model error message", out["error"])
	}
}

func TestHandleHealth(t *testing.T) {
	tests := []struct {
		name     string
		handlers *Handlers
		loaded   bool
		gpu      bool
	}{
		{"model loaded", newTestHandlers(t, &fakeModel{}), true, false},
		{"accelerated backend", newTestHandlers(t, &fakeModel{accelerated: true}), true, true},
		{"no model", NewHandlers(nil, nil, nil), false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(tt.handlers.handleHealth, "GET", "/health", "")
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
			}
			out := decodeMap(t, rec)
			if out["status"] != "healthy" {
				t.Errorf("status = %v, want healthy", out["status"])
			}
			if out["model_loaded"] != tt.loaded {
				t.Errorf("model_loaded = %v, want %v", out["model_loaded"], tt.loaded)
			}
			if out["gpu_available"] != tt.gpu {
				t.Errorf("gpu_available = %v, want %v", out["gpu_available"], tt.gpu)
			}
		})
	}
}

func TestHandleStats(t *testing.T) {
	analyzer, err := pipeline.NewAnalyzer(&fakeModel{}, 16)
	if err != nil {
		t.Fatalf("NewAnalyzer: %v", err)
	}
	collector := monitoring.NewMetricsCollector()
	defer collector.Stop()
	h := NewHandlers(analyzer, collector, nil)

	if _, err := analyzer.Analyze("warm up the counters"); err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	rec := doJSON(h.handleStats, "GET", "/api/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	out := decodeMap(t, rec)
	pipelineStats, ok := out["pipeline"].(map[string]interface{})
	if !ok {
		t.Fatalf("pipeline section missing: %v", out)
	}
	if pipelineStats["analyzed"] != float64(1) {
		t.Errorf("analyzed = %v, want 1", pipelineStats["analyzed"])
	}
	if _, ok := out["system"]; !ok {
		t.Errorf("system section missing")
	}
	model, ok := out["model"].(map[string]interface{})
	if !ok || model["name"] != "finbert" {
		t.Errorf("model section = %v, want finbert info", out["model"])
	}
}

func TestHandleStatsModelUnavailable(t *testing.T) {
	h := NewHandlers(nil, nil, nil)

	rec := doJSON(h.handleStats, "GET", "/api/stats", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestHandleMetrics(t *testing.T) {
	collector := monitoring.NewMetricsCollector()
	defer collector.Stop()
	collector.IncrCounter("analyze_requests", 3, nil)

	analyzer, err := pipeline.NewAnalyzer(&fakeModel{}, 0)
	if err != nil {
		t.Fatalf("NewAnalyzer: %v", err)
	}
	h := NewHandlers(analyzer, collector, nil)

	rec := doJSON(h.handleMetrics, "GET", "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), "analyze_requests 3") {
		t.Errorf("metrics body missing counter:\n%s", rec.Body.String())
	}
}

func TestRegisterRejectsWrongMethod(t *testing.T) {
	h := newTestHandlers(t, &fakeModel{})
	mux := http.NewServeMux()
	h.Register(mux)

	tests := []struct {
		method string
		target string
	}{
		{"GET", "/analyze"},
		{"GET", "/batch"},
		{"POST", "/health"},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, tt.target, nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s %s = %d, want %d", tt.method, tt.target, rec.Code, http.StatusMethodNotAllowed)
		}
	}
}

func TestAnalyzeDeterministic(t *testing.T) {
	h := newTestHandlers(t, &fakeModel{})

	first := doJSON(h.handleAnalyze, "POST", "/analyze", `{"text":"repeatable input"}`)
	second := doJSON(h.handleAnalyze, "POST", "/analyze", `{"text":"repeatable input"}`)
	if first.Body.String() != second.Body.String() {
		t.Errorf("responses differ:\n%s\n%s", first.Body.String(), second.Body.String())
	}
}
