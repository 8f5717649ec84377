package ml

import "errors"

// Class indices into ClassProbabilities. The order is fixed by the classifier
// head and must never change: score and label mapping depend on it.
const (
	LabelNegative = 0
	LabelNeutral  = 1
	LabelPositive = 2
)

var labelNames = [3]string{"negative", "neutral", "positive"}

// ClassProbabilities is the softmax output of the classifier, positionally
// fixed as (negative, neutral, positive). Components are non-negative and
// sum to 1.
type ClassProbabilities [3]float64

// LabelName returns the sentiment label for a class index.
func LabelName(idx int) string {
	if idx < 0 || idx >= len(labelNames) {
		return ""
	}
	return labelNames[idx]
}

// ModelInfo describes a loaded model for health and stats surfaces.
type ModelInfo struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	VocabSize   int    `json:"vocab_size"`
	MaxTokens   int    `json:"max_tokens"`
	Backend     string `json:"backend"`
	Accelerated bool   `json:"accelerated"`
}

// Model is the inference handle shared by all requests. Implementations are
// read-only after construction and safe for concurrent use.
type Model interface {
	Infer(text string) (ClassProbabilities, error)
	Info() ModelInfo
}

// ErrNotLoaded is reported by surfaces that need a model before one is
// available.
var ErrNotLoaded = errors.New("model not loaded")

// Inference failure stages, kept for logs and metrics only. The API surfaces
// a single error kind regardless of stage.
const (
	StageForward = "forward"
	StageNumeric = "numeric"
)

// InferenceError wraps a fault raised during the forward computation.
type InferenceError struct {
	Stage string
	Err   error
}

func (e *InferenceError) Error() string {
	return "inference failed: " + e.Err.Error()
}

func (e *InferenceError) Unwrap() error { return e.Err }
