package pipeline

import (
	"errors"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"finsent/ml"
)

// Stats counts pipeline activity since startup.
type Stats struct {
	Analyzed     int64     `json:"analyzed"`
	Failed       int64     `json:"failed"`
	CacheHits    int64     `json:"cache_hits"`
	CacheMisses  int64     `json:"cache_misses"`
	BatchItems   int64     `json:"batch_items"`
	BatchSkipped int64     `json:"batch_skipped"`
	LastAnalyzed time.Time `json:"last_analyzed"`
}

// Analyzer runs the inference pipeline: model forward pass, then mapping to
// the output contract. One analyzer wraps one immutable model handle and is
// shared by all requests.
type Analyzer struct {
	model ml.Model
	cache *lru.Cache[string, Result]

	stats     Stats
	statsLock sync.RWMutex
}

// NewAnalyzer wraps a loaded model. cacheSize > 0 enables a read-through
// result cache keyed by exact input text; the model's deterministic output
// makes a hit indistinguishable from a fresh inference. Errors are never
// cached.
func NewAnalyzer(model ml.Model, cacheSize int) (*Analyzer, error) {
	if model == nil {
		return nil, errors.New("analyzer requires a model")
	}
	a := &Analyzer{model: model}
	if cacheSize > 0 {
		cache, err := lru.New[string, Result](cacheSize)
		if err != nil {
			return nil, err
		}
		a.cache = cache
	}
	return a, nil
}

// Analyze scores a single text. The caller guarantees text is non-empty
// after trimming. Model errors propagate unchanged; no new failure modes
// are added here.
func (a *Analyzer) Analyze(text string) (Result, error) {
	if a.cache != nil {
		if res, ok := a.cache.Get(text); ok {
			a.record(func(s *Stats) {
				s.CacheHits++
				s.Analyzed++
				s.LastAnalyzed = time.Now()
			})
			return res, nil
		}
		a.record(func(s *Stats) { s.CacheMisses++ })
	}

	probs, err := a.model.Infer(text)
	if err != nil {
		a.record(func(s *Stats) { s.Failed++ })
		return Result{}, err
	}

	sentiment, score, confidence := MapProbabilities(probs)
	res := Result{Text: text, Sentiment: sentiment, Score: score, Confidence: confidence}
	if a.cache != nil {
		a.cache.Add(text, res)
	}
	a.record(func(s *Stats) {
		s.Analyzed++
		s.LastAnalyzed = time.Now()
	})
	return res, nil
}

// AnalyzeBatch scores texts sequentially in input order. Entries that are
// empty after trimming are skipped silently, so the output may be shorter
// than the input; relative order of the surviving results is preserved.
// The first inference failure aborts the batch and is returned unchanged.
func (a *Analyzer) AnalyzeBatch(texts []string) ([]Result, error) {
	results := make([]Result, 0, len(texts))
	for _, text := range texts {
		if strings.TrimSpace(text) == "" {
			a.record(func(s *Stats) { s.BatchSkipped++ })
			continue
		}
		res, err := a.Analyze(text)
		if err != nil {
			return nil, err
		}
		a.record(func(s *Stats) { s.BatchItems++ })
		results = append(results, res)
	}
	return results, nil
}

// ModelInfo exposes the wrapped model's description for health and stats.
func (a *Analyzer) ModelInfo() ml.ModelInfo {
	return a.model.Info()
}

// CacheLen reports the number of cached results, 0 when caching is off.
func (a *Analyzer) CacheLen() int {
	if a.cache == nil {
		return 0
	}
	return a.cache.Len()
}

// GetStats returns a snapshot of the pipeline counters.
func (a *Analyzer) GetStats() Stats {
	a.statsLock.RLock()
	defer a.statsLock.RUnlock()
	return a.stats
}

func (a *Analyzer) record(update func(*Stats)) {
	a.statsLock.Lock()
	defer a.statsLock.Unlock()
	update(&a.stats)
}
