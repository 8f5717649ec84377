package ml

import (
	"fmt"

	"go.uber.org/zap"
)

// Config locates the model artifact and shapes the load.
type Config struct {
	Path    string `yaml:"path"`
	Backend string `yaml:"backend"`
}

// Load opens an artifact file and builds the classifier handle. It runs once
// at startup; a returned error is terminal for the service.
func Load(cfg Config) (*TextClassifier, error) {
	art, err := ReadArtifact(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("read artifact %s: %w", cfg.Path, err)
	}
	if err := art.Validate(); err != nil {
		return nil, fmt.Errorf("invalid artifact %s: %w", cfg.Path, err)
	}

	backend, err := SelectBackend(cfg.Backend)
	if err != nil {
		return nil, err
	}

	tok, err := NewTokenizer(art.Vocab, art.MaxTokens)
	if err != nil {
		return nil, fmt.Errorf("build tokenizer: %w", err)
	}

	classifier := &TextClassifier{
		info: ModelInfo{
			Name:        art.Name,
			Version:     art.Version,
			VocabSize:   len(art.Vocab),
			MaxTokens:   art.MaxTokens,
			Backend:     backend.Name(),
			Accelerated: Accelerated(backend),
		},
		tok:       tok,
		backend:   backend,
		vocabSize: len(art.Vocab),
		embedDim:  art.EmbedDim,
		hiddenDim: art.HiddenDim,
	}

	tensors := []struct {
		name string
		data []byte
		want int
		dst  *[]float32
	}{
		{"embedding", art.Embedding, len(art.Vocab) * art.EmbedDim, &classifier.embedding},
		{"hidden_w", art.HiddenW, art.HiddenDim * art.EmbedDim, &classifier.hiddenW},
		{"hidden_b", art.HiddenB, art.HiddenDim, &classifier.hiddenB},
		{"out_w", art.OutW, len(labelNames) * art.HiddenDim, &classifier.outW},
		{"out_b", art.OutB, len(labelNames), &classifier.outB},
	}
	for _, t := range tensors {
		values, err := DecodeTensor(t.data, t.want)
		if err != nil {
			return nil, fmt.Errorf("tensor %s: %w", t.name, err)
		}
		*t.dst = values
	}

	zap.S().Infof("Model %s %s loaded: vocab=%d embed=%d hidden=%d backend=%s",
		art.Name, art.Version, len(art.Vocab), art.EmbedDim, art.HiddenDim, backend.Name())
	return classifier, nil
}
