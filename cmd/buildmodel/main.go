package main

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"os"
	"path/filepath"

	"finsent/artifact"
	"finsent/ml"
)

func main() {
	name := flag.String("name", "finbert", "model name")
	version := flag.String("version", "v1", "artifact version")
	outDir := flag.String("out", "./models", "artifact output directory")
	vocabPath := flag.String("vocab", "", "vocabulary file, one token per line")
	weightsPath := flag.String("weights", "", "weights file (json tensors)")
	embedDim := flag.Int("embed_dim", 32, "embedding dimension")
	hiddenDim := flag.Int("hidden_dim", 16, "hidden layer dimension")
	maxTokens := flag.Int("max_tokens", 512, "token budget per text")
	seed := flag.Int64("seed", 42, "seed for demo weights")
	flag.Parse()

	var art *ml.Artifact
	var err error
	if *weightsPath != "" {
		if *vocabPath == "" {
			log.Fatal("weights file given without a vocab file")
		}
		art, err = buildFromFiles(*vocabPath, *weightsPath, *maxTokens)
	} else {
		art, err = buildDemo(*seed, *embedDim, *hiddenDim, *maxTokens)
	}
	if err != nil {
		log.Fatalf("failed to build artifact: %v", err)
	}
	art.Name = *name
	art.Version = *version

	if err := art.Validate(); err != nil {
		log.Fatalf("artifact does not validate: %v", err)
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatalf("failed to create output dir: %v", err)
	}
	path := filepath.Join(*outDir, artifact.Filename(*name, *version))
	if err := ml.WriteArtifact(path, art); err != nil {
		log.Fatalf("failed to write artifact: %v", err)
	}

	sum, err := fileSHA256(path)
	if err != nil {
		log.Fatalf("failed to hash artifact: %v", err)
	}

	fmt.Printf("artifact saved to %s\n", path)
	fmt.Printf("sha256 %s\n", sum)
}

// weightsFile is the tensor layout expected from an external training run.
type weightsFile struct {
	EmbedDim  int       `json:"embed_dim"`
	HiddenDim int       `json:"hidden_dim"`
	Embedding []float32 `json:"embedding"`
	HiddenW   []float32 `json:"hidden_w"`
	HiddenB   []float32 `json:"hidden_b"`
	OutW      []float32 `json:"out_w"`
	OutB      []float32 `json:"out_b"`
}

func buildFromFiles(vocabPath, weightsPath string, maxTokens int) (*ml.Artifact, error) {
	vocab, err := readVocab(vocabPath)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(weightsPath)
	if err != nil {
		return nil, err
	}
	var weights weightsFile
	if err := json.Unmarshal(data, &weights); err != nil {
		return nil, fmt.Errorf("parse weights file: %w", err)
	}

	return &ml.Artifact{
		Labels:    canonicalLabels(),
		EmbedDim:  weights.EmbedDim,
		HiddenDim: weights.HiddenDim,
		MaxTokens: maxTokens,
		Vocab:     vocab,
		Embedding: ml.EncodeTensor(weights.Embedding),
		HiddenW:   ml.EncodeTensor(weights.HiddenW),
		HiddenB:   ml.EncodeTensor(weights.HiddenB),
		OutW:      ml.EncodeTensor(weights.OutW),
		OutB:      ml.EncodeTensor(weights.OutB),
	}, nil
}

// buildDemo produces a runnable artifact from seeded random weights. The
// scores it yields are arbitrary but fully deterministic, which is all a
// smoke environment needs.
func buildDemo(seed int64, embedDim, hiddenDim, maxTokens int) (*ml.Artifact, error) {
	vocab := demoVocab()
	labels := canonicalLabels()
	rng := rand.New(rand.NewSource(seed))

	tensor := func(n int) []byte {
		values := make([]float32, n)
		for i := range values {
			values[i] = float32(rng.NormFloat64() * 0.1)
		}
		return ml.EncodeTensor(values)
	}

	return &ml.Artifact{
		Labels:    labels,
		EmbedDim:  embedDim,
		HiddenDim: hiddenDim,
		MaxTokens: maxTokens,
		Vocab:     vocab,
		Embedding: tensor(len(vocab) * embedDim),
		HiddenW:   tensor(hiddenDim * embedDim),
		HiddenB:   tensor(hiddenDim),
		OutW:      tensor(len(labels) * hiddenDim),
		OutB:      tensor(len(labels)),
	}, nil
}

func canonicalLabels() []string {
	return []string{
		ml.LabelName(ml.LabelNegative),
		ml.LabelName(ml.LabelNeutral),
		ml.LabelName(ml.LabelPositive),
	}
}

func demoVocab() []string {
	return []string{
		"[PAD]", "[UNK]", "[CLS]", "[SEP]",
		"the", "a", "of", "to", "and", "in", "for", "on",
		"company", "market", "stock", "shares", "revenue", "earnings",
		"profit", "loss", "growth", "decline", "guidance", "dividend",
		"quarter", "year", "results", "report", "outlook", "forecast",
		"strong", "weak", "record", "beat", "miss", "surge", "plunge",
		"rally", "crash", "gain", "drop", "rise", "fall", "up", "down",
		"upgrade", "downgrade", "buy", "sell", "hold", "warning",
		"bankruptcy", "merger", "acquisition", "lawsuit", "fine",
		"##s", "##ed", "##ing", "##er", "##ly",
		".", ",", "!", "?", "%", "$",
	}
}

func readVocab(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var vocab []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		token := scanner.Text()
		if token == "" {
			continue
		}
		vocab = append(vocab, token)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return vocab, nil
}

func fileSHA256(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
