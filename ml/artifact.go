package ml

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/klauspost/compress/zstd"
	"github.com/x448/float16"
)

// Artifact is the on-disk model bundle: one zstd-compressed JSON document
// carrying the manifest, the vocabulary and the weight tensors. Tensors are
// stored as little-endian fp16 bytes and widened to float32 on load.
type Artifact struct {
	Name      string   `json:"name"`
	Version   string   `json:"version"`
	Labels    []string `json:"labels"`
	EmbedDim  int      `json:"embed_dim"`
	HiddenDim int      `json:"hidden_dim"`
	MaxTokens int      `json:"max_tokens"`
	Vocab     []string `json:"vocab"`
	Embedding []byte   `json:"embedding"`
	HiddenW   []byte   `json:"hidden_w"`
	HiddenB   []byte   `json:"hidden_b"`
	OutW      []byte   `json:"out_w"`
	OutB      []byte   `json:"out_b"`
}

// WriteArtifact saves the bundle to path.
func WriteArtifact(path string, art *Artifact) error {
	if art == nil {
		return errors.New("artifact is nil")
	}
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(file)
	if err != nil {
		file.Close()
		return err
	}
	encodeErr := json.NewEncoder(enc).Encode(art)
	if err := enc.Close(); encodeErr == nil {
		encodeErr = err
	}
	if err := file.Close(); encodeErr == nil {
		encodeErr = err
	}
	return encodeErr
}

// ReadArtifact loads the bundle from path. Truncated or corrupt files fail
// here, before any weights reach the classifier.
func ReadArtifact(path string) (*Artifact, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	dec, err := zstd.NewReader(file)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var art Artifact
	if err := json.NewDecoder(dec).Decode(&art); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	return &art, nil
}

// Validate checks the manifest against the tensor payloads so that a bad
// bundle is rejected at load instead of failing mid-inference.
func (a *Artifact) Validate() error {
	if len(a.Labels) != len(labelNames) {
		return fmt.Errorf("expected %d labels, got %d", len(labelNames), len(a.Labels))
	}
	for i, label := range a.Labels {
		if label != labelNames[i] {
			return fmt.Errorf("label %d is %q, want %q", i, label, labelNames[i])
		}
	}
	if a.EmbedDim <= 0 || a.HiddenDim <= 0 {
		return fmt.Errorf("invalid dimensions %dx%d", a.EmbedDim, a.HiddenDim)
	}
	if a.MaxTokens < 3 {
		return fmt.Errorf("max_tokens %d is too small", a.MaxTokens)
	}
	if len(a.Vocab) == 0 {
		return errors.New("vocabulary is empty")
	}
	checks := []struct {
		name string
		data []byte
		want int
	}{
		{"embedding", a.Embedding, len(a.Vocab) * a.EmbedDim},
		{"hidden_w", a.HiddenW, a.HiddenDim * a.EmbedDim},
		{"hidden_b", a.HiddenB, a.HiddenDim},
		{"out_w", a.OutW, len(labelNames) * a.HiddenDim},
		{"out_b", a.OutB, len(labelNames)},
	}
	for _, c := range checks {
		if len(c.data) != c.want*2 {
			return fmt.Errorf("tensor %s holds %d bytes, want %d", c.name, len(c.data), c.want*2)
		}
	}
	return nil
}

// EncodeTensor packs float32 values into little-endian fp16 bytes.
func EncodeTensor(values []float32) []byte {
	data := make([]byte, len(values)*2)
	for i, v := range values {
		binary.LittleEndian.PutUint16(data[i*2:], float16.Fromfloat32(v).Bits())
	}
	return data
}

// DecodeTensor unpacks count fp16 values into float32.
func DecodeTensor(data []byte, count int) ([]float32, error) {
	if len(data) != count*2 {
		return nil, fmt.Errorf("tensor holds %d bytes, want %d", len(data), count*2)
	}
	values := make([]float32, count)
	for i := range values {
		bits := binary.LittleEndian.Uint16(data[i*2:])
		values[i] = float16.Frombits(bits).Float32()
	}
	return values, nil
}
