package ml

import (
	"fmt"
	"math"
)

// TextClassifier scores text against three sentiment classes. All fields are
// set at load time and never mutated, so one instance serves concurrent
// requests without locking.
type TextClassifier struct {
	info    ModelInfo
	tok     *Tokenizer
	backend Backend

	embedding []float32 // vocabSize x embedDim, row-major
	hiddenW   []float32 // hiddenDim x embedDim
	hiddenB   []float32 // hiddenDim
	outW      []float32 // 3 x hiddenDim
	outB      []float32 // 3

	vocabSize int
	embedDim  int
	hiddenDim int
}

func (c *TextClassifier) Info() ModelInfo { return c.info }

// Infer runs tokenize, embed, pool and the dense head, returning a
// probability triple in (negative, neutral, positive) order. Input beyond
// the token budget is silently truncated by the tokenizer. Deterministic:
// the same text always yields the same probabilities.
func (c *TextClassifier) Infer(text string) (ClassProbabilities, error) {
	ids := c.tok.Tokenize(text)

	pooled := make([]float32, c.embedDim)
	for _, id := range ids {
		if id < 0 || id >= c.vocabSize {
			return ClassProbabilities{}, &InferenceError{
				Stage: StageForward,
				Err:   fmt.Errorf("token id %d outside vocabulary of %d", id, c.vocabSize),
			}
		}
		row := c.embedding[id*c.embedDim : (id+1)*c.embedDim]
		for i, v := range row {
			pooled[i] += v
		}
	}
	inv := 1 / float32(len(ids))
	for i := range pooled {
		pooled[i] *= inv
	}

	hidden := make([]float32, c.hiddenDim)
	c.backend.MatVec(c.hiddenW, c.hiddenDim, c.embedDim, pooled, hidden)
	for i := range hidden {
		hidden[i] = float32(math.Tanh(float64(hidden[i] + c.hiddenB[i])))
	}

	logits := make([]float32, len(labelNames))
	c.backend.MatVec(c.outW, len(labelNames), c.hiddenDim, hidden, logits)
	for i := range logits {
		logits[i] += c.outB[i]
	}

	return softmax(logits)
}

// softmax normalizes three logits into a probability triple. It subtracts
// the maximum logit for numeric stability and rejects non-finite values
// instead of propagating them into results.
func softmax(logits []float32) (ClassProbabilities, error) {
	var probs ClassProbabilities
	maxLogit := float64(logits[0])
	for i, v := range logits {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return probs, &InferenceError{
				Stage: StageNumeric,
				Err:   fmt.Errorf("non-finite logit for class %s", LabelName(i)),
			}
		}
		if f > maxLogit {
			maxLogit = f
		}
	}

	var sum float64
	for i, v := range logits {
		e := math.Exp(float64(v) - maxLogit)
		probs[i] = e
		sum += e
	}
	if sum <= 0 || math.IsNaN(sum) {
		return ClassProbabilities{}, &InferenceError{
			Stage: StageNumeric,
			Err:   fmt.Errorf("degenerate softmax sum %v", sum),
		}
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs, nil
}
