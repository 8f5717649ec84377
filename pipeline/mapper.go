package pipeline

import "finsent/ml"

// Result is the sentiment contract for one scored text. Text echoes the
// input exactly as supplied, including surrounding whitespace.
type Result struct {
	Text       string  `json:"text"`
	Sentiment  string  `json:"sentiment"`
	Score      float64 `json:"score"`
	Confidence float64 `json:"confidence"`
}

// MapProbabilities converts a probability triple into the output contract.
// The sentiment is the argmax label, ties resolved by the first index in
// (negative, neutral, positive) order. Score is the positive component
// minus the negative one, confidence the argmax component itself. Total
// over any valid triple; no failure modes.
func MapProbabilities(probs ml.ClassProbabilities) (sentiment string, score, confidence float64) {
	best := 0
	for i := 1; i < len(probs); i++ {
		if probs[i] > probs[best] {
			best = i
		}
	}
	score = probs[ml.LabelPositive] - probs[ml.LabelNegative]
	return ml.LabelName(best), score, probs[best]
}
