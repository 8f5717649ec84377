package ml

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	padToken = "[PAD]"
	unkToken = "[UNK]"
	clsToken = "[CLS]"
	sepToken = "[SEP]"
)

// maxWordChars caps the length of a single word before it collapses to
// [UNK]; it keeps the greedy subword search bounded on pathological input.
const maxWordChars = 100

// Tokenizer converts raw text into vocabulary ids for the classifier.
// Normalization is lowercase plus accent folding, words are split on
// whitespace and punctuation, and each word is matched greedily against the
// vocabulary using WordPiece "##" continuations. Instances are read-only
// after construction and safe for concurrent use.
type Tokenizer struct {
	vocab     map[string]int
	maxTokens int
	unkID     int
	clsID     int
	sepID     int
}

// NewTokenizer builds a tokenizer over the given vocabulary. The vocabulary
// must contain the [UNK], [CLS] and [SEP] entries; maxTokens bounds the id
// sequence length including the framing tokens.
func NewTokenizer(vocab []string, maxTokens int) (*Tokenizer, error) {
	if maxTokens < 3 {
		return nil, fmt.Errorf("max tokens %d leaves no room for content", maxTokens)
	}
	index := make(map[string]int, len(vocab))
	for i, entry := range vocab {
		index[entry] = i
	}
	t := &Tokenizer{vocab: index, maxTokens: maxTokens}
	var ok bool
	if t.unkID, ok = index[unkToken]; !ok {
		return nil, fmt.Errorf("vocabulary is missing %s", unkToken)
	}
	if t.clsID, ok = index[clsToken]; !ok {
		return nil, fmt.Errorf("vocabulary is missing %s", clsToken)
	}
	if t.sepID, ok = index[sepToken]; !ok {
		return nil, fmt.Errorf("vocabulary is missing %s", sepToken)
	}
	return t, nil
}

// Tokenize returns the id sequence for text, framed by [CLS] and [SEP] and
// silently truncated to the tokenizer's budget. It never fails: unknown
// words map to [UNK].
func (t *Tokenizer) Tokenize(text string) []int {
	words := splitWords(normalizeText(text))

	ids := make([]int, 0, len(words)+2)
	ids = append(ids, t.clsID)
	limit := t.maxTokens - 1
	for _, word := range words {
		if len(ids) >= limit {
			break
		}
		for _, id := range t.wordIDs(word) {
			if len(ids) >= limit {
				break
			}
			ids = append(ids, id)
		}
	}
	ids = append(ids, t.sepID)
	return ids
}

// wordIDs resolves one word to vocabulary ids via greedy longest-match. A
// word with no matching prefix, or one over the length cap, becomes [UNK].
func (t *Tokenizer) wordIDs(word string) []int {
	chars := []rune(word)
	if len(chars) > maxWordChars {
		return []int{t.unkID}
	}

	var ids []int
	start := 0
	for start < len(chars) {
		end := len(chars)
		found := -1
		for end > start {
			piece := string(chars[start:end])
			if start > 0 {
				piece = "##" + piece
			}
			if id, ok := t.vocab[piece]; ok {
				found = id
				break
			}
			end--
		}
		if found < 0 {
			return []int{t.unkID}
		}
		ids = append(ids, found)
		start = end
	}
	return ids
}

// normalizeText lowercases the input and strips combining accent marks so
// that "Café" and "cafe" resolve to the same vocabulary entries.
func normalizeText(text string) string {
	folder := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(folder, text)
	if err != nil {
		folded = text
	}
	return strings.ToLower(folded)
}

// splitWords breaks normalized text into word tokens. Punctuation runes are
// emitted as single-rune tokens; whitespace and control runes separate words.
func splitWords(text string) []string {
	var words []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			words = append(words, current.String())
			current.Reset()
		}
	}
	for _, r := range text {
		switch {
		case unicode.IsSpace(r) || unicode.IsControl(r):
			flush()
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			flush()
			words = append(words, string(r))
		default:
			current.WriteRune(r)
		}
	}
	flush()
	return words
}
