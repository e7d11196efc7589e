package council

import (
	"fmt"
	"strings"
	"unicode"
)

// Scorer rates agreement between answers in [0,1], where 1 means identical.
type Scorer interface {
	Score(answers []string) float64
}

// ScorerFunc adapts a function to Scorer.
type ScorerFunc func(answers []string) float64

// Score implements Scorer.
func (f ScorerFunc) Score(answers []string) float64 { return f(answers) }

// Jaccard is the mean pairwise Jaccard similarity of the answers' lower-cased
// word sets. Fewer than two answers score 1.
type Jaccard struct{}

// Score implements Scorer.
func (Jaccard) Score(answers []string) float64 {
	if len(answers) < 2 {
		return 1
	}
	sets := make([]map[string]struct{}, len(answers))
	for i, a := range answers {
		sets[i] = wordSet(a)
	}
	var sum float64
	pairs := 0
	for i := 0; i < len(sets); i++ {
		for j := i + 1; j < len(sets); j++ {
			sum += jaccard(sets[i], sets[j])
			pairs++
		}
	}
	return sum / float64(pairs)
}

func wordSet(s string) map[string]struct{} {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// Exact scores 1 when every answer is byte-identical, else 0.
type Exact struct{}

// Score implements Scorer.
func (Exact) Score(answers []string) float64 {
	for _, a := range answers[min(1, len(answers)):] {
		if a != answers[0] {
			return 0
		}
	}
	return 1
}

// ScorerByName returns the scorer configured by name; empty means Jaccard.
func ScorerByName(name string) (Scorer, error) {
	switch strings.ToLower(name) {
	case "", "jaccard":
		return Jaccard{}, nil
	case "exact":
		return Exact{}, nil
	}
	return nil, fmt.Errorf("unknown scorer %q", name)
}
