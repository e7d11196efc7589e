package council

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJaccard(t *testing.T) {
	s := Jaccard{}

	assert.Equal(t, 1.0, s.Score([]string{"only one"}))
	assert.Equal(t, 1.0, s.Score([]string{"The cat sat.", "the CAT sat"}))
	assert.Equal(t, 0.0, s.Score([]string{"alpha beta", "gamma delta"}))
	// {a b c} vs {b c d}: 2 / 4
	assert.InDelta(t, 0.5, s.Score([]string{"a b c", "b c d"}), 1e-9)
	// pairs: (x,x)=1, (x,y)=0, (x,y)=0
	assert.InDelta(t, 1.0/3, s.Score([]string{"x", "x", "y"}), 1e-9)
}

func TestJaccardBounds(t *testing.T) {
	inputs := [][]string{
		{"", ""},
		{"", "words here"},
		{"one two three", "three four", "four five six seven"},
	}
	for _, in := range inputs {
		got := Jaccard{}.Score(in)
		assert.GreaterOrEqual(t, got, 0.0)
		assert.LessOrEqual(t, got, 1.0)
	}
}

func TestExact(t *testing.T) {
	s := Exact{}
	assert.Equal(t, 1.0, s.Score(nil))
	assert.Equal(t, 1.0, s.Score([]string{"same", "same", "same"}))
	assert.Equal(t, 0.0, s.Score([]string{"same", "Same"}))
}

func TestScorerByName(t *testing.T) {
	s, err := ScorerByName("")
	require.NoError(t, err)
	assert.IsType(t, Jaccard{}, s)

	s, err = ScorerByName("EXACT")
	require.NoError(t, err)
	assert.IsType(t, Exact{}, s)

	_, err = ScorerByName("cosine")
	assert.Error(t, err)
}

func TestScorerFunc(t *testing.T) {
	var s Scorer = ScorerFunc(func([]string) float64 { return 0.42 })
	assert.Equal(t, 0.42, s.Score([]string{"a"}))
}
