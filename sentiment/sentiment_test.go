package sentiment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAnalyzer(t *testing.T) *Analyzer {
	t.Helper()
	a, err := NewAnalyzer()
	require.NoError(t, err)
	return a
}

func TestScoreLabels(t *testing.T) {
	a := newAnalyzer(t)

	cases := []struct {
		text  string
		label string
	}{
		{"I love this, what a great day", LabelPositive},
		{"this is awful, I hate it", LabelNegative},
		{"the meeting is at noon", LabelNeutral},
		{"", LabelNeutral},
	}
	for _, c := range cases {
		got := a.Score(c.text)
		assert.Equal(t, c.label, got.Label(), "text: %q compound: %v", c.text, got.Compound)
	}
}

func TestScoreNegation(t *testing.T) {
	a := newAnalyzer(t)

	plain := a.Score("this is good")
	negated := a.Score("this is not good")
	assert.Equal(t, LabelPositive, plain.Label())
	assert.Equal(t, LabelNegative, negated.Label())
	assert.Less(t, negated.Compound, plain.Compound)

	// contraction negation survives tokenization
	contraction := a.Score("I don't love it")
	assert.Equal(t, LabelNegative, contraction.Label())
}

func TestScoreBoosters(t *testing.T) {
	a := newAnalyzer(t)

	plain := a.Score("this is good")
	boosted := a.Score("this is very good")
	damped := a.Score("this is slightly good")
	assert.Greater(t, boosted.Compound, plain.Compound)
	assert.Less(t, damped.Compound, plain.Compound)
	assert.Equal(t, LabelPositive, damped.Label())
}

func TestScoreRatios(t *testing.T) {
	a := newAnalyzer(t)

	got := a.Score("good and bad together")
	assert.Greater(t, got.Pos, 0.0)
	assert.Greater(t, got.Neg, 0.0)
	assert.InDelta(t, 1.0, got.Pos+got.Neg+got.Neu, 0.01)

	empty := a.Score("xyzzy plugh")
	assert.Equal(t, 1.0, empty.Neu)
	assert.Equal(t, 0.0, empty.Compound)
}

func TestCompoundBounds(t *testing.T) {
	a := newAnalyzer(t)

	got := a.Score("love love love love love love love love love love")
	assert.LessOrEqual(t, got.Compound, 1.0)
	assert.Greater(t, got.Compound, 0.9)
}

func TestTokenizeText(t *testing.T) {
	assert.Equal(t, []string{"dont", "stop"}, TokenizeText("Don't stop!"))
	assert.Equal(t, []string{"cafe", "visit"}, TokenizeText("café visit"))
	assert.Empty(t, TokenizeText("!!! ..."))
}
