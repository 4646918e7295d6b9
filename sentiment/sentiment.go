// Package sentiment scores free-form text with a valence lexicon, in the
// manner of VADER: per-token valences adjusted for negation and degree
// modifiers, summed, and normalized into a compound score in [-1, 1].
package sentiment

import (
	"bufio"
	"bytes"
	_ "embed"
	"fmt"
	"math"
	"strconv"
	"strings"
)

//go:embed lexicon.txt
var rawLexicon []byte

const (
	// degree modifier increment, scaled down with distance from the token
	boostIncr = 0.293

	// valence multiplier when a negation precedes the token
	negationFactor = -0.74

	// normalization denominator constant
	normAlpha = 15.0

	// compound thresholds for the three-way label
	positiveThreshold = 0.05
	negativeThreshold = -0.05
)

const (
	LabelPositive = "positive"
	LabelNegative = "negative"
	LabelNeutral  = "neutral"
)

var negations = map[string]bool{
	"not":     true,
	"no":      true,
	"never":   true,
	"none":    true,
	"neither": true,
	"nor":     true,
	"cannot":  true,
	"cant":    true,
	"dont":    true,
	"didnt":   true,
	"doesnt":  true,
	"isnt":    true,
	"wasnt":   true,
	"wont":    true,
	"without": true,
}

var boosters = map[string]float64{
	"absolutely":   boostIncr,
	"completely":   boostIncr,
	"deeply":       boostIncr,
	"especially":   boostIncr,
	"extremely":    boostIncr,
	"incredibly":   boostIncr,
	"really":       boostIncr,
	"remarkably":   boostIncr,
	"so":           boostIncr,
	"totally":      boostIncr,
	"truly":        boostIncr,
	"utterly":      boostIncr,
	"very":         boostIncr,
	"almost":       -boostIncr,
	"barely":       -boostIncr,
	"hardly":       -boostIncr,
	"marginally":   -boostIncr,
	"occasionally": -boostIncr,
	"slightly":     -boostIncr,
	"somewhat":     -boostIncr,
}

// Scores are the polarity ratios plus the normalized compound valence.
type Scores struct {
	Neg      float64 `json:"neg"`
	Neu      float64 `json:"neu"`
	Pos      float64 `json:"pos"`
	Compound float64 `json:"compound"`
}

// Label collapses the compound score into positive/negative/neutral using
// the same thresholds the upstream analytics expect.
func (s Scores) Label() string {
	if s.Compound > positiveThreshold {
		return LabelPositive
	}
	if s.Compound < negativeThreshold {
		return LabelNegative
	}
	return LabelNeutral
}

type Analyzer struct {
	lexicon map[string]float64
}

func NewAnalyzer() (*Analyzer, error) {
	lex, err := parseLexicon(rawLexicon)
	if err != nil {
		return nil, fmt.Errorf("parsing embedded lexicon: %w", err)
	}
	return &Analyzer{lexicon: lex}, nil
}

func parseLexicon(raw []byte) (map[string]float64, error) {
	lex := make(map[string]float64)
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		word, val, found := strings.Cut(line, "\t")
		if !found {
			return nil, fmt.Errorf("malformed lexicon line: %q", line)
		}
		score, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return nil, fmt.Errorf("malformed lexicon valence for %q: %w", word, err)
		}
		lex[word] = score
	}
	return lex, scanner.Err()
}

// Score tokenizes text and computes polarity scores. It never fails; text
// with no lexicon hits comes back fully neutral.
func (a *Analyzer) Score(text string) Scores {
	tokens := TokenizeText(text)

	var valences []float64
	for i, tok := range tokens {
		if _, isBooster := boosters[tok]; isBooster {
			continue
		}
		v, ok := a.lexicon[tok]
		if !ok {
			valences = append(valences, 0)
			continue
		}
		v = a.contextualize(tokens, i, v)
		valences = append(valences, v)
	}

	return aggregate(valences)
}

// contextualize applies degree modifiers and negations found in the three
// tokens preceding position i, with booster weight decaying by distance.
func (a *Analyzer) contextualize(tokens []string, i int, valence float64) float64 {
	negated := false
	boost := 0.0
	for dist := 1; dist <= 3 && i-dist >= 0; dist++ {
		prev := tokens[i-dist]
		if b, ok := boosters[prev]; ok {
			scale := 1.0
			if dist == 2 {
				scale = 0.95
			} else if dist == 3 {
				scale = 0.9
			}
			boost += b * scale
		}
		if negations[prev] {
			negated = true
		}
	}
	if valence > 0 {
		valence += boost
	} else {
		valence -= boost
	}
	if negated {
		valence *= negationFactor
	}
	return valence
}

func aggregate(valences []float64) Scores {
	if len(valences) == 0 {
		return Scores{Neu: 1}
	}

	var total, posSum, negSum float64
	neuCount := 0
	for _, v := range valences {
		total += v
		switch {
		case v > 0:
			posSum += v + 1
		case v < 0:
			negSum += v - 1
		default:
			neuCount++
		}
	}

	denom := posSum + math.Abs(negSum) + float64(neuCount)
	if denom == 0 {
		return Scores{Neu: 1}
	}

	return Scores{
		Pos:      round3(posSum / denom),
		Neg:      round3(math.Abs(negSum) / denom),
		Neu:      round3(float64(neuCount) / denom),
		Compound: round4(normalize(total)),
	}
}

func normalize(score float64) float64 {
	n := score / math.Sqrt(score*score+normAlpha)
	if n > 1 {
		return 1
	}
	if n < -1 {
		return -1
	}
	return n
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}

func round4(f float64) float64 {
	return math.Round(f*10000) / 10000
}
