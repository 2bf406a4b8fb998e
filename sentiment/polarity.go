// Copyright 2026 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sentiment

import (
	"strings"
	"unicode"

	mapset "github.com/deckarep/golang-set/v2"
)

type Label string

const (
	Positive Label = "positive"
	Negative Label = "negative"
	Neutral  Label = "neutral"
)

// DefaultThreshold separates neutral polarities from polar ones. Polarities
// equal to ±DefaultThreshold are neutral.
const DefaultThreshold = 0.1

// NegationWindow is the number of tokens before an opinion word searched for a negator.
const NegationWindow = 3

// Classify labels a polarity. Boundary values are neutral.
func Classify(polarity, threshold float64) Label {
	if polarity > threshold {
		return Positive
	} else if polarity < -threshold {
		return Negative
	}
	return Neutral
}

var lexicon = map[string]float64{
	// positive
	"good":          0.7,
	"great":         0.8,
	"excellent":     1.0,
	"amazing":       0.9,
	"awesome":       0.9,
	"fantastic":     0.9,
	"perfect":       1.0,
	"love":          0.8,
	"loved":         0.8,
	"like":          0.4,
	"nice":          0.6,
	"happy":         0.7,
	"best":          1.0,
	"better":        0.5,
	"beautiful":     0.8,
	"comfortable":   0.7,
	"comfy":         0.6,
	"cozy":          0.6,
	"soft":          0.4,
	"cushioned":     0.4,
	"supportive":    0.5,
	"pleasant":      0.6,
	"durable":       0.6,
	"sturdy":        0.5,
	"solid":         0.4,
	"reliable":      0.6,
	"stylish":       0.7,
	"fashionable":   0.6,
	"attractive":    0.6,
	"elegant":       0.7,
	"modern":        0.3,
	"ideal":         0.8,
	"snug":          0.3,
	"affordable":    0.5,
	"reasonable":    0.4,
	"worth":         0.5,
	"value":         0.3,
	"inexpensive":   0.4,
	"premium":       0.6,
	"quality":       0.3,
	"breathable":    0.4,
	"effective":     0.6,
	"efficient":     0.6,
	"consistent":    0.4,
	"trusted":       0.6,
	"popular":       0.4,
	"fast":          0.5,
	"quick":         0.5,
	"prompt":        0.5,
	"on-time":       0.5,
	"helpful":       0.7,
	"responsive":    0.6,
	"friendly":      0.6,
	"professional":  0.5,
	"recommend":     0.6,
	"recommended":   0.6,
	"satisfied":     0.6,
	"well-made":     0.7,
	"lightweight":   0.4,
	"gorgeous":      0.9,
	"superb":        1.0,
	"wonderful":     0.9,
	"impressive":    0.7,
	"pleased":       0.6,
	"flawless":      0.9,
	"well-fitting":  0.6,
	"appropriate":   0.3,
	// negative
	"bad":           -0.7,
	"poor":          -0.7,
	"terrible":      -1.0,
	"awful":         -1.0,
	"horrible":      -1.0,
	"worst":         -1.0,
	"worse":         -0.6,
	"hate":          -0.8,
	"hated":         -0.8,
	"disappointed":  -0.7,
	"disappointing": -0.7,
	"uncomfortable": -0.7,
	"hard":          -0.3,
	"stiff":         -0.5,
	"painful":       -0.8,
	"rough":         -0.4,
	"irritating":    -0.6,
	"flimsy":        -0.7,
	"weak":          -0.5,
	"unreliable":    -0.7,
	"broken":        -0.8,
	"broke":         -0.7,
	"ugly":          -0.8,
	"unattractive":  -0.6,
	"outdated":      -0.4,
	"unfashionable": -0.5,
	"boring":        -0.5,
	"plain":         -0.2,
	"loose":         -0.3,
	"tight":         -0.3,
	"ill-fitting":   -0.6,
	"awkward":       -0.4,
	"expensive":     -0.4,
	"overpriced":    -0.7,
	"costly":        -0.4,
	"pricey":        -0.4,
	"unaffordable":  -0.6,
	"waste":         -0.8,
	"cheap":         -0.3,
	"low-quality":   -0.8,
	"ineffective":   -0.6,
	"inconsistent":  -0.4,
	"failing":       -0.6,
	"untrusted":     -0.6,
	"slow":          -0.5,
	"late":          -0.5,
	"delayed":       -0.5,
	"problematic":   -0.6,
	"unhelpful":     -0.7,
	"unresponsive":  -0.6,
	"rude":          -0.8,
	"fake":          -0.8,
	"defective":     -0.9,
	"useless":       -0.9,
	"return":        -0.2,
	"returned":      -0.3,
	"refund":        -0.3,
	"damaged":       -0.8,
	"wrong":         -0.5,
	"sore":          -0.6,
	"blisters":      -0.7,
}

var negators = mapset.NewSet(
	"not", "no", "never", "none", "nothing", "neither", "nor", "without", "hardly", "barely",
	"don't", "doesn't", "didn't", "isn't", "wasn't", "aren't", "weren't", "won't", "wouldn't",
	"can't", "cannot", "couldn't", "shouldn't", "dont", "doesnt", "didnt", "isnt", "wasnt",
)

var intensifiers = map[string]float64{
	"very":         1.3,
	"really":       1.2,
	"extremely":    1.5,
	"super":        1.3,
	"so":           1.2,
	"too":          1.1,
	"quite":        1.1,
	"absolutely":   1.4,
	"incredibly":   1.5,
	"totally":      1.3,
	"highly":       1.3,
	"slightly":     0.6,
	"somewhat":     0.7,
	"fairly":       0.8,
	"kinda":        0.7,
	"bit":          0.7,
	"mostly":       0.9,
	"particularly": 1.2,
}

// Tokenize splits lowercased text into words. Hyphens and apostrophes inside
// words are kept.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '\''
	})
}

// Analysis is the polarity of a text.
type Analysis struct {
	// Polarity in [-1, 1].
	Polarity float64
	// Subjectivity is the share of opinion words in [0, 1].
	Subjectivity float64
	// Matched is the number of opinion words.
	Matched int
}

// Analyze scores a text by averaging the polarities of its opinion words. An
// intensifier right before an opinion word scales it. A negator within the
// NegationWindow tokens before an opinion word reverses and halves it.
func Analyze(text string) Analysis {
	tokens := Tokenize(text)
	var sum float64
	var matched int
	for i, token := range tokens {
		score, ok := lexicon[token]
		if !ok {
			continue
		}
		if i > 0 {
			if multiplier, ok := intensifiers[tokens[i-1]]; ok {
				score *= multiplier
			}
		}
		for j := max(0, i-NegationWindow); j < i; j++ {
			if negators.Contains(tokens[j]) {
				score = -score * 0.5
				break
			}
		}
		sum += score
		matched++
	}
	if matched == 0 {
		return Analysis{}
	}
	return Analysis{
		Polarity:     max(-1, min(1, sum/float64(matched))),
		Subjectivity: min(1, float64(matched)/float64(len(tokens))),
		Matched:      matched,
	}
}

// Polarity scores a text in [-1, 1]. Text without opinion words scores 0.
func Polarity(text string) float64 {
	return Analyze(text).Polarity
}
