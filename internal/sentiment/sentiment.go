// Package sentiment provides the default polarity scorer injected into the
// posting pipeline. The engine accepts any pure func(string) float64, so a
// heavier analyzer can be swapped in without touching the pipeline.
package sentiment

import (
	"strings"
	"unicode"
)

var positive = map[string]struct{}{
	"amazing": {}, "awesome": {}, "beautiful": {}, "best": {}, "brilliant": {},
	"cool": {}, "excellent": {}, "fantastic": {}, "fun": {}, "glad": {},
	"good": {}, "great": {}, "happy": {}, "kind": {}, "like": {},
	"love": {}, "lovely": {}, "nice": {}, "perfect": {}, "thanks": {},
	"welcome": {}, "wonderful": {}, "yay": {},
}

var negative = map[string]struct{}{
	"angry": {}, "annoying": {}, "awful": {}, "bad": {}, "boring": {},
	"broken": {}, "hate": {}, "horrible": {}, "sad": {}, "sorry": {},
	"stupid": {}, "terrible": {}, "ugly": {}, "upset": {}, "worst": {},
	"wrong": {},
}

// Score returns the polarity of text in [-1, 1]: the balance of positive and
// negative words among the matched ones. Text with no sentiment-bearing words
// scores a neutral 0.
func Score(text string) float64 {
	var pos, neg int
	for _, word := range tokenize(text) {
		if _, ok := positive[word]; ok {
			pos++
			continue
		}
		if _, ok := negative[word]; ok {
			neg++
		}
	}

	matched := pos + neg
	if matched == 0 {
		return 0
	}

	score := float64(pos-neg) / float64(matched)
	if score > 1 {
		return 1
	}
	if score < -1 {
		return -1
	}

	return score
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
}
