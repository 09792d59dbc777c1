// Package aisign scores raw text for shallow lexical markers of
// machine-generated prose.
//
// The heuristic is deliberately crude: it counts a handful of surface
// signatures that large language models overproduce relative to exam-typed
// text. It is binary by construction and is not a calibrated probability;
// the watchdog uses it as a discount signal, never as ground truth.
package aisign

import (
	"regexp"
	"strings"
)

// DefaultThreshold is the weighted total the watchdog uses as the binary
// cutoff.
const DefaultThreshold = 1.0

// Per-occurrence weights for each signature class.
const (
	weightEmDash       = 0.3
	weightEmoji        = 0.5
	weightPhrase       = 1.0
	weightNumberedList = 0.05
)

// emDash is the em-dash character, a strong stylistic tell when it shows up
// in text typed into an exam form.
const emDash = '—'

// Miscellaneous Symbols and Pictographs block; the emoji range counted by
// the heuristic.
const (
	emojiBlockLo = 0x1F300
	emojiBlockHi = 0x1F5FF
)

// selfReferencePhrases are canonical assistant self-references, matched
// case-insensitively. Each occurrence counts with full weight.
var selfReferencePhrases = []string{
	"as an ai",
	"as a language model",
	"as an ai language model",
	"as a large language model",
	"i am an ai",
	"i'm an ai",
	"i don't have personal opinions",
	"i cannot assist with that",
}

// numberedListMarker matches numbered-list markers such as "1." or "12.".
var numberedListMarker = regexp.MustCompile(`[0-9]+\.`)

// WeightedTotal returns the accumulated signature weight for text. Exposed
// for diagnostics; Score applies the binary cutoff.
func WeightedTotal(text string) float64 {
	total := 0.0

	for _, r := range text {
		switch {
		case r == emDash:
			total += weightEmDash
		case r >= emojiBlockLo && r <= emojiBlockHi:
			total += weightEmoji
		}
	}

	lowered := strings.ToLower(text)
	for _, phrase := range selfReferencePhrases {
		total += float64(strings.Count(lowered, phrase)) * weightPhrase
	}

	total += float64(len(numberedListMarker.FindAllStringIndex(text, -1))) * weightNumberedList

	return total
}

// Score returns 1 when the weighted signature total strictly exceeds
// threshold, else 0.
func Score(text string, threshold float64) float64 {
	if WeightedTotal(text) > threshold {
		return 1
	}
	return 0
}
