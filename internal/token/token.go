// Package token splits raw field text into normalized word and punctuation
// tokens.
//
// Normalization is intentionally lexical, not linguistic: lower-casing,
// Western-European accent folding, and a single pass of common prefix and
// suffix stripping. Two texts that share vocabulary after this normalization
// compare as similar even when inflection differs ("running" vs "runs").
package token

import (
	"strings"
	"time"
	"unicode"

	gocache "github.com/patrickmn/go-cache"
)

// DefaultTTL is how long a memoized tokenization stays cached. Each re-access
// refreshes the entry, so text that keeps arriving in bursty input events
// stays warm.
const DefaultTTL = 60 * time.Second

// punctuation runes that terminate the current token and are emitted as
// standalone one-rune tokens.
const punctuation = ".,!?;:()"

// Common affixes, tried in order; the first match wins and at most one of
// each is stripped. Prefix and suffix stripping are independent.
var (
	commonPrefixes = []string{
		"un", "re", "in", "im", "dis", "en", "non", "non-", "pre", "pre-",
		"mis", "sub", "inter", "fore", "de", "trans", "super", "semi",
		"anti", "mid", "under",
	}

	commonSuffixes = []string{
		"s", "es", "ed", "ing", "ly", "er", "or", "ion", "tion", "ation",
		"ity", "ment", "ness", "ful", "less", "est", "ive", "y", "ize",
		"ise", "ify", "en", "ssa", "lla", "aa",
	}
)

// accentFold maps accented vowels and ñ common to Western-European languages
// to their unaccented base letter. Applied after lower-casing.
var accentFold = map[rune]rune{
	'á': 'a', 'à': 'a', 'â': 'a', 'ä': 'a', 'ã': 'a', 'å': 'a',
	'é': 'e', 'è': 'e', 'ê': 'e', 'ë': 'e',
	'í': 'i', 'ì': 'i', 'î': 'i', 'ï': 'i',
	'ó': 'o', 'ò': 'o', 'ô': 'o', 'ö': 'o', 'õ': 'o',
	'ú': 'u', 'ù': 'u', 'û': 'u', 'ü': 'u',
	'ñ': 'n',
}

// Tokenize splits text into normalized tokens. Whitespace separates tokens;
// each punctuation rune ends the current token and is emitted on its own.
// Tokens that normalize to the empty string are dropped. Empty input yields
// an empty (nil) sequence. Ordering is preserved.
func Tokenize(text string) []string {
	if text == "" {
		return nil
	}

	var tokens []string
	var current strings.Builder

	flush := func() {
		if current.Len() == 0 {
			return
		}
		if norm := Normalize(current.String()); norm != "" {
			tokens = append(tokens, norm)
		}
		current.Reset()
	}

	for _, r := range text {
		switch {
		case isSpace(r):
			flush()
		case strings.ContainsRune(punctuation, r):
			flush()
			tokens = append(tokens, string(r))
		default:
			current.WriteRune(r)
		}
	}
	flush()

	return tokens
}

// Normalize lower-cases a single raw token, folds accents, and strips at
// most one common prefix and one common suffix. Returns "" when nothing
// survives normalization.
func Normalize(raw string) string {
	lowered := strings.ToLower(raw)

	var b strings.Builder
	b.Grow(len(lowered))
	for _, r := range lowered {
		if folded, ok := accentFold[r]; ok {
			b.WriteRune(folded)
		} else {
			b.WriteRune(r)
		}
	}
	tok := b.String()

	for _, prefix := range commonPrefixes {
		if strings.HasPrefix(tok, prefix) {
			tok = tok[len(prefix):]
			break
		}
	}
	for _, suffix := range commonSuffixes {
		if strings.HasSuffix(tok, suffix) {
			tok = tok[:len(tok)-len(suffix)]
			break
		}
	}

	return tok
}

func isSpace(r rune) bool {
	return unicode.IsSpace(r)
}

// Tokenizer memoizes Tokenize per distinct input string with a TTL cache.
// Purely an optimization against bursty input events; results are identical
// to calling Tokenize directly. Callers must not mutate returned slices.
type Tokenizer struct {
	memo *gocache.Cache
}

// New returns a Tokenizer with the default 60s TTL.
func New() *Tokenizer {
	return NewWithTTL(DefaultTTL)
}

// NewWithTTL returns a Tokenizer whose memoized entries expire after ttl.
// Expired entries are dropped lazily on access and by a background sweep;
// neither blocks tokenization.
func NewWithTTL(ttl time.Duration) *Tokenizer {
	return &Tokenizer{
		memo: gocache.New(ttl, 2*ttl),
	}
}

// Tokenize returns the normalized token sequence for text, serving repeated
// inputs from the cache. Each hit refreshes the entry's TTL.
func (t *Tokenizer) Tokenize(text string) []string {
	if text == "" {
		return nil
	}
	if cached, ok := t.memo.Get(text); ok {
		tokens := cached.([]string)
		t.memo.SetDefault(text, tokens) // refresh TTL
		return tokens
	}
	tokens := Tokenize(text)
	t.memo.SetDefault(text, tokens)
	return tokens
}
