// Package romanize turns Japanese titles into a romaji key used to match
// records whose titles were stored in different scripts.
package romanize

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/gojp/kana"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/ikawaha/kagome-dict/ipa"
	"github.com/ikawaha/kagome/v2/tokenizer"
)

// Romanizer maps a title to its romanized form. Implementations are total:
// they never fail and return the input when nothing can be converted.
type Romanizer interface {
	Romanize(text string) string
}

// Func adapts a plain function to Romanizer.
type Func func(text string) string

// Romanize calls f.
func (f Func) Romanize(text string) string {
	return f(text)
}

// NeedsRomanization reports whether text contains Han, Hiragana or Katakana.
func NeedsRomanization(text string) bool {
	for _, r := range text {
		if unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana) {
			return true
		}
	}
	return false
}

// Kagome romanizes by reading each morpheme with the IPA dictionary and
// converting the katakana reading to romaji.
type Kagome struct {
	tokenizer *tokenizer.Tokenizer
}

// NewKagome loads the IPA dictionary. Build one per process.
func NewKagome() (*Kagome, error) {
	t, err := tokenizer.New(ipa.Dict(), tokenizer.OmitBosEos())
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}
	return &Kagome{tokenizer: t}, nil
}

// Romanize converts text morpheme by morpheme and joins the words with a
// single space. Morphemes without a reading keep their surface form, with any
// kana in it converted.
func (k *Kagome) Romanize(text string) string {
	tokens := k.tokenizer.Tokenize(text)
	words := make([]string, 0, len(tokens))
	for _, token := range tokens {
		surface := strings.TrimSpace(token.Surface)
		if surface == "" {
			continue
		}
		reading, ok := token.Reading()
		if !ok || reading == "" || reading == "*" {
			reading = surface
		}
		word := strings.TrimSpace(kana.KanaToRomaji(reading))
		if word == "" {
			continue
		}
		words = append(words, word)
	}
	return strings.Join(words, " ")
}

// Cached memoizes another Romanizer in a bounded LRU keyed by input text.
type Cached struct {
	next  Romanizer
	cache *lru.Cache[string, string]
}

// NewCached wraps next with an LRU of the given size.
func NewCached(next Romanizer, size int) (*Cached, error) {
	if next == nil {
		return nil, fmt.Errorf("romanizer cannot be nil")
	}
	if size <= 0 {
		return nil, fmt.Errorf("cache size must be positive")
	}
	cache, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	return &Cached{next: next, cache: cache}, nil
}

// Romanize returns the cached conversion or computes and stores it.
func (c *Cached) Romanize(text string) string {
	if out, ok := c.cache.Get(text); ok {
		return out
	}
	out := c.next.Romanize(text)
	c.cache.Add(text, out)
	return out
}
