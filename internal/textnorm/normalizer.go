// Package textnorm turns raw legal text into the token stream used for
// lexical indexing.
package textnorm

import (
	"bufio"
	_ "embed"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

//go:embed stopwords_sl.txt
var slovenianStopwords string

// Normalizer maps text to a space separated sequence of index terms.
// The same normalizer must be used when building and querying an index.
type Normalizer interface {
	Normalize(text string) string
}

// Identifier is implemented by normalizers that can name their configuration.
// Indexes record the identifier so a mismatching normalizer is detected on load.
type Identifier interface {
	ID() string
}

// ID returns the identifier of n, or "" when n does not implement Identifier.
func ID(n Normalizer) string {
	if idn, ok := n.(Identifier); ok {
		return idn.ID()
	}
	return ""
}

// Func adapts a plain function to Normalizer.
type Func func(string) string

func (f Func) Normalize(text string) string { return f(text) }

// Slovenian lowercases, tokenizes and drops stopwords from Slovenian text.
type Slovenian struct {
	stopwords map[string]struct{}
}

// NewSlovenian returns a normalizer using the embedded Slovenian stopword list.
func NewSlovenian() *Slovenian {
	return &Slovenian{stopwords: parseStopwords(slovenianStopwords)}
}

// ID identifies the normalizer configuration.
func (s *Slovenian) ID() string {
	return "sl-lower-stopwords-v1"
}

// Normalize implements Normalizer.
func (s *Slovenian) Normalize(text string) string {
	// A Caser is stateful and must not be shared between goroutines.
	text = cases.Lower(language.Slovenian).String(norm.NFC.String(text))

	tokens := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	kept := tokens[:0]
	for _, tok := range tokens {
		if !isAlpha(tok) && !isDigits(tok) {
			continue
		}
		if _, stop := s.stopwords[tok]; stop {
			continue
		}
		kept = append(kept, tok)
	}
	return strings.Join(kept, " ")
}

func isAlpha(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return s != ""
}

func isDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}

func parseStopwords(list string) map[string]struct{} {
	words := make(map[string]struct{})
	scanner := bufio.NewScanner(strings.NewReader(list))
	for scanner.Scan() {
		w := strings.TrimSpace(scanner.Text())
		if w != "" {
			words[w] = struct{}{}
		}
	}
	return words
}
