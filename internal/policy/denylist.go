// Package policy rejects queries before any provider is contacted.
package policy

import (
	"bufio"
	_ "embed"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	textsearch "golang.org/x/text/search"

	"github.com/kitbuilder587/boing-search/internal/search"
)

//go:embed words.txt
var defaultWords string

// Denylist is built once and never mutated. Single words match whole query
// tokens ("sex" does not hit "Sussex"); phrases match as case- and
// diacritic-insensitive substrings.
type Denylist struct {
	words   map[string]struct{}
	phrases []string
}

// New builds a denylist from the embedded default list plus extra terms.
func New(extra []string) *Denylist {
	return NewFromTerms(append(DefaultTerms(), extra...))
}

// NewFromTerms builds a denylist from terms only, without the defaults.
func NewFromTerms(terms []string) *Denylist {
	fold := cases.Fold()
	d := &Denylist{words: make(map[string]struct{})}
	seen := make(map[string]struct{})

	for _, term := range terms {
		term = strings.Join(strings.Fields(fold.String(term)), " ")
		if term == "" {
			continue
		}
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}

		if strings.Contains(term, " ") {
			d.phrases = append(d.phrases, term)
		} else {
			d.words[term] = struct{}{}
		}
	}
	return d
}

func DefaultTerms() []string {
	var terms []string
	sc := bufio.NewScanner(strings.NewReader(defaultWords))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		terms = append(terms, line)
	}
	return terms
}

// Len returns the number of distinct terms.
func (d *Denylist) Len() int {
	return len(d.words) + len(d.phrases)
}

// Match returns the first denied term found in the query.
func (d *Denylist) Match(query string) (string, bool) {
	if d == nil {
		return "", false
	}

	fold := cases.Fold()
	tokens := strings.FieldsFunc(fold.String(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, tok := range tokens {
		if _, ok := d.words[tok]; ok {
			return tok, true
		}
	}

	if len(d.phrases) == 0 {
		return "", false
	}
	// Matcher is not shared between goroutines
	m := textsearch.New(language.Und, textsearch.IgnoreCase, textsearch.IgnoreDiacritics)
	normalized := strings.Join(strings.Fields(query), " ")
	for _, p := range d.phrases {
		if start, _ := m.IndexString(normalized, p); start >= 0 {
			return p, true
		}
	}
	return "", false
}

// Check wraps search.ErrPolicyRejected when the query hits the denylist.
func (d *Denylist) Check(query string) error {
	if term, ok := d.Match(query); ok {
		return fmt.Errorf("%w: matched %q", search.ErrPolicyRejected, term)
	}
	return nil
}
