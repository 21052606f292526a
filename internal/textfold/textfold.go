// Package textfold turns result text into plain ASCII for old browsers that
// cannot render UTF-8 (AmigaOS, classic Mac, DOS).
package textfold

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// replacements for characters that do not decompose into ASCII
var replacements = map[rune]string{
	'ß': "ss", 'æ': "ae", 'Æ': "AE", 'ø': "o", 'Ø': "O", 'œ': "oe", 'Œ': "OE",
	'ł': "l", 'Ł': "L", 'đ': "d", 'Đ': "D", 'þ': "th", 'Þ': "Th",
	'‘': "'", '’': "'", '‚': "'", '“': "\"", '”': "\"", '„': "\"",
	'–': "-", '—': "-", '…': "...", '•': "*", '·': "*", '«': "<<", '»': ">>",
	' ': " ", '€': "EUR", '£': "GBP", '©': "(c)", '®': "(R)", '™': "(TM)",
}

// ASCII strips diacritics, maps common typographic characters and replaces
// anything left outside ASCII with '?'.
func ASCII(s string) string {
	if isASCII(s) {
		return s
	}

	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	var sb strings.Builder
	sb.Grow(len(folded))
	for _, r := range folded {
		switch {
		case r < utf8.RuneSelf:
			sb.WriteRune(r)
		case replacements[r] != "":
			sb.WriteString(replacements[r])
		default:
			sb.WriteByte('?')
		}
	}
	return sb.String()
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
