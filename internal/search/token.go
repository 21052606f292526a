package search

import (
	"bytes"
	"encoding/json"
	"net/url"
	"sort"
)

// PremiumMarker is present only in tokens produced by the premium provider.
const PremiumMarker = "premium"

// Token is an ordered key/value continuation blob. The zero value is an
// empty token.
type Token struct {
	keys   []string
	values map[string]string
}

func NewToken() Token {
	return Token{values: make(map[string]string)}
}

// TokenFromValues builds a token from request parameters. Only the first value
// of each key is kept; keys are sorted since url.Values has no order.
func TokenFromValues(v url.Values) Token {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	t := NewToken()
	for _, k := range keys {
		if vals := v[k]; len(vals) > 0 {
			t = t.With(k, vals[0])
		}
	}
	return t
}

// With returns a copy of the token with key set to value. Existing keys keep
// their position.
func (t Token) With(key, value string) Token {
	out := Token{
		keys:   make([]string, len(t.keys), len(t.keys)+1),
		values: make(map[string]string, len(t.values)+1),
	}
	copy(out.keys, t.keys)
	for k, v := range t.values {
		out.values[k] = v
	}
	if _, ok := out.values[key]; !ok {
		out.keys = append(out.keys, key)
	}
	out.values[key] = value
	return out
}

func (t Token) Get(key string) (string, bool) {
	v, ok := t.values[key]
	return v, ok
}

func (t Token) Has(key string) bool {
	_, ok := t.values[key]
	return ok
}

func (t Token) Len() int {
	return len(t.keys)
}

func (t Token) IsEmpty() bool {
	return len(t.keys) == 0
}

func (t Token) IsPremium() bool {
	return t.Has(PremiumMarker)
}

func (t Token) Keys() []string {
	out := make([]string, len(t.keys))
	copy(out, t.keys)
	return out
}

// Values returns the token as form values, suitable for POST bodies and query strings.
func (t Token) Values() url.Values {
	v := make(url.Values, len(t.keys))
	for _, k := range t.keys {
		v.Set(k, t.values[k])
	}
	return v
}

// MarshalJSON keeps the key order of the token.
func (t Token) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range t.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(t.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
