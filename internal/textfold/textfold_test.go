package textfold

import "testing"

func TestASCII(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Amiga 500", "Amiga 500"},
		{"accents", "Café Olé naïve", "Cafe Ole naive"},
		{"german", "Straße Über", "Strasse Uber"},
		{"typographic", "“Boing” – the ball…", "\"Boing\" - the ball..."},
		{"ligature", "ﬁle", "file"},
		{"unknown script", "日本", "??"},
		{"empty", "", ""},
		{"control chars kept", "a\x7fb\tc", "a\x7fb\tc"},
		{"control chars kept while folding", "é\x7f", "e\x7f"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ASCII(tt.in); got != tt.want {
				t.Errorf("ASCII(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
