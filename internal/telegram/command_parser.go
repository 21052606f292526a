package telegram

import (
	"strings"

	"github.com/kitbuilder587/boing-search/internal/search"
)

// /search -> бесплатный поиск, /premium -> платный
// обычный текст -> defaultPref
func ParseQueryCommand(text string, defaultPref search.Preference) (query string, pref search.Preference) {
	text = strings.TrimSpace(text)

	if text == "" {
		return "", defaultPref
	}

	if !strings.HasPrefix(text, "/") {
		return normalizeSpaces(text), defaultPref
	}

	parts := strings.SplitN(text, " ", 2)
	command := strings.ToLower(parts[0])
	// /search@BoingBot в группах
	if at := strings.IndexByte(command, '@'); at > 0 {
		command = command[:at]
	}

	var rest string
	if len(parts) > 1 {
		rest = normalizeSpaces(parts[1])
	}

	switch command {
	case "/search":
		return rest, search.PreferFree
	case "/premium":
		return rest, search.PreferPremium
	default:
		return text, defaultPref
	}
}

func normalizeSpaces(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}
