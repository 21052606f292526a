package telegram

import (
	"fmt"
	"html"
	"strings"

	"github.com/kitbuilder587/boing-search/internal/search"
)

func FormatResults(query string, page int, resp *search.Response) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("<b>%s</b>", html.EscapeString(query)))
	if page > 1 {
		sb.WriteString(fmt.Sprintf(" - страница %d", page))
	}
	if resp.Continuation.IsPremium() {
		sb.WriteString(" <i>(premium)</i>")
	}
	sb.WriteString("\n\n")

	if len(resp.Records) == 0 {
		sb.WriteString("Ничего не найдено.")
		return sb.String()
	}

	for i, r := range resp.Records {
		displayed := r.DisplayedLink
		if displayed == "" {
			displayed = r.Link
		}
		sb.WriteString(fmt.Sprintf("%d. <b>%s</b>\n<a href=\"%s\">%s</a>\n",
			i+1,
			html.EscapeString(r.Title),
			html.EscapeString(r.Link),
			html.EscapeString(truncateURL(displayed, 60)),
		))
		if r.Snippet != "" {
			sb.WriteString(html.EscapeString(r.Snippet))
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	if !resp.Continuation.IsEmpty() {
		sb.WriteString("Дальше: /next")
	}

	return strings.TrimRight(sb.String(), "\n")
}

func SplitMessage(text string, maxLen int) []string {
	if len(text) <= maxLen {
		return []string{text}
	}

	var messages []string
	for len(text) > 0 {
		if len(text) <= maxLen {
			messages = append(messages, text)
			break
		}

		splitPoint := findSafeSplitPoint(text, maxLen)
		if splitPoint <= 0 || splitPoint > len(text) {
			splitPoint = maxLen
		}

		messages = append(messages, text[:splitPoint])
		text = text[splitPoint:]
	}

	return messages
}

func findSafeSplitPoint(text string, maxLen int) int {
	// предпочитаем границу между результатами
	if i := strings.LastIndex(text[:maxLen], "\n\n"); i > maxLen/2 {
		return i + 2
	}

	// ищем пробел или перевод строки, не ломая HTML-теги
	for i := maxLen - 1; i > maxLen/2; i-- {
		if isInsideHTMLTag(text, i) {
			continue
		}
		if text[i] == '\n' || text[i] == ' ' {
			return i + 1
		}
	}

	// внутри тега - ищем конец
	if isInsideHTMLTag(text, maxLen) {
		for i := maxLen; i < len(text); i++ {
			if text[i] == '>' {
				return i + 1
			}
		}
	}

	for i := maxLen - 1; i > 0; i-- {
		if text[i] == ' ' || text[i] == '\n' {
			return i + 1
		}
	}

	return maxLen
}

func isInsideHTMLTag(text string, pos int) bool {
	if pos >= len(text) || pos < 0 {
		return false
	}
	for i := pos; i >= 0; i-- {
		if text[i] == '>' {
			return false
		}
		if text[i] == '<' {
			return true
		}
	}
	return false
}

func truncateURL(url string, maxLen int) string {
	if len(url) <= maxLen {
		return url
	}
	return url[:maxLen-3] + "..."
}
