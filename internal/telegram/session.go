package telegram

import (
	"strconv"

	"github.com/kitbuilder587/boing-search/internal/search"
)

// session хранит продолжение последней выдачи в чате.
type session struct {
	Token search.Token
	Page  int
	Query string
}

func sessionKey(chatID int64) string {
	return strconv.FormatInt(chatID, 10)
}

func (b *Bot) saveSession(chatID int64, s session) {
	if s.Token.IsEmpty() {
		b.sessions.Delete(sessionKey(chatID))
		return
	}
	b.sessions.Set(sessionKey(chatID), s, b.sessionTTL)
}

func (b *Bot) loadSession(chatID int64) (session, bool) {
	return b.sessions.Get(sessionKey(chatID))
}
