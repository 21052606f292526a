package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/kitbuilder587/boing-search/internal/metrics"
	"github.com/kitbuilder587/boing-search/internal/search"
)

func TestMapErrorToMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"policy", search.ErrPolicyRejected, "Запрос отклонен правилами поиска."},
		{"empty", search.ErrEmptyQuery, "Пустой запрос. Введите, что искать."},
		{"too long", search.ErrQueryTooLong, "Запрос слишком длинный. Максимум 1000 символов."},
		{"invalid token", search.ErrInvalidToken, "Следующая страница недоступна. Начните новый поиск."},
		{"no table", search.ErrNoResultsTable, "Поисковик не вернул результатов. Попробуйте позже или /premium."},
		{"timeout", search.ErrTimeout, "Поисковик не ответил вовремя. Попробуйте позже."},
		{"rate limit", search.ErrRateLimit, "Премиум-поиск сейчас недоступен."},
		{"unauthorized", search.ErrUnauthorized, "Премиум-поиск сейчас недоступен."},
		{"unknown", errors.New("some random error"), "Произошла ошибка. Попробуйте позже."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapErrorToMessage(tt.err)
			if got != tt.want {
				t.Errorf("mapErrorToMessage() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMapErrorToMessage_WrappedErrors(t *testing.T) {
	wrappedErr := fmt.Errorf("serpapi: %w", fmt.Errorf("%w: deadline", search.ErrTimeout))
	got := mapErrorToMessage(wrappedErr)
	want := "Поисковик не ответил вовремя. Попробуйте позже."
	if got != want {
		t.Errorf("mapErrorToMessage(wrapped) = %v, want %v", got, want)
	}
}

type fakeSearcher struct {
	mu        sync.Mutex
	Response  *search.Response
	Error     error
	CallCount int
	NextCount int
	LastQuery string
	LastPref  search.Preference
	LastToken search.Token
}

func (f *fakeSearcher) FirstSearch(ctx context.Context, query string, pref search.Preference) (*search.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CallCount++
	f.LastQuery = query
	f.LastPref = pref
	if f.Error != nil {
		return nil, f.Error
	}
	return f.Response, nil
}

func (f *fakeSearcher) NextPage(ctx context.Context, token search.Token) (*search.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.NextCount++
	f.LastToken = token
	if f.Error != nil {
		return nil, f.Error
	}
	return f.Response, nil
}

type fakeQuota struct {
	left int
	err  error
}

func (f fakeQuota) SearchesLeft(ctx context.Context) (int, error) {
	return f.left, f.err
}

type sentLog struct {
	mu       sync.Mutex
	messages []string
	typing   int
}

func (s *sentLog) last() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) == 0 {
		return ""
	}
	return s.messages[len(s.messages)-1]
}

func createTestBot(searcher Searcher, quota QuotaSource, rpm int) (*Bot, *sentLog) {
	bot := newBot(BotConfig{RequestsPerMinute: rpm}, searcher, quota, zap.NewNop(), nil)
	sent := &sentLog{}
	bot.send = func(c tgbotapi.Chattable) (tgbotapi.Message, error) {
		sent.mu.Lock()
		defer sent.mu.Unlock()
		switch m := c.(type) {
		case tgbotapi.MessageConfig:
			sent.messages = append(sent.messages, m.Text)
		case tgbotapi.ChatActionConfig:
			sent.typing++
		}
		return tgbotapi.Message{}, nil
	}
	return bot, sent
}

func createTestMessage(userID int64, text string) *tgbotapi.Message {
	msg := &tgbotapi.Message{
		From: &tgbotapi.User{
			ID:       userID,
			UserName: "testuser",
		},
		Chat: &tgbotapi.Chat{
			ID: userID,
		},
		Text: text,
	}
	if strings.HasPrefix(text, "/") {
		length := len(text)
		if i := strings.IndexByte(text, ' '); i > 0 {
			length = i
		}
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: length}}
	}
	return msg
}

func amigaPage(cont search.Token) *search.Response {
	return &search.Response{
		Records: []search.Record{
			{Link: "https://amiga40.com/", DisplayedLink: "amiga40.com", Title: "Amiga 40"},
		},
		Continuation: cont,
	}
}

func TestHandler_SearchCommand(t *testing.T) {
	searcher := &fakeSearcher{Response: amigaPage(search.Token{})}
	bot, sent := createTestBot(searcher, nil, 100)

	status := bot.handler.HandleMessage(context.Background(), createTestMessage(123, "/search Amiga 40"))

	if status != "success" {
		t.Errorf("status = %q, want success", status)
	}
	if searcher.CallCount != 1 {
		t.Errorf("CallCount = %d, want 1", searcher.CallCount)
	}
	if searcher.LastQuery != "Amiga 40" || searcher.LastPref != search.PreferFree {
		t.Errorf("got query %q pref %v", searcher.LastQuery, searcher.LastPref)
	}
	if !strings.Contains(sent.last(), "Amiga 40") {
		t.Errorf("reply = %q", sent.last())
	}
	if sent.typing != 1 {
		t.Errorf("typing actions = %d, want 1", sent.typing)
	}
}

func TestHandler_PremiumCommand(t *testing.T) {
	searcher := &fakeSearcher{Response: amigaPage(search.Token{})}
	bot, _ := createTestBot(searcher, nil, 100)

	bot.handler.HandleMessage(context.Background(), createTestMessage(123, "/premium Amiga 40"))

	if searcher.LastPref != search.PreferPremium {
		t.Errorf("pref = %v, want premium", searcher.LastPref)
	}
}

func TestHandler_PlainText(t *testing.T) {
	searcher := &fakeSearcher{Response: amigaPage(search.Token{})}
	bot, _ := createTestBot(searcher, nil, 100)

	bot.handler.HandleMessage(context.Background(), createTestMessage(123, "обычный   запрос"))

	if searcher.CallCount != 1 {
		t.Errorf("CallCount = %d, want 1", searcher.CallCount)
	}
	if searcher.LastQuery != "обычный запрос" || searcher.LastPref != search.PreferFree {
		t.Errorf("got query %q pref %v", searcher.LastQuery, searcher.LastPref)
	}
}

func TestHandler_EmptyQuery(t *testing.T) {
	searcher := &fakeSearcher{}
	bot, sent := createTestBot(searcher, nil, 100)

	status := bot.handler.HandleMessage(context.Background(), createTestMessage(123, "/search"))

	if status != "validation_error" {
		t.Errorf("status = %q, want validation_error", status)
	}
	if searcher.CallCount != 0 {
		t.Errorf("CallCount = %d, want 0", searcher.CallCount)
	}
	if !strings.Contains(sent.last(), "Укажите запрос") {
		t.Errorf("reply = %q", sent.last())
	}
}

func TestHandler_SearchError(t *testing.T) {
	searcher := &fakeSearcher{Error: fmt.Errorf("x: %w", search.ErrPolicyRejected)}
	bot, sent := createTestBot(searcher, nil, 100)

	status := bot.handler.HandleMessage(context.Background(), createTestMessage(123, "плохой запрос"))

	if status != "error" {
		t.Errorf("status = %q, want error", status)
	}
	if sent.last() != "Запрос отклонен правилами поиска." {
		t.Errorf("reply = %q", sent.last())
	}
	if _, ok := bot.loadSession(123); ok {
		t.Error("failed search must not leave a session")
	}
}

func TestHandler_NextUsesSessionToken(t *testing.T) {
	first := search.NewToken().With("q", "Amiga 40").With("s", "30")
	second := search.NewToken().With("q", "Amiga 40").With("s", "60")

	searcher := &fakeSearcher{Response: amigaPage(first)}
	bot, sent := createTestBot(searcher, nil, 100)

	bot.handler.HandleMessage(context.Background(), createTestMessage(7, "Amiga 40"))
	if !strings.Contains(sent.last(), "/next") {
		t.Fatalf("first page should hint /next, got %q", sent.last())
	}

	searcher.Response = amigaPage(second)
	status := bot.handler.HandleMessage(context.Background(), createTestMessage(7, "/next"))
	if status != "success" {
		t.Fatalf("status = %q, want success", status)
	}
	if searcher.NextCount != 1 {
		t.Errorf("NextCount = %d, want 1", searcher.NextCount)
	}
	if s, _ := searcher.LastToken.Get("s"); s != "30" {
		t.Errorf("token s = %q, want 30", s)
	}
	if !strings.Contains(sent.last(), "страница 2") {
		t.Errorf("reply = %q", sent.last())
	}

	s, ok := bot.loadSession(7)
	if !ok || s.Page != 2 {
		t.Fatalf("session = %+v, %v", s, ok)
	}
	if v, _ := s.Token.Get("s"); v != "60" {
		t.Errorf("session token s = %q, want 60", v)
	}
}

func TestHandler_NextWithoutSession(t *testing.T) {
	searcher := &fakeSearcher{}
	bot, sent := createTestBot(searcher, nil, 100)

	status := bot.handler.HandleMessage(context.Background(), createTestMessage(7, "/next"))

	if status != "validation_error" {
		t.Errorf("status = %q, want validation_error", status)
	}
	if searcher.NextCount != 0 {
		t.Errorf("NextCount = %d, want 0", searcher.NextCount)
	}
	if !strings.Contains(sent.last(), "Нет следующей страницы") {
		t.Errorf("reply = %q", sent.last())
	}
}

func TestHandler_LastPageClearsSession(t *testing.T) {
	searcher := &fakeSearcher{Response: amigaPage(search.Token{})}
	bot, _ := createTestBot(searcher, nil, 100)

	bot.saveSession(7, session{Token: search.NewToken().With("q", "a"), Page: 1, Query: "a"})
	bot.handler.HandleMessage(context.Background(), createTestMessage(7, "другой запрос"))

	if _, ok := bot.loadSession(7); ok {
		t.Error("session should be cleared when the page has no continuation")
	}
}

func TestHandler_RateLimited(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	searcher := &fakeSearcher{Response: amigaPage(search.Token{})}
	bot, sent := createTestBot(searcher, nil, 1)
	bot.metrics = m

	bot.handler.HandleMessage(context.Background(), createTestMessage(5, "раз"))
	status := bot.handler.HandleMessage(context.Background(), createTestMessage(5, "два"))

	if status != "rate_limited" {
		t.Errorf("status = %q, want rate_limited", status)
	}
	if searcher.CallCount != 1 {
		t.Errorf("CallCount = %d, want 1", searcher.CallCount)
	}
	if !strings.Contains(sent.last(), "Слишком много запросов") {
		t.Errorf("reply = %q", sent.last())
	}
	if got := testutil.ToFloat64(m.RateLimitHitsTotal.WithLabelValues(surface)); got != 1 {
		t.Errorf("rate limit hits = %v, want 1", got)
	}
}

func TestHandler_Start(t *testing.T) {
	tests := []struct {
		name  string
		quota QuotaSource
		want  string
	}{
		{"with quota", fakeQuota{left: 97}, "Осталось премиум-запросов: 97"},
		{"quota error", fakeQuota{err: search.ErrUnauthorized}, "Не удалось получить остаток"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bot, sent := createTestBot(&fakeSearcher{}, tt.quota, 100)

			bot.handler.HandleMessage(context.Background(), createTestMessage(1, "/start"))

			if !strings.Contains(sent.last(), tt.want) {
				t.Errorf("reply = %q, want it to contain %q", sent.last(), tt.want)
			}
		})
	}
}

func TestHandler_HelpAndUnknown(t *testing.T) {
	bot, sent := createTestBot(&fakeSearcher{}, nil, 100)

	bot.handler.HandleMessage(context.Background(), createTestMessage(1, "/help"))
	if !strings.Contains(sent.last(), "/premium") {
		t.Errorf("help = %q", sent.last())
	}

	bot.handler.HandleMessage(context.Background(), createTestMessage(1, "/foo"))
	if !strings.Contains(sent.last(), "Неизвестная команда") {
		t.Errorf("reply = %q", sent.last())
	}
}
