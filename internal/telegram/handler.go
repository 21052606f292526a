package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/kitbuilder587/boing-search/internal/search"
)

// telegramMessageLimit - лимит телеграма на длину сообщения
const telegramMessageLimit = 4096

type Handler struct {
	bot *Bot
}

func NewHandler(bot *Bot) *Handler {
	return &Handler{bot: bot}
}

// HandleMessage returns a status label for metrics.
func (h *Handler) HandleMessage(ctx context.Context, msg *tgbotapi.Message) string {
	h.bot.logger.Info("received message",
		zap.Int64("user_id", msg.From.ID),
		zap.String("username", msg.From.UserName),
		zap.Bool("is_command", msg.IsCommand()),
	)

	if !msg.IsCommand() {
		return h.handleQuery(ctx, msg)
	}

	switch msg.Command() {
	case "search", "premium":
		return h.handleQuery(ctx, msg)
	case "next":
		return h.handleNext(ctx, msg)
	case "start":
		h.handleStart(ctx, msg)
	case "help":
		h.handleHelp(msg)
	default:
		h.bot.Send(msg.Chat.ID, "Неизвестная команда. Используйте /help для справки.")
	}
	return "command"
}

func (h *Handler) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	response := "Добро пожаловать в BoingSearch! Просто отправьте запрос, и я поищу.\n\nИспользуйте /help для просмотра доступных команд."

	if h.bot.quota != nil {
		left, err := h.bot.quota.SearchesLeft(ctx)
		if err != nil {
			h.bot.logger.Warn("failed to fetch premium quota", zap.Error(err))
			response += "\n\nНе удалось получить остаток премиум-запросов."
		} else {
			response += fmt.Sprintf("\n\nОсталось премиум-запросов: %d", left)
		}
	}

	h.bot.Send(msg.Chat.ID, response)
}

func (h *Handler) handleHelp(msg *tgbotapi.Message) {
	helpText := `<b>Доступные команды:</b>

/start - Приветствие и остаток премиум-запросов
/help - Показать эту справку
/search запрос - Бесплатный поиск
/premium запрос - Премиум-поиск (Google через SerpAPI)
/next - Следующая страница последней выдачи

<b>Как использовать:</b>
Просто отправьте текст, это то же самое, что /search.
Если выбранный поиск недоступен, запрос автоматически уйдет во второй.

<b>Примеры:</b>
• Amiga 40
• /premium commodore 64 emulator`

	h.bot.Send(msg.Chat.ID, helpText)
}

func (h *Handler) handleQuery(ctx context.Context, msg *tgbotapi.Message) string {
	query, pref := ParseQueryCommand(msg.Text, search.PreferFree)
	if query == "" {
		h.bot.Send(msg.Chat.ID, "Укажите запрос: /search Amiga 40")
		return "validation_error"
	}

	if !h.allow(msg) {
		return "rate_limited"
	}

	h.bot.SendTyping(msg.Chat.ID)

	h.bot.logger.Info("processing search",
		zap.Int64("user_id", msg.From.ID),
		zap.String("preference", pref.String()),
	)

	resp, err := h.bot.engine.FirstSearch(ctx, query, pref)
	if err != nil {
		h.bot.logger.Error("search failed",
			zap.Error(err),
			zap.Int64("user_id", msg.From.ID),
		)
		h.bot.Send(msg.Chat.ID, mapErrorToMessage(err))
		return "error"
	}

	h.bot.saveSession(msg.Chat.ID, session{Token: resp.Continuation, Page: 1, Query: query})
	h.reply(msg.Chat.ID, FormatResults(query, 1, resp))
	return "success"
}

func (h *Handler) handleNext(ctx context.Context, msg *tgbotapi.Message) string {
	s, ok := h.bot.loadSession(msg.Chat.ID)
	if !ok {
		h.bot.Send(msg.Chat.ID, "Нет следующей страницы. Сначала выполните поиск.")
		return "validation_error"
	}

	if !h.allow(msg) {
		return "rate_limited"
	}

	h.bot.SendTyping(msg.Chat.ID)

	resp, err := h.bot.engine.NextPage(ctx, s.Token)
	if err != nil {
		h.bot.logger.Error("next page failed",
			zap.Error(err),
			zap.Int64("user_id", msg.From.ID),
			zap.Bool("premium", s.Token.IsPremium()),
		)
		h.bot.Send(msg.Chat.ID, mapErrorToMessage(err))
		return "error"
	}

	page := s.Page + 1
	h.bot.saveSession(msg.Chat.ID, session{Token: resp.Continuation, Page: page, Query: s.Query})
	h.reply(msg.Chat.ID, FormatResults(s.Query, page, resp))
	return "success"
}

func (h *Handler) allow(msg *tgbotapi.Message) bool {
	key := strconv.FormatInt(msg.From.ID, 10)
	if h.bot.rateLimiter.Allow(key) {
		return true
	}

	h.bot.logger.Warn("rate limit exceeded",
		zap.Int64("user_id", msg.From.ID),
		zap.Time("reset_at", h.bot.rateLimiter.ResetTime(key)),
	)
	h.bot.RecordRateLimitHit()
	h.bot.Send(msg.Chat.ID, "Слишком много запросов. Пожалуйста, подождите минуту.")
	return false
}

func (h *Handler) reply(chatID int64, text string) {
	for _, m := range SplitMessage(text, telegramMessageLimit) {
		if err := h.bot.Send(chatID, m); err != nil {
			h.bot.logger.Error("failed to send message", zap.Error(err))
		}
	}
}

func mapErrorToMessage(err error) string {
	switch {
	case errors.Is(err, search.ErrPolicyRejected):
		return "Запрос отклонен правилами поиска."
	case errors.Is(err, search.ErrEmptyQuery):
		return "Пустой запрос. Введите, что искать."
	case errors.Is(err, search.ErrQueryTooLong):
		return "Запрос слишком длинный. Максимум 1000 символов."
	case errors.Is(err, search.ErrInvalidToken):
		return "Следующая страница недоступна. Начните новый поиск."
	case errors.Is(err, search.ErrNoResultsTable):
		return "Поисковик не вернул результатов. Попробуйте позже или /premium."
	case errors.Is(err, search.ErrTimeout):
		return "Поисковик не ответил вовремя. Попробуйте позже."
	case errors.Is(err, search.ErrRateLimit), errors.Is(err, search.ErrUnauthorized):
		return "Премиум-поиск сейчас недоступен."
	default:
		return "Произошла ошибка. Попробуйте позже."
	}
}
