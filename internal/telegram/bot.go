package telegram

import (
	"context"
	"fmt"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/kitbuilder587/boing-search/internal/cache/memory"
	"github.com/kitbuilder587/boing-search/internal/metrics"
	"github.com/kitbuilder587/boing-search/internal/ratelimit"
	"github.com/kitbuilder587/boing-search/internal/search"
)

const surface = "telegram"

// Searcher is the part of the engine the bot needs.
type Searcher interface {
	FirstSearch(ctx context.Context, query string, pref search.Preference) (*search.Response, error)
	NextPage(ctx context.Context, token search.Token) (*search.Response, error)
}

// QuotaSource reports the remaining premium searches.
type QuotaSource interface {
	SearchesLeft(ctx context.Context) (int, error)
}

type BotConfig struct {
	Token             string
	Debug             bool
	RequestsPerMinute int
	// SessionTTL - сколько помним токен следующей страницы для чата.
	SessionTTL time.Duration
}

type Bot struct {
	api         *tgbotapi.BotAPI
	send        func(c tgbotapi.Chattable) (tgbotapi.Message, error)
	engine      Searcher
	quota       QuotaSource
	sessions    *memory.Cache[session]
	sessionTTL  time.Duration
	logger      *zap.Logger
	metrics     *metrics.Metrics
	handler     *Handler
	rateLimiter *ratelimit.Limiter
	wg          sync.WaitGroup
}

func New(cfg BotConfig, engine Searcher, quota QuotaSource, logger *zap.Logger, m *metrics.Metrics) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	api.Debug = cfg.Debug

	bot := newBot(cfg, engine, quota, logger, m)
	bot.api = api
	bot.send = api.Send

	logger.Info("telegram bot authorized",
		zap.String("username", api.Self.UserName),
	)

	return bot, nil
}

func newBot(cfg BotConfig, engine Searcher, quota QuotaSource, logger *zap.Logger, m *metrics.Metrics) *Bot {
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = time.Hour
	}

	bot := &Bot{
		engine:     engine,
		quota:      quota,
		sessions:   memory.New[session](),
		sessionTTL: cfg.SessionTTL,
		logger:     logger,
		metrics:    m,
		rateLimiter: ratelimit.New(ratelimit.Config{
			RequestsPerMinute: cfg.RequestsPerMinute,
		}),
	}
	bot.handler = NewHandler(bot)
	return bot
}

func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	go b.rateLimiter.RunCleanup(ctx, time.Minute)

	b.logger.Info("bot started, waiting for updates")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("bot stopping, waiting for handlers to finish")
			b.api.StopReceivingUpdates()
			b.wg.Wait()
			b.sessions.Stop()
			b.logger.Info("all handlers finished")
			return ctx.Err()
		case update := <-updates:
			if update.Message == nil {
				continue
			}
			b.wg.Add(1)
			go func(upd tgbotapi.Update) {
				defer b.wg.Done()
				b.handleUpdate(ctx, upd)
			}(update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	startTime := time.Now()

	defer func() {
		if r := recover(); r != nil {
			chatID := int64(0)
			if update.Message != nil && update.Message.Chat != nil {
				chatID = update.Message.Chat.ID
			}
			b.logger.Error("panic in update handler",
				zap.Any("panic", r),
				zap.Int64("chat_id", chatID),
			)
			if b.metrics != nil {
				b.metrics.RecordRequest(surface, "panic", time.Since(startTime))
			}
		}
	}()

	if b.metrics != nil {
		b.metrics.IncRequestsInFlight()
		defer b.metrics.DecRequestsInFlight()
	}

	status := b.handler.HandleMessage(ctx, update.Message)

	if b.metrics != nil {
		b.metrics.RecordRequest(surface, status, time.Since(startTime))
	}
}

func (b *Bot) Send(chatID int64, text string) error {
	if b.send == nil {
		return nil
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "HTML"
	msg.DisableWebPagePreview = true
	_, err := b.send(msg)
	return err
}

func (b *Bot) SendTyping(chatID int64) {
	if b.send == nil {
		return
	}
	action := tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)
	b.send(action)
}

func (b *Bot) RecordRateLimitHit() {
	if b.metrics != nil {
		b.metrics.RecordRateLimitHit(surface)
	}
}
