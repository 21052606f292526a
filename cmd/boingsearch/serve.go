package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kitbuilder587/boing-search/internal/server"
	"github.com/kitbuilder587/boing-search/internal/telegram"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and, if a token is configured, the Telegram bot",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var bot *telegram.Bot
	if a.cfg.TelegramEnabled() {
		bot, err = telegram.New(telegram.BotConfig{
			Token:             a.cfg.Telegram.Token,
			Debug:             a.cfg.Telegram.Debug,
			RequestsPerMinute: a.cfg.RateLimit.RequestsPerMinute,
		}, a.engine, a.premium, a.logger.Named("telegram"), a.metrics)
		if err != nil {
			return err
		}
	} else {
		a.logger.Info("telegram token not set, bot disabled")
	}

	g, ctx := errgroup.WithContext(ctx)

	srv := server.New(server.Config{
		Addr:              a.cfg.Server.Addr(),
		BasePath:          a.cfg.Server.BasePath,
		RequestsPerMinute: a.cfg.RateLimit.RequestsPerMinute,
	}, server.Deps{
		Engine:  a.engine,
		Quota:   a.premium,
		Logger:  a.logger.Named("http"),
		Metrics: a.metrics,
	})
	g.Go(func() error {
		return srv.Run(ctx)
	})

	if bot != nil {
		g.Go(func() error {
			return bot.Run(ctx)
		})
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		a.logger.Info("shutdown complete")
		return nil
	}
	if err != nil {
		a.logger.Error("service stopped with error", zap.Error(err))
	}
	return err
}
