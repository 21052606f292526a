package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kitbuilder587/boing-search/internal/config"
	"github.com/kitbuilder587/boing-search/internal/engine"
	"github.com/kitbuilder587/boing-search/internal/metrics"
	"github.com/kitbuilder587/boing-search/internal/policy"
	"github.com/kitbuilder587/boing-search/internal/ratelimit"
	"github.com/kitbuilder587/boing-search/internal/rotation"
	"github.com/kitbuilder587/boing-search/internal/search/duckduck"
	"github.com/kitbuilder587/boing-search/internal/search/serpapi"
)

var (
	cfgFile string

	appVersion = "dev"
	appCommit  = "none"
)

var rootCmd = &cobra.Command{
	Use:          "boingsearch",
	Short:        "BoingSearch - lightweight web search for retro clients",
	Long:         "BoingSearch aggregates a free DuckDuckGo lite scraper and the SerpAPI premium engine behind one small API.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "boingsearch.toml", "config file path (optional)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(versionCmd)
}

// app - все собранные зависимости процесса.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics
	engine  *engine.Engine
	premium *serpapi.Client
}

func newApp() (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	proxies, err := rotation.ParseProxies(cfg.Scrape.Proxies)
	if err != nil {
		return nil, err
	}

	m := metrics.New(prometheus.NewRegistry())

	free := duckduck.New(duckduck.Config{
		BaseURL: cfg.Scrape.BaseURL,
		NextURL: cfg.Scrape.NextURL,
		Region:  cfg.Scrape.Region,
		Timeout: cfg.Scrape.Timeout.Duration,
	}, duckduck.Deps{
		Gate:       ratelimit.NewGate(cfg.Scrape.Spacing.Duration),
		Proxies:    rotation.New(proxies),
		UserAgents: rotation.New(cfg.Scrape.UserAgents),
		Logger:     logger.Named("duckduck"),
		Metrics:    m,
	})

	premium := serpapi.New(serpapi.Config{
		APIKey:     cfg.SerpAPI.APIKey,
		BaseURL:    cfg.SerpAPI.BaseURL,
		Timeout:    cfg.SerpAPI.Timeout.Duration,
		AccountTTL: cfg.SerpAPI.AccountTTL.Duration,
	}, logger.Named("serpapi"), m)

	denylist := policy.New(cfg.Policy.ExtraTerms)

	eng := engine.New(engine.Deps{
		Free:    free,
		Premium: premium,
		Policy:  denylist,
		Logger:  logger.Named("engine"),
		Metrics: m,
	})

	logger.Info("engine ready",
		zap.Int("proxies", len(proxies)),
		zap.Int("user_agents", len(cfg.Scrape.UserAgents)),
		zap.Int("denylist_terms", denylist.Len()),
		zap.Duration("spacing", cfg.Scrape.Spacing.Duration),
	)

	return &app{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		engine:  eng,
		premium: premium,
	}, nil
}

func (a *app) Close() {
	a.premium.Close()
	_ = a.logger.Sync()
}
