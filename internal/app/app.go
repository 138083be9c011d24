// Package app builds the brandwatch components from a Config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/FranksOps/brandwatch/internal/config"
	"github.com/FranksOps/brandwatch/internal/dataset"
	"github.com/FranksOps/brandwatch/internal/feeds"
	"github.com/FranksOps/brandwatch/internal/fingerprint"
	"github.com/FranksOps/brandwatch/internal/pipeline"
	"github.com/FranksOps/brandwatch/internal/scraper"
	"github.com/FranksOps/brandwatch/internal/sentiment"
	"github.com/FranksOps/brandwatch/internal/serp"
	"github.com/FranksOps/brandwatch/internal/storage"
	"github.com/FranksOps/brandwatch/internal/storage/backends"
	"github.com/FranksOps/brandwatch/pkg/proxy"
	"github.com/FranksOps/brandwatch/pkg/useragent"
)

// App holds the wired components. Fields are safe for concurrent use.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Search    *serp.Fallback
	Feeds     *feeds.Source
	Scraper   *dataset.Runner
	Fetcher   *scraper.Fetcher
	Collector *scraper.Collector
	Sitemaps  *scraper.SitemapFetcher
	Analyzer  sentiment.Analyzer

	mu    sync.Mutex
	store storage.Backend
}

// New wires every component. Nothing here touches the network; missing
// credentials only switch components to their offline behaviour.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	uaPool := useragent.NewPool(cfg.Collect.UserAgents)
	uaPool.SetRandom(cfg.Collect.RandomUserAgents)
	logger.Debug("user agent pool ready", "size", uaPool.Len(), "random", cfg.Collect.RandomUserAgents)

	primary, err := serp.NewBrightData(serp.BrightDataConfig{
		Username:           cfg.Search.Username,
		Password:           cfg.Search.Password,
		ProxyHost:          cfg.Search.ProxyHost,
		ProxyPort:          cfg.Search.ProxyPort,
		ProxyFile:          cfg.Search.ProxyFile,
		Endpoint:           cfg.Search.Endpoint,
		Timeout:            cfg.Search.Timeout,
		InsecureSkipVerify: cfg.Search.InsecureSkipVerify,
		UAPool:             uaPool,
		Logger:             logger,
	})
	if err != nil {
		return nil, fmt.Errorf("app: search: %w", err)
	}
	secondary, err := serp.NewDuckDuckGo(serp.DuckDuckGoConfig{
		Endpoint: cfg.Search.FallbackEndpoint,
		Timeout:  cfg.Search.Timeout,
		UAPool:   uaPool,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("app: search: %w", err)
	}
	a.Search = serp.NewFallback(primary, secondary, logger)

	if len(cfg.Feeds.URLs) > 0 {
		a.Feeds, err = feeds.NewSource(feeds.Config{
			URLs:     cfg.Feeds.URLs,
			MaxAge:   cfg.Feeds.MaxAge,
			Interval: cfg.Feeds.Interval,
			UAPool:   uaPool,
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("app: feeds: %w", err)
		}
	}

	datasets := make(map[dataset.Platform]string, len(cfg.Scrape.Datasets))
	for name, id := range cfg.Scrape.Datasets {
		datasets[dataset.ParsePlatform(name)] = id
	}
	a.Scraper, err = dataset.NewRunner(dataset.Config{
		APIKey:       cfg.Scrape.APIKey,
		BaseURL:      cfg.Scrape.BaseURL,
		PollInterval: cfg.Scrape.PollInterval,
		MaxWait:      cfg.Scrape.MaxWait,
		Timeout:      cfg.Scrape.Timeout,
		Datasets:     datasets,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("app: scrape: %w", err)
	}

	if err := a.buildCollector(uaPool); err != nil {
		return nil, err
	}

	a.Analyzer, err = NewAnalyzer(cfg.Sentiment, logger)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (a *App) buildCollector(uaPool *useragent.Pool) error {
	cfg := a.Config.Collect
	profile, err := fingerprint.ParseProfile(cfg.Fingerprint)
	if err != nil {
		return fmt.Errorf("app: collect: %w", err)
	}

	var proxies *proxy.Pool
	if cfg.ProxyFile != "" {
		proxies = proxy.NewPool(proxy.Config{})
		if err := proxies.LoadFile(cfg.ProxyFile); err != nil {
			return fmt.Errorf("app: collect: %w", err)
		}
	}

	a.Fetcher, err = scraper.NewFetcher(scraper.FetchConfig{
		Timeout:            cfg.Timeout,
		UseCookieJar:       true,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		ProxyPool:          proxies,
		UAPool:             uaPool,
		Fingerprint:        profile,
		Logger:             a.Logger,
	})
	if err != nil {
		return fmt.Errorf("app: collect: %w", err)
	}

	a.Collector = scraper.NewCollector(scraper.CollectConfig{
		Concurrency:       cfg.Concurrency,
		MaxPages:          cfg.MaxPages,
		RespectRobots:     cfg.RespectRobots,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Jitter:            cfg.Jitter,
	}, a.Fetcher, a.Logger)
	a.Sitemaps = scraper.NewSitemapFetcher(a.Fetcher, a.Logger)
	return nil
}

// NewAnalyzer picks the sentiment analyzer for cfg.Provider.
func NewAnalyzer(cfg config.SentimentConfig, logger *slog.Logger) (sentiment.Analyzer, error) {
	provider := strings.ToLower(cfg.Provider)
	if provider == "lexicon" {
		return sentiment.Lexicon{}, nil
	}

	llm, err := sentiment.NewLLM(sentiment.LLMConfig{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		Temperature: &cfg.Temperature,
		Timeout:     cfg.Timeout,
		Logger:      logger,
	})
	switch {
	case errors.Is(err, sentiment.ErrMissingAPIKey) && provider != "llm":
		logger.Info("no LLM api key configured, using lexicon sentiment")
		return sentiment.Lexicon{}, nil
	case err != nil:
		return nil, fmt.Errorf("app: sentiment: %w", err)
	}
	return sentiment.NewFallback(llm, sentiment.Lexicon{}, logger), nil
}

// Store opens the configured backend on first use.
func (a *App) Store(ctx context.Context) (storage.Backend, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.store != nil {
		return a.store, nil
	}
	b, err := backends.Open(ctx, a.Config.Storage.Backend, a.Config.Storage.Location)
	if err != nil {
		return nil, fmt.Errorf("app: storage: %w", err)
	}
	a.store = b
	return b, nil
}

// Monitor returns a pipeline wired to every component. store may be nil.
func (a *App) Monitor(store storage.Backend) *pipeline.Monitor {
	m := &pipeline.Monitor{
		Search:    a.Search,
		Collector: a.Collector,
		Scraper:   a.Scraper,
		Analyzer:  a.Analyzer,
		Store:     store,
		Logger:    a.Logger,
	}
	// A nil *feeds.Source must not become a non-nil interface.
	if a.Feeds != nil {
		m.Feeds = a.Feeds
	}
	return m
}

func (a *App) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.store != nil {
		return a.store.Close()
	}
	return nil
}
