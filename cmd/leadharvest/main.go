package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/leadharvest/leadharvest/internal/captcha"
	"github.com/leadharvest/leadharvest/internal/config"
	"github.com/leadharvest/leadharvest/internal/crawler"
	dbRedis "github.com/leadharvest/leadharvest/internal/db/redis"
	logpkg "github.com/leadharvest/leadharvest/internal/logger"
	"github.com/leadharvest/leadharvest/internal/metrics"
	"github.com/leadharvest/leadharvest/internal/provider"
	"github.com/leadharvest/leadharvest/internal/queue"
	"github.com/leadharvest/leadharvest/internal/repository/crawlcache"
	"github.com/leadharvest/leadharvest/internal/repository/denylist"
	searchrepo "github.com/leadharvest/leadharvest/internal/repository/search"
	"github.com/leadharvest/leadharvest/internal/seo"
	"github.com/leadharvest/leadharvest/internal/transport"
	chiTransport "github.com/leadharvest/leadharvest/internal/transport/chi"
	openaiVision "github.com/leadharvest/leadharvest/internal/transport/openai"
	enrichuc "github.com/leadharvest/leadharvest/internal/usecase/enrich"
	searchjobuc "github.com/leadharvest/leadharvest/internal/usecase/searchjob"
	"github.com/leadharvest/leadharvest/internal/version"
)

func main() {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting leadharvest worker",
		zap.String("version", version.String()),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register pipeline metrics explicitly (no init())
	metrics.RegisterPipelineMetrics()

	// Anti-blocking transport shared by all scraping providers
	fetcher := transport.NewFetcher(transport.ProxySettings{
		Enabled: cfg.Proxy.Enabled,
		URL:     cfg.Proxy.URL,
		List:    cfg.Proxy.List,
	}, logger)

	// Captcha bypass: vision model for image challenges, paid services for
	// token challenges. Both are optional.
	var vision captcha.VisionSolver
	if cfg.Captcha.Vision.APIKey != "" {
		vision = openaiVision.NewVision(&openaiVision.Config{
			APIKey:  cfg.Captcha.Vision.APIKey,
			BaseURL: cfg.Captcha.Vision.BaseURL,
			Model:   cfg.Captcha.Vision.Model,
			Logger:  logger,
		})
		logger.Info("Vision captcha solver enabled", zap.String("model", cfg.Captcha.Vision.Model))
	}

	var solvers []captcha.TokenSolver
	if svc, ok := cfg.Captcha.Services["2captcha"]; ok && svc.Enabled {
		solvers = append(solvers, captcha.NewTwoCaptcha(svc.APIKey, svc.BaseURL, logger))
	}
	if svc, ok := cfg.Captcha.Services["anticaptcha"]; ok && svc.Enabled {
		solvers = append(solvers, captcha.NewAntiCaptcha(svc.APIKey, svc.BaseURL, logger))
	}
	bypass := captcha.NewBypass(fetcher, vision, solvers, logger)
	logger.Info("Captcha bypass assembled", zap.Int("token_solvers", len(solvers)))

	// Provider adapters behind the closed-kind registry
	registry := provider.NewRegistry()
	mustRegister(logger, registry,
		provider.NewGoogleHTML(fetcher, bypass, logger),
		provider.NewYandexHTML(fetcher, bypass, logger),
		provider.NewYandexXML(providerBaseURL(cfg, provider.KindYandexXML), logger),
		provider.NewDuckDuckGo(fetcher, logger),
		provider.NewSerpAPI(providerBaseURL(cfg, provider.KindSerpAPI), logger),
	)
	orchestrator := provider.NewOrchestrator(registry, cfg.Providers, logger)

	// Persistence and the job queue
	searches := searchrepo.New(store)
	denyRepo := denylist.New(store)
	jobQueue := queue.New(store, cfg.Queue, logger)

	// Enrichment stack: crawler, TTL cache, SEO audit
	domainCrawler := crawler.New(cfg.Crawler, logger)
	cache := crawlcache.New(store,
		time.Duration(cfg.Crawler.CacheTTLHours)*time.Hour,
		metrics.CrawlCacheTotal, logger)
	auditor := seo.New(logger)

	searchSvc := searchjobuc.New(searches, orchestrator, denyRepo, jobQueue,
		time.Duration(cfg.Queue.SearchDeadline)*time.Second, logger)
	enrichSvc := enrichuc.New(searches, domainCrawler, cache, auditor, logger)

	workers := queue.NewWorkers(jobQueue, cfg.Queue,
		func(ctx context.Context, job queue.Job) error {
			return searchSvc.Execute(ctx, job.SearchID)
		},
		func(ctx context.Context, job queue.Job) error {
			return enrichSvc.EnrichDomain(ctx, job.SearchID, job.Domain, job.URL)
		},
		logger)

	workerCtx, stopWorkers := context.WithCancel(ctx)
	workersDone := make(chan error, 1)
	go func() { workersDone <- workers.Run(workerCtx) }()

	server := chiTransport.NewServer(searches, jobQueue, searchSvc, store, logger)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Router(),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	stopWorkers()
	select {
	case err := <-workersDone:
		if err != nil {
			logger.Error("Workers stopped with error", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		logger.Warn("Workers did not drain in time")
	}

	logger.Info("Worker stopped gracefully")
}

func mustRegister(logger *zap.Logger, registry *provider.Registry, providers ...provider.SearchProvider) {
	for _, p := range providers {
		if err := registry.Register(p); err != nil {
			logger.Fatal("Failed to register provider", zap.String("kind", string(p.Kind())), zap.Error(err))
		}
	}
}

func providerBaseURL(cfg config.Config, kind provider.Kind) string {
	if pc, ok := cfg.Providers[string(kind)]; ok {
		return pc.BaseURL
	}
	return ""
}
