package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/bilgisen/kafkaesque/internal/api"
	"github.com/bilgisen/kafkaesque/internal/config"
	"github.com/bilgisen/kafkaesque/internal/content"
	"github.com/bilgisen/kafkaesque/internal/gql"
	"github.com/bilgisen/kafkaesque/internal/imageproxy"
	"github.com/bilgisen/kafkaesque/internal/logger"
	"github.com/bilgisen/kafkaesque/internal/newsletter"
	"github.com/bilgisen/kafkaesque/internal/search"
)

func main() {
	cfg := config.Load()

	// Initialize logger
	if err := logger.Init(logger.Config{
		Level:  cfg.LogLevel,
		Output: cfg.LogOutput(),
		Pretty: cfg.LogPretty,
	}); err != nil {
		panic(err)
	}

	log := logger.Get()
	log.Info().Str("env", cfg.Env).Msg("Starting application...")

	// Missing CMS settings are reported per request, not fatal
	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("Configuration incomplete, affected endpoints will answer 500")
	}

	cms := gql.NewClient(gql.Options{
		Endpoint:   cfg.CMSEndpoint,
		Token:      cfg.CMSAccessToken,
		Timeout:    cfg.CMSTimeout,
		RetryCount: cfg.CMSRetryCount,
	})

	posts := content.NewClient(cms, content.Options{
		Host:        cfg.CMSHost,
		BatchSize:   cfg.FetchAllBatchSize,
		MaxAttempts: cfg.FetchAllMaxAttempt,
		PageDelay:   cfg.FetchAllDelay,
	})

	index := search.NewCache(posts,
		search.WithTTL(cfg.SearchCacheTTL),
		search.WithMinQueryLength(cfg.SearchMinQueryLength),
		search.WithMaxResults(cfg.SearchMaxResults),
	)

	handlers := api.NewHandlers(api.Deps{
		Config: cfg,
		Posts:  posts,
		Search: index,
		Newsletter: newsletter.NewSubscriber(cms, newsletter.Options{
			Token:         cfg.CMSAccessToken,
			PublicationID: cfg.CMSPublicationID,
		}),
		Images: imageproxy.New(imageproxy.Options{
			AllowedHost: cfg.ImageAllowedHost,
			Timeout:     cfg.ImageFetchTimeout,
			CacheSize:   cfg.ImageCacheSize,
			CacheTTL:    cfg.ImageCacheTTL,
		}),
	})

	app := api.NewApp(cfg, handlers)

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting server")
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited properly")
}
