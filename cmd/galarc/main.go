// Package main wires together the gallery archiver service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/sakuramoe/galarc/internal/announce"
	"github.com/sakuramoe/galarc/internal/api"
	"github.com/sakuramoe/galarc/internal/challenge"
	"github.com/sakuramoe/galarc/internal/clock/system"
	"github.com/sakuramoe/galarc/internal/config"
	"github.com/sakuramoe/galarc/internal/dedup"
	"github.com/sakuramoe/galarc/internal/ehclient"
	"github.com/sakuramoe/galarc/internal/hash/sha1"
	"github.com/sakuramoe/galarc/internal/hosting"
	"github.com/sakuramoe/galarc/internal/logging"
	"github.com/sakuramoe/galarc/internal/metrics"
	"github.com/sakuramoe/galarc/internal/pipeline"
	"github.com/sakuramoe/galarc/internal/scheduler"
	"github.com/sakuramoe/galarc/internal/store"
	"github.com/sakuramoe/galarc/internal/vote"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()

	if cfg.DB.Migrate {
		version, err := store.Migrate(cfg.DB.DSN)
		if err != nil {
			logger.Fatal("migrate failed", zap.Error(err))
		}
		logger.Info("schema current", zap.Uint("version", version))
	}

	pool, err := store.Connect(ctx, store.Config{DSN: cfg.DB.DSN})
	if err != nil {
		logger.Fatal("connect database failed", zap.Error(err))
	}
	defer pool.Close()

	galleries := store.NewGalleryRepo(pool)
	images := store.NewImageRepo(pool)
	pubs := store.NewPublicationRepo(pool)
	polls := store.NewPollRepo(pool)

	source, err := ehclient.New(ehclient.Config{
		BaseURL:   cfg.Source.BaseURL,
		Cookie:    cfg.Source.Cookie,
		UserAgent: cfg.Source.UserAgent,
		Timeout:   cfg.SourceTimeout(),
		Delay:     cfg.SourceDelay(),
	}, logger.Named("source"))
	if err != nil {
		logger.Fatal("source client init failed", zap.Error(err))
	}

	host := hosting.New(hosting.Config{
		AccessToken: cfg.Telegraph.AccessToken,
		AuthorName:  cfg.Telegraph.AuthorName,
		AuthorURL:   cfg.Telegraph.AuthorURL,
	}, logger.Named("hosting"))

	bot, err := announce.New(announce.Config{
		Token:   cfg.Telegram.Token,
		Channel: cfg.Telegram.Channel,
	}, logger.Named("announce"))
	if err != nil {
		logger.Fatal("announcer init failed", zap.Error(err))
	}

	clock := system.New()
	pipe := pipeline.New(source, host, dedup.New(images), images, sha1.New(),
		pipeline.Config{Workers: cfg.Pipeline.Workers}, logger.Named("pipeline"))

	searchParams := url.Values{}
	for k, v := range cfg.Source.Search {
		searchParams.Set(k, v)
	}
	sched := scheduler.New(source, source, pipe, host, galleries, images, pubs, polls,
		bot, clock, scheduler.Config{
			SearchParams:  searchParams,
			MaxPerSweep:   cfg.Scheduler.MaxPerSweep,
			Pace:          time.Duration(cfg.Scheduler.PaceSeconds) * time.Second,
			SweepInterval: cfg.SweepInterval(),
		}, logger.Named("scheduler"))

	votes := vote.NewService(polls, logger.Named("vote"))

	apiCfg := api.Config{}
	if cfg.Auth.Enabled {
		apiCfg.APIKey = cfg.Auth.APIKey
	}
	candidates := challenge.New(images, clock, 5*time.Minute)
	apiServer := api.NewServer(galleries, votes, candidates, clock, apiCfg, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("scheduler started")
		if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("scheduler stopped", zap.Error(err))
		}
	}()

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
