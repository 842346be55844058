// Package main wires together the rank tracker service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gpubsub "cloud.google.com/go/pubsub"
	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/seoresearcher/ranktrack/internal/api"
	archivegcs "github.com/seoresearcher/ranktrack/internal/archive/gcs"
	archivememory "github.com/seoresearcher/ranktrack/internal/archive/memory"
	"github.com/seoresearcher/ranktrack/internal/chatwork"
	"github.com/seoresearcher/ranktrack/internal/clock/system"
	"github.com/seoresearcher/ranktrack/internal/collector"
	"github.com/seoresearcher/ranktrack/internal/config"
	"github.com/seoresearcher/ranktrack/internal/id/uuid"
	"github.com/seoresearcher/ranktrack/internal/logging"
	"github.com/seoresearcher/ranktrack/internal/metrics"
	"github.com/seoresearcher/ranktrack/internal/notifier"
	publishermemory "github.com/seoresearcher/ranktrack/internal/publisher/memory"
	publisherpubsub "github.com/seoresearcher/ranktrack/internal/publisher/pubsub"
	"github.com/seoresearcher/ranktrack/internal/runner"
	"github.com/seoresearcher/ranktrack/internal/searchconsole"
	"github.com/seoresearcher/ranktrack/internal/serpapi"
	"github.com/seoresearcher/ranktrack/internal/store/postgres"
	"github.com/seoresearcher/ranktrack/internal/tracker"
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
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := postgres.New(ctx, postgres.Config{
		DSN:             cfg.DB.DSN,
		MaxConns:        cfg.DB.MaxConns,
		MinConns:        cfg.DB.MinConns,
		MaxConnLifetime: cfg.DBConnLifetime(),
	})
	if err != nil {
		logger.Fatal("store init failed", zap.Error(err))
	}
	defer store.Close()

	clock := system.New()
	idGen := uuid.New()

	serpClient := serpapi.New(serpapi.Config{
		APIKey:  cfg.SerpAPI.APIKey,
		BaseURL: cfg.SerpAPI.BaseURL,
		Timeout: cfg.SerpAPITimeout(),
	}, logger.Named("serpapi"))
	chatworkClient := chatwork.New(chatwork.Config{
		BaseURL: cfg.Chatwork.BaseURL,
		Timeout: cfg.ChatworkTimeout(),
	}, logger.Named("chatwork"))
	analyticsClient := searchconsole.New(searchconsole.Config{
		BaseURL: cfg.SearchConsole.BaseURL,
		Timeout: cfg.SearchConsoleTimeout(),
	}, logger.Named("searchconsole"))

	var archive tracker.BlobStore
	if cfg.Archive.GCSBucket != "" {
		gcsClient, err := gcstorage.NewClient(ctx)
		if err != nil {
			logger.Fatal("gcs client init failed", zap.Error(err))
		}
		archive, err = archivegcs.New(gcsClient, archivegcs.Config{Bucket: cfg.Archive.GCSBucket})
		if err != nil {
			logger.Fatal("gcs archive init failed", zap.Error(err))
		}
	} else {
		logger.Info("no archive bucket configured, raw responses kept in memory")
		archive = archivememory.NewBlobStore()
	}

	var publisher tracker.Publisher
	if cfg.PubSub.ProjectID != "" {
		psClient, err := gpubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			logger.Fatal("pubsub client init failed", zap.Error(err))
		}
		pub, err := publisherpubsub.New(psClient)
		if err != nil {
			logger.Fatal("pubsub publisher init failed", zap.Error(err))
		}
		defer pub.Close()
		publisher = pub
	} else {
		publisher = publishermemory.New()
	}

	coll := collector.New(store, store, serpClient, archive, clock, collector.Config{
		ArchivePrefix: cfg.Archive.Prefix,
	}, logger.Named("collector"))
	dispatcher := notifier.New(store, chatworkClient, clock, logger.Named("notifier"))
	run := runner.New(store, coll, dispatcher, publisher, clock, idGen, runner.Config{
		Topic: cfg.PubSub.TopicName,
	}, logger.Named("runner"))

	apiServer := api.NewServer(run, store, coll, serpClient, chatworkClient, analyticsClient, cfg, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

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
