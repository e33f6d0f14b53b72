package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/relaycore/report-relay/internal/api"
	"github.com/relaycore/report-relay/internal/archive"
	archgcs "github.com/relaycore/report-relay/internal/archive/gcs"
	archlocal "github.com/relaycore/report-relay/internal/archive/local"
	archmem "github.com/relaycore/report-relay/internal/archive/memory"
	"github.com/relaycore/report-relay/internal/clock/system"
	"github.com/relaycore/report-relay/internal/config"
	"github.com/relaycore/report-relay/internal/download"
	"github.com/relaycore/report-relay/internal/engine"
	"github.com/relaycore/report-relay/internal/executor"
	sha256hash "github.com/relaycore/report-relay/internal/hash/sha256"
	idgen "github.com/relaycore/report-relay/internal/id/uuid"
	"github.com/relaycore/report-relay/internal/logging"
	"github.com/relaycore/report-relay/internal/metrics"
	"github.com/relaycore/report-relay/internal/pipeline"
	"github.com/relaycore/report-relay/internal/publisher"
	pubmem "github.com/relaycore/report-relay/internal/publisher/memory"
	pubgcp "github.com/relaycore/report-relay/internal/publisher/pubsub"
	"github.com/relaycore/report-relay/internal/relay"
	"github.com/relaycore/report-relay/internal/resolver"
	"github.com/relaycore/report-relay/internal/store"
	storemem "github.com/relaycore/report-relay/internal/store/memory"
	storepg "github.com/relaycore/report-relay/internal/store/postgres"
)

// relayService pairs filename routing with the upload dispatcher.
type relayService struct {
	*relay.Router
	*relay.Dispatcher
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Starts the relay HTTP service",
		Long: `Starts the webhook listener, the run executor, and the shared
browser engine manager, then serves until SIGINT or SIGTERM.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)

	metrics.Init()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runStore, storeCleanup, err := buildStore(ctx, cfg)
	if err != nil {
		return err
	}
	if storeCleanup != nil {
		defer storeCleanup()
	}

	events, pubCleanup, err := buildPublisher(ctx, cfg)
	if err != nil {
		return err
	}
	if pubCleanup != nil {
		defer pubCleanup()
	}

	artifacts, err := buildArchive(ctx, cfg)
	if err != nil {
		return err
	}

	clk := system.New()

	engines := engine.NewManager(engine.Config{
		Headless:      cfg.Engine.Headless,
		UserAgent:     cfg.Engine.UserAgent,
		DownloadRoot:  cfg.Engine.DownloadRoot,
		NavTimeout:    time.Duration(cfg.Download.NavTimeoutSeconds) * time.Second,
		ReloadTimeout: time.Duration(cfg.Download.ReloadTimeoutSeconds) * time.Second,
	}, logger.Named("engine"))

	messages := resolver.NewClient(resolver.Config{
		APIBase: cfg.Messages.APIBase,
		Token:   cfg.Messages.Token,
		Timeout: cfg.MessageTimeout(),
	}, logger.Named("resolver"))

	loader := download.New(download.Config{
		MaxRetries:  cfg.Download.MaxRetries,
		Backoff:     cfg.DownloadBackoff(),
		WaitTimeout: time.Duration(cfg.Download.WaitTimeoutSeconds) * time.Second,
	}, clk, logger.Named("download"))

	relayer := relayService{
		Router: relay.NewRouter(relay.RouterConfig{
			ReportURL:    cfg.Relay.ReportURL,
			InvoiceURL:   cfg.Relay.InvoiceURL,
			ReportMarker: cfg.Relay.ReportMarker,
		}),
		Dispatcher: relay.NewDispatcher(relay.Config{
			MaxRetries: cfg.Relay.MaxRetries,
			Backoff:    cfg.RelayBackoff(),
			Timeout:    time.Duration(cfg.Relay.TimeoutSeconds) * time.Second,
		}, clk, logger.Named("relay")),
	}

	orchestrator := pipeline.New(
		pipeline.NewEngineLifecycle(engines),
		messages,
		loader,
		relayer,
		runStore,
		events,
		artifacts,
		sha256hash.New(),
		clk,
		logger.Named("pipeline"),
	)

	pool := executor.New(executor.HandlerFunc(func(ctx context.Context, task executor.Task) {
		orchestrator.Execute(ctx, task.RunID, pipeline.Event{
			MessageID:      task.MessageID,
			ConversationID: task.ConversationID,
		})
	}), cfg.Pipeline.Workers, cfg.Pipeline.QueueDepth, logger.Named("executor"))

	apiServer := api.NewServer(runStore, pool, engines, idgen.New(), cfg, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("run executor started",
			zap.Int("workers", cfg.Pipeline.Workers),
			zap.Int("queue_depth", cfg.Pipeline.QueueDepth),
		)
		pool.Run(ctx)
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

	// The engine goes down last so in-flight runs keep their tabs.
	engines.Close()
	logger.Info("shutdown complete")
	return nil
}

func buildStore(ctx context.Context, cfg config.Config) (store.Store, func(), error) {
	switch cfg.Store.Provider {
	case "postgres":
		s, cleanup, err := storepg.Connect(ctx, cfg.Store.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect run store: %w", err)
		}
		return s, cleanup, nil
	default:
		return storemem.New(cfg.Store.MaxRuns), nil, nil
	}
}

func buildPublisher(ctx context.Context, cfg config.Config) (publisher.Publisher, func(), error) {
	switch cfg.Publisher.Provider {
	case "pubsub":
		p, cleanup, err := pubgcp.Connect(ctx, cfg.Publisher.ProjectID, cfg.Publisher.TopicName)
		if err != nil {
			return nil, nil, fmt.Errorf("connect publisher: %w", err)
		}
		return p, cleanup, nil
	default:
		return pubmem.New(), nil, nil
	}
}

func buildArchive(ctx context.Context, cfg config.Config) (archive.Store, error) {
	switch cfg.Archive.Provider {
	case "local":
		s, err := archlocal.New(cfg.Archive.Dir)
		if err != nil {
			return nil, fmt.Errorf("init local archive: %w", err)
		}
		return s, nil
	case "gcs":
		s, err := archgcs.Connect(ctx, archgcs.Config{
			Bucket: cfg.Archive.Bucket,
			Prefix: cfg.Archive.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("connect gcs archive: %w", err)
		}
		return s, nil
	case "memory":
		return archmem.New(), nil
	default:
		return archive.Noop{}, nil
	}
}
