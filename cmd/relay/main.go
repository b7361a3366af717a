package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/devricklin/feishu-relay/internal/api"
	"github.com/devricklin/feishu-relay/internal/biz"
	"github.com/devricklin/feishu-relay/internal/biz/usecase"
	"github.com/devricklin/feishu-relay/internal/conf"
	"github.com/devricklin/feishu-relay/internal/data"
	"github.com/devricklin/feishu-relay/internal/infra/feishu"
	"github.com/devricklin/feishu-relay/internal/metrics"
	"github.com/devricklin/feishu-relay/internal/server"
	"github.com/devricklin/feishu-relay/internal/service"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := pflag.StringP("config", "c", "", "path to config.yaml")
	logLevel := pflag.String("log-level", "", "override log_level from the config file")
	pflag.Parse()

	// Load configuration
	cfg, err := conf.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	logger, logCloser := conf.NewLogger(cfg.LogLevel, cfg.LogDir)
	defer logCloser.Close()

	if cfg.Path == "" {
		logger.Warn().Msg("No config file found, using defaults and environment")
	} else {
		logger.Info().Str("path", cfg.Path).Msg("Config loaded")
	}
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("Invalid config")
		logCloser.Close()
		os.Exit(1)
	}

	if err := run(cfg, *configPath, logger); err != nil {
		logger.Error().Err(err).Msg("Relay stopped with error")
		logCloser.Close()
		os.Exit(1)
	}
}

func run(cfg *conf.Config, configPath string, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	window, err := cfg.ScheduleWindow()
	if err != nil {
		return err
	}

	// Initialize clients
	feishuClient := feishu.NewClient(cfg.Feishu.AppID, cfg.Feishu.AppSecret, logger)

	// Initialize repository layer
	storeRetry := data.DefaultStoreRetry()
	storeRetry.OnRetry = func(op string, attempt int, err error) {
		metrics.StoreRetries.Inc()
	}
	repos, err := data.NewRepositories(ctx, feishuClient, data.Options{
		DatabasePath: cfg.DatabasePath,
		MediaDir:     cfg.MediaDir,
		NotifyChat:   cfg.ChatID,
		StoreRetry:   storeRetry,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create repositories: %w", err)
	}
	defer func() {
		if err := repos.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close store")
		}
	}()
	logger.Info().Str("path", cfg.DatabasePath).Msg("Identity store ready")

	// Initialize usecase layer
	coord := usecase.NewCoordinator(usecase.DefaultDeletionWait)
	gate := usecase.NewScheduleGate(window, logger)
	resolver := usecase.NewMediaResolver(repos.Assets, logger)
	ucs := &biz.Usecases{
		Gate:     gate,
		Relay:    usecase.NewRelayUsecase(repos.Messenger, repos.Mapping, resolver, gate, coord, cfg.RelaySettings(), logger),
		Deletion: usecase.NewDeletionUsecase(repos.Messenger, repos.Mapping, coord, logger),
		Edit:     usecase.NewEditUsecase(repos.Messenger, repos.Mapping, logger),
	}

	// Initialize service layer
	dispatcher := service.NewRelayService(ucs.Relay, ucs.Deletion, ucs.Edit, service.DefaultQueueSize, logger)
	scheduleSvc := service.NewScheduleService(ucs.Gate, repos.Notifier, cfg.DriftCheckInterval, logger)
	maintenance := service.NewMaintenanceRunner(repos.Mapping, service.DefaultMaintenanceInterval, logger)
	audit := service.NewPermissionAudit(repos.Messenger, repos.Notifier, logger)

	srv := server.NewFeishuServer(feishuClient, dispatcher, cfg.SourceChats, logger)
	apiServer := api.NewServer(cfg.APIAddr, ucs.Gate, ucs.Relay, repos.Mapping, repos.Assets, len(cfg.SourceChats), logger)

	scheduleSvc.Start(ctx)
	maintenance.Start()

	logger.Info().
		Strs("source_chats", cfg.SourceChats).
		Strs("destination_chats", cfg.DestinationChats).
		Bool("active", ucs.Gate.IsActive()).
		Msg("Starting Feishu relay")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return dispatcher.Run(gctx) })
	g.Go(func() error { return srv.Start(gctx) })
	g.Go(apiServer.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return apiServer.Stop(shutdownCtx)
	})
	g.Go(func() error {
		audit.Run(gctx, cfg.SourceChats, cfg.DestinationChats)
		return nil
	})
	g.Go(func() error {
		watchReload(gctx, configPath, scheduleSvc, ucs.Relay, logger)
		return nil
	})

	err = g.Wait()

	// Orderly shutdown: handlers have drained, now stop timers and the client before the store closes
	logger.Info().Msg("Shutting down")
	scheduleSvc.Stop()
	maintenance.Stop()
	srv.Stop()
	return err
}

// watchReload re-reads the config on SIGHUP and swaps the schedule and rule set
func watchReload(ctx context.Context, configPath string, scheduleSvc *service.ScheduleService, relay *usecase.RelayUsecase, logger zerolog.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
		}

		cfg, err := conf.Load(configPath)
		if err != nil {
			logger.Error().Err(err).Msg("Reload failed, keeping current config")
			continue
		}
		window, err := cfg.ScheduleWindow()
		if err != nil {
			logger.Error().Err(err).Msg("Reload failed, keeping current config")
			continue
		}

		scheduleSvc.Reload(window)
		relay.UpdateSettings(cfg.RelaySettings())
		logger.Info().Str("path", cfg.Path).Msg("Config reloaded")
	}
}
