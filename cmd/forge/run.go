package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/jeka-org/agent-forge/pkg/apiServer"
	"github.com/jeka-org/agent-forge/pkg/clock"
	"github.com/jeka-org/agent-forge/pkg/config"
	"github.com/jeka-org/agent-forge/pkg/logger"
	"github.com/jeka-org/agent-forge/pkg/marketplace"
	"github.com/jeka-org/agent-forge/pkg/marketplace/marketplaceConfig"
	"github.com/jeka-org/agent-forge/pkg/marketplace/storage"
	"github.com/jeka-org/agent-forge/pkg/marketplace/storage/badger"
	"github.com/jeka-org/agent-forge/pkg/marketplace/storage/memory"
	"github.com/jeka-org/agent-forge/pkg/shutdown"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the marketplace node",
	RunE: func(cmd *cobra.Command, args []string) error {
		initRunCmd(cmd)

		log, _ := logger.NewLogger(&logger.LoggerConfig{Debug: Config.Debug})
		sugar := log.Sugar()

		if err := Config.Validate(); err != nil {
			sugar.Errorw("Invalid configuration", "error", err)
			return err
		}

		sugar.Infow("Starting marketplace node...")

		return runWithShutdown(func(ctx context.Context) error {
			return startNode(ctx, Config, log)
		}, log)
	},
}

func initRunCmd(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if err := viper.BindPFlag(config.KebabToSnakeCase(f.Name), f); err != nil {
			fmt.Printf("Failed to bind flag '%s': %+v\n", f.Name, err)
		}
		if err := viper.BindEnv(f.Name); err != nil {
			fmt.Printf("Failed to bind env '%s': %+v\n", f.Name, err)
		}
	})
}

func runWithShutdown(startFunc func(ctx context.Context) error, log *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := startFunc(ctx); err != nil {
		return err
	}

	gracefulShutdownNotifier := shutdown.CreateGracefulShutdownChannel()
	done := make(chan bool)

	shutdown.ListenForShutdown(gracefulShutdownNotifier, done, func() {
		log.Sugar().Info("Shutting down marketplace node...")
		cancel()
	}, 5*time.Second, log)

	return nil
}

func startNode(ctx context.Context, cfg *marketplaceConfig.MarketplaceConfig, log *zap.Logger) error {
	store, err := buildStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to build store: %w", err)
	}

	m := marketplace.NewMarketplace(store, clock.NewSystemClock(), nil, log)

	if len(cfg.Genesis) > 0 {
		if err := m.ApplyGenesis(ctx, cfg.Genesis); err != nil {
			return fmt.Errorf("failed to apply genesis allocations: %w", err)
		}
		log.Sugar().Infow("Applied genesis allocations", "count", len(cfg.Genesis))
	}

	server := apiServer.NewApiServer(&cfg.Server, m, log)

	go func() {
		defer func() {
			if err := store.Close(); err != nil {
				log.Sugar().Errorw("Failed to close store", "error", err)
			}
		}()
		if err := server.Start(ctx); err != nil {
			log.Sugar().Fatalw("API server failed", zap.Error(err))
		}
	}()

	return nil
}

func buildStore(cfg *marketplaceConfig.MarketplaceConfig) (storage.ForgeStore, error) {
	switch cfg.Storage.Type {
	case marketplaceConfig.StorageTypeBadger:
		return badger.NewBadgerForgeStore(cfg.Storage.Badger)
	case marketplaceConfig.StorageTypeMemory:
		return memory.NewInMemoryForgeStore(), nil
	default:
		return nil, fmt.Errorf("unsupported storage type %q", cfg.Storage.Type)
	}
}
