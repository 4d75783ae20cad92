package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/config"
	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/errors"
	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/logger"
	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/observability"
	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/server"
	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/storage"
)

// daemon command
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the access-control decision daemon",
	Long: `Loads the policy database, listens on the client and admin sockets, and
answers checks until terminated. A corrupted database degrades the daemon to
a read-only empty policy set; admin responses then carry DB_CORRUPTED.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logger.New("daemon")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		obs, err := observability.NewManager(cfg.Observability)
		if err != nil {
			return errors.Wrap(errors.ErrInvalidConfig, "failed to initialize observability", err)
		}
		defer obs.Shutdown(context.Background())

		store, err := storage.New(cfg.DatabaseDir)
		if err != nil {
			return err
		}
		if err := store.Load(); err != nil {
			if errors.IsErrorCode(err, errors.ErrDatabaseCorrupted) {
				log.WithError(err).Error("Database corrupted, continuing in degraded mode")
			} else {
				return err
			}
		}

		srv := server.New(cfg, store, nil, obs.Metrics())

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return srv.Run(ctx)
	},
}

// loadConfig resolves the daemon configuration from the config file and
// global flags; flags win
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if clientSocket != "" {
		cfg.ClientSocketPath = clientSocket
	}
	if adminSocket != "" {
		cfg.AdminSocketPath = adminSocket
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
