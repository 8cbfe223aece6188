package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/otcheredev/ris-modality-workflow/internal/handlers"
	"github.com/otcheredev/ris-modality-workflow/internal/services"
	"github.com/otcheredev/ris-modality-workflow/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "server",
		Short:        "Modality worklist and MPPS workflow service",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(purgeCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the command API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			// Initialize logger
			logger.Init(cfg.Log.Level, cfg.Log.Format)
			log.Info().Msg("Starting modality workflow service")

			a, err := newApp(cfg, prometheus.DefaultRegisterer)
			if err != nil {
				return err
			}
			defer a.Close()

			routerCfg := handlers.RouterConfig{
				AllowedOrigins: cfg.CORS.AllowedOrigins,
				AllowedMethods: cfg.CORS.AllowedMethods,
				AllowedHeaders: cfg.CORS.AllowedHeaders,
				Driver:         a.store.Driver(),
			}
			if cfg.Metrics.Enabled {
				routerCfg.Metrics = promhttp.Handler()
			}

			addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
			srv := &http.Server{
				Addr:         addr,
				Handler:      handlers.NewRouter(a.manager, routerCfg),
				ReadTimeout:  cfg.Server.ReadTimeout,
				WriteTimeout: cfg.Server.WriteTimeout,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("addr", addr).Msg("Server starting")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			// Wait for interrupt signal
			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			select {
			case <-quit:
			case err := <-errCh:
				return fmt.Errorf("server failed: %w", err)
			}

			log.Info().Msg("Shutting down server...")

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				return fmt.Errorf("server forced to shutdown: %w", err)
			}

			log.Info().Msg("Server stopped")
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the record store schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger.Init(cfg.Log.Level, cfg.Log.Format)

			store, err := openStore(cfg, true)
			if err != nil {
				return err
			}
			defer store.Close()

			log.Info().Str("driver", store.Driver()).Msg("Record store schema is up to date")
			return nil
		},
	}
}

func purgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete MPPS entries by key, or every completed entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, _ := cmd.Flags().GetString("key")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger.Init(cfg.Log.Level, cfg.Log.Format)

			a, err := newApp(cfg, prometheus.NewRegistry())
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.manager.Purge(cmd.Context(), services.ParsePurgeKey(key))
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
	cmd.Flags().String("key", services.PurgeAllKey, `MPPS entry key, or "all" for every completed entry`)
	return cmd
}
