// Command bunstore runs the store: schema setup, the HTTP server, an
// interactive shell, and a benchmark driver.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/kartikbazzad/bunstore/driver"
	"github.com/kartikbazzad/bunstore/internal/bench"
	"github.com/kartikbazzad/bunstore/internal/config"
	"github.com/kartikbazzad/bunstore/internal/httpd"
	"github.com/kartikbazzad/bunstore/internal/logger"
)

var storeURL string

var rootCmd = &cobra.Command{
	Use:   "bunstore",
	Short: "Hierarchical namespaced KV store with batch execution",
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger.Init(logger.Config{
		Level:     cfg.Log.Level,
		Format:    cfg.Log.Format,
		AddSource: cfg.Log.Source,
	})

	rootCmd.PersistentFlags().StringVar(&storeURL, "url", cfg.Store.URL,
		"store url (postgres://, sqlite://, memory://)")

	rootCmd.AddCommand(newSetupCmd())
	rootCmd.AddCommand(newServeCmd(cfg))
	rootCmd.AddCommand(newShellCmd())
	rootCmd.AddCommand(newBenchCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newSetupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Create or migrate backend schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logger.Get()
			if err := driver.Setup(storeURL); err != nil {
				return fmt.Errorf("setup %s: %w", storeURL, err)
			}
			log.Info("store schema ready", "url", storeURL)
			return nil
		},
	}
}

func newServeCmd(cfg config.Config) *cobra.Command {
	addr := cfg.HTTP.Addr
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the store API over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logger.Get()

			store, err := driver.Open(cmd.Context(), storeURL)
			if err != nil {
				return fmt.Errorf("open store %s: %w", storeURL, err)
			}
			defer store.Close()
			log.Info("store opened", "url", storeURL)

			gin.SetMode(gin.ReleaseMode)
			server := httpd.New(store, httpd.Options{
				Rate:  cfg.HTTP.Rate,
				Burst: cfg.HTTP.Burst,
			})

			errCh := make(chan error, 1)
			go func() {
				errCh <- server.Run(addr)
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			select {
			case err := <-errCh:
				return err
			case sig := <-quit:
				log.Info("shutting down", "signal", sig.String())
				return nil
			}
		},
	}
	cmd.Flags().StringVar(&addr, "addr", addr, "listen address")
	return cmd
}

func newBenchCmd() *cobra.Command {
	cfg := bench.DefaultConfig()
	var workload string
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run a batch workload benchmark against the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logger.Get()

			store, err := driver.Open(cmd.Context(), storeURL)
			if err != nil {
				return fmt.Errorf("open store %s: %w", storeURL, err)
			}
			defer store.Close()

			cfg.Workload = bench.Workload(workload)
			log.Info("benchmark starting",
				"url", storeURL,
				"duration", cfg.Duration,
				"workers", cfg.Workers,
				"batch_size", cfg.BatchSize,
				"workload", cfg.Workload,
			)
			report, err := bench.Run(cmd.Context(), store, cfg)
			if err != nil {
				return err
			}
			fmt.Println(report)
			return nil
		},
	}
	cmd.Flags().DurationVar(&cfg.Duration, "duration", cfg.Duration, "benchmark duration")
	cmd.Flags().IntVar(&cfg.Workers, "workers", cfg.Workers, "concurrent workers")
	cmd.Flags().IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "operations per batch")
	cmd.Flags().IntVar(&cfg.KeySpace, "keys", cfg.KeySpace, "distinct keys per namespace")
	cmd.Flags().IntVar(&cfg.Namespaces, "namespaces", cfg.Namespaces, "distinct namespaces")
	cmd.Flags().StringVar(&workload, "workload", string(cfg.Workload), "put, get, search, or mixed")
	return cmd
}

func newShellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive store shell",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			store, err := driver.Open(ctx, storeURL)
			if err != nil {
				return fmt.Errorf("open store %s: %w", storeURL, err)
			}
			defer store.Close()

			fmt.Printf("bunstore shell (%s)\nType 'help' for commands.\n", storeURL)
			return runShell(ctx, store)
		},
	}
}
