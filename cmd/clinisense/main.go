package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gonglijing/clinisense/internal/app"
	"github.com/gonglijing/clinisense/internal/config"
	"github.com/gonglijing/clinisense/internal/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string
	var cfg *config.Config

	rootCmd := &cobra.Command{
		Use:          "clinisense",
		Short:        "Clinic sensor monitoring dashboard backend",
		SilenceUsage: true,
		PersistentPreRunE: func(c *cobra.Command, args []string) error {
			if configFile == "" {
				configFile = os.Getenv("CONFIG_FILE")
			}
			loaded, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cfg = loaded
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to configuration (yaml)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, live feed and background poller",
		RunE: func(c *cobra.Command, args []string) error {
			return app.Run(cfg)
		},
	})

	var timeout time.Duration
	kpis := &cobra.Command{
		Use:   "kpis",
		Short: "Fetch the global dashboard summary once and print it as JSON",
		RunE: func(c *cobra.Command, args []string) error {
			// 标准输出只留给 JSON
			logger.Configure(cfg.LogLevel, cfg.LogFormat, app.ServiceName)
			logger.SetOutput(c.ErrOrStderr())

			ctx, cancel := context.WithTimeout(c.Context(), timeout)
			defer cancel()

			summary, err := app.FetchSummary(ctx, cfg)
			if err != nil {
				return err
			}
			if summary.Error != "" {
				logger.L().Warn("summary is partial", zap.String("error", summary.Error))
			}
			enc := json.NewEncoder(c.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(summary)
		},
	}
	kpis.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Overall fetch timeout")
	rootCmd.AddCommand(kpis)

	return rootCmd
}
