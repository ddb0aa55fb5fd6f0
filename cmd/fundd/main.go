package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/whackrock/fund/internal/config"
	"github.com/whackrock/fund/internal/logger"
)

// main is the entry point for the fund daemon.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd(ctx).Execute(); err != nil {
		log.Error().Err(err).Msg("fundd failed")
		stop()
		os.Exit(1)
	}
}

func rootCmd(ctx context.Context) *cobra.Command {
	root := &cobra.Command{
		Use:           "fundd",
		Short:         "Agent-managed multi-asset fund daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initialize()
		},
	}
	root.AddCommand(serveCmd(ctx))
	root.AddCommand(schemaCmd(ctx))
	return root
}

// initialize loads .env and the environment, then installs the global logger.
func initialize() error {
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}
	if err := config.LoadConfig(); err != nil {
		return err
	}
	logger.Initialize(config.LogLevel, config.LogFile)
	return nil
}
