package main

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/whackrock/fund/internal/config"
	"github.com/whackrock/fund/internal/state"
)

const dbTimeout = 5 * time.Second

func schemaCmd(ctx context.Context) *cobra.Command {
	var (
		reset bool
		cycle int64
	)
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Create the Postgres tables, or drop and recreate them with --reset",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !config.DBEnabled {
				return errors.New("DB_ENABLED is false, nothing to do")
			}
			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			if reset {
				log.Warn().Str("database", config.DBName).Msg("Dropping and recreating all fund tables")
				if err := store.Reset(ctx); err != nil {
					return err
				}
			} else if err := store.EnsureSchema(ctx); err != nil {
				return err
			}
			if cycle >= 0 {
				if err := store.ResetCycleNumber(ctx, uint64(cycle)); err != nil {
					return err
				}
			}

			current, err := store.CurrentCycleNumber(ctx)
			if err != nil {
				return err
			}
			log.Info().Str("database", config.DBName).Uint64("cycle", current).Msg("Schema is up to date")
			return nil
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "drop every table first (destroys history)")
	cmd.Flags().Int64Var(&cycle, "cycle", -1, "set the agent cycle counter to this value")
	return cmd
}

func openStore(ctx context.Context) (*state.Store, error) {
	return state.Open(ctx, state.Config{
		Host:     config.DBHost,
		Port:     config.DBPort,
		User:     config.DBUser,
		Password: config.DBPassword,
		DBName:   config.DBName,
		SSLMode:  config.DBSSLMode,
	}, dbTimeout)
}
