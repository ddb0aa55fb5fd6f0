package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/whackrock/fund/internal/agent"
	"github.com/whackrock/fund/internal/config"
	"github.com/whackrock/fund/internal/devnet"
	"github.com/whackrock/fund/internal/metrics"
	"github.com/whackrock/fund/internal/vault"
	"github.com/whackrock/fund/internal/web"
)

const (
	shutdownTimeout = 15 * time.Second
	inMemoryEvents  = 10_000
)

func serveCmd(ctx context.Context) *cobra.Command {
	var noAgent bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the fund on a devnet with its HTTP API, gRPC health service and agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(ctx, !noAgent)
		},
	}
	cmd.Flags().BoolVar(&noAgent, "no-agent", false, "do not run the scheduled agent jobs")
	return cmd
}

func serve(ctx context.Context, runAgent bool) error {
	log.Info().Msg("Fund daemon starting...")

	// --- 1. Fund definition and devnet ---
	def, err := config.LoadFund(config.FundConfigPath)
	if err != nil {
		return err
	}
	dn, err := devnet.New(def)
	if err != nil {
		return fmt.Errorf("build devnet: %w", err)
	}
	reg := metrics.NewRegistry(def.Symbol)

	// --- 2. Event sinks and optional persistence ---
	recorder := vault.NewBoundedRecorder(inMemoryEvents)
	sinks := vault.MultiSink{vault.NewLogSink(), recorder}
	var events web.EventLister = recorder
	var history web.History
	var snapshots agent.SnapshotStore

	if config.DBEnabled {
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
		set, restored, err := store.RestoreParameters(ctx, def.Symbol, def.Params, def.Weights)
		if err != nil {
			return fmt.Errorf("restore parameters: %w", err)
		}
		def.Params, def.Weights = set.Params, set.TargetWeights
		cycle, err := store.CurrentCycleNumber(ctx)
		if err != nil {
			return err
		}
		log.Info().
			Int("version", set.Version).
			Bool("restored", restored).
			Uint64("last_cycle", cycle).
			Msg("Fund parameters loaded")

		sinks = append(sinks, store, store.ParameterRecorder(def.Symbol, def.Params))
		events, history, snapshots = store, store, store
	} else {
		log.Warn().Msg("Database disabled: events and snapshots are kept in memory only")
	}

	// --- 3. Fund ---
	fund, err := vault.NewFund(dn.FundConfig(sinks, reg))
	if err != nil {
		return fmt.Errorf("create fund: %w", err)
	}

	// --- 4. HTTP API ---
	webServer := web.NewWebServer(fund, web.Options{
		Port:            strconv.FormatUint(config.WebPort, 10),
		RateLimit:       float64(config.APIRateLimit),
		RateBurst:       int(config.APIRateBurst),
		DisplayDecimals: def.DisplayCurrency.Decimals,
		Events:          events,
		History:         history,
		Metrics:         reg.Handler(),
	})
	errCh := make(chan error, 2)
	go func() {
		if err := webServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("web server: %w", err)
		}
	}()

	// --- 5. gRPC health ---
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", config.GRPCPort))
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	go func() {
		log.Info().Uint64("port", config.GRPCPort).Msg("Starting gRPC health service")
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	// --- 6. Agent ---
	var fundAgent *agent.Agent
	if runAgent {
		fundAgent, err = agent.NewAgent(agent.Config{
			Fund:    fund,
			Store:   snapshots,
			Metrics: reg,
			Schedule: agent.Schedule{
				Rebalance: config.AgentRebalanceCron,
				Fees:      config.AgentFeeCron,
				Snapshot:  config.AgentSnapshotCron,
			},
			JobTimeout:       config.AgentCycleTimeout,
			MinCycleInterval: fund.Params().MinTWAPPeriod,
		})
		if err != nil {
			return err
		}
		fundAgent.Start()
	}

	log.Info().
		Str("fund", fund.Symbol()).
		Str("url", "http://localhost:"+strconv.FormatUint(config.WebPort, 10)).
		Bool("agent", runAgent).
		Msg("Fund daemon running")

	// --- 7. Run until signalled ---
	var runErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received")
	case runErr = <-errCh:
		log.Error().Err(runErr).Msg("Server failed, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	healthServer.Shutdown()
	if fundAgent != nil {
		fundAgent.Stop(shutdownCtx)
	}
	if err := webServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Web server shutdown failed")
	}
	grpcServer.GracefulStop()

	log.Info().Msg("Fund daemon stopped")
	return runErr
}
