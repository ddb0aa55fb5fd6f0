package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// LogLevel is the zerolog level name ("debug", "info", ...).
	LogLevel string
	// LogFile is an optional file that receives a copy of every log line.
	LogFile string

	// FundConfigPath is the YAML file describing the fund, its tokens and the devnet pools.
	FundConfigPath string

	// AgentRebalanceCron refreshes the oracles, runs the deviation check and rebalances when needed.
	AgentRebalanceCron string
	// AgentFeeCron collects the AUM fee.
	AgentFeeCron string
	// AgentSnapshotCron persists a NAV snapshot.
	AgentSnapshotCron string
	// AgentCycleTimeout bounds one agent job.
	AgentCycleTimeout time.Duration
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
// Everything except LOG_FILE and the database block is required.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	LogFile = getEnvOrDefault("LOG_FILE", "")

	FundConfigPath, err = getEnv("FUND_CONFIG")
	if err != nil {
		return err
	}

	AgentRebalanceCron, err = getEnv("AGENT_CRON_REBALANCE")
	if err != nil {
		return err
	}

	AgentFeeCron, err = getEnv("AGENT_CRON_FEES")
	if err != nil {
		return err
	}

	AgentSnapshotCron, err = getEnv("AGENT_CRON_SNAPSHOT")
	if err != nil {
		return err
	}

	timeoutSeconds, err := getEnvAsUint64("AGENT_CYCLE_TIMEOUT_SECONDS")
	if err != nil {
		return err
	}
	AgentCycleTimeout = time.Duration(timeoutSeconds) * time.Second

	// Load endpoint configuration
	if err := loadEndpointConfig(); err != nil {
		return err
	}

	// Expand the tilde (~) in the fund config path to the user's home directory.
	if strings.HasPrefix(FundConfigPath, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		FundConfigPath = filepath.Join(home, FundConfigPath[2:])
	}

	log.Debug().
		Str("FundConfigPath", FundConfigPath).
		Str("RebalanceCron", AgentRebalanceCron).
		Dur("CycleTimeout", AgentCycleTimeout).
		Msg("Configuration loaded successfully.")

	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvOrDefault retrieves an optional string environment variable.
func getEnvOrDefault(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

// getEnvAsUint64 retrieves an environment variable as a uint64. Returns error if not set or invalid.
func getEnvAsUint64(key string) (uint64, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid uint64, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsBool retrieves an environment variable as a bool. Returns error if not set or invalid.
func getEnvAsBool(key string) (bool, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return false, err
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return false, errors.New("environment variable " + key + " must be a valid bool, got: " + valueStr)
	}
	return value, nil
}
