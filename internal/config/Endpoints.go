package config

import (
	"github.com/rs/zerolog/log"
)

// Endpoint configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// WebPort is the port of the HTTP API.
	WebPort uint64
	// GRPCPort is the port of the gRPC health service.
	GRPCPort uint64
	// APIRateLimit is the sustained number of API requests per second; APIRateBurst the burst size.
	APIRateLimit uint64
	APIRateBurst uint64

	// DBEnabled switches the Postgres event journal and snapshot store on.
	DBEnabled  bool
	DBHost     string
	DBPort     uint64
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
)

// loadEndpointConfig loads endpoint configuration from environment variables.
// This function is called by LoadConfig() in General.go.
func loadEndpointConfig() error {
	log.Info().Msg("Loading endpoint configuration from environment variables...")

	var err error

	WebPort, err = getEnvAsUint64("WEB_PORT")
	if err != nil {
		return err
	}

	GRPCPort, err = getEnvAsUint64("GRPC_PORT")
	if err != nil {
		return err
	}

	APIRateLimit, err = getEnvAsUint64("API_RATE_LIMIT")
	if err != nil {
		return err
	}

	APIRateBurst, err = getEnvAsUint64("API_RATE_BURST")
	if err != nil {
		return err
	}

	DBEnabled, err = getEnvAsBool("DB_ENABLED")
	if err != nil {
		return err
	}

	if DBEnabled {
		if err := loadDatabaseConfig(); err != nil {
			return err
		}
	}

	log.Debug().
		Uint64("WebPort", WebPort).
		Uint64("GRPCPort", GRPCPort).
		Bool("DBEnabled", DBEnabled).
		Msg("Endpoint configuration loaded successfully.")

	return nil
}

func loadDatabaseConfig() error {
	var err error

	DBHost, err = getEnv("DB_HOST")
	if err != nil {
		return err
	}

	DBPort, err = getEnvAsUint64("DB_PORT")
	if err != nil {
		return err
	}

	DBUser, err = getEnv("DB_USER")
	if err != nil {
		return err
	}

	DBPassword, err = getEnv("DB_PASSWORD")
	if err != nil {
		return err
	}

	DBName, err = getEnv("DB_NAME")
	if err != nil {
		return err
	}

	DBSSLMode = getEnvOrDefault("DB_SSLMODE", "disable")
	return nil
}
