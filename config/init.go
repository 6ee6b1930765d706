package config

import (
	"log"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	"github.com/mailfleet/tokenstack/internal/logger"
	"github.com/mailfleet/tokenstack/internal/tracing"
)

type Config struct {
	AppConfig        *AppConfig
	Logger           *logger.Config
	Tracing          *tracing.JaegerConfig
	DatabaseConfig   *DatabaseConfig
	EncryptionConfig *EncryptionConfig
	ProviderConfig   *ProviderConfig
	SchedulerConfig  *SchedulerConfig
}

func InitConfig() (*Config, error) {
	config := &Config{
		AppConfig:        &AppConfig{},
		Logger:           &logger.Config{},
		Tracing:          &tracing.JaegerConfig{},
		DatabaseConfig:   &DatabaseConfig{},
		EncryptionConfig: &EncryptionConfig{},
		ProviderConfig:   &ProviderConfig{},
		SchedulerConfig:  &SchedulerConfig{},
	}

	err := godotenv.Load()
	if err != nil {
		log.Print("Unable to load .env file")
	}

	err = env.Parse(config)
	if err != nil {
		log.Fatalf("Error loading tokenstack config: %v", err)
	}

	return config, nil
}
