package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Redis     Redis
	Scheduler Scheduler
}

type Redis struct {
	Addr      string `env:"Redis_Address" envDefault:"localhost:6379"`
	Password  string `env:"Redis_Password"`
	DB        int    `env:"Redis_DB"`
	KeyPrefix string `env:"Redis_KeyPrefix" envDefault:"jq"`
}

type Scheduler struct {
	AppName         string        `env:"Scheduler_AppName" envDefault:"app"`
	PollInterval    time.Duration `env:"Scheduler_PollInterval" envDefault:"1s"`
	PromoteInterval time.Duration `env:"Scheduler_PromoteInterval" envDefault:"200ms"`
	ClaimInterval   time.Duration `env:"Scheduler_ClaimInterval" envDefault:"100ms"`
	Lease           time.Duration `env:"Scheduler_Lease" envDefault:"30s"`
	ContinueDelay   time.Duration `env:"Scheduler_ContinueDelay" envDefault:"1s"`
	LogLevel        string        `env:"Scheduler_LogLevel" envDefault:"info"`
}

// Load reads an optional .env file from the working directory and then
// parses the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var c Config
	if err := env.Parse(&c); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if c.Scheduler.Lease <= 0 {
		return nil, fmt.Errorf("parse env: Scheduler_Lease must be positive")
	}
	return &c, nil
}

func MustLoad() *Config {
	c, err := Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	return c
}
