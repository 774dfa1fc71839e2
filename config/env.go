package config

import (
	"github.com/caarlos0/env/v11"

	"github.com/fwojciec/parley"
)

// envConfig captures the process environment variables that feed
// configuration defaults.
type envConfig struct {
	OpenAIAPIKey string `env:"OPENAI_API_KEY"`
	Editor       string `env:"EDITOR"`
}

func parseEnv() (envConfig, error) {
	cfg, err := env.ParseAs[envConfig]()
	if err != nil {
		return envConfig{}, parley.WrapError(parley.FaultInternal, "parse environment", err)
	}
	return cfg, nil
}
