// Package llm selects and constructs the configured LLM backend.
package llm

import (
	"context"

	"github.com/fwojciec/parley"
	"github.com/fwojciec/parley/bedrock"
	"github.com/fwojciec/parley/openai"
)

// Config identifies a provider and its generation parameters. Provider is
// one of "bedrock", "openai", or "ollama"; anything else is a USER fault.
type Config struct {
	Provider    string
	Model       string
	APIKey      string // openai only
	BaseURL     string // openai/ollama endpoint override
	Region      string // bedrock only
	MaxTokens   int
	Temperature *float64
	TopP        *float64
}

// New builds the backend for cfg. The tool set must be final: backends
// precompute provider-shaped tool specs at construction. Unknown providers
// fail fast, before any network or client construction.
func New(ctx context.Context, cfg Config, system string, tools []parley.Tool) (parley.Backend, error) {
	switch cfg.Provider {
	case "":
		return nil, parley.Errorf(parley.FaultUser, "llm provider is not configured")
	case "bedrock":
		opts := []bedrock.Option{}
		if cfg.Model != "" {
			opts = append(opts, bedrock.WithModel(cfg.Model))
		}
		if cfg.Region != "" {
			opts = append(opts, bedrock.WithRegion(cfg.Region))
		}
		if cfg.MaxTokens > 0 {
			opts = append(opts, bedrock.WithMaxTokens(cfg.MaxTokens))
		}
		if cfg.Temperature != nil {
			opts = append(opts, bedrock.WithTemperature(*cfg.Temperature))
		}
		if cfg.TopP != nil {
			opts = append(opts, bedrock.WithTopP(*cfg.TopP))
		}
		return bedrock.New(ctx, system, tools, opts...)
	case "openai":
		if cfg.APIKey == "" {
			return nil, parley.Errorf(parley.FaultUser, "openai provider requires an API key: set llm.api_key or OPENAI_API_KEY")
		}
		return openai.New(cfg.APIKey, system, tools, openaiOptions(cfg)...), nil
	case "ollama":
		return openai.NewOllama(system, tools, openaiOptions(cfg)...), nil
	default:
		return nil, parley.Errorf(parley.FaultUser, "unknown provider %q: must be \"bedrock\", \"openai\", or \"ollama\"", cfg.Provider)
	}
}

func openaiOptions(cfg Config) []openai.Option {
	opts := []openai.Option{}
	if cfg.Model != "" {
		opts = append(opts, openai.WithModel(cfg.Model))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	if cfg.MaxTokens > 0 {
		opts = append(opts, openai.WithMaxTokens(cfg.MaxTokens))
	}
	if cfg.Temperature != nil {
		opts = append(opts, openai.WithTemperature(*cfg.Temperature))
	}
	return opts
}
