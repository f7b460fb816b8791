package nl2sql

import (
	"fmt"

	"github.com/sqlchat/sqlchat/internal/config"
)

// NewBackend selects the backend for the configured provider.
func NewBackend(cfg config.AIConfig) (Backend, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return NewOpenAIBackend(OpenAIConfig{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		})
	case config.ProviderOllama, config.ProviderAnthropic, config.ProviderLangChainOpenAI:
		llm, err := NewLangChainModel(LangChainConfig{
			Provider: cfg.Provider,
			BaseURL:  cfg.BaseURL,
			APIKey:   cfg.APIKey,
			Model:    cfg.Model,
		})
		if err != nil {
			return nil, err
		}
		return NewLangChainBackend(cfg.Provider, llm)
	default:
		return nil, fmt.Errorf("unsupported ai provider: %q", cfg.Provider)
	}
}

// DecodingFromConfig maps the configured sampling settings.
func DecodingFromConfig(cfg config.AIConfig) Decoding {
	return Decoding{
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Stop:        append([]string(nil), cfg.Stop...),
	}
}
