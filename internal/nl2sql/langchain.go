package nl2sql

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/sqlchat/sqlchat/internal/config"
)

// LangChainBackend drives any langchaingo chat model.
type LangChainBackend struct {
	provider string
	llm      llms.Model
}

func NewLangChainBackend(provider string, llm llms.Model) (*LangChainBackend, error) {
	if llm == nil {
		return nil, errors.New("model is required")
	}
	return &LangChainBackend{provider: provider, llm: llm}, nil
}

type LangChainConfig struct {
	Provider string
	BaseURL  string
	APIKey   string
	Model    string
}

// NewLangChainModel builds the langchaingo model for a provider.
func NewLangChainModel(cfg LangChainConfig) (llms.Model, error) {
	switch cfg.Provider {
	case config.ProviderOllama:
		opts := []ollama.Option{ollama.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		model, err := ollama.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}
		return model, nil
	case config.ProviderAnthropic:
		if cfg.APIKey == "" {
			return nil, errors.New("anthropic api key is required")
		}
		opts := []anthropic.Option{anthropic.WithToken(cfg.APIKey), anthropic.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
		}
		model, err := anthropic.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}
		return model, nil
	case config.ProviderLangChainOpenAI:
		if cfg.APIKey == "" {
			return nil, errors.New("openai api key is required")
		}
		opts := []openai.Option{openai.WithToken(cfg.APIKey), openai.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")+"/v1"))
		}
		model, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}
		return model, nil
	default:
		return nil, fmt.Errorf("unsupported langchain provider: %q", cfg.Provider)
	}
}

func (b *LangChainBackend) Complete(ctx context.Context, prompt Prompt) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, prompt.System),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt.User),
	}
	opts := []llms.CallOption{
		llms.WithTemperature(prompt.Decoding.Temperature),
		llms.WithN(1),
	}
	if prompt.Decoding.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(prompt.Decoding.MaxTokens))
	}
	if len(prompt.Decoding.Stop) > 0 {
		opts = append(opts, llms.WithStopWords(prompt.Decoding.Stop))
	}

	response, err := b.llm.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return "", generationError(b.provider, classifyLangChainErr(err), fmt.Errorf("generate content: %w", err))
	}
	if response == nil || len(response.Choices) == 0 {
		return "", generationError(b.provider, ReasonMalformed, errors.New("no response choices"))
	}
	return response.Choices[0].Content, nil
}

func classifyLangChainErr(err error) FailureReason {
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return ReasonUnreachable
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"401", "403", "unauthorized", "forbidden", "api key", "authentication"} {
		if strings.Contains(msg, marker) {
			return ReasonAuth
		}
	}
	return ReasonUnreachable
}
