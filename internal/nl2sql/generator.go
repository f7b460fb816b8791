package nl2sql

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sqlchat/sqlchat/internal/exemplar"
)

const (
	DefaultMaxTokens = 500
	DefaultStop      = "\n\n"
)

// DefaultDecoding is deterministic and bounded.
func DefaultDecoding() Decoding {
	return Decoding{Temperature: 0, MaxTokens: DefaultMaxTokens, Stop: []string{DefaultStop}}
}

type GeneratorConfig struct {
	Provider  string
	Model     string
	Decoding  Decoding
	Exemplars exemplar.Set
}

// Generator implements Translator with one backend call per request.
type Generator struct {
	backend  Backend
	provider string
	model    string
	decoding Decoding
	examples exemplar.Set
}

func NewGenerator(backend Backend, cfg GeneratorConfig) (*Generator, error) {
	if backend == nil {
		return nil, errors.New("backend is required")
	}
	if cfg.Decoding.MaxTokens <= 0 {
		cfg.Decoding.MaxTokens = DefaultMaxTokens
	}
	return &Generator{
		backend:  backend,
		provider: cfg.Provider,
		model:    cfg.Model,
		decoding: cfg.Decoding,
		examples: cfg.Exemplars,
	}, nil
}

func (g *Generator) Translate(ctx context.Context, req Request) (Result, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return Result{}, errors.New("question is required")
	}

	prompt := buildPrompt(question, req.Schema.Text(), g.examples, g.decoding)
	raw, err := g.backend.Complete(ctx, prompt)
	if err != nil {
		var genErr *GenerationError
		if errors.As(err, &genErr) {
			return Result{}, err
		}
		return Result{}, generationError(g.provider, ReasonUnreachable, fmt.Errorf("complete: %w", err))
	}
	return Result{
		RawOutput: raw,
		Reasoning: extractReasoning(raw),
		Provider:  g.provider,
		Model:     g.model,
	}, nil
}
