// Package nl2sql turns a natural-language question into model output that
// should contain one SQL statement. It never interprets that output beyond
// lifting the reasoning line; extraction and validation belong to sqlguard.
package nl2sql

import (
	"context"
	"errors"
	"fmt"

	"github.com/sqlchat/sqlchat/internal/schema"
)

type Request struct {
	Question string
	Schema   schema.Document
}

type Result struct {
	// RawOutput is the backend's complete, unmodified reply.
	RawOutput string `json:"raw_output"`
	Reasoning string `json:"reasoning,omitempty"`
	Provider  string `json:"provider"`
	Model     string `json:"model"`
}

type Translator interface {
	Translate(ctx context.Context, req Request) (Result, error)
}

// Decoding controls sampling for a single completion.
type Decoding struct {
	Temperature float64
	MaxTokens   int
	Stop        []string
}

type Prompt struct {
	System   string
	User     string
	Decoding Decoding
}

// Backend is an opaque text-generation service. Complete makes exactly one call.
type Backend interface {
	Complete(ctx context.Context, prompt Prompt) (string, error)
}

type FailureReason string

const (
	ReasonUnreachable FailureReason = "unreachable"
	ReasonAuth        FailureReason = "auth"
	ReasonMalformed   FailureReason = "malformed_response"
)

var ErrGeneration = errors.New("query generation failed")

// GenerationError wraps every backend failure.
type GenerationError struct {
	Provider string
	Reason   FailureReason
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s backend %s: %v", e.Provider, e.Reason, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

func (e *GenerationError) Is(target error) bool {
	return target == ErrGeneration
}

func generationError(provider string, reason FailureReason, err error) *GenerationError {
	return &GenerationError{Provider: provider, Reason: reason, Err: err}
}
