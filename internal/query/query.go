// Package query runs sanitized statements against the configured database.
package query

import (
	"context"
	"time"
)

type Request struct {
	// SQL is one sanitized statement. Engines execute it as given.
	SQL string
	// RowLimit caps returned rows when > 0. The statement itself is not
	// rewritten; engines stop reading after RowLimit rows.
	RowLimit int
}

type Result struct {
	Columns  []string
	Rows     [][]any
	Duration time.Duration
	// Truncated is set when RowLimit cut the result short.
	Truncated bool
}

type Engine interface {
	Execute(ctx context.Context, request Request) (Result, error)
}

// Stage names the step of execution that failed.
type Stage string

const (
	StageOpen  Stage = "open"
	StageQuery Stage = "query"
	StageScan  Stage = "scan"
)

// ExecutionError carries the database's diagnostic verbatim.
type ExecutionError struct {
	Stage Stage
	Err   error
}

func (e *ExecutionError) Error() string {
	return e.Err.Error()
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
