// ABOUTME: Contract for the external reasoning service that proposes lead actions
// ABOUTME: Defines the request shape, the Oracle interface and its error sentinels
package oracle

import (
	"context"
	"errors"
)

var (
	// ErrOracleUnavailable marks transport failures; these are retried.
	ErrOracleUnavailable = errors.New("reasoning oracle unavailable")
	// ErrParse marks model output with no recoverable JSON object; these are retried.
	ErrParse = errors.New("no JSON object in oracle output")
	// ErrInvalidProposal marks JSON that does not satisfy the proposal contract; not retried.
	ErrInvalidProposal = errors.New("invalid action proposal")
)

// Request is one prompt sent to the oracle.
type Request struct {
	System  string         `json:"system,omitempty"`
	Prompt  string         `json:"prompt"`
	Context map[string]any `json:"context,omitempty"`
}

// Oracle returns free-form model text for a request.
type Oracle interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Func adapts a plain function to the Oracle interface.
type Func func(ctx context.Context, req Request) (string, error)

func (f Func) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
