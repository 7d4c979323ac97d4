// ABOUTME: ActionGenerator wraps the oracle with timeout, retry and validation
// ABOUTME: Exhausted retries surface as errors so the caller can mark the action failed
package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/charmbracelet/log"

	"github.com/harperreed/leadpilot/models"
)

// RetryConfig configures the generator's backoff policy.
type RetryConfig struct {
	MaxAttempts int           // total attempts including the first (default: 3)
	BaseDelay   time.Duration // first backoff interval (default: 1s)
	Factor      float64       // interval multiplier (default: 2)
	MaxDelay    time.Duration // cap on a single interval (default: 8s)
}

// DefaultRetryConfig returns base 1s, factor 2, three attempts.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Factor:      2,
		MaxDelay:    8 * time.Second,
	}
}

const DefaultCallTimeout = 20 * time.Second

// RunContext is the per-session information handed to the oracle with each lead.
type RunContext struct {
	SessionID string
	UserID    string
	Settings  models.RunSettings
	Now       time.Time
}

// AttemptFunc observes every oracle attempt.
type AttemptFunc func(elapsed time.Duration, err error)

// Generator turns a lead into a validated action draft.
type Generator struct {
	oracle      Oracle
	retry       RetryConfig
	callTimeout time.Duration
	logger      *log.Logger
	onAttempt   AttemptFunc
}

type GeneratorOption func(*Generator)

func WithRetry(cfg RetryConfig) GeneratorOption {
	return func(g *Generator) { g.retry = cfg }
}

func WithCallTimeout(d time.Duration) GeneratorOption {
	return func(g *Generator) { g.callTimeout = d }
}

func WithLogger(logger *log.Logger) GeneratorOption {
	return func(g *Generator) { g.logger = logger }
}

func WithAttemptObserver(fn AttemptFunc) GeneratorOption {
	return func(g *Generator) { g.onAttempt = fn }
}

func NewGenerator(o Oracle, opts ...GeneratorOption) *Generator {
	g := &Generator{
		oracle:      o,
		retry:       DefaultRetryConfig(),
		callTimeout: DefaultCallTimeout,
		logger:      log.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.retry.MaxAttempts <= 0 {
		g.retry.MaxAttempts = 1
	}
	if g.retry.Factor < 1 {
		g.retry.Factor = 2
	}
	g.logger = g.logger.With("component", "generator")
	return g
}

// Propose asks the oracle for one action for lead. Transport and parse
// failures are retried with exponential backoff; an invalid proposal or a
// cancelled ctx stops immediately.
func (g *Generator) Propose(ctx context.Context, lead models.Lead, rc RunContext) (models.ActionDraft, error) {
	req, err := buildRequest(lead, rc)
	if err != nil {
		return models.ActionDraft{}, err
	}

	attempt := 0
	operation := func() (models.ActionDraft, error) {
		attempt++
		callCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
		defer cancel()

		started := time.Now()
		text, err := g.oracle.Complete(callCtx, req)
		if err == nil {
			var draft models.ActionDraft
			draft, err = ParseProposal(text)
			if err == nil {
				g.observe(started, nil)
				return draft, nil
			}
		}
		g.observe(started, err)

		if ctx.Err() != nil {
			return models.ActionDraft{}, backoff.Permanent(ctx.Err())
		}
		if errors.Is(err, ErrInvalidProposal) {
			return models.ActionDraft{}, backoff.Permanent(err)
		}
		if !errors.Is(err, ErrParse) && !errors.Is(err, ErrOracleUnavailable) {
			err = fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
		}
		return models.ActionDraft{}, err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = g.retry.BaseDelay
	b.Multiplier = g.retry.Factor
	b.RandomizationFactor = 0
	if g.retry.MaxDelay > 0 {
		b.MaxInterval = g.retry.MaxDelay
	}

	draft, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(g.retry.MaxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			g.logger.Debug("oracle attempt failed, retrying", "lead", lead.ID, "attempt", attempt, "next", next, "err", err)
		}),
	)
	if err != nil {
		if ctx.Err() != nil {
			return models.ActionDraft{}, ctx.Err()
		}
		g.logger.Warn("oracle proposal rejected", "lead", lead.ID, "attempts", attempt, "err", err)
		return models.ActionDraft{}, fmt.Errorf("proposal for lead %s failed after %d attempt(s): %w", lead.ID, attempt, err)
	}
	return draft, nil
}

func (g *Generator) observe(started time.Time, err error) {
	if g.onAttempt != nil {
		g.onAttempt(time.Since(started), err)
	}
}

const systemPrompt = `You are an assistant for a licensed insurance agent in India.
Propose exactly one next action for the lead you are given.
Follow IRDAI rules: never promise guaranteed returns, never call a product risk-free,
never make superlative claims.
Respond with one JSON object only:
{
  "type": "crm_update|message|reminder|tag",
  "description": "short imperative summary",
  "steps": ["step 1", "step 2"],
  "reasoning": "why this action now",
  "confidence": 0-100,
  "difficulty": "easy|medium|hard",
  "message": "draft text, required when type is message",
  "changes": {"field": "new value"}, required when type is crm_update or tag,
  "signals": ["signal 1"]
}
Allowed change fields: temperature, tags, productInterest, premium, conversionProbability,
lastInteractionSummary, nextFollowUpAt (RFC3339), notes, tag (adds one tag).`

func buildRequest(lead models.Lead, rc RunContext) (Request, error) {
	leadJSON, err := json.Marshal(lead)
	if err != nil {
		return Request{}, fmt.Errorf("failed to encode lead: %w", err)
	}

	var prompt strings.Builder
	prompt.WriteString("Lead:\n")
	prompt.Write(leadJSON)
	prompt.WriteString("\n\nConsider temperature, conversion probability, the last interaction and any renewal or follow-up tags.")

	now := rc.Now
	if now.IsZero() {
		now = time.Now()
	}

	return Request{
		System: systemPrompt,
		Prompt: prompt.String(),
		Context: map[string]any{
			"sessionId":           rc.SessionID,
			"agentId":             rc.UserID,
			"today":               now.Format("2006-01-02"),
			"confidenceThreshold": rc.Settings.ConfidenceThreshold,
		},
	}, nil
}
