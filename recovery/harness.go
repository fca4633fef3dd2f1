package recovery

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/lordpython/aisoulstudio/metrics"
	"github.com/lordpython/aisoulstudio/production"
	"github.com/lordpython/aisoulstudio/progress"
)

// Outcome is the result of one harnessed tool execution.
type Outcome struct {
	// Payload is the tool's JSON payload when the execution succeeded.
	Payload string
	// RetryCount is the number of retries spent, not counting the first
	// attempt.
	RetryCount int
	// Err and Category are set when every attempt failed.
	Err      error
	Category production.ErrorCategory
	// Cloudflare marks the specific case of a provider answering with a
	// bot-challenge page; the fallback layer substitutes a different
	// provider for it.
	Cloudflare bool
}

// Failed reports whether the execution ultimately failed.
func (o Outcome) Failed() bool { return o.Err != nil }

// ToolError renders the outcome as a session error record. The timestamp is
// stamped by State.AppendError.
func (o Outcome) ToolError(tool string) production.ToolError {
	return production.ToolError{
		Tool:        tool,
		Message:     o.Err.Error(),
		Category:    o.Category,
		RetryCount:  o.RetryCount,
		Recoverable: o.Category == production.CategoryTransient || o.Category == production.CategoryRecoverable,
	}
}

// Harness executes tool calls under their recovery strategy: transient
// failures are retried with exponential backoff, everything else returns
// immediately with its classification.
type Harness struct {
	table  *Table
	logger *slog.Logger
	sleep  func(context.Context, time.Duration) error
	rand   func() float64
}

// HarnessOption configures a Harness.
type HarnessOption func(*Harness)

// WithLogger sets the harness logger.
func WithLogger(logger *slog.Logger) HarnessOption {
	return func(h *Harness) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithSleep replaces the backoff sleep, letting tests run without waiting.
func WithSleep(sleep func(context.Context, time.Duration) error) HarnessOption {
	return func(h *Harness) { h.sleep = sleep }
}

// NewHarness returns a harness resolving strategies from the given table.
func NewHarness(table *Table, opts ...HarnessOption) *Harness {
	if table == nil {
		table = NewTable()
	}
	h := &Harness{
		table:  table,
		logger: slog.Default(),
		sleep:  sleepContext,
		rand:   rand.Float64,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Table returns the strategy table the harness resolves from.
func (h *Harness) Table() *Table { return h.table }

// ExecuteWithRetry runs one tool invocation under its strategy. Retries
// apply only to transient failures; each one emits a retry progress event
// with the upcoming delay. A Cloudflare challenge short-circuits the retry
// budget since repeating the call cannot clear it.
func (h *Harness) ExecuteWithRetry(ctx context.Context, tool string, run func(context.Context) (string, error)) Outcome {
	strategy := h.table.Resolve(tool)
	emitter := progress.FromContext(ctx)

	var lastErr error
	var lastCategory production.ErrorCategory

	for attempt := 0; ; attempt++ {
		payload, err := run(ctx)
		if err == nil {
			return Outcome{Payload: payload, RetryCount: attempt}
		}

		lastErr = err
		lastCategory = Classify(err)

		if IsCloudflareChallenge(err) {
			h.logger.Warn("provider returned a bot challenge",
				"tool", tool,
				"attempt", attempt+1)
			return Outcome{
				Err:        err,
				RetryCount: attempt,
				Category:   production.CategoryRecoverable,
				Cloudflare: true,
			}
		}

		if !lastCategory.Retryable() || attempt >= strategy.MaxRetries {
			return Outcome{Err: lastErr, RetryCount: attempt, Category: lastCategory}
		}

		delay := h.withJitter(strategy, strategy.Delay(attempt))
		h.logger.Warn("tool failed, retrying",
			"tool", tool,
			"attempt", attempt+1,
			"max_retries", strategy.MaxRetries,
			"delay", delay,
			"error", err)
		metrics.RecordRetry(tool)
		emitter.Emit(progress.Event{
			Type:    progress.EventRetry,
			Tool:    tool,
			Attempt: attempt + 1,
			DelayMs: delay.Milliseconds(),
		})

		if err := h.sleep(ctx, delay); err != nil {
			return Outcome{Err: err, RetryCount: attempt, Category: production.CategoryTransient}
		}
	}
}

// withJitter spreads the delay by up to ±25% so synchronized retries from
// parallel sessions do not land together.
func (h *Harness) withJitter(s Strategy, delay time.Duration) time.Duration {
	if !s.Jitter || delay <= 0 {
		return delay
	}
	jitter := float64(delay) * 0.25 * (h.rand()*2 - 1)
	return delay + time.Duration(jitter)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
