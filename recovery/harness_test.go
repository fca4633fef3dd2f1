package recovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lordpython/aisoulstudio/production"
	"github.com/lordpython/aisoulstudio/progress"
)

// harnessFixture wires a harness with instant sleeps and captures retry
// events and the delays the harness asked for.
type harnessFixture struct {
	harness *Harness
	table   *Table
	ctx     context.Context
	events  *[]progress.Event
	delays  *[]time.Duration
}

func newHarnessFixture(t *testing.T) harnessFixture {
	t.Helper()

	var events []progress.Event
	var delays []time.Duration

	table := NewTable()
	h := NewHarness(table, WithSleep(func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}))

	emitter := progress.NewEmitter("prod_1_abc", func(e progress.Event) {
		events = append(events, e)
	})
	t.Cleanup(emitter.Close)

	return harnessFixture{
		harness: h,
		table:   table,
		ctx:     progress.NewContext(context.Background(), emitter),
		events:  &events,
		delays:  &delays,
	}
}

func TestExecuteWithRetrySucceedsFirstTry(t *testing.T) {
	f := newHarnessFixture(t)

	out := f.harness.ExecuteWithRetry(f.ctx, "generate_visuals", func(context.Context) (string, error) {
		return `{"success":true}`, nil
	})

	require.False(t, out.Failed())
	assert.Equal(t, `{"success":true}`, out.Payload)
	assert.Equal(t, 0, out.RetryCount)
	assert.Empty(t, *f.events)
}

func TestExecuteWithRetryTransientThenSuccess(t *testing.T) {
	f := newHarnessFixture(t)
	f.table.Set("generate_visuals", Strategy{
		MaxRetries: 3, InitialDelayMs: 1000, MaxDelayMs: 8000, BackoffMultiplier: 2.0,
		ContinueOnFailure: true, FallbackAction: ActionPlaceholderVisual,
	})

	calls := 0
	out := f.harness.ExecuteWithRetry(f.ctx, "generate_visuals", func(context.Context) (string, error) {
		calls++
		if calls <= 2 {
			return "", &HTTPError{StatusCode: 429}
		}
		return `{"success":true,"visualCount":3}`, nil
	})

	require.False(t, out.Failed())
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, out.RetryCount)

	events := *f.events
	require.Len(t, events, 2)
	assert.Equal(t, progress.EventRetry, events[0].Type)
	assert.Equal(t, "generate_visuals", events[0].Tool)
	assert.Equal(t, 1, events[0].Attempt)
	assert.Equal(t, int64(1000), events[0].DelayMs)
	assert.Equal(t, 2, events[1].Attempt)
	assert.Equal(t, int64(2000), events[1].DelayMs, "backoff doubles")

	require.Len(t, *f.delays, 2)
}

func TestExecuteWithRetryExhaustsBudget(t *testing.T) {
	f := newHarnessFixture(t)
	f.table.Set("generate_music", Strategy{
		MaxRetries: 2, InitialDelayMs: 500, MaxDelayMs: 5000, BackoffMultiplier: 2.0,
		ContinueOnFailure: true,
	})

	calls := 0
	out := f.harness.ExecuteWithRetry(f.ctx, "generate_music", func(context.Context) (string, error) {
		calls++
		return "", &HTTPError{StatusCode: 503}
	})

	require.True(t, out.Failed())
	assert.Equal(t, 3, calls, "initial attempt plus two retries")
	assert.Equal(t, 2, out.RetryCount)
	assert.Equal(t, production.CategoryTransient, out.Category)
	assert.Len(t, *f.events, 2)
}

func TestExecuteWithRetryPermanentNoRetry(t *testing.T) {
	f := newHarnessFixture(t)

	calls := 0
	out := f.harness.ExecuteWithRetry(f.ctx, "generate_visuals", func(context.Context) (string, error) {
		calls++
		return "", &HTTPError{StatusCode: 400}
	})

	require.True(t, out.Failed())
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, out.RetryCount)
	assert.Equal(t, production.CategoryPermanent, out.Category)
	assert.Empty(t, *f.events)
}

func TestExecuteWithRetryAuthNoRetry(t *testing.T) {
	f := newHarnessFixture(t)

	out := f.harness.ExecuteWithRetry(f.ctx, "narrate_scenes", func(context.Context) (string, error) {
		return "", NewAuthError(errors.New("missing tts credentials"))
	})

	require.True(t, out.Failed())
	assert.Equal(t, production.CategoryAuthentication, out.Category)
	assert.Equal(t, 0, out.RetryCount)
}

func TestExecuteWithRetryCloudflareShortCircuits(t *testing.T) {
	f := newHarnessFixture(t)

	calls := 0
	out := f.harness.ExecuteWithRetry(f.ctx, "animate_image", func(context.Context) (string, error) {
		calls++
		return "", &HTTPError{StatusCode: 503, Body: challengeBody}
	})

	require.True(t, out.Failed())
	assert.Equal(t, 1, calls, "a challenge is not retried")
	assert.True(t, out.Cloudflare)
	assert.Equal(t, production.CategoryRecoverable, out.Category)
	assert.Empty(t, *f.events)
}

func TestExecuteWithRetryCanceledDuringBackoff(t *testing.T) {
	table := NewTable()
	h := NewHarness(table, WithSleep(func(ctx context.Context, _ time.Duration) error {
		return context.Canceled
	}))

	out := h.ExecuteWithRetry(context.Background(), "generate_visuals", func(context.Context) (string, error) {
		return "", &HTTPError{StatusCode: 500}
	})

	require.True(t, out.Failed())
	assert.ErrorIs(t, out.Err, context.Canceled)
}

func TestOutcomeToolError(t *testing.T) {
	out := Outcome{
		Err:        &HTTPError{StatusCode: 429, Status: "429 Too Many Requests"},
		RetryCount: 3,
		Category:   production.CategoryTransient,
	}

	e := out.ToolError("generate_visuals")
	assert.Equal(t, "generate_visuals", e.Tool)
	assert.Equal(t, "429 Too Many Requests", e.Message)
	assert.Equal(t, production.CategoryTransient, e.Category)
	assert.Equal(t, 3, e.RetryCount)
	assert.True(t, e.Recoverable)

	perm := Outcome{Err: errors.New("bad request"), Category: production.CategoryPermanent}
	assert.False(t, perm.ToolError("x").Recoverable)
}

func TestWithJitterSpreadsDelay(t *testing.T) {
	h := NewHarness(NewTable())
	h.rand = func() float64 { return 1.0 }

	s := Strategy{Jitter: true}
	assert.Equal(t, 1250*time.Millisecond, h.withJitter(s, time.Second))

	h.rand = func() float64 { return 0.0 }
	assert.Equal(t, 750*time.Millisecond, h.withJitter(s, time.Second))

	s.Jitter = false
	assert.Equal(t, time.Second, h.withJitter(s, time.Second))
}
