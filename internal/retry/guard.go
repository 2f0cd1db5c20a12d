// Package retry wraps store writes with bounded retry on transient
// contention. Any error the predicate does not classify as transient is
// returned on the first attempt.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrExhausted indicates a transient failure persisted through every attempt.
var ErrExhausted = errors.New("retries exhausted")

const (
	DefaultAttempts = 3
	DefaultStep     = 150 * time.Millisecond
)

// Policy bounds a retry loop. Attempts counts the first try.
type Policy struct {
	Attempts int
	Step     time.Duration
}

// DefaultPolicy returns three attempts with 150ms, 300ms waits between them.
func DefaultPolicy() Policy {
	return Policy{Attempts: DefaultAttempts, Step: DefaultStep}
}

// Logger is the subset of the application logger used for retry notices.
type Logger interface {
	Warn(msg string, args ...any)
}

// Option customises a Guard.
type Option func(*Guard)

// WithLogger reports every retried attempt.
func WithLogger(l Logger) Option {
	return func(g *Guard) { g.logger = l }
}

// WithRetryHook is called once per retried attempt, before the wait.
func WithRetryHook(fn func(ctx context.Context, op string)) Option {
	return func(g *Guard) { g.onRetry = fn }
}

// WithTimer replaces the wall clock timer; tests use it to skip waits.
func WithTimer(newTimer func() backoff.Timer) Option {
	return func(g *Guard) { g.newTimer = newTimer }
}

// Guard retries a single logical write while isTransient classifies the
// failure as store contention.
type Guard struct {
	policy      Policy
	isTransient func(error) bool
	logger      Logger
	onRetry     func(ctx context.Context, op string)
	newTimer    func() backoff.Timer
}

// New creates a Guard. A nil predicate never retries.
func New(policy Policy, isTransient func(error) bool, opts ...Option) *Guard {
	if policy.Attempts < 1 {
		policy.Attempts = 1
	}
	if policy.Step < 0 {
		policy.Step = 0
	}
	if isTransient == nil {
		isTransient = func(error) bool { return false }
	}
	g := &Guard{policy: policy, isTransient: isTransient}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Policy returns the configured policy.
func (g *Guard) Policy() Policy {
	return g.policy
}

// Do runs fn until it succeeds, fails permanently or the attempts run out.
func (g *Guard) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempt := 0
	operation := func() error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !g.isTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		if g.logger != nil {
			g.logger.Warn("transient store contention, retrying",
				"op", op, "attempt", attempt, "wait", wait, "error", err)
		}
		if g.onRetry != nil {
			g.onRetry(ctx, op)
		}
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(&linearBackOff{step: g.policy.Step}, uint64(g.policy.Attempts-1)),
		ctx,
	)

	var err error
	if g.newTimer != nil {
		err = backoff.RetryNotifyWithTimer(operation, b, notify, g.newTimer())
	} else {
		err = backoff.RetryNotify(operation, b, notify)
	}
	if err != nil && g.isTransient(err) {
		return fmt.Errorf("%w: %s failed after %d attempts: %w", ErrExhausted, op, attempt, err)
	}
	return err
}

// Value is Do for operations that produce a result.
func Value[T any](ctx context.Context, g *Guard, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := g.Do(ctx, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// linearBackOff waits step × n before the n-th retry.
type linearBackOff struct {
	step time.Duration
	n    int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.n++
	return b.step * time.Duration(b.n)
}

func (b *linearBackOff) Reset() {
	b.n = 0
}
