package reliability

import (
	"context"
	"errors"
	"time"

	"anistream/pkg/logger"
	"anistream/pkg/provider"
)

// Options bound one composed provider request.
type Options struct {
	MaxAttempts int           // total attempts including the first (default 3)
	Timeout     time.Duration // per-attempt budget (default 15s)
	RetryDelay  time.Duration // initial backoff, doubled each retry (default 1s)
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.Timeout <= 0 {
		o.Timeout = 15 * time.Second
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = time.Second
	}
	return o
}

// Wrapper composes the circuit breaker with timeout and retry-with-backoff.
// It is the only path through which the orchestrator talks to any provider
// adapter; no adapter call bypasses it.
type Wrapper struct {
	breaker *Breaker
	opts    Options
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewWrapper builds a wrapper around breaker with the given default options.
func NewWrapper(breaker *Breaker, opts Options) *Wrapper {
	if breaker == nil {
		breaker = NewBreaker(0, 0)
	}
	return &Wrapper{breaker: breaker, opts: opts.withDefaults(), sleep: sleepCtx}
}

// Breaker exposes the underlying breaker registry (for health snapshots).
func (w *Wrapper) Breaker() *Breaker { return w.breaker }

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type outcome[T any] struct {
	val T
	err error
}

// isCleanMiss reports whether err is a well-formed negative answer: the
// provider responded, the resource is simply absent or the operation
// unimplemented. Retrying cannot change the answer and the breaker must not
// count it as unhealthiness.
func isCleanMiss(err error) bool {
	return errors.Is(err, provider.ErrNotFound) || errors.Is(err, provider.ErrUnsupported)
}

// Do runs fn against the named provider with circuit breaking, a per-attempt
// timeout, and geometric retry backoff. Each attempt re-checks the breaker,
// so a circuit tripped mid-sequence short-circuits the remaining attempts.
// Not-found and unsupported answers return immediately without retry and
// count as breaker successes. The final error is annotated with provider and
// operation context.
func Do[T any](ctx context.Context, w *Wrapper, providerName, operation string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	opts := w.opts
	delay := opts.RetryDelay
	var lastErr error

	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		if err := w.breaker.Allow(providerName); err != nil {
			// Deliberate skip: no network attempt was made, nothing to record.
			if attempt == 1 {
				return zero, err
			}
			return zero, &OpError{Provider: providerName, Operation: operation, Attempts: attempt - 1, Err: err}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
		start := time.Now()
		ch := make(chan outcome[T], 1)
		go func() {
			v, err := fn(attemptCtx)
			ch <- outcome[T]{val: v, err: err}
		}()

		var res outcome[T]
		select {
		case res = <-ch:
		case <-attemptCtx.Done():
			// Timer won the race (or the caller cancelled); stop waiting.
			if ctx.Err() != nil {
				cancel()
				w.breaker.Abandon(providerName)
				return zero, ctx.Err()
			}
			res = outcome[T]{err: ErrTimeout}
		}
		cancel()
		elapsed := time.Since(start)

		if res.err == nil {
			w.breaker.RecordSuccess(providerName, elapsed)
			return res.val, nil
		}
		if ctx.Err() != nil {
			// The caller is gone; whatever fn returned proves nothing about
			// the provider. Release any half-open trial we were holding.
			w.breaker.Abandon(providerName)
			return zero, ctx.Err()
		}
		if errors.Is(res.err, context.DeadlineExceeded) {
			res.err = ErrTimeout
		}
		if isCleanMiss(res.err) {
			// A definitive answer from a healthy provider.
			w.breaker.RecordSuccess(providerName, elapsed)
			return zero, res.err
		}
		w.breaker.RecordFailure(providerName, elapsed)
		lastErr = res.err
		logger.Warn("provider call failed",
			"provider", providerName, "operation", operation,
			"attempt", attempt, "max_attempts", opts.MaxAttempts,
			"elapsed_ms", elapsed.Milliseconds(), "err", res.err)

		if attempt < opts.MaxAttempts {
			if err := w.sleep(ctx, delay); err != nil {
				return zero, err
			}
			delay *= 2
		}
	}
	return zero, &OpError{Provider: providerName, Operation: operation, Attempts: opts.MaxAttempts, Err: lastErr}
}
