package executor

import (
	"context"
	"time"
)

// RunWithRetry executes attempts until one succeeds or the configured
// maximum is reached. Timeout and failure are both retryable; the fixed
// delay between attempts has no backoff. When all attempts fail the result
// carries the LAST attempt's output and exit code for postmortem, with
// status RETRY_EXHAUSTED.
//
// Initial dive/task instructions are passed on the first attempt only: a
// retry of a partially-run first iteration must not replay them.
func (e *Executor) RunWithRetry(ctx context.Context, opts Options) (Result, error) {
	maxRetries := e.Config.Runtime.MaxRetries
	delay := time.Duration(e.Config.Runtime.RetryDelaySec) * time.Second

	var last Result
	for attempt := 1; attempt <= maxRetries; attempt++ {
		attemptOpts := opts
		if attempt > 1 {
			attemptOpts.InitialDive = ""
			attemptOpts.InitialTask = ""
		}

		result, err := e.RunOnce(ctx, attempt, attemptOpts)
		if err != nil {
			return Result{}, err // configuration error, not retryable
		}
		if result.Status == StatusSuccess {
			return result, nil
		}
		last = result

		if attempt < maxRetries {
			e.Log.Print("attempt %d/%d failed (%s), retrying in %s...", attempt, maxRetries, result.Status, delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return last, ctx.Err()
			}
		}
	}

	e.Log.Print("all %d attempts failed", maxRetries)
	last.Status = StatusRetryExhausted
	last.Attempt = maxRetries
	return last, nil
}
