package migrator

import (
	"context"
	"time"

	"github.com/veridata/gopromote/internal/logger"
)

// defaultBackoffs is the wait schedule between retry attempts.
var defaultBackoffs = []time.Duration{5 * time.Second, 10 * time.Second, 15 * time.Second}

// WithRetry runs fn, retrying transient failures with the default backoff
// schedule. It must only wrap operations that are idempotent; callers assert
// that with the idempotent flag, and non-idempotent operations run exactly
// once so a failure there surfaces immediately for rollback instead of
// being blindly re-executed.
func WithRetry(ctx context.Context, log *logger.Logger, name string, idempotent bool, fn func(context.Context) error) error {
	if !idempotent {
		return fn(ctx)
	}

	var err error
	for attempt := 0; ; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= len(defaultBackoffs) {
			return err
		}

		wait := defaultBackoffs[attempt]
		log.Warnw("Retrying after transient failure",
			"operation", name,
			"attempt", attempt+1,
			"backoff", wait,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
