package workflow

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"rangePilot/internal/model"
)

// retryTransient reruns fn with exponential backoff until it succeeds or the
// attempt budget is spent. ErrInvalidInput and ErrInvalidState surface
// immediately without a retry: they are programmer errors and rerunning the
// step cannot change the outcome. Everything else (rejected submissions,
// confirmation timeouts, transport errors) is considered transient.
func retryTransient(ctx context.Context, maxRetries int, baseDelay time.Duration, logger *zap.Logger, fn func(context.Context) error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}

	delay := baseDelay
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, model.ErrInvalidInput) || errors.Is(err, model.ErrInvalidState) {
			return err
		}
		if attempt >= maxRetries {
			return err
		}

		logger.Warn("transient step failure, backing off",
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
	}
}
