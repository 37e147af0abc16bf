package pipeline

import (
	"context"
	"math"
	"time"

	"go-election-merge/internal/model"

	"go.uber.org/zap"
)

// RetryStore wraps a Store and retries calls that fail with a transient error.
type RetryStore struct {
	next      Store
	config    model.RetryConfig
	retryable func(error) bool
	logger    *zap.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

// WithRetry decorates next. retryable decides which errors are worth another attempt.
func WithRetry(next Store, config model.RetryConfig, retryable func(error) bool, logger *zap.Logger) *RetryStore {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	if config.BackoffMultiplier < 1 {
		config.BackoffMultiplier = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryStore{
		next:      next,
		config:    config,
		retryable: retryable,
		logger:    logger,
		sleep:     sleepContext,
	}
}

func (s *RetryStore) Create(ctx context.Context, recs []model.StoredRecord) error {
	return s.do(ctx, "create", func() error {
		return s.next.Create(ctx, recs)
	})
}

func (s *RetryStore) Read(ctx context.Context, f model.Filter) ([]model.StoredRecord, error) {
	var out []model.StoredRecord
	err := s.do(ctx, "read", func() error {
		var err error
		out, err = s.next.Read(ctx, f)
		return err
	})
	return out, err
}

func (s *RetryStore) Delete(ctx context.Context, f model.Filter) (int64, error) {
	var n int64
	err := s.do(ctx, "delete", func() error {
		var err error
		n, err = s.next.Delete(ctx, f)
		return err
	})
	return n, err
}

func (s *RetryStore) do(ctx context.Context, op string, fn func() error) error {
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if attempt >= s.config.MaxAttempts || s.retryable == nil || !s.retryable(err) {
			return err
		}

		delay := s.backoff(attempt)
		s.logger.Warn("Store call failed, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if err := s.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// backoff is InitialDelay * BackoffMultiplier^(attempt-1), capped at MaxDelay.
func (s *RetryStore) backoff(attempt int) time.Duration {
	delay := time.Duration(float64(s.config.InitialDelay) * math.Pow(s.config.BackoffMultiplier, float64(attempt-1)))
	if s.config.MaxDelay > 0 && delay > s.config.MaxDelay {
		delay = s.config.MaxDelay
	}
	return delay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
