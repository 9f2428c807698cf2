package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cloud-wave-best-zizon/stock-order-service/internal/domain"
	"github.com/cloud-wave-best-zizon/stock-order-service/internal/repository"
	"go.uber.org/zap"
)

// RetryPolicy bounds how often a conflicting commit is rebuilt from fresh data.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Delay: 20 * time.Millisecond}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var b backoff.BackOff = &backoff.ZeroBackOff{}
	if p.Delay > 0 {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = p.Delay
		exp.MaxInterval = 10 * p.Delay
		exp.MaxElapsedTime = 0
		b = exp
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
}

// buildFunc reads current state and returns the mutation to commit. It runs once per attempt.
type buildFunc func(ctx context.Context) (repository.Mutation, error)

// commit builds and commits a mutation, rebuilding it after retryable store failures.
// Errors from build are final.
func (s *OrderService) commit(ctx context.Context, op string, build buildFunc) (repository.CommitResult, error) {
	attempt := 0
	result, err := backoff.RetryWithData(func() (repository.CommitResult, error) {
		attempt++
		m, err := build(ctx)
		if err != nil {
			return repository.CommitResult{}, backoff.Permanent(err)
		}
		res, err := s.store.Commit(ctx, m)
		if err == nil {
			return res, nil
		}
		if !repository.IsRetryable(err) {
			return repository.CommitResult{}, backoff.Permanent(err)
		}
		s.logger.Debug("Commit rejected, retrying",
			zap.String("operation", op),
			zap.Int("attempt", attempt),
			zap.Error(err))
		return repository.CommitResult{}, err
	}, s.retry.backOff(ctx))

	if err != nil {
		if errors.Is(err, repository.ErrVersionMismatch) {
			return repository.CommitResult{}, fmt.Errorf("%w: %s gave up after %d attempts", domain.ErrConflict, op, attempt)
		}
		return repository.CommitResult{}, err
	}
	return result, nil
}
