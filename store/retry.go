package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jacentio/rolodex/internal/backoff"
)

// withRetry runs fn under the configured backoff policy and translates
// an exhausted retry budget into ErrStoreUnavailable.
func (s *Store) withRetry(ctx context.Context, op string, fn func() error) error {
	err := backoff.Do(ctx, backoff.Policy{
		MaxRetries: s.config.MaxRetries,
		BaseDelay:  s.config.RetryBaseDelay,
	}, s.logger, op, fn)
	if errors.Is(err, backoff.ErrExhausted) {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return err
}
