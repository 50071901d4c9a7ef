// Package backoff classifies transient DynamoDB errors and retries them
// with bounded exponential backoff.
package backoff

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
)

// ErrExhausted wraps the last transient error once the retry budget is
// spent. Callers translate it into their own unavailability error.
var ErrExhausted = errors.New("retry budget exhausted")

// Policy bounds the retry loop.
type Policy struct {
	MaxRetries int           // additional attempts after the first
	BaseDelay  time.Duration // first delay; doubles per attempt
}

// Transient reports whether an error from the underlying store is safe
// to retry. Validation and malformed-key errors never reach this path;
// everything here is network, throttling, or server-side trouble.
func Transient(err error) bool {
	var (
		throughput *types.ProvisionedThroughputExceededException
		limit      *types.LimitExceededException
		requests   *types.RequestLimitExceeded
		internal   *types.InternalServerError
	)
	if errors.As(err, &throughput) || errors.As(err, &limit) ||
		errors.As(err, &requests) || errors.As(err, &internal) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "ServiceUnavailable":
			return true
		}
		return apiErr.ErrorFault() == smithy.FaultServer
	}

	return false
}

// Do runs fn, retrying transient failures per the policy. Non-transient
// errors surface immediately. A transient error that outlives the budget
// is wrapped in ErrExhausted.
func Do(ctx context.Context, policy Policy, logger *slog.Logger, op string, fn func() error) error {
	if logger == nil {
		logger = slog.Default()
	}
	delay := policy.BaseDelay
	if delay <= 0 {
		delay = 50 * time.Millisecond
	}

	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || !Transient(err) {
			return err
		}
		if attempt >= policy.MaxRetries {
			break
		}
		logger.Warn("transient store error, backing off",
			"op", op,
			"attempt", attempt+1,
			"delay", delay,
			"error", err,
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
	}
	return fmt.Errorf("%w: %s failed after %d attempts: %w",
		ErrExhausted, op, policy.MaxRetries+1, err)
}
