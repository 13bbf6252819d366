package exchange

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// RetryConfig bounds the backoff applied to transient exchange failures
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
}

// DefaultRetryConfig returns the production retry policy
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		BackoffFactor:  2.0,
	}
}

// backoffFor returns the wait before retry number attempt+1, capped at
// MaxBackoff
func (c RetryConfig) backoffFor(attempt int) time.Duration {
	wait := c.InitialBackoff
	for i := 0; i < attempt; i++ {
		wait = time.Duration(float64(wait) * c.BackoffFactor)
		if wait >= c.MaxBackoff {
			return c.MaxBackoff
		}
	}
	return wait
}

// WithRetry runs op under the retry policy. Rate limits and network
// timeouts back off and retry; rejections surface immediately. Retries
// never outlive ctx, so a caller's deadline bounds the whole sequence.
func WithRetry(ctx context.Context, cfg RetryConfig, op func() error) error {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("retry aborted: %w", err)
		}

		err := op()
		if err == nil {
			if attempt > 0 {
				log.Info().Int("attempts", attempt+1).Msg("Exchange call recovered")
			}
			return nil
		}
		if !IsRetryable(err) {
			return err
		}
		if attempt == cfg.MaxRetries {
			return fmt.Errorf("gave up after %d attempts: %w", attempt+1, err)
		}

		wait := cfg.backoffFor(attempt)
		log.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Dur("backoff", wait).
			Msg("Transient exchange failure, backing off")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry aborted: %w", ctx.Err())
		case <-timer.C:
		}
	}
}
