package common

import (
	"context"
	"crypto/rand"
	"errors"
	"log"
	"math/big"
	"time"

	"github.com/rs/zerolog"
)

type (
	// RetryPolicyFunc reports whether the attempt that just failed with
	// err should be followed by another one.
	RetryPolicyFunc func(attempt uint32, err error) bool
	// NextDelayFunc computes the pause after the given attempt.
	NextDelayFunc func(attempt uint32) time.Duration
)

type RetryConfig struct {
	ShouldRetry RetryPolicyFunc
	NextDelay   NextDelayFunc
}

// RetryRunner re-executes an action until it succeeds, the policy gives
// up, or the context is done. Both HTTP clients carry one behind their
// retry option.
type RetryRunner struct {
	config RetryConfig
	logger zerolog.Logger
}

func NewRetryRunner(config RetryConfig, logger zerolog.Logger) RetryRunner {
	return RetryRunner{config: config, logger: logger}
}

func (r *RetryRunner) Do(ctx context.Context, action func(ctx context.Context) error) error {
	for attempt := uint32(1); ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := action(ctx)
		if err == nil || !r.config.ShouldRetry(attempt, err) {
			return err
		}

		delay := r.config.NextDelay(attempt)
		r.logger.Warn().Err(err).Msgf("attempt %d failed, next in %s", attempt, delay)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// LimitRetries allows at most maxAttempts calls in total.
func LimitRetries(maxAttempts uint32) RetryPolicyFunc {
	return func(attempt uint32, _ error) bool {
		return attempt < maxAttempts
	}
}

// ComposeRetryPolicies retries only when every policy agrees.
func ComposeRetryPolicies(policies ...RetryPolicyFunc) RetryPolicyFunc {
	return func(attempt uint32, err error) bool {
		for _, policy := range policies {
			if !policy(attempt, err) {
				return false
			}
		}
		return true
	}
}

// DoNotRetryIf stops on errors that further attempts cannot fix.
func DoNotRetryIf(terminal ...error) RetryPolicyFunc {
	return func(_ uint32, err error) bool {
		for _, candidate := range terminal {
			if errors.Is(err, candidate) {
				return false
			}
		}
		return true
	}
}

// DelayExponential multiplies the delay by baseDelay per attempt, capped
// at maxDelay.
func DelayExponential(baseDelay, maxDelay time.Duration) NextDelayFunc {
	if baseDelay > maxDelay {
		log.Panicf("baseDelay %s > maxDelay %s", baseDelay, maxDelay)
	}

	return func(attempt uint32) time.Duration {
		delay := time.Duration(1)
		for range attempt {
			delay *= baseDelay
			if delay >= maxDelay {
				return maxDelay
			}
		}
		return delay
	}
}

// DelayJitter picks a uniform random delay from [minDelay, maxDelay].
// A fleet of agents booting at the same moment spreads its retries out
// instead of hitting the shared registry in lockstep.
func DelayJitter(minDelay, maxDelay time.Duration, logger zerolog.Logger) NextDelayFunc {
	if minDelay > maxDelay {
		log.Panicf("minDelay %s > maxDelay %s", minDelay, maxDelay)
	}
	span := big.NewInt(int64(maxDelay-minDelay) + 1)

	return func(_ uint32) time.Duration {
		delta, err := rand.Int(rand.Reader, span)
		if err != nil {
			logger.Error().Err(err).Msg("random retry delay unavailable, using the minimum")
			return minDelay
		}
		return minDelay + time.Duration(delta.Int64())
	}
}
