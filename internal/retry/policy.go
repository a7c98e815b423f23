package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/msp-docs/psa-sync/internal/config"
	"github.com/msp-docs/psa-sync/internal/domain"
	"github.com/msp-docs/psa-sync/internal/platform/logger"

	"github.com/cenkalti/backoff/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

const maxErrorBodyBytes = 512

// Policy decides how outbound vendor calls are retried.  The zero value is
// not usable; build one with NewPolicy or DefaultPolicy.
type Policy struct {
	BaseDelay            time.Duration
	Multiplier           float64
	MaxDelay             time.Duration
	MaxAttempts          int
	DefaultRateLimitWait time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		BaseDelay:            time.Second,
		Multiplier:           2,
		MaxDelay:             30 * time.Second,
		MaxAttempts:          5,
		DefaultRateLimitWait: 5 * time.Second,
	}
}

func NewPolicy(cfg *config.Config) Policy {
	return Policy{
		BaseDelay:            cfg.RetryBaseDelay,
		Multiplier:           cfg.RetryMultiplier,
		MaxDelay:             cfg.RetryMaxDelay,
		MaxAttempts:          cfg.RetryMaxAttempts,
		DefaultRateLimitWait: cfg.RetryDefaultRateLimitWait,
	}
}

// Call performs one HTTP attempt.  It is invoked again for every retry so it
// must build a fresh request each time.
type Call func(ctx context.Context) (*http.Response, error)

type statusError struct {
	statusCode int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("server responded with status %d", e.statusCode)
}

type attemptState struct {
	attempts       int
	rateLimited    bool
	lastStatus     int
	lastRetryAfter time.Duration
}

// Do runs call until it yields a response that is not a 429 or 5xx, the
// attempt cap is reached, or ctx is done.  2xx, 3xx, 401 and 403 responses are
// returned to the caller with the body open; any other 4xx becomes a
// ProviderError.
func (p Policy) Do(ctx context.Context, provider domain.ProviderType, call Call) (*http.Response, error) {
	state := &attemptState{}

	log := logger.Log.WithFields(logrus.Fields{"provider": provider})

	operation := func() (*http.Response, error) {
		state.attempts++

		resp, err := call(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			state.rateLimited = false
			state.lastStatus = 0
			return nil, err
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			wait := p.retryAfter(resp.Header, time.Now())
			drainAndClose(resp)
			state.rateLimited = true
			state.lastRetryAfter = wait
			return nil, &backoff.RetryAfterError{Duration: wait}

		case resp.StatusCode >= 500:
			drainAndClose(resp)
			state.rateLimited = false
			state.lastStatus = resp.StatusCode
			return nil, &statusError{statusCode: resp.StatusCode}

		case resp.StatusCode >= 400 && resp.StatusCode != http.StatusUnauthorized && resp.StatusCode != http.StatusForbidden:
			message := readErrorBody(resp)
			return nil, backoff.Permanent(&domain.ProviderError{Provider: provider, StatusCode: resp.StatusCode, Message: message})
		}

		return resp, nil
	}

	notify := func(err error, next time.Duration) {
		reason := "transient"
		if state.rateLimited {
			reason = "rate_limited"
		}
		metrics.retryCounter.With(prometheus.Labels{"provider": string(provider), "reason": reason}).Inc()
		log.WithFields(logrus.Fields{"error": err, "attempt": state.attempts, "wait": next}).Debug("Retrying vendor call")
	}

	resp, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(p.exponentialBackOff()),
		backoff.WithMaxTries(uint(p.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(notify))

	metrics.attemptsHistogram.With(prometheus.Labels{"provider": string(provider)}).Observe(float64(state.attempts))

	if err == nil {
		return resp, nil
	}

	var providerErr *domain.ProviderError
	if errors.As(err, &providerErr) {
		return nil, providerErr
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	if state.rateLimited {
		return nil, &domain.RateLimitError{Provider: provider, Attempts: state.attempts, RetryAfter: state.lastRetryAfter}
	}

	return nil, &domain.TransientError{Provider: provider, Attempts: state.attempts, StatusCode: state.lastStatus, Err: err}
}

func (p Policy) exponentialBackOff() *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     p.BaseDelay,
		RandomizationFactor: 0,
		Multiplier:          p.Multiplier,
		MaxInterval:         p.MaxDelay,
	}
	b.Reset()
	return b
}

// retryAfter reads the Retry-After header as delta seconds or an HTTP date
func (p Policy) retryAfter(header http.Header, now time.Time) time.Duration {
	value := strings.TrimSpace(header.Get("Retry-After"))
	if value == "" {
		return p.DefaultRateLimitWait
	}

	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return p.DefaultRateLimitWait
		}
		return time.Duration(seconds) * time.Second
	}

	if at, err := http.ParseTime(value); err == nil {
		if wait := at.Sub(now); wait > 0 {
			return wait
		}
		return 0
	}

	return p.DefaultRateLimitWait
}

func drainAndClose(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
	resp.Body.Close()
}

func readErrorBody(resp *http.Response) string {
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	if err != nil || len(body) == 0 {
		return http.StatusText(resp.StatusCode)
	}
	return strings.TrimSpace(string(body))
}
