package service

import (
	"context"
	"errors"
	"math"
	"net"
	"net/http"
	"time"

	"github.com/maheshrc27/postqueue/internal/models"
)

type ErrorClass int

const (
	ErrorClassUnknown ErrorClass = iota
	ErrorClassTransient
	ErrorClassPermanent
)

func (c ErrorClass) String() string {
	switch c {
	case ErrorClassTransient:
		return "transient"
	case ErrorClassPermanent:
		return "permanent"
	}
	return "unknown"
}

// RetryDecision is the result of RetryPolicy.Decide. Delay is zero when
// Retry is false.
type RetryDecision struct {
	Retry bool
	Delay time.Duration
	Class ErrorClass
}

// RetryPolicy decides between retrying and abandoning a failed attempt.
// It holds no state and never performs I/O.
type RetryPolicy struct {
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

func NewRetryPolicy(cfg PipelineConfig) RetryPolicy {
	return RetryPolicy{BackoffBase: cfg.BackoffBase, BackoffMax: cfg.BackoffMax}
}

// Decide abandons permanent errors immediately. Transient and unknown errors
// are retried while attempt < maxAttempts.
func (p RetryPolicy) Decide(err error, attempt, maxAttempts int) RetryDecision {
	class := Classify(err)
	if class == ErrorClassPermanent || attempt >= maxAttempts {
		return RetryDecision{Class: class}
	}
	return RetryDecision{Retry: true, Delay: p.Backoff(attempt), Class: class}
}

// Backoff is BackoffBase doubled once per prior attempt, capped at BackoffMax.
// A zero BackoffMax leaves the delay uncapped, saturating at the largest
// representable duration.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	delay := p.BackoffBase
	for i := 0; i < attempt; i++ {
		if delay > math.MaxInt64/2 {
			delay = math.MaxInt64
			break
		}
		delay *= 2
		if p.BackoffMax > 0 && delay >= p.BackoffMax {
			return p.BackoffMax
		}
	}
	if p.BackoffMax > 0 && delay > p.BackoffMax {
		return p.BackoffMax
	}
	return delay
}

// Classify buckets err for the retry decision.
func Classify(err error) ErrorClass {
	if err == nil {
		return ErrorClassUnknown
	}

	var extErr *models.ExternalError
	if errors.As(err, &extErr) {
		if extErr.Kind == models.ExternalPermanent {
			return ErrorClassPermanent
		}
		return ErrorClassTransient
	}

	var valErr *models.ValidationError
	if errors.As(err, &valErr) {
		return ErrorClassPermanent
	}
	if errors.Is(err, models.ErrNotFound) {
		return ErrorClassPermanent
	}

	if errors.Is(err, models.ErrCancelled) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassTransient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrorClassTransient
	}

	return ErrorClassUnknown
}

// ClassifyHTTPStatus maps a non-2xx response status to an error class.
func ClassifyHTTPStatus(statusCode int) ErrorClass {
	switch {
	case statusCode == http.StatusTooManyRequests, statusCode == http.StatusRequestTimeout:
		return ErrorClassTransient
	case statusCode >= 500:
		return ErrorClassTransient
	case statusCode >= 400:
		return ErrorClassPermanent
	default:
		return ErrorClassUnknown
	}
}
