package llm

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"time"
)

// Policy is a composable retry policy: classification, exponential backoff
// with jitter, and an attempt budget. It is applied identically to the upload
// and generate calls, and the JSON-parse retries share the same budget so the
// total number of attempts per call stays bounded.
type Policy struct {
	MaxAttempts int
	Base        time.Duration
	MaxDelay    time.Duration
}

// DefaultPolicy mirrors the production defaults.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, Base: 1 * time.Second, MaxDelay: 60 * time.Second}
}

// Backoff returns the pre-jitter delay for a 0-indexed attempt:
// Base * 2^attempt, capped at MaxDelay.
func (p Policy) Backoff(attempt int) time.Duration {
	d := p.Base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Jittered inflates d by a uniform random factor in [10%, 50%] and re-applies
// the cap. The jitter desynchronizes concurrent retriers so a shared outage
// does not turn into a synchronized retry storm.
func (p Policy) Jittered(d time.Duration) time.Duration {
	frac := 0.10 + rand.Float64()*0.40
	out := d + time.Duration(float64(d)*frac)
	if out > p.MaxDelay {
		return p.MaxDelay
	}
	return out
}

// Transient-network fingerprints. Errors from the HTTP stack and DNS layer do
// not share a common type, so textual matching is the classification of last
// resort (sits alongside the typed checks below).
var transientFingerprints = []string{
	"connection reset",
	"connection refused",
	"broken pipe",
	"timeout",
	"timed out",
	"deadline exceeded",
	"temporary failure",
	"no such host",
	"dns",
	"tls",
	"certificate",
	"unexpected eof",
	"service unavailable",
	"internal server error",
	"bad gateway",
	"502",
	"503",
	"504",
}

// Retryable reports whether err is recognized transient infrastructure
// trouble. Everything else is fatal on first occurrence.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var ee *ExtractionError
	if errors.As(err, &ee) {
		// Already classified terminally by a lower layer.
		return false
	}
	var bad *InvalidJSONError
	if errors.As(err, &bad) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		switch se.Code {
		case http.StatusInternalServerError, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, fp := range transientFingerprints {
		if strings.Contains(msg, fp) {
			return true
		}
	}
	return false
}

// InvalidJSONError marks a generate response that did not parse as JSON.
// It is retryable under the same budget as infrastructure errors, not in a
// second independent loop, so total attempts per call stay bounded.
type InvalidJSONError struct {
	Err error
}

func (e *InvalidJSONError) Error() string { return "response is not valid JSON: " + e.Err.Error() }
func (e *InvalidJSONError) Unwrap() error { return e.Err }

// Do runs fn under the policy. A nil return wins immediately; a non-retryable
// error aborts without consuming further attempts; exhausting the budget
// yields ExtractionError(retries-exhausted) wrapping the last attempt error.
// Context expiry at any point surfaces as ExtractionError(timeout).
func (p Policy) Do(ctx context.Context, logger *slog.Logger, op string, fn func(context.Context) error) error {
	if logger == nil {
		logger = slog.Default()
	}
	var last error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return &ExtractionError{Reason: ReasonTimeout, Op: op, Err: err}
		}
		last = fn(ctx)
		if last == nil {
			return nil
		}
		var ee *ExtractionError
		if errors.As(last, &ee) {
			return last
		}
		if !Retryable(last) {
			logger.Warn("llm.retry.fatal", "op", op, "attempt", attempt+1, "error", last)
			return &ExtractionError{Reason: ReasonUpstream, Op: op, Err: last}
		}
		if attempt == p.MaxAttempts-1 {
			break
		}
		delay := p.Jittered(p.Backoff(attempt))
		logger.Warn("llm.retry.backoff",
			"op", op,
			"attempt", attempt+1,
			"max_attempts", p.MaxAttempts,
			"delay_ms", delay.Milliseconds(),
			"error", last,
		)
		select {
		case <-ctx.Done():
			return &ExtractionError{Reason: ReasonTimeout, Op: op, Err: ctx.Err()}
		case <-time.After(delay):
		}
	}
	logger.Error("llm.retry.exhausted", "op", op, "attempts", p.MaxAttempts, "error", last)
	return &ExtractionError{Reason: ReasonRetriesExhausted, Op: op, Err: last}
}
