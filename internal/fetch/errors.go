// Package fetch wraps a single upstream operation with a process-wide
// throttle, classified exponential backoff and a circuit breaker, so that an
// unreliable rate-limited provider never bleeds raw transport failures into
// the caller.
package fetch

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
)

// Reason classifies an upstream failure for retry-policy purposes. The
// classification is explicit: only rate-limit and transient failures are
// retried, everything else fails immediately.
type Reason int

const (
	// ReasonFatal marks failures that retrying cannot fix: 4xx other than
	// 429, malformed responses, programming errors.
	ReasonFatal Reason = iota
	// ReasonTransient marks 5xx and network I/O failures, retried on the
	// gentle schedule.
	ReasonTransient
	// ReasonRateLimit marks 429s and provider rate-limit signals, retried
	// on the steep schedule.
	ReasonRateLimit
)

// Classifier assigns a Reason to an error.
type Classifier func(error) Reason

// StatusError is a non-2xx HTTP response. Snippet holds the first few
// hundred bytes of the body for observability.
type StatusError struct {
	Status  int
	Snippet string
}

func (e *StatusError) Error() string {
	if e.Snippet == "" {
		return fmt.Sprintf("upstream returned HTTP %d", e.Status)
	}
	return fmt.Sprintf("upstream returned HTTP %d: %s", e.Status, e.Snippet)
}

// Temporary reports whether retrying the request may succeed.
func (e *StatusError) Temporary() bool {
	return e.Status == 429 || e.Status >= 500
}

// Error is the typed failure returned once the retry budget is exhausted or
// the circuit breaker refuses the call. It always wraps the last underlying
// error; partial data is never returned alongside it.
type Error struct {
	Attempts int
	Status   int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("fetch: giving up after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Classify is the default Classifier.
func Classify(err error) Reason {
	if err == nil {
		return ReasonFatal
	}

	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.Status == 429:
			return ReasonRateLimit
		case se.Status >= 500:
			return ReasonTransient
		default:
			return ReasonFatal
		}
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests") {
		return ReasonRateLimit
	}

	var ne net.Error
	if errors.As(err, &ne) {
		return ReasonTransient
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return ReasonTransient
	}

	return ReasonFatal
}
