package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

var (
	ErrUpstreamUnavailable = errors.New("completion endpoint unavailable")
	ErrMalformedResponse   = errors.New("malformed structured response")
)

// maxBodyInError bounds how much of an upstream body is kept on an error.
const maxBodyInError = 256

// UpstreamError is returned when the endpoint is unreachable or answers with a
// non-success status. StatusCode is zero for transport failures.
type UpstreamError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Body != "":
		return fmt.Sprintf("%s: status %d: %s", ErrUpstreamUnavailable, e.StatusCode, e.Body)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: status %d", ErrUpstreamUnavailable, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", ErrUpstreamUnavailable, e.Err)
	default:
		return ErrUpstreamUnavailable.Error()
	}
}

func (e *UpstreamError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrUpstreamUnavailable}
	}
	return []error{ErrUpstreamUnavailable, e.Err}
}

// MalformedResponseError keeps the raw model output for diagnosis.
type MalformedResponseError struct {
	Raw string
	Err error
}

func (e *MalformedResponseError) Error() string {
	if e.Err == nil {
		return ErrMalformedResponse.Error()
	}
	return fmt.Sprintf("%s: %v", ErrMalformedResponse, e.Err)
}

func (e *MalformedResponseError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrMalformedResponse}
	}
	return []error{ErrMalformedResponse, e.Err}
}

// IsRetryable reports whether a completion failure is transient: transport
// errors, timeouts, 429 and 5xx. Malformed output and other 4xx are final.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrMalformedResponse) {
		return false
	}
	var up *UpstreamError
	if errors.As(err, &up) {
		if up.StatusCode == 0 {
			return true
		}
		return up.StatusCode == http.StatusTooManyRequests || up.StatusCode >= http.StatusInternalServerError
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func truncateBody(s string) string {
	if len(s) <= maxBodyInError {
		return s
	}
	return s[:maxBodyInError] + "..."
}
