package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// SecretHeader authenticates the orchestrator to the automation endpoint.
const SecretHeader = "X-AIWS-SECRET"

// DefaultTimeout bounds the synchronous acknowledgment.
const DefaultTimeout = 15 * time.Second

const (
	maxAckBytes    = 64 * 1024
	maxBodyInError = 256
)

var ErrDispatchFailed = errors.New("automation dispatch failed")

// Error describes a rejected or unreachable dispatch. StatusCode is zero when
// no response was received.
type Error struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		if e.Body == "" {
			return fmt.Sprintf("%s: status %d", ErrDispatchFailed, e.StatusCode)
		}
		return fmt.Sprintf("%s: status %d: %s", ErrDispatchFailed, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s: %v", ErrDispatchFailed, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrDispatchFailed}
	}
	return []error{ErrDispatchFailed, e.Err}
}

// IsRetryable reports whether a dispatch failure is worth another attempt.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var de *Error
	if !errors.As(err, &de) {
		return false
	}
	return de.StatusCode == 0 || de.StatusCode == http.StatusTooManyRequests || de.StatusCode >= http.StatusInternalServerError
}

// Payload is the job description sent to the workflow engine.
type Payload struct {
	JobID     string `json:"job_id"`
	ProjectID string `json:"project_id"`
	UserID    string `json:"user_id"`
	Title     string `json:"title"`
	Prompt    string `json:"prompt"`
	TechStack string `json:"tech_stack"`
}

// Ack is the synchronous acknowledgment. ExecutionID is set when the engine
// reports one.
type Ack struct {
	StatusCode  int
	ExecutionID string
}

type Options struct {
	URL        string
	Secret     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Dispatcher posts jobs to an n8n-style webhook.
type Dispatcher struct {
	url    string
	secret string
	client *http.Client
	log    zerolog.Logger
}

func New(opts Options) (*Dispatcher, error) {
	if strings.TrimSpace(opts.URL) == "" {
		return nil, errors.New("automation webhook url is required")
	}
	if opts.Secret == "" {
		return nil, errors.New("automation secret is required")
	}
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout == 0 {
			timeout = DefaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Dispatcher{url: opts.URL, secret: opts.Secret, client: client, log: opts.Logger}, nil
}

// Dispatch sends p and interprets the acknowledgment. Any status >= 400 is a
// failure carrying the status and a bounded prefix of the body.
func (d *Dispatcher) Dispatch(ctx context.Context, p Payload) (Ack, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return Ack{}, fmt.Errorf("marshal dispatch payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return Ack{}, &Error{Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SecretHeader, d.secret)

	resp, err := d.client.Do(req)
	if err != nil {
		return Ack{}, &Error{Err: err}
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxAckBytes))
	if resp.StatusCode >= http.StatusBadRequest {
		return Ack{}, &Error{StatusCode: resp.StatusCode, Body: truncate(strings.TrimSpace(string(raw))), Err: readErr}
	}
	// A 2xx means the engine accepted the job even when the body is unreadable.
	if readErr != nil {
		d.log.Warn().Err(readErr).Str("job_id", p.JobID).Int("status", resp.StatusCode).Msg("read dispatch ack, execution id unknown")
		return Ack{StatusCode: resp.StatusCode}, nil
	}
	id := executionID(raw)
	if id == "" && len(bytes.TrimSpace(raw)) > 0 {
		d.log.Warn().Str("job_id", p.JobID).Str("body", truncate(string(raw))).Msg("dispatch ack has no execution id")
	}
	return Ack{StatusCode: resp.StatusCode, ExecutionID: id}, nil
}

func executionID(raw []byte) string {
	var ack struct {
		ExecutionID      string `json:"execution_id"`
		ExecutionIDCamel string `json:"executionId"`
	}
	if err := json.Unmarshal(raw, &ack); err != nil {
		return ""
	}
	if ack.ExecutionID != "" {
		return ack.ExecutionID
	}
	return ack.ExecutionIDCamel
}

func truncate(s string) string {
	if len(s) <= maxBodyInError {
		return s
	}
	return s[:maxBodyInError] + "..."
}
