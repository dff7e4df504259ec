package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestDispatchSendsSignedPayload(t *testing.T) {
	var got Payload
	var secret string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secret = r.Header.Get(SecretHeader)
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"execution_id":"exec-42"}`))
	}))
	defer srv.Close()

	d, err := New(Options{URL: srv.URL, Secret: "s3cret"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	p := Payload{JobID: "j1", ProjectID: "p1", UserID: "u1", Title: "Site", Prompt: "portfolio", TechStack: "static"}
	ack, err := d.Dispatch(context.Background(), p)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if secret != "s3cret" {
		t.Fatalf("secret header = %q", secret)
	}
	if got != p {
		t.Fatalf("payload mismatch: %+v", got)
	}
	if ack.ExecutionID != "exec-42" || ack.StatusCode != http.StatusOK {
		t.Fatalf("unexpected ack %+v", ack)
	}
}

func TestDispatchAcceptsEmptyAck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	d, _ := New(Options{URL: srv.URL, Secret: "x"})
	ack, err := d.Dispatch(context.Background(), Payload{JobID: "j"})
	if err != nil || ack.ExecutionID != "" {
		t.Fatalf("expected plain ack, got %+v %v", ack, err)
	}
}

func TestDispatchRejectedCarriesStatusAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(strings.Repeat("maintenance ", 100)))
	}))
	defer srv.Close()

	d, _ := New(Options{URL: srv.URL, Secret: "x"})
	_, err := d.Dispatch(context.Background(), Payload{JobID: "j"})
	if !errors.Is(err, ErrDispatchFailed) {
		t.Fatalf("expected ErrDispatchFailed got %v", err)
	}
	var de *Error
	if !errors.As(err, &de) || de.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status not captured: %v", err)
	}
	if !strings.Contains(err.Error(), "503") {
		t.Fatalf("error message lacks status: %q", err.Error())
	}
	if len(de.Body) > maxBodyInError+3 {
		t.Fatalf("body not truncated: %d bytes", len(de.Body))
	}
	if !IsRetryable(err) {
		t.Fatalf("503 should be retryable")
	}
}

func TestDispatchClientErrorNotRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	d, _ := New(Options{URL: srv.URL, Secret: "wrong"})
	_, err := d.Dispatch(context.Background(), Payload{JobID: "j"})
	if !errors.Is(err, ErrDispatchFailed) || IsRetryable(err) {
		t.Fatalf("expected final dispatch failure got %v", err)
	}
}

func TestDispatchTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	d, _ := New(Options{URL: srv.URL, Secret: "x", Timeout: 50 * time.Millisecond})
	_, err := d.Dispatch(context.Background(), Payload{JobID: "j"})
	var de *Error
	if !errors.As(err, &de) || de.StatusCode != 0 {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestNewRequiresURLAndSecret(t *testing.T) {
	if _, err := New(Options{Secret: "x"}); err == nil {
		t.Fatalf("expected url error")
	}
	if _, err := New(Options{URL: "http://localhost"}); err == nil {
		t.Fatalf("expected secret error")
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

type brokenBody struct{}

func (brokenBody) Read([]byte) (int, error) { return 0, errors.New("connection reset") }
func (brokenBody) Close() error             { return nil }

func TestUnreadableAckIsAcceptedAndLogged(t *testing.T) {
	var logs bytes.Buffer
	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusOK, Body: brokenBody{}, Header: http.Header{}, Request: r}, nil
	})}
	d, err := New(Options{URL: "http://n8n.local/webhook", Secret: "x", HTTPClient: client, Logger: zerolog.New(&logs)})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	ack, err := d.Dispatch(context.Background(), Payload{JobID: "j9"})
	if err != nil {
		t.Fatalf("accepted dispatch reported as failure: %v", err)
	}
	if ack.StatusCode != http.StatusOK || ack.ExecutionID != "" {
		t.Fatalf("unexpected ack %+v", ack)
	}
	if !strings.Contains(logs.String(), "connection reset") || !strings.Contains(logs.String(), "j9") {
		t.Fatalf("read failure not logged: %s", logs.String())
	}
}
