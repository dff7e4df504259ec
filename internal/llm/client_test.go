package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func completionServer(t *testing.T, handler func(req map[string]any) (int, string)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		var req map[string]any
		_ = json.Unmarshal(body, &req)
		code, resp := handler(req)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_, _ = w.Write([]byte(resp))
	}))
}

func chatResponse(content string) string {
	raw, _ := json.Marshal(map[string]any{
		"id":     "cmpl-1",
		"object": "chat.completion",
		"model":  "deepseek-coder-33b-instruct",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]string{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
		"usage": map[string]int{"prompt_tokens": 11, "completion_tokens": 7, "total_tokens": 18},
	})
	return string(raw)
}

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	c, err := NewClient(Options{APIKey: "test", BaseURL: url, Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestCompleteReturnsTextModelAndUsage(t *testing.T) {
	var captured map[string]any
	srv := completionServer(t, func(req map[string]any) (int, string) {
		captured = req
		return http.StatusOK, chatResponse("<html></html>")
	})
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	got, err := c.Complete(context.Background(), "build a page", "you are a developer", false)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got.Text != "<html></html>" || got.Model != "deepseek-coder-33b-instruct" || got.Usage.TotalTokens != 18 {
		t.Fatalf("unexpected completion %+v", got)
	}
	msgs, _ := captured["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("expected system and user messages, got %v", captured["messages"])
	}
	if _, ok := captured["response_format"]; ok {
		t.Fatalf("response_format sent without wantsJSON")
	}
	if captured["max_tokens"] != float64(DefaultMaxTokens) {
		t.Fatalf("max_tokens = %v", captured["max_tokens"])
	}
}

func TestCompleteRequestsJSONMode(t *testing.T) {
	var format any
	srv := completionServer(t, func(req map[string]any) (int, string) {
		format = req["response_format"]
		return http.StatusOK, chatResponse(`{"a":1}`)
	})
	defer srv.Close()

	if _, err := newTestClient(t, srv.URL).Complete(context.Background(), "p", "", true); err != nil {
		t.Fatalf("complete: %v", err)
	}
	m, _ := format.(map[string]any)
	if m["type"] != "json_object" {
		t.Fatalf("expected json_object response format, got %v", format)
	}
}

func TestCompleteUpstreamFailureCapturesStatus(t *testing.T) {
	calls := 0
	srv := completionServer(t, func(map[string]any) (int, string) {
		calls++
		return http.StatusInternalServerError, `{"error":{"message":"model overloaded","type":"server_error"}}`
	})
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Complete(context.Background(), "p", "", false)
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable got %v", err)
	}
	var up *UpstreamError
	if !errors.As(err, &up) || up.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected status 500 captured, got %v", err)
	}
	if !strings.Contains(up.Body, "overloaded") {
		t.Fatalf("expected body captured, got %q", up.Body)
	}
	if !IsRetryable(err) {
		t.Fatalf("5xx should be retryable")
	}
	if calls != 1 {
		t.Fatalf("client must not retry, got %d calls", calls)
	}
}

func TestCompleteClientErrorIsNotRetryable(t *testing.T) {
	srv := completionServer(t, func(map[string]any) (int, string) {
		return http.StatusBadRequest, `{"error":{"message":"bad request","type":"invalid_request_error"}}`
	})
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Complete(context.Background(), "p", "", false)
	if !errors.Is(err, ErrUpstreamUnavailable) || IsRetryable(err) {
		t.Fatalf("expected non-retryable upstream error, got %v", err)
	}
}

func TestCompleteUnreachableEndpoint(t *testing.T) {
	srv := completionServer(t, func(map[string]any) (int, string) { return http.StatusOK, "" })
	url := srv.URL
	srv.Close()

	_, err := newTestClient(t, url).Complete(context.Background(), "p", "", false)
	var up *UpstreamError
	if !errors.As(err, &up) || up.StatusCode != 0 {
		t.Fatalf("expected transport UpstreamError, got %v", err)
	}
	if !IsRetryable(err) {
		t.Fatalf("transport failures should be retryable")
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient(Options{}); err == nil {
		t.Fatalf("expected error without api key")
	}
}
