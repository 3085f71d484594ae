package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"fabula/internal/config"
	"fabula/internal/schema"
)

func testClient(t *testing.T, serverURL string) *HTTPClient {
	t.Helper()
	return NewHTTPClient(config.ProviderConfig{
		APIKey:          "test-key",
		BaseURL:         serverURL,
		Model:           "test-model",
		MaxOutputTokens: 512,
		Timeouts: config.ProviderTimeouts{
			HTTPClientTimeout:  5 * time.Second,
			PerCallTimeout:     5 * time.Second,
			RetryBackoffBase:   time.Millisecond,
			RetryBackoffMax:    5 * time.Millisecond,
			MaxRetries:         2,
			MaxConcurrentCalls: 4,
		},
	})
}

func completedBody(id, text string) string {
	payload, _ := json.Marshal(text)
	return fmt.Sprintf(`{
		"id": %q,
		"status": "completed",
		"model": "test-model-2026",
		"created_at": 1767225600,
		"service_tier": "default",
		"output": [
			{"type": "reasoning", "summary": [{"type": "summary_text", "text": "thought about it"}]},
			{"type": "message", "content": [{"type": "output_text", "text": %s}]}
		],
		"usage": {
			"input_tokens": 100,
			"output_tokens": 40,
			"total_tokens": 140,
			"input_tokens_details": {"cached_tokens": 25},
			"output_tokens_details": {"reasoning_tokens": 10}
		}
	}`, id, payload)
}

func TestExecuteSuccess(t *testing.T) {
	var gotReq wireRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/responses" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("auth = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		fmt.Fprint(w, completedBody("resp_1", `{"action":"wait"}`))
	}))
	defer srv.Close()

	sc := schema.MustNew("action", `{"type":"object"}`)
	c := testClient(t, srv.URL)
	resp, err := c.Execute(context.Background(), Call{
		Instructions: "be bob",
		Input:        "what next?",
		Schema:       sc,
		PreviousID:   "resp_0",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if gotReq.PreviousResponseID != "resp_0" {
		t.Errorf("previous_response_id = %q", gotReq.PreviousResponseID)
	}
	if gotReq.Text == nil || gotReq.Text.Format.Type != "json_schema" || gotReq.Text.Format.Name != "action" {
		t.Errorf("schema format not sent: %+v", gotReq.Text)
	}
	if gotReq.MaxOutputTokens != 512 {
		t.Errorf("max_output_tokens = %d", gotReq.MaxOutputTokens)
	}

	if resp.ID != "resp_1" {
		t.Errorf("id = %q", resp.ID)
	}
	if string(resp.Payload) != `{"action":"wait"}` {
		t.Errorf("payload = %s", resp.Payload)
	}
	want := Usage{InputTokens: 100, OutputTokens: 40, ReasoningTokens: 10, CachedTokens: 25, TotalTokens: 140}
	if resp.Usage != want {
		t.Errorf("usage = %+v, want %+v", resp.Usage, want)
	}
	if resp.Debug.Model != "test-model-2026" || resp.Debug.ServiceTier != "default" {
		t.Errorf("debug = %+v", resp.Debug)
	}
	if resp.Debug.ReasoningTrace != "thought about it" {
		t.Errorf("trace = %q", resp.Debug.ReasoningTrace)
	}
	if resp.Debug.CreatedAt.IsZero() {
		t.Error("created_at not populated")
	}
}

func TestExecuteRateLimitedThenSuccess(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, completedBody("resp_ok", `{"ok":true}`))
	}))
	defer srv.Close()

	resp, err := testClient(t, srv.URL).Execute(context.Background(), Call{Input: "hi"})
	if err != nil {
		t.Fatalf("Execute after rate limits: %v", err)
	}
	if resp.ID != "resp_ok" {
		t.Errorf("id = %q", resp.ID)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestExecuteRateLimitBudgetExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := testClient(t, srv.URL).Execute(context.Background(), Call{Input: "hi"})
	var rl *RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("err = %v, want RateLimitError", err)
	}
	if rl.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", rl.Attempts)
	}
	if !IsRetryExhausted(err) {
		t.Error("IsRetryExhausted = false")
	}
}

func TestExecuteTransientBudgetExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := testClient(t, srv.URL).Execute(context.Background(), Call{Input: "hi"})
	var to *TimeoutError
	if !errors.As(err, &to) {
		t.Fatalf("err = %v, want TimeoutError", err)
	}
	if to.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", to.Attempts)
	}
}

func TestExecuteRefusalIsTerminal(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		fmt.Fprint(w, `{
			"id": "resp_r",
			"status": "completed",
			"output": [{"type": "message", "content": [{"type": "refusal", "refusal": "cannot comply"}]}],
			"usage": {}
		}`)
	}))
	defer srv.Close()

	_, err := testClient(t, srv.URL).Execute(context.Background(), Call{Input: "hi"})
	var pr *PolicyRejectionError
	if !errors.As(err, &pr) {
		t.Fatalf("err = %v, want PolicyRejectionError", err)
	}
	if pr.Reason != "cannot comply" {
		t.Errorf("reason = %q", pr.Reason)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("refusal retried: calls = %d", got)
	}
	if !IsTerminalRejection(err) {
		t.Error("IsTerminalRejection = false")
	}
}

func TestExecuteTruncationIsTerminal(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		fmt.Fprint(w, `{
			"id": "resp_t",
			"status": "incomplete",
			"incomplete_details": {"reason": "max_output_tokens"},
			"output": [],
			"usage": {}
		}`)
	}))
	defer srv.Close()

	_, err := testClient(t, srv.URL).Execute(context.Background(), Call{Input: "hi"})
	var tr *TruncationError
	if !errors.As(err, &tr) {
		t.Fatalf("err = %v, want TruncationError", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("truncation retried: calls = %d", got)
	}
}

func TestExecuteUnclassifiedError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error": {"code": "invalid_request", "message": "bad schema"}}`)
	}))
	defer srv.Close()

	_, err := testClient(t, srv.URL).Execute(context.Background(), Call{Input: "hi"})
	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want ProviderError", err)
	}
	if pe.Code != "invalid_request" || pe.StatusCode != http.StatusBadRequest {
		t.Errorf("provider error = %+v", pe)
	}
}

func TestDeleteResponse(t *testing.T) {
	var gotPath, gotMethod string
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotMethod = r.URL.Path, r.Method
		w.WriteHeader(status)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	if err := c.DeleteResponse(context.Background(), "resp_9"); err != nil {
		t.Fatalf("DeleteResponse: %v", err)
	}
	if gotMethod != http.MethodDelete || gotPath != "/responses/resp_9" {
		t.Errorf("request = %s %s", gotMethod, gotPath)
	}

	status = http.StatusNotFound
	if err := c.DeleteResponse(context.Background(), "resp_gone"); err != nil {
		t.Fatalf("missing response should not error: %v", err)
	}

	status = http.StatusInternalServerError
	if err := c.DeleteResponse(context.Background(), "resp_bad"); err == nil {
		t.Fatal("server error swallowed")
	}

	if err := c.DeleteResponse(context.Background(), ""); err != nil {
		t.Fatalf("empty id should be a no-op: %v", err)
	}
}
