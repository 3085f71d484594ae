// Package provider executes single requests against the generative-text
// provider. It owns retry, backoff, and timeout policy, and classifies every
// failure into the typed error taxonomy in errors.go. Nothing above this
// package retries.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"fabula/internal/config"
	"fabula/internal/logging"
)

// Client executes exactly one request per call and cleans up remote state.
type Client interface {
	Execute(ctx context.Context, call Call) (*Response, error)
	// DeleteResponse removes a response server-side. Callers treat it as
	// best-effort and must not depend on it succeeding.
	DeleteResponse(ctx context.Context, id string) error
}

// HTTPClient implements Client against a responses-style HTTP API.
type HTTPClient struct {
	apiKey          string
	baseURL         string
	model           string
	maxOutputTokens int
	timeouts        config.ProviderTimeouts
	httpClient      *http.Client
	sem             *semaphore.Weighted
}

// NewHTTPClient builds a client from provider configuration.
func NewHTTPClient(cfg config.ProviderConfig) *HTTPClient {
	t := cfg.Timeouts
	maxConc := int64(t.MaxConcurrentCalls)
	if maxConc <= 0 {
		maxConc = 1
	}
	return &HTTPClient{
		apiKey:          cfg.APIKey,
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		model:           cfg.Model,
		maxOutputTokens: cfg.MaxOutputTokens,
		timeouts:        t,
		httpClient:      &http.Client{Timeout: t.HTTPClientTimeout},
		sem:             semaphore.NewWeighted(maxConc),
	}
}

// outcome classifies one attempt.
type outcome int

const (
	outcomeOK outcome = iota
	outcomeRateLimited
	outcomeTransient
	outcomeTerminal
)

// Execute sends one call, retrying rate-limited and transient failures up to
// the configured budget. Policy rejections and truncations surface
// immediately and are never retried.
func (c *HTTPClient) Execute(ctx context.Context, call Call) (*Response, error) {
	if c.apiKey == "" {
		return nil, &ProviderError{Message: "API key not configured"}
	}

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.sem.Release(1)

	if c.timeouts.PerCallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeouts.PerCallTimeout)
		defer cancel()
	}

	body, err := json.Marshal(c.buildWireRequest(call))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var (
		lastErr     error
		rateLimited bool
		lastHint    time.Duration
	)

	for attempt := 0; attempt <= c.timeouts.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.timeouts.Backoff(attempt - 1)
			if rateLimited && lastHint > 0 {
				delay = lastHint
			}
			logging.ProviderDebug("retrying in %v (attempt %d/%d): %v",
				delay, attempt, c.timeouts.MaxRetries, lastErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		resp, result, hint, err := c.do(ctx, body)
		switch result {
		case outcomeOK:
			logging.ProviderDebug("response %s complete (model=%s, tokens=%d)",
				resp.ID, resp.Debug.Model, resp.Usage.TotalTokens)
			return resp, nil
		case outcomeRateLimited:
			rateLimited = true
			lastHint = hint
			lastErr = err
		case outcomeTransient:
			rateLimited = false
			lastErr = err
		case outcomeTerminal:
			return nil, err
		}
	}

	attempts := c.timeouts.MaxRetries + 1
	if rateLimited {
		logging.ProviderWarn("rate-limit budget spent after %d attempts", attempts)
		return nil, &RateLimitError{Attempts: attempts, LastHint: lastHint}
	}
	logging.ProviderWarn("retry budget spent after %d attempts: %v", attempts, lastErr)
	return nil, &TimeoutError{Attempts: attempts, Last: lastErr}
}

func (c *HTTPClient) buildWireRequest(call Call) wireRequest {
	req := wireRequest{
		Model:              c.model,
		Instructions:       call.Instructions,
		Input:              call.Input,
		PreviousResponseID: call.PreviousID,
		MaxOutputTokens:    c.maxOutputTokens,
	}
	if call.Schema != nil {
		req.Text = &wireText{Format: wireTextFormat{
			Type:   "json_schema",
			Name:   call.Schema.Name,
			Schema: call.Schema.Raw,
			Strict: true,
		}}
	}
	return req
}

// do performs one HTTP attempt and classifies the result.
func (c *HTTPClient) do(ctx context.Context, body []byte) (*Response, outcome, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/responses", bytes.NewReader(body))
	if err != nil {
		return nil, outcomeTerminal, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, outcomeTerminal, 0, ctx.Err()
		}
		return nil, outcomeTransient, 0, fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, outcomeTransient, 0, fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case httpResp.StatusCode == http.StatusTooManyRequests:
		hint := retryAfterHint(httpResp)
		return nil, outcomeRateLimited, hint, fmt.Errorf("rate limited (429)")
	case httpResp.StatusCode >= 500:
		return nil, outcomeTransient, 0, fmt.Errorf("server error (%d)", httpResp.StatusCode)
	case httpResp.StatusCode != http.StatusOK:
		return nil, outcomeTerminal, 0, providerErrorFromBody(httpResp.StatusCode, raw)
	}

	var wire wireResponse
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, outcomeTerminal, 0, fmt.Errorf("failed to parse response: %w", err)
	}
	resp, err := c.classify(&wire)
	if err != nil {
		return nil, outcomeTerminal, 0, err
	}
	return resp, outcomeOK, 0, nil
}

// classify converts a decoded wire response into a Response or a typed error.
func (c *HTTPClient) classify(wire *wireResponse) (*Response, error) {
	if wire.Error != nil {
		return nil, &ProviderError{Code: wire.Error.Code, Message: wire.Error.Message}
	}

	switch wire.Status {
	case "incomplete":
		reason := ""
		if wire.IncompleteDetails != nil {
			reason = wire.IncompleteDetails.Reason
		}
		if reason == "max_output_tokens" {
			return nil, &TruncationError{MaxOutputTokens: c.maxOutputTokens}
		}
		return nil, &ProviderError{Message: fmt.Sprintf("incomplete response: %s", reason)}
	case "failed":
		return nil, &ProviderError{Message: "provider reported failure"}
	case "completed":
	default:
		return nil, &ProviderError{Message: fmt.Sprintf("unknown response status %q", wire.Status)}
	}

	var (
		text  string
		trace strings.Builder
	)
	for _, item := range wire.Output {
		switch item.Type {
		case "message":
			for _, content := range item.Content {
				switch content.Type {
				case "refusal":
					return nil, &PolicyRejectionError{Reason: content.Refusal}
				case "output_text":
					text = content.Text
				}
			}
		case "reasoning":
			for _, s := range item.Summary {
				if trace.Len() > 0 {
					trace.WriteString("\n")
				}
				trace.WriteString(s.Text)
			}
		}
	}
	if text == "" {
		return nil, &ProviderError{Message: "completed response carried no output text"}
	}

	return &Response{
		ID:      wire.ID,
		Payload: json.RawMessage(text),
		Usage: Usage{
			InputTokens:     wire.Usage.InputTokens,
			OutputTokens:    wire.Usage.OutputTokens,
			ReasoningTokens: wire.Usage.OutputTokensDetails.ReasoningTokens,
			CachedTokens:    wire.Usage.InputTokensDetails.CachedTokens,
			TotalTokens:     wire.Usage.TotalTokens,
		},
		Debug: Debug{
			Model:          wire.Model,
			CreatedAt:      time.Unix(wire.CreatedAt, 0).UTC(),
			ServiceTier:    wire.ServiceTier,
			ReasoningTrace: trace.String(),
		},
	}, nil
}

// DeleteResponse removes a response server-side. A missing response counts
// as success; anything else is returned for the caller to log.
func (c *HTTPClient) DeleteResponse(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/responses/"+id, nil)
	if err != nil {
		return fmt.Errorf("failed to create delete request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delete request failed: %w", err)
	}
	defer httpResp.Body.Close()
	io.Copy(io.Discard, httpResp.Body)

	if httpResp.StatusCode == http.StatusOK || httpResp.StatusCode == http.StatusNotFound {
		return nil
	}
	return fmt.Errorf("delete failed with status %d", httpResp.StatusCode)
}

// retryAfterHint parses the Retry-After header, in seconds.
func retryAfterHint(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func providerErrorFromBody(status int, raw []byte) error {
	var parsed struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &parsed); err == nil && parsed.Error.Message != "" {
		return &ProviderError{StatusCode: status, Code: parsed.Error.Code, Message: parsed.Error.Message}
	}
	msg := string(raw)
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return &ProviderError{StatusCode: status, Message: msg}
}
