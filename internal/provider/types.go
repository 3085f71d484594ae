package provider

import (
	"encoding/json"
	"time"

	"fabula/internal/schema"
)

// Call is one request against the provider.
type Call struct {
	Instructions string             // System-level guidance
	Input        string             // User-level content
	Schema       *schema.Descriptor // Structured-output constraint
	PreviousID   string             // Chain head for context threading, "" for none
}

// Usage is the token accounting for one response.
type Usage struct {
	InputTokens     int `json:"input_tokens"`
	OutputTokens    int `json:"output_tokens"`
	ReasoningTokens int `json:"reasoning_tokens"`
	CachedTokens    int `json:"cached_tokens"`
	TotalTokens     int `json:"total_tokens"`
}

// Add accumulates another usage record into this one.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.ReasoningTokens += other.ReasoningTokens
	u.CachedTokens += other.CachedTokens
	u.TotalTokens += other.TotalTokens
}

// Debug carries response metadata. Populated unconditionally; callers decide
// what to log.
type Debug struct {
	Model          string
	CreatedAt      time.Time
	ServiceTier    string
	ReasoningTrace string
}

// Response is a successful provider call.
type Response struct {
	ID      string
	Payload json.RawMessage
	Usage   Usage
	Debug   Debug
}

// Wire types for the responses-style HTTP API.

type wireTextFormat struct {
	Type   string          `json:"type"`
	Name   string          `json:"name,omitempty"`
	Schema json.RawMessage `json:"schema,omitempty"`
	Strict bool            `json:"strict,omitempty"`
}

type wireText struct {
	Format wireTextFormat `json:"format"`
}

type wireRequest struct {
	Model              string    `json:"model"`
	Instructions       string    `json:"instructions,omitempty"`
	Input              string    `json:"input"`
	PreviousResponseID string    `json:"previous_response_id,omitempty"`
	MaxOutputTokens    int       `json:"max_output_tokens,omitempty"`
	Text               *wireText `json:"text,omitempty"`
}

type wireContent struct {
	Type    string `json:"type"` // output_text | refusal
	Text    string `json:"text,omitempty"`
	Refusal string `json:"refusal,omitempty"`
}

type wireSummary struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type wireOutputItem struct {
	Type    string        `json:"type"` // message | reasoning
	Content []wireContent `json:"content,omitempty"`
	Summary []wireSummary `json:"summary,omitempty"`
}

type wireUsage struct {
	InputTokens        int `json:"input_tokens"`
	OutputTokens       int `json:"output_tokens"`
	TotalTokens        int `json:"total_tokens"`
	InputTokensDetails struct {
		CachedTokens int `json:"cached_tokens"`
	} `json:"input_tokens_details"`
	OutputTokensDetails struct {
		ReasoningTokens int `json:"reasoning_tokens"`
	} `json:"output_tokens_details"`
}

type wireResponse struct {
	ID                string           `json:"id"`
	Status            string           `json:"status"` // completed | incomplete | failed
	Model             string           `json:"model"`
	CreatedAt         int64            `json:"created_at"`
	ServiceTier       string           `json:"service_tier"`
	Output            []wireOutputItem `json:"output"`
	Usage             wireUsage        `json:"usage"`
	IncompleteDetails *struct {
		Reason string `json:"reason"`
	} `json:"incomplete_details,omitempty"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}
