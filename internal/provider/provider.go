// Package provider abstracts the AI model backends behind one interface so
// the conversation loop never knows which API it is talking to.
package provider

import (
	"context"
	"strings"

	"github.com/Jawbreaker1/pwnpilot/internal/session"
	"github.com/Jawbreaker1/pwnpilot/internal/tokens"
)

// ToolSpec describes one tool offered to the model.
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// ChatRequest carries one conversation turn to a backend.
type ChatRequest struct {
	System        string
	Messages      []session.Message
	Tools         []ToolSpec
	MaxTokens     int
	EnableCaching bool
}

// ChatResponse is the normalized model reply. Backends that cannot report
// usage leave it zero.
type ChatResponse struct {
	Blocks     []session.Block
	Usage      tokens.Usage
	StopReason string
}

// ModelInfo describes one selectable model.
type ModelInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Provider is one AI backend. Implementations normalize their wire formats
// into the shared content-block model.
type Provider interface {
	Name() string
	ModelID() string
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
	Summarize(ctx context.Context, messages []session.Message, maxTokens int) (string, error)
	SupportsCaching() bool
	SupportsStreaming() bool
	SupportsTokenTracking() bool
}

// summarizePrompt is appended as the final user turn when compressing a
// conversation.
const summarizePrompt = "Summarize this penetration testing session concisely. Include:\n" +
	"1. Target(s) scanned or tested\n" +
	"2. Tools used and key findings\n" +
	"3. Vulnerabilities or issues discovered\n" +
	"4. Current status and next steps\n\n" +
	"Be extremely concise - aim for 200-300 words maximum. " +
	"Focus only on actionable findings and critical information."

const summarizeSystem = "You are a security assistant that creates concise summaries of penetration testing sessions."

// rateLimitMarkers are the substrings backends embed in throttling errors.
var rateLimitMarkers = []string{
	"rate limit",
	"rate_limit",
	"too many requests",
	"throttl",
	"429",
	"overloaded",
}

// IsRateLimited reports whether an error looks like backend throttling, which
// callers treat as retryable.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range rateLimitMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
