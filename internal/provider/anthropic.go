package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/Jawbreaker1/pwnpilot/internal/session"
	"github.com/Jawbreaker1/pwnpilot/internal/tokens"
)

const (
	anthropicBaseURL    = "https://api.anthropic.com"
	anthropicAPIVersion = "2023-06-01"
)

// Anthropic talks to the Messages API directly. Tool use arrives as native
// tool_use content blocks, so no adaptation layer is needed.
type Anthropic struct {
	baseURL string
	apiKey  string
	modelID string
	http    *http.Client
}

func NewAnthropic(apiKey, modelID string) *Anthropic {
	return &Anthropic{
		baseURL: anthropicBaseURL,
		apiKey:  apiKey,
		modelID: modelID,
		http: &http.Client{
			Timeout: 120 * time.Second,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   5 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				ForceAttemptHTTP2:   true,
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
	}
}

func (a *Anthropic) Name() string                { return "Anthropic" }
func (a *Anthropic) ModelID() string             { return a.modelID }
func (a *Anthropic) SupportsCaching() bool       { return true }
// SupportsStreaming is false: responses are read in full over plain HTTP.
func (a *Anthropic) SupportsStreaming() bool     { return false }
func (a *Anthropic) SupportsTokenTracking() bool { return true }

type anthropicSystemBlock struct {
	Type         string          `json:"type"`
	Text         string          `json:"text"`
	CacheControl json.RawMessage `json:"cache_control,omitempty"`
}

type anthropicTool struct {
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	InputSchema  map[string]any  `json:"input_schema"`
	CacheControl json.RawMessage `json:"cache_control,omitempty"`
}

type anthropicRequest struct {
	Model     string                 `json:"model"`
	MaxTokens int                    `json:"max_tokens"`
	System    []anthropicSystemBlock `json:"system,omitempty"`
	Messages  []session.Message      `json:"messages"`
	Tools     []anthropicTool        `json:"tools,omitempty"`
}

type anthropicResponse struct {
	Content    []session.Block `json:"content"`
	StopReason string          `json:"stop_reason"`
	Usage      tokens.Usage    `json:"usage"`
	Error      *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

var ephemeralCache = json.RawMessage(`{"type":"ephemeral"}`)

func (a *Anthropic) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	if len(req.Messages) == 0 {
		return ChatResponse{}, fmt.Errorf("chat requires at least one message")
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	body := anthropicRequest{
		Model:     a.modelID,
		MaxTokens: maxTokens,
		Messages:  req.Messages,
	}
	if req.System != "" {
		block := anthropicSystemBlock{Type: "text", Text: req.System}
		if req.EnableCaching {
			block.CacheControl = ephemeralCache
		}
		body.System = []anthropicSystemBlock{block}
	}
	for i, tool := range req.Tools {
		t := anthropicTool{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.InputSchema,
		}
		// Cache marker on the last tool covers the whole tool prefix.
		if req.EnableCaching && i == len(req.Tools)-1 {
			t.CacheControl = ephemeralCache
		}
		body.Tools = append(body.Tools, t)
	}

	var parsed anthropicResponse
	if err := a.post(ctx, "/v1/messages", body, &parsed); err != nil {
		return ChatResponse{}, err
	}
	return ChatResponse{
		Blocks:     parsed.Content,
		Usage:      parsed.Usage,
		StopReason: parsed.StopReason,
	}, nil
}

func (a *Anthropic) Summarize(ctx context.Context, messages []session.Message, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	req := ChatRequest{
		System:    summarizeSystem,
		Messages:  append(append([]session.Message{}, messages...), session.UserTextMessage(summarizePrompt)),
		MaxTokens: maxTokens,
	}
	resp, err := a.Chat(ctx, req)
	if err != nil {
		return "", err
	}
	parts := []string{}
	for _, block := range resp.Blocks {
		if block.Type == session.BlockText && block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n")), nil
}

type anthropicModelList struct {
	Data []ModelInfo `json:"data"`
}

// ListAnthropicModels queries the models endpoint for the selection menu.
func ListAnthropicModels(ctx context.Context, apiKey string) ([]ModelInfo, error) {
	return NewAnthropic(apiKey, "").listModels(ctx)
}

func (a *Anthropic) listModels(ctx context.Context) ([]ModelInfo, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/v1/models", nil)
	if err != nil {
		return nil, fmt.Errorf("build models request: %w", err)
	}
	a.setHeaders(httpReq)
	resp, err := a.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read models response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list models: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var list anthropicModelList
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("decode models response: %w", err)
	}
	return list.Data, nil
}

func (a *Anthropic) post(ctx context.Context, path string, body any, out *anthropicResponse) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	a.setHeaders(httpReq)

	resp, err := a.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("model request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("model request: rate limit exceeded (429)")
	}
	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(raw))
		if out.Error != nil {
			msg = out.Error.Message
		}
		return fmt.Errorf("model request: status %d: %s", resp.StatusCode, msg)
	}
	return nil
}

func (a *Anthropic) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", anthropicAPIVersion)
}
