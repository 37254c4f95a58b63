package provider

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/Jawbreaker1/pwnpilot/internal/session"
)

const DefaultOllamaURL = "http://localhost:11434"

// Ollama adapts a local model with no native tool support. Tools are
// described in the system prompt and the model is asked to emit tool requests
// as JSON code blocks, which are extracted back into tool_use blocks.
type Ollama struct {
	baseURL string
	modelID string
	http    *http.Client
	newID   func() string
}

func NewOllama(baseURL, modelID string) *Ollama {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	return &Ollama{
		baseURL: strings.TrimRight(baseURL, "/"),
		modelID: modelID,
		http:    &http.Client{Timeout: 120 * time.Second},
		newID: func() string {
			return "ollama-" + ulid.MustNew(ulid.Now(), rand.Reader).String()
		},
	}
}

func (o *Ollama) Name() string                { return "Local (Ollama)" }
func (o *Ollama) ModelID() string             { return o.modelID }
func (o *Ollama) SupportsCaching() bool       { return false }
func (o *Ollama) SupportsStreaming() bool     { return false }
func (o *Ollama) SupportsTokenTracking() bool { return false }

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Error   string        `json:"error,omitempty"`
}

func (o *Ollama) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	if len(req.Messages) == 0 {
		return ChatResponse{}, fmt.Errorf("chat requires at least one message")
	}
	system := buildOllamaSystemPrompt(req.System, req.Tools)
	content, err := o.chat(ctx, flattenMessages(system, req.Messages))
	if err != nil {
		return ChatResponse{}, err
	}

	toolBlocks, cleaned := o.extractToolBlocks(content)
	blocks := []session.Block{}
	if cleaned != "" {
		blocks = append(blocks, session.TextBlock(cleaned))
	}
	blocks = append(blocks, toolBlocks...)

	return ChatResponse{Blocks: blocks, StopReason: "end_turn"}, nil
}

func (o *Ollama) Summarize(ctx context.Context, messages []session.Message, maxTokens int) (string, error) {
	withPrompt := append(append([]session.Message{}, messages...), session.UserTextMessage(summarizePrompt))
	content, err := o.chat(ctx, flattenMessages(summarizeSystem, withPrompt))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(content), nil
}

func (o *Ollama) chat(ctx context.Context, messages []ollamaMessage) (string, error) {
	payload, err := json.Marshal(ollamaChatRequest{
		Model:    o.modelID,
		Messages: messages,
		Stream:   false,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama request: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var parsed ollamaChatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("ollama: %s", parsed.Error)
	}
	return parsed.Message.Content, nil
}

// buildOllamaSystemPrompt appends tool definitions and the request protocol
// the extractor understands.
func buildOllamaSystemPrompt(system string, tools []ToolSpec) string {
	if len(tools) == 0 {
		return system
	}
	lines := make([]string, 0, len(tools))
	for _, tool := range tools {
		if tool.Name == "" {
			continue
		}
		lines = append(lines, strings.TrimSpace(fmt.Sprintf("- %s: %s", tool.Name, tool.Description)))
	}
	return system + "\n\nAvailable tools:\n" + strings.Join(lines, "\n") + "\n\n" +
		"To request a tool, output a JSON object in a code block with this format:\n" +
		"```json\n" +
		`{"tool_use": {"name": "TOOL_NAME", "arguments": {"key": "value"}}}` + "\n" +
		"```\n" +
		"You may include normal text, but tool requests must follow this format and use only listed tools. " +
		"Request only one tool at a time and wait for its output before proposing another."
}

// flattenMessages degrades structured content blocks to plain text, which is
// all the backend accepts.
func flattenMessages(system string, messages []session.Message) []ollamaMessage {
	out := []ollamaMessage{}
	if system != "" {
		out = append(out, ollamaMessage{Role: "system", Content: system})
	}
	for _, msg := range messages {
		parts := []string{}
		for _, block := range msg.Blocks {
			switch block.Type {
			case session.BlockText:
				if block.Text != "" {
					parts = append(parts, block.Text)
				}
			case session.BlockToolResult:
				parts = append(parts, "Tool result: "+block.Content)
			case session.BlockToolUse:
				raw, _ := json.Marshal(block.Input)
				parts = append(parts, fmt.Sprintf("Tool request: %s %s", block.Name, raw))
			}
		}
		out = append(out, ollamaMessage{Role: msg.Role, Content: strings.Join(parts, "\n")})
	}
	return out
}

var jsonCodeBlockPattern = regexp.MustCompile("(?is)```json\\s*(.*?)```")

// extractToolBlocks pulls tool requests out of the model's text. Code blocks
// that fail to parse or don't describe a tool request stay in the text
// untouched. When no code block yields a request, a reply that is one bare
// JSON object is tried as a fallback.
func (o *Ollama) extractToolBlocks(content string) ([]session.Block, string) {
	if content == "" {
		return nil, ""
	}
	blocks := []session.Block{}
	cleaned := content

	for _, match := range jsonCodeBlockPattern.FindAllStringSubmatch(content, -1) {
		block, ok := o.normalizeToolRequest([]byte(strings.TrimSpace(match[1])))
		if !ok {
			continue
		}
		blocks = append(blocks, block)
		cleaned = strings.TrimSpace(strings.Replace(cleaned, match[0], "", 1))
	}

	if len(blocks) == 0 {
		stripped := strings.TrimSpace(content)
		if strings.HasPrefix(stripped, "{") && strings.HasSuffix(stripped, "}") {
			if block, ok := o.normalizeToolRequest([]byte(stripped)); ok {
				return []session.Block{block}, ""
			}
		}
	}
	return blocks, cleaned
}

type ollamaToolRequest struct {
	ToolUse *struct {
		Name      string         `json:"name"`
		ToolName  string         `json:"tool_name"`
		Arguments map[string]any `json:"arguments"`
		Input     map[string]any `json:"input"`
	} `json:"tool_use"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
	Input     map[string]any `json:"input"`
}

func (o *Ollama) normalizeToolRequest(raw []byte) (session.Block, bool) {
	var req ollamaToolRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return session.Block{}, false
	}
	name := req.Name
	args := req.Arguments
	if args == nil {
		args = req.Input
	}
	if req.ToolUse != nil {
		name = req.ToolUse.Name
		if name == "" {
			name = req.ToolUse.ToolName
		}
		args = req.ToolUse.Arguments
		if args == nil {
			args = req.ToolUse.Input
		}
	}
	if name == "" {
		return session.Block{}, false
	}
	if args == nil {
		args = map[string]any{}
	}
	return session.ToolUseBlock(o.newID(), name, args), true
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// ListOllamaModels queries the local server's tag list for the selection menu.
func ListOllamaModels(ctx context.Context, baseURL string) ([]ModelInfo, error) {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("build tags request: %w", err)
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("list ollama models: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list ollama models: status %d", resp.StatusCode)
	}
	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("decode tags response: %w", err)
	}
	models := make([]ModelInfo, 0, len(tags.Models))
	for _, m := range tags.Models {
		if m.Name != "" {
			models = append(models, ModelInfo{ID: m.Name, Name: m.Name})
		}
	}
	return models, nil
}
