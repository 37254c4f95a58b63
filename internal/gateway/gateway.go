// Package gateway is the client for the tool execution server: the HTTP
// service that actually runs security tooling on behalf of the assistant.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Jawbreaker1/pwnpilot/internal/toolcache"
)

const (
	// HealthTimeout allows for servers that probe a large tool inventory
	// before answering.
	HealthTimeout = 30 * time.Second
	// ExecTimeout bounds one tool execution end to end.
	ExecTimeout = 300 * time.Second
)

// Result is the normalized outcome of one tool execution. A transport or
// server failure is still a Result; the conversation loop feeds it back to
// the model instead of crashing the session.
type Result struct {
	Success         bool   `json:"success"`
	Output          string `json:"output,omitempty"`
	Stdout          string `json:"stdout,omitempty"`
	Stderr          string `json:"stderr,omitempty"`
	Error           string `json:"error,omitempty"`
	Message         string `json:"message,omitempty"`
	CommandExecuted string `json:"command_executed,omitempty"`
}

type healthResponse struct {
	Status      string          `json:"status"`
	ToolsStatus map[string]bool `json:"tools_status"`
}

// Client talks to one tool execution server and caches successful results.
type Client struct {
	baseURL  string
	http     *http.Client
	cache    *toolcache.Cache[Result]
	maxTools int
	log      *zap.Logger
}

// New builds a client. A non-positive timeout falls back to ExecTimeout.
func New(baseURL string, cache *toolcache.Cache[Result], maxTools int, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = ExecTimeout
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: timeout},
		cache:    cache,
		maxTools: maxTools,
		log:      logger,
	}
}

func (c *Client) BaseURL() string               { return c.baseURL }
func (c *Client) Cache() *toolcache.Cache[Result] { return c.cache }

// Health checks the server and returns the per-tool availability map.
func (c *Client) Health(ctx context.Context) (map[string]bool, error) {
	ctx, cancel := context.WithTimeout(ctx, HealthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, fmt.Errorf("build health request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tool server not reachable at %s/health: %w", c.baseURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tool server health: status %d", resp.StatusCode)
	}
	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, fmt.Errorf("decode health response: %w", err)
	}
	return health.ToolsStatus, nil
}

// toolInputSchema is shared by every discovered tool: the server accepts a
// full command line, or a target plus options it assembles itself.
func toolInputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type":        "string",
				"description": "Full command line to execute (recommended)",
			},
			"target": map[string]any{
				"type":        "string",
				"description": "Target URL, IP, or domain",
			},
			"options": map[string]any{
				"type":        "string",
				"description": "Additional command options",
			},
		},
	}
}

// ToolDef is a discovered tool ready to offer to the model.
type ToolDef struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// FetchTools derives the offered tool list from the health map: one entry per
// available tool, optionally capped.
func (c *Client) FetchTools(ctx context.Context) ([]ToolDef, error) {
	status, err := c.Health(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(status))
	for name, ok := range status {
		if ok {
			names = append(names, name)
		}
	}
	// Health maps have no inherent order; sort for a stable tool list.
	sort.Strings(names)

	tools := make([]ToolDef, 0, len(names))
	for _, name := range names {
		tools = append(tools, ToolDef{
			Name:        name,
			Description: fmt.Sprintf("Execute %s via the tool server", name),
			InputSchema: toolInputSchema(),
		})
	}
	if c.maxTools > 0 && len(tools) > c.maxTools {
		c.log.Warn("tool list capped", zap.Int("limit", c.maxTools), zap.Int("available", len(tools)))
		tools = tools[:c.maxTools]
	}
	return tools, nil
}

// Execute runs one tool invocation, consulting the cache first. The returned
// bool reports a cache hit. Failures are returned as unsuccessful Results,
// never cached, so transient errors retry on the next identical request.
func (c *Client) Execute(ctx context.Context, toolName string, params map[string]any) (Result, bool) {
	if c.cache != nil {
		if cached, ok := c.cache.Get(toolName, params); ok {
			return cached, true
		}
	}

	command := BuildCommand(toolName, params)
	result := c.run(ctx, command)
	result.CommandExecuted = command

	if c.cache != nil && result.Success {
		c.cache.Set(toolName, params, result)
	}
	return result, false
}

func (c *Client) run(ctx context.Context, command string) Result {
	payload, err := json.Marshal(map[string]string{"command": command})
	if err != nil {
		return Result{Success: false, Error: err.Error(), Message: "Failed to encode command: " + command}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/command", bytes.NewReader(payload))
	if err != nil {
		return Result{Success: false, Error: err.Error(), Message: "Failed to build request for command: " + command}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{Success: false, Error: err.Error(), Message: "Failed to execute command: " + command}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{Success: false, Error: err.Error(), Message: "Failed to read response for command: " + command}
	}
	if resp.StatusCode != http.StatusOK {
		return Result{
			Success: false,
			Error:   fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))),
			Message: "Failed to execute command: " + command,
		}
	}
	var result Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return Result{Success: false, Error: err.Error(), Message: "Failed to decode response for command: " + command}
	}
	return result
}
