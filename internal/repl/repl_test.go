package repl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jawbreaker1/pwnpilot/internal/config"
	"github.com/Jawbreaker1/pwnpilot/internal/gateway"
	"github.com/Jawbreaker1/pwnpilot/internal/provider"
	"github.com/Jawbreaker1/pwnpilot/internal/session"
	"github.com/Jawbreaker1/pwnpilot/internal/tokens"
)

// scriptProvider plays back canned responses in order.
type scriptProvider struct {
	responses []provider.ChatResponse
	calls     int
	summary   string
	requests  []provider.ChatRequest
}

func (p *scriptProvider) Name() string    { return "script" }
func (p *scriptProvider) ModelID() string { return "claude-3-5-sonnet-latest" }

func (p *scriptProvider) Chat(_ context.Context, req provider.ChatRequest) (provider.ChatResponse, error) {
	p.requests = append(p.requests, req)
	if p.calls >= len(p.responses) {
		return provider.ChatResponse{}, fmt.Errorf("unexpected model call %d", p.calls+1)
	}
	resp := p.responses[p.calls]
	p.calls++
	return resp, nil
}

func (p *scriptProvider) Summarize(context.Context, []session.Message, int) (string, error) {
	return p.summary, nil
}

func (p *scriptProvider) SupportsCaching() bool       { return false }
func (p *scriptProvider) SupportsStreaming() bool     { return false }
func (p *scriptProvider) SupportsTokenTracking() bool { return true }

func textResponse(text string) provider.ChatResponse {
	return provider.ChatResponse{
		Blocks: []session.Block{session.TextBlock(text)},
		Usage:  tokens.Usage{InputTokens: 100, OutputTokens: 50},
	}
}

func toolResponse(id, name, command string) provider.ChatResponse {
	return provider.ChatResponse{
		Blocks: []session.Block{
			session.TextBlock("Running " + name),
			session.ToolUseBlock(id, name, map[string]any{"command": command}),
		},
		Usage: tokens.Usage{InputTokens: 100, OutputTokens: 50},
	}
}

func newTestREPL(t *testing.T, input string, responses []provider.ChatResponse) (*REPL, *scriptProvider, *bytes.Buffer, *int) {
	t.Helper()

	execCount := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != "/api/command" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		execCount++
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"stdout":  "scan complete",
			"output":  "scan complete",
		})
	}))
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.Session.Dir = t.TempDir()
	cfg.Prompt.Dir = t.TempDir()
	cfg.Autonomous.IterationDelay = time.Millisecond

	sess, err := session.New(cfg.Session.Dir, "", nil)
	require.NoError(t, err)

	prov := &scriptProvider{responses: responses, summary: "session summary"}
	out := &bytes.Buffer{}

	r, err := New(Options{
		Config:   cfg,
		Session:  sess,
		Provider: prov,
		Gateway:  gateway.New(srv.URL, nil, 0, 0, nil),
		Tools:    []provider.ToolSpec{{Name: "nmap"}, {Name: "nikto"}},
		In:       strings.NewReader(input),
		Out:      out,
	})
	require.NoError(t, err)
	return r, prov, out, &execCount
}

func eventTypes(t *testing.T, m *session.Manager) []string {
	t.Helper()
	events, _, err := session.ReadEvents(m.LogPath())
	require.NoError(t, err)
	types := make([]string, 0, len(events))
	for _, e := range events {
		types = append(types, e.Type)
	}
	return types
}

func TestRunTextExchange(t *testing.T) {
	r, prov, out, _ := newTestREPL(t, "hello\n/exit\n", []provider.ChatResponse{
		textResponse("Hi, what is the target?"),
	})

	require.NoError(t, r.Run(context.Background()))

	assert.Equal(t, 1, prov.calls)
	assert.Contains(t, out.String(), "Hi, what is the target?")
	require.Len(t, r.sess.Messages(), 2)
	assert.Equal(t, session.RoleUser, r.sess.Messages()[0].Role)
	assert.Equal(t, session.RoleAssistant, r.sess.Messages()[1].Role)
	assert.Contains(t, eventTypes(t, r.sess), session.EventTypeTokenUsage)
}

func TestRunApprovedToolExecution(t *testing.T) {
	r, prov, out, execCount := newTestREPL(t, "scan the target\ny\n/exit\n", []provider.ChatResponse{
		toolResponse("toolu_01", "nmap", "nmap -sV example.com"),
		textResponse("Port 80 is open."),
	})

	require.NoError(t, r.Run(context.Background()))

	assert.Equal(t, 2, prov.calls)
	assert.Equal(t, 1, *execCount)
	assert.Contains(t, out.String(), "Proposed tool: nmap")
	assert.Contains(t, out.String(), "Tool output:")
	assert.Contains(t, out.String(), "Port 80 is open.")

	// user, assistant tool request, tool result, final assistant
	require.Len(t, r.sess.Messages(), 4)
	assert.True(t, r.sess.Messages()[2].HasToolResult())
	assert.Contains(t, eventTypes(t, r.sess), session.EventTypeToolResult)
}

func TestRunDeniedToolFeedsFailureBack(t *testing.T) {
	r, _, out, execCount := newTestREPL(t, "scan the target\nn\n/exit\n", []provider.ChatResponse{
		toolResponse("toolu_01", "nmap", "nmap -sV example.com"),
		textResponse("Understood, standing by."),
	})

	require.NoError(t, r.Run(context.Background()))

	assert.Equal(t, 0, *execCount)
	assert.Contains(t, out.String(), "Denied.")
	assert.Contains(t, eventTypes(t, r.sess), session.EventTypeToolDenied)

	// The denial still answers the tool id so the conversation stays valid.
	result := r.sess.Messages()[2].Blocks[0]
	assert.Equal(t, session.BlockToolResult, result.Type)
	assert.Contains(t, result.Content, "User denied execution")
}

func TestRunUnknownToolRejected(t *testing.T) {
	r, _, out, execCount := newTestREPL(t, "scan\n/exit\n", []provider.ChatResponse{
		toolResponse("toolu_01", "metasploit", "msfconsole"),
		textResponse("Trying something else."),
	})

	require.NoError(t, r.Run(context.Background()))

	assert.Equal(t, 0, *execCount)
	assert.Contains(t, out.String(), "Unknown tool requested: metasploit")
	assert.Contains(t, eventTypes(t, r.sess), session.EventTypeToolInvalid)
}

func TestRunMultiToolWarnsAndAnswersExtras(t *testing.T) {
	multi := provider.ChatResponse{
		Blocks: []session.Block{
			session.ToolUseBlock("toolu_01", "nmap", map[string]any{"command": "nmap example.com"}),
			session.ToolUseBlock("toolu_02", "nikto", map[string]any{"command": "nikto -h example.com"}),
		},
		Usage: tokens.Usage{InputTokens: 100, OutputTokens: 50},
	}
	r, _, out, execCount := newTestREPL(t, "scan\ny\n/exit\n", []provider.ChatResponse{
		multi,
		textResponse("Done."),
	})

	require.NoError(t, r.Run(context.Background()))

	assert.Equal(t, 1, *execCount)
	assert.Contains(t, out.String(), "executing only the first")
	assert.Contains(t, eventTypes(t, r.sess), session.EventTypeToolMultiRequest)

	// Both tool ids got answers: one real result, one not-executed notice.
	var resultIDs []string
	for _, m := range r.sess.Messages() {
		for _, b := range m.Blocks {
			if b.Type == session.BlockToolResult {
				resultIDs = append(resultIDs, b.ToolUseID)
			}
		}
	}
	assert.ElementsMatch(t, []string{"toolu_01", "toolu_02"}, resultIDs)

	// Both answers live in one user message, and a restart keeps them.
	restored, err := session.Restore(r.sess.Dir(), r.sess.ID(), nil)
	require.NoError(t, err)
	assert.Len(t, restored.Messages(), len(r.sess.Messages()))
}

func TestMarkerWithToolRequestStillExecutes(t *testing.T) {
	mixed := provider.ChatResponse{
		Blocks: []session.Block{
			session.TextBlock("Scanning first. " + session.UserInputMarker),
			session.ToolUseBlock("toolu_01", "nmap", map[string]any{"command": "nmap -sV example.com"}),
		},
		Usage: tokens.Usage{InputTokens: 100, OutputTokens: 50},
	}
	r, prov, _, execCount := newTestREPL(t, "y\n", []provider.ChatResponse{
		mixed,
		textResponse("Port 80 is open."),
	})

	require.NoError(t, r.sess.AddUserMessage("scan"))
	require.NoError(t, r.runExchange(context.Background()))

	// The marker must not preempt the tool: its id is answered before
	// control returns to the operator.
	assert.Equal(t, 1, *execCount)
	assert.Equal(t, 2, prov.calls)
	require.Len(t, r.sess.Messages(), 4)
	assert.True(t, r.sess.Messages()[2].HasToolResult())
}

func TestTextTurnWithoutMarkerPrintsNotice(t *testing.T) {
	r, _, out, _ := newTestREPL(t, "", []provider.ChatResponse{textResponse("All set.")})
	require.NoError(t, r.sess.AddUserMessage("status"))
	require.NoError(t, r.runExchange(context.Background()))
	assert.Contains(t, out.String(), "did not explicitly request input")

	r, _, out, _ = newTestREPL(t, "", []provider.ChatResponse{
		textResponse("Which host? " + session.UserInputMarker),
	})
	require.NoError(t, r.sess.AddUserMessage("scan"))
	require.NoError(t, r.runExchange(context.Background()))
	assert.NotContains(t, out.String(), "did not explicitly request input")
}

func TestRunStripsUserInputMarker(t *testing.T) {
	r, _, out, _ := newTestREPL(t, "hello\n/exit\n", []provider.ChatResponse{
		{
			Blocks: []session.Block{session.TextBlock("What is the target?\n" + session.UserInputMarker)},
			Usage:  tokens.Usage{InputTokens: 10, OutputTokens: 5},
		},
	})

	require.NoError(t, r.Run(context.Background()))

	assert.Contains(t, out.String(), "What is the target?")
	assert.NotContains(t, out.String(), session.UserInputMarker)
	for _, b := range r.sess.Messages()[1].Blocks {
		assert.NotContains(t, b.Text, session.UserInputMarker)
	}
}

func TestGuidedModeOffersNoTools(t *testing.T) {
	r, prov, _, _ := newTestREPL(t, "suggest a scan\n/exit\n", []provider.ChatResponse{
		textResponse("Command to run: nmap -sV example.com"),
	})
	r.guided = true
	require.NoError(t, r.reloadPrompt())

	require.NoError(t, r.Run(context.Background()))

	require.Len(t, prov.requests, 1)
	assert.Empty(t, prov.requests[0].Tools)
}

func TestEOFEndsSession(t *testing.T) {
	r, _, out, _ := newTestREPL(t, "", nil)

	require.NoError(t, r.Run(context.Background()))

	assert.Contains(t, out.String(), "Goodbye.")
	assert.Contains(t, eventTypes(t, r.sess), session.EventTypeSessionEnd)
}
