package repl

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jawbreaker1/pwnpilot/internal/session"
	"github.com/Jawbreaker1/pwnpilot/internal/tokens"
)

func TestCommandTokens(t *testing.T) {
	r, _, out, _ := newTestREPL(t, "", nil)
	r.tracker.Update(tokens.Usage{InputTokens: 1000, OutputTokens: 500})

	_, err := r.handleCommand(context.Background(), "/tokens")
	require.NoError(t, err)

	assert.Contains(t, out.String(), "Input: 1000 tokens")
	assert.Contains(t, out.String(), "Context usage:")
}

func TestCommandCacheWithoutCache(t *testing.T) {
	r, _, out, _ := newTestREPL(t, "", nil)

	_, err := r.handleCommand(context.Background(), "/cache")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "caching is disabled")
}

func TestCommandScopeLifecycle(t *testing.T) {
	r, _, out, _ := newTestREPL(t, "", nil)
	ctx := context.Background()

	_, err := r.handleCommand(ctx, "/scope add example.com")
	require.NoError(t, err)
	_, err = r.handleCommand(ctx, "/scope add https://other.example")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "protocol prefix")

	out.Reset()
	_, err = r.handleCommand(ctx, "/scope")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "example.com")
	assert.Contains(t, out.String(), "https://other.example")

	_, err = r.handleCommand(ctx, "/scope remove example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://other.example"}, r.cls.ScopeTargets())

	_, err = r.handleCommand(ctx, "/scope clear")
	require.NoError(t, err)
	assert.False(t, r.cls.HasScope())
}

func TestCommandExit(t *testing.T) {
	r, _, _, _ := newTestREPL(t, "", nil)

	quit, err := r.handleCommand(context.Background(), "/exit")
	require.NoError(t, err)
	assert.True(t, quit)
}

func TestCommandUnknown(t *testing.T) {
	r, _, out, _ := newTestREPL(t, "", nil)

	quit, err := r.handleCommand(context.Background(), "/frobnicate")
	require.NoError(t, err)
	assert.False(t, quit)
	assert.Contains(t, out.String(), "Unknown command: /frobnicate")
}

func TestCommandSessionsListsCurrent(t *testing.T) {
	r, _, out, _ := newTestREPL(t, "", nil)

	_, err := r.handleCommand(context.Background(), "/sessions")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "* "+r.sess.ID())
}

func TestCommandLoadSwitchesSession(t *testing.T) {
	r, _, out, _ := newTestREPL(t, "y\n", nil)

	other, err := session.New(r.cfg.Session.Dir, "", nil)
	require.NoError(t, err)
	require.NoError(t, other.AddUserMessage("earlier work"))
	require.NoError(t, other.End())
	originalID := r.sess.ID()

	_, err = r.handleCommand(context.Background(), "/load "+other.ID())
	require.NoError(t, err)

	assert.Equal(t, other.ID(), r.sess.ID())
	assert.NotEqual(t, originalID, r.sess.ID())
	require.Len(t, r.sess.Messages(), 1)
	assert.Contains(t, out.String(), "restored")
}

func TestCommandLoadMissingSession(t *testing.T) {
	r, _, out, _ := newTestREPL(t, "", nil)

	_, err := r.handleCommand(context.Background(), "/load nope")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "not found")
}

func TestCommandModeSwitch(t *testing.T) {
	r, _, out, _ := newTestREPL(t, "y\ny\n", nil)
	ctx := context.Background()

	_, err := r.handleCommand(ctx, "/guided")
	require.NoError(t, err)
	assert.True(t, r.guided)
	assert.Contains(t, out.String(), "Switched to guided mode.")
	assert.Contains(t, r.promptText(), "guided")

	_, err = r.handleCommand(ctx, "/tools")
	require.NoError(t, err)
	assert.False(t, r.guided)

	types := eventTypes(t, r.sess)
	count := 0
	for _, typ := range types {
		if typ == session.EventTypeModeSwitch {
			count++
		}
	}
	assert.Equal(t, 2, count)
}

func TestCommandModeSwitchAlreadyActive(t *testing.T) {
	r, _, out, _ := newTestREPL(t, "", nil)

	_, err := r.handleCommand(context.Background(), "/tools")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Already in that mode.")
}

func TestCommandTarget(t *testing.T) {
	r, _, out, _ := newTestREPL(t, "", nil)
	ctx := context.Background()

	_, err := r.handleCommand(ctx, "/target example.com")
	require.NoError(t, err)
	assert.Equal(t, "example.com", r.sess.Metadata().Target)

	out.Reset()
	_, err = r.handleCommand(ctx, "/target")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Current target: example.com")
}

func TestCommandSummarizeCompresses(t *testing.T) {
	r, _, out, _ := newTestREPL(t, "y\n", nil)
	for i := 0; i < 4; i++ {
		require.NoError(t, r.sess.AddUserMessage("step"))
		require.NoError(t, r.sess.AddAssistantBlocks([]session.Block{session.TextBlock("reply")}))
	}

	_, err := r.handleCommand(context.Background(), "/summarize")
	require.NoError(t, err)

	assert.Contains(t, out.String(), "session summary")
	assert.Contains(t, out.String(), "8 messages -> 7 messages")
	require.Len(t, r.sess.Messages(), 7)
	assert.Contains(t, r.sess.Messages()[0].Blocks[0].Text, "session summary")
	assert.Contains(t, eventTypes(t, r.sess), session.EventTypeContextSummarized)
}

func TestCommandSummarizeTooShort(t *testing.T) {
	r, _, out, _ := newTestREPL(t, "", nil)

	_, err := r.handleCommand(context.Background(), "/summarize")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Not enough conversation")
}

func TestCommandPrompt(t *testing.T) {
	r, _, out, _ := newTestREPL(t, "", nil)

	_, err := r.handleCommand(context.Background(), "/prompt")
	require.NoError(t, err)

	assert.Contains(t, out.String(), "Prompt mode: basic")
	assert.Contains(t, out.String(), "built-in fallback")
	assert.Contains(t, out.String(), "Length:")
}

func TestCommandHelp(t *testing.T) {
	r, _, out, _ := newTestREPL(t, "", nil)

	_, err := r.handleCommand(context.Background(), "/help")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "/autonomous")
	assert.Contains(t, out.String(), "/summarize")
}
