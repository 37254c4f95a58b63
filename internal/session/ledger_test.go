package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendLedgerCreatesHeaderAndRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.md")

	require.NoError(t, AppendLedger(path, "nmap -sV example.com", "executed", "initial scan"))
	require.NoError(t, AppendLedger(path, "nikto -h example.com", "denied", ""))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "# Evidence Ledger")
	assert.Contains(t, content, "| Timestamp | Command | Status | Notes |")
	assert.Contains(t, content, "nmap -sV example.com")
	assert.Contains(t, content, "denied")
}

func TestAppendLedgerEscapesPipes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.md")

	require.NoError(t, AppendLedger(path, "echo a|b", "executed", "multi\nline notes"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `a\|b`)
	assert.Contains(t, string(data), "multi line notes")
}
