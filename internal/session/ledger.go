package session

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// AppendLedger adds one row to the human-readable evidence ledger kept next
// to the event log. The ledger duplicates nothing authoritative (the event
// log is the record); it exists so an assessor can hand over a markdown table
// of what ran without parsing JSONL.
func AppendLedger(path, command, status, notes string) error {
	if err := ensureLedgerHeader(path); err != nil {
		return err
	}
	entry := fmt.Sprintf("| %s | %s | %s | %s |\n",
		escapePipes(time.Now().UTC().Format(time.RFC3339)),
		escapePipes(command),
		escapePipes(status),
		escapePipes(notes),
	)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(entry); err != nil {
		return fmt.Errorf("append ledger: %w", err)
	}
	return nil
}

func ensureLedgerHeader(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	content := "# Evidence Ledger\n\n| Timestamp | Command | Status | Notes |\n| --- | --- | --- | --- |\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write ledger header: %w", err)
	}
	return nil
}

func escapePipes(value string) string {
	return strings.ReplaceAll(strings.ReplaceAll(value, "\n", " "), "|", "\\|")
}
