package session

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

func timestamp(now func() time.Time) string {
	return now().UTC().Format("2006-01-02T15:04:05Z")
}

// AppendEvent durably writes one event record to the session log. A write
// failure always propagates: the log is the recovery mechanism, so losing a
// record silently would break restore.
func AppendEvent(path string, event Event) error {
	if event.Type == "" {
		return fmt.Errorf("event type is empty")
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open session log: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync session log: %w", err)
	}
	return nil
}

// ReadEvents replays every parsable record in order. Malformed lines are
// skipped individually (a crash mid-write at worst loses one trailing record)
// and reported in the second return value as line numbers.
func ReadEvents(path string) ([]Event, []int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open session log: %w", err)
	}
	defer f.Close()

	events := []Event{}
	skipped := []int{}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var event Event
		if err := json.Unmarshal(line, &event); err != nil || event.Type == "" {
			skipped = append(skipped, lineNo)
			continue
		}
		events = append(events, event)
	}
	if err := sc.Err(); err != nil {
		return events, skipped, fmt.Errorf("scan session log: %w", err)
	}
	return events, skipped, nil
}

// WriteJSONAtomic writes a JSON document through a temp-file rename so a
// crash never leaves a half-written summary on disk.
func WriteJSONAtomic(path string, v any) error {
	if path == "" {
		return fmt.Errorf("path is empty")
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	data = append(data, '\n')
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
