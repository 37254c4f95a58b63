package repl

import (
	"fmt"
	"io"
	"strings"
)

// readLine prints the prompt and reads one trimmed line. io.EOF is passed
// through so the caller can treat it as an exit request.
func (r *REPL) readLine(prompt string) (string, error) {
	if prompt != "" {
		fmt.Fprint(r.out, prompt)
	}
	line, err := r.in.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(line), err
}

// confirm asks a yes/no question with no as the default.
func (r *REPL) confirm(prompt string) (bool, error) {
	for {
		line, err := r.readLine(fmt.Sprintf("%s [y/N]: ", prompt))
		if err != nil && err != io.EOF {
			return false, err
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		if answer == "" || answer == "n" || answer == "no" {
			return false, nil
		}
		if answer == "y" || answer == "yes" {
			return true, nil
		}
		if err == io.EOF {
			return false, nil
		}
	}
}

// readMultiline collects lines until a line containing only END. Used for
// pasting tool output in guided mode.
func (r *REPL) readMultiline() (string, error) {
	fmt.Fprintln(r.out, "Paste content below. Finish with a line containing only END.")
	lines := []string{}
	for {
		line, err := r.in.ReadString('\n')
		trimmed := strings.TrimRight(line, "\r\n")
		if strings.TrimSpace(trimmed) == "END" {
			break
		}
		if trimmed != "" || err == nil {
			lines = append(lines, trimmed)
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return "", err
		}
	}
	return strings.TrimSpace(strings.Join(lines, "\n")), nil
}
