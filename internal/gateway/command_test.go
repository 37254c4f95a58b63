package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildCommand(t *testing.T) {
	cases := []struct {
		name   string
		tool   string
		params map[string]any
		want   string
	}{
		{
			name:   "literal command wins",
			tool:   "nmap",
			params: map[string]any{"command": "nmap -sV -p- example.com", "target": "ignored.com"},
			want:   "nmap -sV -p- example.com",
		},
		{
			name:   "nikto host flag",
			tool:   "nikto",
			params: map[string]any{"target": "example.com"},
			want:   "nikto -h example.com",
		},
		{
			name:   "nikto options already carry host",
			tool:   "nikto",
			params: map[string]any{"target": "example.com", "options": "-h example.com -ssl"},
			want:   "nikto -h example.com -ssl",
		},
		{
			name:   "nikto prefers explicit url over target",
			tool:   "nikto",
			params: map[string]any{"url": "https://example.com", "target": "other.com"},
			want:   "nikto -h https://example.com",
		},
		{
			name:   "sqlmap url batch crawl",
			tool:   "sqlmap",
			params: map[string]any{"url": "http://example.com/item?id=1", "batch": true, "crawl": true},
			want:   "sqlmap -u http://example.com/item?id=1 --batch --crawl=1",
		},
		{
			name:   "sqlmap batch false omitted",
			tool:   "sqlmap",
			params: map[string]any{"target": "http://example.com", "batch": false},
			want:   "sqlmap -u http://example.com",
		},
		{
			name:   "nuclei with templates",
			tool:   "nuclei",
			params: map[string]any{"url": "http://example.com", "templates": "cves/"},
			want:   "nuclei -u http://example.com -t cves/",
		},
		{
			name:   "wafw00f positional host",
			tool:   "wafw00f",
			params: map[string]any{"target": "example.com"},
			want:   "wafw00f example.com",
		},
		{
			name:   "generic fallback",
			tool:   "subfinder",
			params: map[string]any{"target": "example.com", "options": "-silent"},
			want:   "subfinder example.com -silent",
		},
		{
			name:   "bare tool name",
			tool:   "whoami",
			params: nil,
			want:   "whoami",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, BuildCommand(tc.tool, tc.params))
		})
	}
}
