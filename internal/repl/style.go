package repl

import "github.com/charmbracelet/lipgloss"

// Terminal styles for the interactive loop. Kept minimal so output stays
// readable when piped to a file.
var (
	promptStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true)
	headerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("5")).Bold(true)
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	cachedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	sectionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
)

const ruleLine = "============================================================"
const thinLine = "------------------------------------------------------------"
