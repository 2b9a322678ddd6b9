package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"

	"github.com/driftguard/driftguard/pkg/types"
)

var (
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	anomalyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	unknownStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	headStyle    = lipgloss.NewStyle().Bold(true)
)

// renderStatus colors a decision or collect status for terminal output.
func renderStatus(s string) string {
	switch s {
	case string(types.StatusOK), string(types.CollectSuccess):
		return okStyle.Render(s)
	case string(types.StatusWarning):
		return warnStyle.Render(s)
	case string(types.StatusAnomaly), string(types.CollectFailed):
		return anomalyStyle.Render(s)
	default:
		return unknownStyle.Render(s)
	}
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printf(format string, args ...any) {
	fmt.Fprintf(os.Stdout, format, args...)
}
