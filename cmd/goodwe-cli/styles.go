package main

import "github.com/charmbracelet/lipgloss"

// Color palette for CLI output
var (
	successColor = lipgloss.Color("#43BF6D") // Green - valid, OK
	errorColor   = lipgloss.Color("#FF5555") // Red - invalid, failures
	accentColor  = lipgloss.Color("#7D56F4") // Purple - headers
	mutedColor   = lipgloss.Color("#626262") // Gray - hints
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(accentColor).
			Bold(true)

	valueStyle = lipgloss.NewStyle().
			Bold(true)

	okStyle = lipgloss.NewStyle().
		Foreground(successColor).
		Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(errorColor).
			Bold(true)

	hintStyle = lipgloss.NewStyle().
			Foreground(mutedColor)
)
