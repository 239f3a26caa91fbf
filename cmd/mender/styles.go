package main

import "github.com/charmbracelet/lipgloss"

// Centralized style definitions for terminal output.
var (
	// Notifications.
	infoStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("6")) // cyan
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1")) // red

	// Chat.
	userPromptStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("4")) // blue
	answerBlockStyle = lipgloss.NewStyle().PaddingLeft(1)

	// Diff lines.
	diffAddStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("2")) // green
	diffDelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1")) // red
	diffHunkStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("5")) // magenta

	// Status.
	upStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("2"))
	downStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("1"))

	// Spinner / animation styles.
	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("5")) // magenta

	// General utility styles.
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8")) // gray/dim
	headerStyle = lipgloss.NewStyle().Bold(true)
)

// spinnerFrames are braille characters for smooth animation.
var spinnerFrames = []string{"⣾", "⣽", "⣻", "⢿", "⡿", "⣟", "⣯", "⣷"}
