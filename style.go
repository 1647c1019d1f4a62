package main

import "github.com/charmbracelet/lipgloss"

var (
	keyword = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#04B575")).
		Render

	paragraph = lipgloss.NewStyle().
			Width(78).
			Padding(0, 0, 0, 2).
			Render

	okStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Render
	failStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Render
	optionalStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Render
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")).Render
	faintStyle    = lipgloss.NewStyle().Faint(true).Render
)
