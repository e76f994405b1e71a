// Package styles provides consistent styling for the chronicle CLI.
package styles

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// Color palette
var (
	Primary   lipgloss.TerminalColor = lipgloss.Color("#7C3AED")
	Secondary lipgloss.TerminalColor = lipgloss.Color("#06B6D4")
	Success   lipgloss.TerminalColor = lipgloss.Color("#10B981")
	Warning   lipgloss.TerminalColor = lipgloss.Color("#F59E0B")
	Error     lipgloss.TerminalColor = lipgloss.Color("#EF4444")
	Info      lipgloss.TerminalColor = lipgloss.Color("#3B82F6")
	TextMuted lipgloss.TerminalColor = lipgloss.Color("#9CA3AF")
	Border    lipgloss.TerminalColor = lipgloss.Color("#374151")
)

// Styles built from the palette. Rebuilt by DisableColors.
var (
	Title        lipgloss.Style
	Muted        lipgloss.Style
	Highlight    lipgloss.Style
	Code         lipgloss.Style
	SuccessStyle lipgloss.Style
	WarningStyle lipgloss.Style
	ErrorStyle   lipgloss.Style
	InfoStyle    lipgloss.Style
	Box          lipgloss.Style
)

// Icons
const (
	IconSuccess = "✓"
	IconError   = "✗"
	IconWarning = "⚠"
	IconInfo    = "ℹ"
	IconDot     = "•"
)

func init() {
	build()
}

func build() {
	Title = lipgloss.NewStyle().Bold(true).Foreground(Primary)
	Muted = lipgloss.NewStyle().Foreground(TextMuted)
	Highlight = lipgloss.NewStyle().Bold(true).Foreground(Secondary)
	Code = lipgloss.NewStyle().Foreground(Warning)
	SuccessStyle = lipgloss.NewStyle().Foreground(Success)
	WarningStyle = lipgloss.NewStyle().Foreground(Warning)
	ErrorStyle = lipgloss.NewStyle().Foreground(Error)
	InfoStyle = lipgloss.NewStyle().Foreground(Info)
	Box = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(Border).
		Padding(0, 1)
}

// FormatSuccess formats a success message with icon
func FormatSuccess(msg string) string {
	return SuccessStyle.Render(IconSuccess) + " " + msg
}

// FormatError formats an error message with icon
func FormatError(msg string) string {
	return ErrorStyle.Render(IconError) + " " + msg
}

// FormatWarning formats a warning message with icon
func FormatWarning(msg string) string {
	return WarningStyle.Render(IconWarning) + " " + msg
}

// FormatInfo formats an info message with icon
func FormatInfo(msg string) string {
	return InfoStyle.Render(IconInfo) + " " + msg
}

// FormatKeyValue formats a key-value pair
func FormatKeyValue(key, value string) string {
	keyStyle := Muted.Width(20)
	return keyStyle.Render(key+":") + " " + Highlight.Render(value)
}

// FormatCount renders n followed by the singular or plural noun.
func FormatCount(n int, singular, plural string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, singular)
	}
	return fmt.Sprintf("%d %s", n, plural)
}

// Table renders rows under headers with a rounded border.
func Table(headers []string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Border)).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return Title.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Headers(headers...).
		Rows(rows...)
	return t.String()
}

// DisableColors drops every color from the palette and rebuilds the styles.
func DisableColors() {
	none := lipgloss.NoColor{}
	Primary = none
	Secondary = none
	Success = none
	Warning = none
	Error = none
	Info = none
	TextMuted = none
	Border = none
	build()
}
