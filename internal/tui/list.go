package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/Zuo-Peng/imsgdb/internal/search"
)

// linesPerItem is the number of terminal lines each result occupies.
const linesPerItem = 2

// renderList renders the left panel: search hits or conversations, with scrolling.
func (m model) renderList(width, height int) string {
	if len(m.results) == 0 {
		empty := styleDim.
			Width(width).
			Height(height).
			Align(lipgloss.Center, lipgloss.Center).
			Render("No results")
		return empty
	}

	var lines []string
	for i, r := range m.results {
		if i < m.listOffset {
			continue
		}
		if len(lines)+linesPerItem > height {
			break
		}
		rows := formatResultLine(r, width, i == m.cursor)
		lines = append(lines, rows...)
	}

	// Pad remaining lines
	for len(lines) < height {
		lines = append(lines, strings.Repeat(" ", width))
	}

	return strings.Join(lines, "\n")
}

// formatResultLine formats a single search result as two lines:
//
//	line 1: [>] target  sender  date
//	line 2:    snippet (dimmed)
func formatResultLine(r search.Result, width int, selected bool) []string {
	var who string
	switch {
	case r.MessageID == 0:
		// conversation row, no sender
	case r.IsFromMe:
		who = styleSenderMe.Render(r.Sender)
	default:
		who = styleSenderThem.Render(r.Sender)
	}

	// Truncate date to fit width: leave room for prefix "  +target sender "
	date := r.Date
	dateMax := width - 2 - runewidth.StringWidth(r.Target) - runewidth.StringWidth(r.Sender) - 2
	if r.IsDuplicate {
		dateMax -= 4
	}
	if dateMax < 0 {
		dateMax = 0
	}
	if runewidth.StringWidth(date) > dateMax {
		date = runewidth.Truncate(date, dateMax, "")
	}

	line1 := styleTarget.Render(r.Target)
	if who != "" {
		line1 += " " + who
	}
	line1 += " " + date
	if r.IsDuplicate {
		line1 += styleDim.Render(" dup")
	}
	if selected {
		line1 = styleListSelected.Render("> ") + line1
	} else {
		line1 = "  " + line1
	}

	// Line 2: snippet (dimmed, indented)
	snippet := strings.ReplaceAll(r.Snippet, "\n", " ")
	snippet = strings.ReplaceAll(snippet, "\t", " ")
	snippet = strings.ReplaceAll(snippet, ">>>", "")
	snippet = strings.ReplaceAll(snippet, "<<<", "")
	snippetMax := width - 4 // indent
	if snippetMax < 0 {
		snippetMax = 0
	}
	if runewidth.StringWidth(snippet) > snippetMax {
		snippet = runewidth.Truncate(snippet, snippetMax, "")
	}
	line2 := "    " + styleDim.Render(snippet)

	return []string{line1, line2}
}

// adjustListScroll keeps the cursor visible within the list viewport.
func (m *model) adjustListScroll(listHeight int) {
	visibleItems := listHeight / linesPerItem
	if visibleItems < 1 {
		visibleItems = 1
	}
	if m.cursor < m.listOffset {
		m.listOffset = m.cursor
	}
	if m.cursor >= m.listOffset+visibleItems {
		m.listOffset = m.cursor - visibleItems + 1
	}
}
