package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

func (m model) View() string {
	if m.quitting || !m.ready {
		return ""
	}

	listW := m.listWidth()
	previewW := m.previewWidth()
	panelH := m.panelHeight()

	listPanel := stylePanelBorder.
		Width(listW).
		Height(panelH).
		Render(m.renderList(listW, panelH))

	m.preview.Width = previewW
	m.preview.Height = m.previewHeight()
	var title string
	if r, ok := m.focus(); ok {
		title = previewTitle(r, len(m.trail))
	}
	previewPanel := styleActiveBorder.
		Width(previewW).
		Height(panelH).
		Render(lipgloss.JoinVertical(lipgloss.Left,
			lipgloss.NewStyle().MaxWidth(previewW).Render(title),
			m.preview.View()))

	panels := lipgloss.JoinHorizontal(lipgloss.Top, listPanel, previewPanel)
	return lipgloss.JoinVertical(lipgloss.Left, m.filterInput.View(), panels, m.statusBar())
}

// The list takes 40% of the width and the preview 60%, each minus its border.

func (m model) listWidth() int {
	if m.width <= 0 {
		return 40
	}
	return max(m.width*40/100-4, 20)
}

func (m model) previewWidth() int {
	if m.width <= 0 {
		return 60
	}
	return max(m.width*60/100-4, 20)
}

// panelHeight leaves room for the input row, the status bar and borders.
func (m model) panelHeight() int {
	if m.height <= 0 {
		return 20
	}
	return max(m.height-6, 5)
}

// previewHeight is the viewport height below the preview title.
func (m model) previewHeight() int {
	return m.panelHeight() - 1
}

func (m model) maxListOffset() int {
	return max(len(m.results)-m.panelHeight()/linesPerItem, 0)
}

type mouseRegion int

const (
	regionNone mouseRegion = iota
	regionList
	regionPreview
)

// hitTest maps terminal coordinates to a panel region and list item index.
func (m model) hitTest(x, y int) (mouseRegion, int) {
	const top = 2 // input row + top border
	if y < top || y >= top+m.panelHeight() {
		return regionNone, -1
	}

	lw := m.listWidth()
	switch {
	case x >= 1 && x <= lw:
		return regionList, m.listOffset + (y-top)/linesPerItem
	case x > lw+2: // past the list's right border
		return regionPreview, -1
	}
	return regionNone, -1
}

// statusBar shows the result count, the active filters and the key help.
// A pending notice replaces the help.
func (m model) statusBar() string {
	dups := "hidden"
	if m.searchOpts.IncludeDuplicates {
		dups = "shown"
	}
	parts := []string{
		fmt.Sprintf("%d results", len(m.results)),
		"from " + directionOf(m.searchOpts.FromMe).String(),
		"dups " + dups,
	}
	if m.status != "" {
		parts = append(parts, m.status)
	} else {
		parts = append(parts,
			"C-p reply parent", "C-o back",
			"C-f from", "C-t dups",
			"Enter copy", "Esc quit")
	}
	return styleStatusBar.Render(strings.Join(parts, " | "))
}
