package tui

import (
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Zuo-Peng/imsgdb/internal/index"
	"github.com/Zuo-Peng/imsgdb/internal/search"
)

type tuiMode int

const (
	modeSearch tuiMode = iota
	modeList
)

// direction is the from-me filter cycled with C-f.
type direction int

const (
	dirAll direction = iota
	dirMe
	dirThem
)

func directionOf(fromMe *bool) direction {
	switch {
	case fromMe == nil:
		return dirAll
	case *fromMe:
		return dirMe
	default:
		return dirThem
	}
}

func (d direction) next() direction { return (d + 1) % 3 }

func (d direction) fromMe() *bool {
	switch d {
	case dirMe:
		v := true
		return &v
	case dirThem:
		v := false
		return &v
	}
	return nil
}

func (d direction) String() string {
	switch d {
	case dirMe:
		return "me"
	case dirThem:
		return "them"
	}
	return "all"
}

type model struct {
	db         *index.DB
	searchOpts search.Options
	mode       tuiMode
	query      string
	seq        int // bumped per dispatched query; older results are dropped

	results    []search.Result
	cursor     int
	listOffset int

	// trail holds the reply parents walked with C-p from the selected
	// hit. The last entry, if any, is what the preview shows and what
	// Enter copies.
	trail []search.Result

	filterInput textinput.Model
	preview     viewport.Model
	previewKey  string // reference of the rendered preview
	status      string // one-shot notice shown in the status bar

	width, height int
	ready         bool
	quitting      bool
	openResult    *search.Result
}

func newModel(db *index.DB, mode tuiMode, query string, opts search.Options) model {
	ti := textinput.New()
	ti.Placeholder = "Search messages..."
	if mode == modeList {
		ti.Placeholder = "Filter..."
	}
	ti.Focus()
	ti.SetValue(query)
	ti.Prompt = "> "
	ti.PromptStyle = styleInputPrompt
	ti.TextStyle = styleInput
	ti.CharLimit = 256

	return model{
		db:          db,
		searchOpts:  opts,
		mode:        mode,
		query:       query,
		filterInput: ti,
		preview:     viewport.New(0, 0),
	}
}

// Run starts the search TUI and blocks until it exits. A selected hit's
// reference is copied to the clipboard.
func Run(db *index.DB, query string, opts search.Options) error {
	return run(newModel(db, modeSearch, query, opts))
}

// RunList starts the TUI in list mode, showing all conversations busiest first.
func RunList(db *index.DB, opts search.Options) error {
	return run(newModel(db, modeList, "", opts))
}

func run(m model) error {
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	if fm := finalModel.(model); fm.openResult != nil {
		return copyReference(*fm.openResult)
	}
	return nil
}

// Reference is the clipboard form of a result: "+15551234567#42", or just
// the target for a conversation row.
func Reference(r search.Result) string {
	if r.MessageID == 0 {
		return r.Target
	}
	return fmt.Sprintf("%s#%d", r.Target, r.MessageID)
}

// copyReference copies the selected result's reference to clipboard,
// printing it instead when no clipboard is available.
func copyReference(r search.Result) error {
	ref := Reference(r)
	if err := clipboard.WriteAll(ref); err != nil {
		fmt.Printf("%s\n", ref)
		return nil
	}

	fmt.Printf("Copied to clipboard: %s\n", ref)
	return nil
}

// conversationResults turns conversation rows into list entries.
func conversationResults(convs []index.ConversationRow) []search.Result {
	results := make([]search.Result, 0, len(convs))
	for _, c := range convs {
		results = append(results, search.Result{
			Target:  c.Target,
			Date:    c.LastDate,
			Snippet: fmt.Sprintf("%d messages, %d attachments, since %s", c.MessageCount, c.AttachmentCount, c.FirstDate),
		})
	}
	return results
}

// messageResult wraps a stored message so it can stand in for a search hit.
func messageResult(m index.MessageRow) search.Result {
	snippet, _, _ := strings.Cut(m.Text, "\n")
	return search.Result{
		MessageID:   m.ID,
		Target:      m.Target,
		Date:        m.Date,
		Sender:      m.Sender,
		IsFromMe:    m.IsFromMe,
		IsDuplicate: m.IsDuplicate,
		Line:        m.Line,
		Snippet:     snippet,
	}
}

// selected is the result under the cursor.
func (m model) selected() (search.Result, bool) {
	if m.cursor < 0 || m.cursor >= len(m.results) {
		return search.Result{}, false
	}
	return m.results[m.cursor], true
}

// focus is the message the preview shows: the innermost parent on the
// trail, else the selected result.
func (m model) focus() (search.Result, bool) {
	if n := len(m.trail); n > 0 {
		return m.trail[n-1], true
	}
	return m.selected()
}
