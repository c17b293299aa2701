package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Zuo-Peng/imsgdb/internal/index"
	"github.com/Zuo-Peng/imsgdb/internal/search"
)

const debounceDelay = 200 * time.Millisecond

type searchResultMsg struct {
	seq     int
	results []search.Result
	err     error
}

type debounceTickMsg struct {
	query string
}

// parentResolvedMsg answers a C-p on childID. A zero parent means the
// child is not a reply.
type parentResolvedMsg struct {
	childID int64
	parent  search.Result
	err     error
}

func (m model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink}
	if m.mode == modeList || m.query != "" {
		cmds = append(cmds, m.queryCmd())
	}
	return tea.Batch(cmds...)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.preview = newViewport(m.previewWidth(), m.previewHeight())
		m.previewKey = ""
		return m, m.loadFocusPreview()

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		return m.handleMouse(msg)

	case debounceTickMsg:
		if msg.query != m.query {
			return m, nil
		}
		return m.requery()

	case searchResultMsg:
		if msg.seq != m.seq {
			return m, nil // superseded by a newer query or filter
		}
		m.results = msg.results
		m.cursor = 0
		m.listOffset = 0
		m.trail = nil
		m.previewKey = ""
		if msg.err != nil {
			m.results = nil
			m.preview.SetContent("Error: " + msg.err.Error())
			return m, nil
		}
		if len(m.results) == 0 {
			m.preview.SetContent("")
			return m, nil
		}
		return m, m.loadFocusPreview()

	case parentResolvedMsg:
		return m.applyParent(msg)

	case previewRenderedMsg:
		return m.applyPreview(msg), nil
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.status = ""

	switch {
	case key.Matches(msg, keys.Quit):
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, keys.Enter):
		if r, ok := m.focus(); ok {
			m.openResult = &r
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil

	case key.Matches(msg, keys.Up):
		if m.cursor > 0 {
			return m.moveCursor(m.cursor - 1)
		}
		return m, nil

	case key.Matches(msg, keys.Down):
		if m.cursor < len(m.results)-1 {
			return m.moveCursor(m.cursor + 1)
		}
		return m, nil

	case key.Matches(msg, keys.Parent):
		r, ok := m.focus()
		if !ok || r.MessageID == 0 {
			m.status = "select a message to follow its reply"
			return m, nil
		}
		return m, resolveParentCmd(m.db, r)

	case key.Matches(msg, keys.Back):
		if len(m.trail) == 0 {
			return m, nil
		}
		m.trail = m.trail[:len(m.trail)-1]
		return m, m.loadFocusPreview()

	case key.Matches(msg, keys.FromMe):
		d := directionOf(m.searchOpts.FromMe).next()
		m.searchOpts.FromMe = d.fromMe()
		return m.requery()

	case key.Matches(msg, keys.Duplicates):
		m.searchOpts.IncludeDuplicates = !m.searchOpts.IncludeDuplicates
		return m.requery()

	case key.Matches(msg, keys.PreviewUp):
		m.preview.LineUp(m.previewHeight() / 2)
		return m, nil

	case key.Matches(msg, keys.PreviewDn):
		m.preview.LineDown(m.previewHeight() / 2)
		return m, nil

	case key.Matches(msg, keys.PageUp):
		m.preview.LineUp(m.previewHeight())
		return m, nil

	case key.Matches(msg, keys.PageDown):
		m.preview.LineDown(m.previewHeight())
		return m, nil
	}

	var cmd tea.Cmd
	m.filterInput, cmd = m.filterInput.Update(msg)
	if q := m.filterInput.Value(); q != m.query {
		m.query = q
		return m, tea.Batch(cmd, debounce(q))
	}
	return m, cmd
}

func (m model) handleMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	if !m.ready || len(m.results) == 0 {
		return m, nil
	}

	region, item := m.hitTest(msg.X, msg.Y)
	switch region {
	case regionList:
		switch {
		case msg.Button == tea.MouseButtonWheelUp:
			if m.listOffset > 0 {
				m.listOffset--
			}
		case msg.Button == tea.MouseButtonWheelDown:
			if m.listOffset < m.maxListOffset() {
				m.listOffset++
			}
		case msg.Button == tea.MouseButtonLeft && msg.Action == tea.MouseActionPress:
			if item < len(m.results) && item != m.cursor {
				return m.moveCursor(item)
			}
		}
	case regionPreview:
		var cmd tea.Cmd
		m.preview, cmd = m.preview.Update(msg)
		return m, cmd
	}
	return m, nil
}

// moveCursor selects result i, dropping any parent trail of the old selection.
func (m model) moveCursor(i int) (tea.Model, tea.Cmd) {
	m.cursor = i
	m.trail = nil
	m.adjustListScroll(m.panelHeight())
	return m, m.loadFocusPreview()
}

// requery reruns the current query with the current filters.
func (m model) requery() (model, tea.Cmd) {
	m.seq++
	return m, m.queryCmd()
}

// queryCmd builds the command for the current query, tagged with m.seq.
func (m model) queryCmd() tea.Cmd {
	if m.mode == modeList {
		return listCmd(m.db, m.query, m.searchOpts, m.seq)
	}
	return searchCmd(m.db, m.query, m.searchOpts, m.seq)
}

func searchCmd(db *index.DB, query string, opts search.Options, seq int) tea.Cmd {
	opts.Query = query
	return func() tea.Msg {
		if query == "" {
			return searchResultMsg{seq: seq}
		}
		results, err := search.Search(context.Background(), db, opts)
		return searchResultMsg{seq: seq, results: results, err: err}
	}
}

// listCmd lists conversations, or searches every conversation once a
// filter is typed.
func listCmd(db *index.DB, filter string, opts search.Options, seq int) tea.Cmd {
	if filter != "" {
		return searchCmd(db, filter, opts, seq)
	}
	return func() tea.Msg {
		convs, err := search.ListAll(context.Background(), db, opts.Limit)
		return searchResultMsg{seq: seq, results: conversationResults(convs), err: err}
	}
}

func debounce(query string) tea.Cmd {
	return tea.Tick(debounceDelay, func(time.Time) tea.Msg {
		return debounceTickMsg{query: query}
	})
}

// resolveParentCmd looks up the message r replies to.
func resolveParentCmd(db *index.DB, r search.Result) tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		out := parentResolvedMsg{childID: r.MessageID}
		child, err := db.GetMessage(ctx, r.MessageID)
		if err != nil || child == nil || child.ReplyTo == nil {
			out.err = err
			return out
		}
		parent, err := db.GetMessage(ctx, *child.ReplyTo)
		if err != nil || parent == nil {
			out.err = err
			return out
		}
		out.parent = messageResult(*parent)
		return out
	}
}

func (m model) applyParent(msg parentResolvedMsg) (tea.Model, tea.Cmd) {
	cur, ok := m.focus()
	if !ok || cur.MessageID != msg.childID {
		return m, nil // focus moved on
	}
	switch {
	case msg.err != nil:
		m.status = "reply lookup: " + msg.err.Error()
		return m, nil
	case msg.parent.MessageID == 0:
		m.status = fmt.Sprintf("#%d is not a reply", msg.childID)
		return m, nil
	}
	m.trail = append(m.trail[:len(m.trail):len(m.trail)], msg.parent)
	return m, m.loadFocusPreview()
}

func (m model) applyPreview(msg previewRenderedMsg) model {
	r, ok := m.focus()
	if !ok || Reference(r) != msg.ref {
		return m // stale
	}
	if msg.err != nil {
		m.preview.SetContent("Preview error: " + msg.err.Error())
	} else {
		m.preview.SetContent(msg.content)
		if msg.hitLine > 0 {
			m.preview.SetYOffset(msg.hitLine)
		} else {
			m.preview.GotoTop()
		}
	}
	m.previewKey = msg.ref
	return m
}

func (m model) loadFocusPreview() tea.Cmd {
	r, ok := m.focus()
	if !ok || Reference(r) == m.previewKey {
		return nil
	}
	return loadPreviewCmd(m.db, r, m.query, m.previewWidth())
}
