package tui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Zuo-Peng/imsgdb/internal/index"
	"github.com/Zuo-Peng/imsgdb/internal/render"
	"github.com/Zuo-Peng/imsgdb/internal/search"
)

// previewRenderedMsg is sent when an async preview render completes.
// ref is the Reference of the result it was rendered for.
type previewRenderedMsg struct {
	ref     string
	content string
	hitLine int
	err     error
}

// loadPreviewCmd renders r's whole conversation, positioned on r.
func loadPreviewCmd(db *index.DB, r search.Result, query string, width int) tea.Cmd {
	return func() tea.Msg {
		content, hitLine, err := render.RenderConversation(context.Background(), db, r.Target, render.Options{
			HitMessageID: r.MessageID,
			Context:      -1,
			Width:        width,
			Query:        query,
		})
		return previewRenderedMsg{
			ref:     Reference(r),
			content: content,
			hitLine: hitLine,
			err:     err,
		}
	}
}

// previewTitle names the focused message above the preview, colored by
// direction. depth counts the reply parents followed to reach it.
func previewTitle(r search.Result, depth int) string {
	if r.MessageID == 0 {
		return styleTarget.Render(r.Target)
	}

	sender := styleSenderThem.Render(r.Sender)
	if r.IsFromMe {
		sender = styleSenderMe.Render(r.Sender)
	}
	title := fmt.Sprintf("#%d %s  %s", r.MessageID, sender, r.Date)
	if r.IsDuplicate {
		title += styleDim.Render("  (duplicate)")
	}
	if depth > 0 {
		title = styleTrail.Render(fmt.Sprintf("↑%d ", depth)) + title
	}
	return title
}

func newViewport(width, height int) viewport.Model {
	return viewport.New(width, height)
}
