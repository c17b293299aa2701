package render

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/Zuo-Peng/imsgdb/internal/index"
	"github.com/mattn/go-runewidth"
)

const (
	colorReset   = "\033[0m"
	colorMe      = "\033[1;34m" // bold blue
	colorThem    = "\033[1;32m" // bold green
	colorDim     = "\033[2m"
	colorHit     = "\033[43m"   // yellow background
	colorBoldRed = "\033[1;31m" // bold red for keyword highlights
)

type Options struct {
	HitMessageID int64  // 0 = no hit, render from the start
	Context      int    // messages before/after hit to show
	Width        int    // wrap width (0 = no wrap)
	Query        string // search query for keyword highlighting
}

// highlightKeywords wraps case-insensitive matches of query terms in bold
// red ANSI codes. Matching is done over runes with simple case folding, so
// offsets stay valid when a rune's lower-case form has a different length.
func highlightKeywords(text, query string) string {
	terms := strings.Fields(query)
	if len(terms) == 0 {
		return text
	}
	runes := []rune(text)
	marked := make([]bool, len(runes))
	for _, term := range terms {
		tr := []rune(term)
		for i := 0; i+len(tr) <= len(runes); i++ {
			if runesEqualFold(runes[i:i+len(tr)], tr) {
				for j := i; j < i+len(tr); j++ {
					marked[j] = true
				}
				i += len(tr) - 1
			}
		}
	}

	var b strings.Builder
	on := false
	for i, r := range runes {
		if marked[i] != on {
			on = marked[i]
			if on {
				b.WriteString(colorBoldRed)
			} else {
				b.WriteString(colorReset)
			}
		}
		b.WriteRune(r)
	}
	if on {
		b.WriteString(colorReset)
	}
	return b.String()
}

func runesEqualFold(a, b []rune) bool {
	for i := range a {
		if a[i] != b[i] && !strings.EqualFold(string(a[i]), string(b[i])) {
			return false
		}
	}
	return true
}

// indentLines prepends each line of text with the given prefix.
func indentLines(text, prefix string) string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}

// wrapLine breaks a single line into multiple lines that fit within maxWidth
// visible columns, correctly skipping ANSI escape sequences when measuring width.
func wrapLine(line string, maxWidth int) []string {
	if maxWidth <= 0 {
		return []string{line}
	}

	var result []string
	var cur strings.Builder
	visW := 0

	i := 0
	for i < len(line) {
		// check for ANSI escape sequence: ESC[ ... m
		if i+1 < len(line) && line[i] == '\033' && line[i+1] == '[' {
			j := i + 2
			for j < len(line) && line[j] != 'm' {
				j++
			}
			if j < len(line) {
				j++ // include 'm'
			}
			cur.WriteString(line[i:j])
			i = j
			continue
		}

		r, size := utf8.DecodeRuneInString(line[i:])
		rw := runewidth.RuneWidth(r)

		if visW+rw > maxWidth {
			result = append(result, cur.String())
			cur.Reset()
			visW = 0
		}

		cur.WriteRune(r)
		visW += rw
		i += size
	}

	if cur.Len() > 0 {
		result = append(result, cur.String())
	}

	if len(result) == 0 {
		return []string{""}
	}
	return result
}

// window picks the slice of msgs to show around the hit message.
func window(msgs []index.MessageRow, hitID int64, n int) (start, end, hitIdx int) {
	hitIdx = -1
	for i, m := range msgs {
		if m.ID == hitID {
			hitIdx = i
			break
		}
	}
	if hitIdx < 0 {
		end = n*2 + 1
		if end > len(msgs) {
			end = len(msgs)
		}
		return 0, end, -1
	}
	start = hitIdx - n
	if start < 0 {
		start = 0
	}
	end = hitIdx + n + 1
	if end > len(msgs) {
		end = len(msgs)
	}
	return start, end, hitIdx - start
}

// annotations lists the bracketed notes shown under a message.
func annotations(m index.MessageRow) []string {
	var notes []string
	if m.Effect != "" {
		notes = append(notes, "sent with "+m.Effect)
	}
	if m.EditedText != "" {
		notes = append(notes, fmt.Sprintf("edited after %s: %s", m.EditTimestamp, m.EditedText))
	}
	if m.ReadReceipt != "" {
		notes = append(notes, "read "+m.ReadReceipt)
	}
	if m.IsDuplicate {
		notes = append(notes, "duplicate")
	}
	for _, a := range m.Attachments {
		kind := "attachment"
		if a.Sticker {
			kind = "sticker"
		}
		switch {
		case a.RelPath == "":
			notes = append(notes, fmt.Sprintf("%s %s (missing)", kind, a.Filename))
		case a.Size != nil:
			notes = append(notes, fmt.Sprintf("%s %s %s, %d bytes", kind, a.RelPath, a.MIME, *a.Size))
		default:
			notes = append(notes, fmt.Sprintf("%s %s %s", kind, a.RelPath, a.MIME))
		}
	}
	for _, t := range m.Tapbacks {
		notes = append(notes, fmt.Sprintf("%s by %s", t.Type, t.Sender))
	}
	return notes
}

// RenderConversation renders a conversation and returns the content,
// the 0-based line number of the hit message header (-1 if no hit), and any error.
func RenderConversation(ctx context.Context, db *index.DB, target string, opts Options) (string, int, error) {
	if opts.Context == 0 {
		opts.Context = 10
	}
	if opts.Context < 0 {
		opts.Context = 1000000 // no limit
	}

	conv, err := db.GetConversation(ctx, target)
	if err != nil {
		return "", -1, fmt.Errorf("get conversation: %w", err)
	}
	if conv == nil {
		return "", -1, fmt.Errorf("conversation not found: %s", target)
	}

	msgs, err := db.GetThread(ctx, target)
	if err != nil {
		return "", -1, fmt.Errorf("get messages: %w", err)
	}
	if len(msgs) == 0 {
		return "(empty conversation)", -1, nil
	}

	start, end, hitIdx := window(msgs, opts.HitMessageID, opts.Context)
	shown := msgs[start:end]
	skipAfter := len(msgs) - end

	var b strings.Builder
	hitLine := -1
	lineCount := 0
	wrapW := opts.Width

	// helper to track line count; wraps long lines if Width is set
	writeLine := func(s string) {
		wrapped := wrapLine(s, wrapW)
		for _, wl := range wrapped {
			b.WriteString(wl)
			b.WriteString("\n")
			lineCount++
		}
	}

	// header
	writeLine(fmt.Sprintf("%s--- %s [%d messages, %d attachments] %s .. %s ---%s",
		colorDim, target, conv.MessageCount, conv.AttachmentCount, conv.FirstDate, conv.LastDate, colorReset))

	if start > 0 {
		writeLine(fmt.Sprintf("%s... (%d messages before) ...%s", colorDim, start, colorReset))
	}

	for i, m := range shown {
		isHit := i == hitIdx
		if isHit {
			hitLine = lineCount
		}

		pad := strings.Repeat("    ", m.Indent)
		color := colorThem
		if m.IsFromMe {
			color = colorMe
		}
		reply := ""
		if m.ReplyTo != nil {
			reply = fmt.Sprintf(" ↳ #%d", *m.ReplyTo)
		}

		if isHit {
			writeLine(fmt.Sprintf("%s%s>> #%d %s > %s%s <<%s", pad, colorHit, m.ID, m.Sender, m.Date, reply, colorReset))
		} else {
			writeLine(fmt.Sprintf("%s%s#%d %s >%s %s%s%s%s", pad, color, m.ID, m.Sender, colorReset, colorDim, m.Date, reply, colorReset))
		}

		text := highlightKeywords(m.Text, opts.Query)
		if m.IsUnsent {
			text = colorDim + text + colorReset
		}
		for _, tl := range strings.Split(indentLines(text, pad+"  "), "\n") {
			writeLine(tl)
		}
		for _, note := range annotations(m) {
			writeLine(fmt.Sprintf("%s  %s[%s]%s", pad, colorDim, note, colorReset))
		}
		writeLine("") // blank line after message
	}

	if skipAfter > 0 {
		writeLine(fmt.Sprintf("%s... (%d messages after) ...%s", colorDim, skipAfter, colorReset))
	}

	return b.String(), hitLine, nil
}
