package parse

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/Zuo-Peng/imsgdb/internal/scan"
)

const maxLineSize = 10 * 1024 * 1024 // 10MB

const (
	tapbackHeader   = "Tapbacks:"
	duplicateMarker = "This message responded to an earlier message"
	indentWidth     = 4
	noLine          = -1
)

var (
	timestampRe   = regexp.MustCompile(`([\p{L}\p{N}_]+ \d{1,2}, \d{4}\s+\d{1,2}:\d{2}:\d{2}\s+(?:AM|PM))`)
	readReceiptRe = regexp.MustCompile(`\(Read by (them|you) after (.+?)\)`)
	effectRe      = regexp.MustCompile(`Sent with (.+)`)
	editedRe      = regexp.MustCompile(`Edited (\d+) (second|minute|hour)s? later:\s*(.+)`)
	unsentRe      = regexp.MustCompile(`(.+?) unsent a message!`)
	attachmentRe  = regexp.MustCompile(`(?i)attachments[/\\](\d+)[/\\]([\p{L}\p{N}_\s.-]+\.[\p{L}\p{N}_]+)`)
	tapbackRe     = regexp.MustCompile(`^(Loved|Liked|Disliked|Laughed at|Emphasized|Questioned) by (.+)`)
)

// AttachmentLookup resolves an attachment filename to file metadata.
// scan.AttachmentIndex satisfies it.
type AttachmentLookup interface {
	Lookup(filename string) (scan.AttachmentFile, bool)
}

type Options struct {
	Target      string
	SelfLabel   string           // sender label that means "is from me"; defaults to "Me"
	Attachments AttachmentLookup // nil means no attachment metadata
}

// ParseFile parses the transcript at path.
func ParseFile(path string, opts Options) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	res, err := ParseTranscript(f, opts)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return res, nil
}

// ParseTranscript reads a transcript line by line and reconstructs its
// messages, attachments and tapbacks, then runs duplicate detection and
// parent resolution over the result.
func ParseTranscript(r io.Reader, opts Options) (*Result, error) {
	if opts.SelfLabel == "" {
		opts.SelfLabel = "Me"
	}

	p := &parser{opts: opts, lastLine: noLine}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	scanner.Split(scanLines)

	lineNum := 0
	for scanner.Scan() {
		p.line(lineNum, scanner.Text())
		lineNum++
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	p.finalize()

	res := &Result{
		Target:   opts.Target,
		Messages: p.msgs,
		Tapbacks: p.tapbacks,
	}
	res.Attachments = resolveAttachments(res.Messages, opts.Attachments)

	MarkDuplicates(res.Messages)
	ResolveParents(res.Messages)

	return res, nil
}

// scanLines is bufio.ScanLines extended to old Mac line endings: a line
// ends at "\n", "\r\n" or a lone "\r".
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\n' {
			return i + 1, data[:i], nil
		}
		if i+1 < len(data) {
			if data[i+1] == '\n' {
				return i + 2, data[:i], nil
			}
			return i + 1, data[:i], nil
		}
		// trailing "\r" may be the first half of "\r\n"
		if atEOF {
			return i + 1, data[:i], nil
		}
		return 0, nil, nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// parser holds the state of one ParseTranscript call.
type parser struct {
	opts Options

	msgs     []Message
	tapbacks []Tapback

	cur       *Message // open message, nil between messages
	textParts []string
	lastLine  int // line of the most recently finalized message

	// stack[d] is the line of the latest message seen at indentation d,
	// or noLine for a slot that was grown but never filled.
	stack      []int
	inTapbacks bool
}

func (p *parser) line(num int, line string) {
	if strings.TrimSpace(line) == "" {
		p.inTapbacks = false
		return
	}

	stripped := strings.TrimLeft(line, " ")
	indent := (len(line) - len(stripped)) / indentWidth

	if strings.TrimSpace(stripped) == tapbackHeader {
		p.inTapbacks = true
		return
	}

	if p.inTapbacks {
		p.tapback(stripped)
		return
	}

	if strings.Contains(stripped, duplicateMarker) {
		if p.cur != nil {
			p.cur.Duplicate = true
		}
		return
	}

	if m := unsentRe.FindStringSubmatch(stripped); m != nil {
		p.finalize()
		sender := m[1]
		p.cur = &Message{
			Line:     num,
			Sender:   sender,
			IsFromMe: sender == p.opts.SelfLabel,
			Indent:   indent,
			Kind:     KindUnsent,
			Unsent:   &UnsentBody{},
		}
		p.finalize()
		return
	}

	if m := timestampRe.FindStringSubmatch(stripped); m != nil {
		p.finalize()
		p.open(num, indent, m[1], stripped)
		return
	}

	if p.cur == nil {
		return // nothing open yet
	}

	if p.cur.Sender == "" {
		p.cur.Sender = strings.TrimSpace(stripped)
		p.cur.IsFromMe = p.cur.Sender == p.opts.SelfLabel
		p.register(indent, num)
		return
	}

	if m := editedRe.FindStringSubmatch(stripped); m != nil {
		p.cur.Text.Edit = &Edit{After: m[1], Unit: m[2], Text: m[3]}
		return
	}

	if m := attachmentRe.FindStringSubmatch(stripped); m != nil {
		p.cur.Text.Attachments = append(p.cur.Text.Attachments, AttachmentRef{
			Filename:  m[2],
			DirNumber: m[1],
			Sticker:   strings.Contains(line, "Sticker"),
			Line:      stripped,
		})
		return
	}

	p.textParts = append(p.textParts, stripped)
}

// open starts a text message at a timestamp line.
func (p *parser) open(num, indent int, ts, line string) {
	body := &TextBody{}
	if m := readReceiptRe.FindStringSubmatch(line); m != nil {
		body.ReadReceipt = &ReadReceipt{ReadBy: m[1], After: m[2]}
	}
	if strings.Contains(line, "Sent with") {
		if m := effectRe.FindStringSubmatch(line); m != nil {
			body.Effect = m[1]
		}
	}

	msg := &Message{
		Line:      num,
		Timestamp: ts,
		Indent:    indent,
		Kind:      KindText,
		Text:      body,
	}

	// depth lookup, not necessarily the previous sibling
	if indent > 0 {
		if len(p.stack) > indent {
			p.stack = p.stack[:indent]
		}
		if n := len(p.stack); n > 0 && p.stack[n-1] != noLine {
			parent := p.stack[n-1]
			msg.ProvisionalParent = &parent
		}
	}

	p.cur = msg
}

// register records the open message at depth indent.
func (p *parser) register(indent, num int) {
	for len(p.stack) <= indent {
		p.stack = append(p.stack, noLine)
	}
	p.stack[indent] = num
}

func (p *parser) tapback(line string) {
	target := p.lastLine
	if p.cur != nil {
		target = p.cur.Line
	}
	if target == noLine {
		return
	}

	m := tapbackRe.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return
	}
	sender := strings.TrimSpace(m[2])
	p.tapbacks = append(p.tapbacks, Tapback{
		TargetLine: target,
		Sender:     sender,
		Kind:       TapbackKind(m[1]),
		IsFromMe:   sender == p.opts.SelfLabel,
	})
}

// finalize closes the open message, if any.
func (p *parser) finalize() {
	if p.cur == nil {
		return
	}
	if p.cur.Kind == KindText {
		p.cur.Text.Body = strings.TrimSpace(strings.Join(p.textParts, "\n"))
	}
	p.msgs = append(p.msgs, *p.cur)
	p.lastLine = p.cur.Line
	p.cur = nil
	p.textParts = nil
}

func resolveAttachments(msgs []Message, lookup AttachmentLookup) []Attachment {
	var out []Attachment
	for _, m := range msgs {
		if m.Text == nil {
			continue
		}
		for _, ref := range m.Text.Attachments {
			att := Attachment{
				MessageLine: m.Line,
				Filename:    ref.Filename,
				DirNumber:   ref.DirNumber,
				Sticker:     ref.Sticker,
				MIME:        scan.MIMEType(ref.Filename),
			}
			if lookup != nil {
				if f, ok := lookup.Lookup(ref.Filename); ok {
					rel, size := f.RelPath, f.Size
					att.RelPath = &rel
					att.Size = &size
				}
			}
			out = append(out, att)
		}
	}
	return out
}
