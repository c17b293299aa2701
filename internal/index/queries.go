package index

import (
	"context"
	"database/sql"
	"fmt"
)

type ConversationRow struct {
	Target          string
	DisplayName     string
	MessageCount    int
	AttachmentCount int
	FirstDate       string
	LastDate        string
}

type MessageRow struct {
	ID            int64
	Target        string
	Date          string
	Sender        string
	Text          string
	IsFromMe      bool
	ReplyTo       *int64
	Type          string
	Indent        int
	ReadReceipt   string
	EditedText    string
	EditTimestamp string
	IsUnsent      bool
	Effect        string
	Line          int
	IsDuplicate   bool

	Attachments []AttachmentRow
	Tapbacks    []TapbackRow
}

type AttachmentRow struct {
	ID        int64
	MessageID int64
	Filename  string
	RelPath   string // "" when the file was not found
	DirNumber string
	Size      *int64
	MIME      string
	Sticker   bool
}

type TapbackRow struct {
	ID        int64
	MessageID int64
	Sender    string
	Type      string
	IsFromMe  bool
}

const conversationSelect = `SELECT target_number, COALESCE(display_name, ''), message_count,
	attachment_count, COALESCE(first_message_date, ''), COALESCE(last_message_date, '')
	FROM conversations`

func scanConversation(sc interface{ Scan(...any) error }) (ConversationRow, error) {
	var c ConversationRow
	err := sc.Scan(&c.Target, &c.DisplayName, &c.MessageCount, &c.AttachmentCount, &c.FirstDate, &c.LastDate)
	return c, err
}

// GetConversation returns nil, nil when target is not in the store.
func (d *DB) GetConversation(ctx context.Context, target string) (*ConversationRow, error) {
	c, err := scanConversation(d.db.QueryRowContext(ctx, conversationSelect+` WHERE target_number = ?`, target))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListConversations returns all conversations, busiest first.
func (d *DB) ListConversations(ctx context.Context) ([]ConversationRow, error) {
	rows, err := d.db.QueryContext(ctx, conversationSelect+` ORDER BY message_count DESC, target_number`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ConversationRow
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const messageSelect = `SELECT id, target_number, COALESCE(message_date, ''), COALESCE(sender, ''),
	COALESCE(message_text, ''), COALESCE(is_from_me, 0), reply_to_message_id,
	COALESCE(message_type, 'text'), COALESCE(indent_level, 0), COALESCE(read_receipt_info, ''),
	COALESCE(edited_text, ''), COALESCE(edit_timestamp, ''), COALESCE(is_unsent, 0),
	COALESCE(expressive_type, ''), COALESCE(line_number, 0), COALESCE(is_duplicate, 0)
	FROM messages`

func scanMessage(sc interface{ Scan(...any) error }) (MessageRow, error) {
	var m MessageRow
	var reply sql.NullInt64
	err := sc.Scan(&m.ID, &m.Target, &m.Date, &m.Sender, &m.Text, &m.IsFromMe, &reply,
		&m.Type, &m.Indent, &m.ReadReceipt, &m.EditedText, &m.EditTimestamp, &m.IsUnsent,
		&m.Effect, &m.Line, &m.IsDuplicate)
	if reply.Valid {
		m.ReplyTo = &reply.Int64
	}
	return m, err
}

// GetMessage returns nil, nil when no message has the id.
func (d *DB) GetMessage(ctx context.Context, id int64) (*MessageRow, error) {
	m, err := scanMessage(d.db.QueryRowContext(ctx, messageSelect+` WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetThread returns a conversation's messages in file order with their
// attachments and tapbacks.
func (d *DB) GetThread(ctx context.Context, target string) ([]MessageRow, error) {
	rows, err := d.db.QueryContext(ctx, messageSelect+` WHERE target_number = ? ORDER BY line_number, id`, target)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	defer rows.Close()

	var msgs []MessageRow
	byID := make(map[int64]int)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		byID[m.ID] = len(msgs)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	atts, err := d.attachmentsFor(ctx, target)
	if err != nil {
		return nil, err
	}
	for _, a := range atts {
		if i, ok := byID[a.MessageID]; ok {
			msgs[i].Attachments = append(msgs[i].Attachments, a)
		}
	}

	tbs, err := d.tapbacksFor(ctx, target)
	if err != nil {
		return nil, err
	}
	for _, t := range tbs {
		if i, ok := byID[t.MessageID]; ok {
			msgs[i].Tapbacks = append(msgs[i].Tapbacks, t)
		}
	}
	return msgs, nil
}

func (d *DB) attachmentsFor(ctx context.Context, target string) ([]AttachmentRow, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, message_id, COALESCE(filename, ''), COALESCE(relative_path, ''),
			COALESCE(directory_number, ''), file_size, COALESCE(mime_type, ''), COALESCE(is_sticker, 0)
		FROM attachments WHERE target_number = ? ORDER BY id`, target)
	if err != nil {
		return nil, fmt.Errorf("get attachments: %w", err)
	}
	defer rows.Close()

	var out []AttachmentRow
	for rows.Next() {
		var a AttachmentRow
		var size sql.NullInt64
		if err := rows.Scan(&a.ID, &a.MessageID, &a.Filename, &a.RelPath, &a.DirNumber, &size, &a.MIME, &a.Sticker); err != nil {
			return nil, err
		}
		if size.Valid {
			a.Size = &size.Int64
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (d *DB) tapbacksFor(ctx context.Context, target string) ([]TapbackRow, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, target_message_id, COALESCE(sender, ''), COALESCE(tapback_type, ''), COALESCE(is_from_me, 0)
		FROM tapbacks WHERE target_number = ? ORDER BY id`, target)
	if err != nil {
		return nil, fmt.Errorf("get tapbacks: %w", err)
	}
	defer rows.Close()

	var out []TapbackRow
	for rows.Next() {
		var t TapbackRow
		if err := rows.Scan(&t.ID, &t.MessageID, &t.Sender, &t.Type, &t.IsFromMe); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
