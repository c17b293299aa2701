package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Zuo-Peng/imsgdb/internal/parse"
)

// ErrNoMessages is returned for a transcript that parsed to zero messages.
var ErrNoMessages = errors.New("no messages parsed")

const defaultBatchSize = 500

// maxVariables is SQLite's default SQLITE_MAX_VARIABLE_NUMBER.
const maxVariables = 32766

// IngestStats counts what one conversation contributed to the store.
type IngestStats struct {
	Messages           int // excluding duplicates
	Duplicates         int
	Replies            int
	Attachments        int
	Tapbacks           int
	DroppedAttachments int
	DroppedTapbacks    int
}

// Ingest writes one parsed conversation in a single transaction:
// conversation row, messages, reply edges, attachments, tapbacks and the
// final counts. Nothing is written when res has no messages.
func Ingest(ctx context.Context, db *DB, res *parse.Result, batchSize int) (IngestStats, error) {
	var stats IngestStats
	if len(res.Messages) == 0 {
		return stats, ErrNoMessages
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	tx, err := db.Raw().BeginTx(ctx, nil)
	if err != nil {
		return stats, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO conversations (target_number, first_message_date, last_message_date)
		 VALUES (?, ?, ?)`,
		res.Target, res.FirstTimestamp(), res.LastTimestamp(),
	)
	if err != nil {
		return stats, fmt.Errorf("insert conversation: %w", err)
	}

	if err := insertMessages(ctx, tx, res, batchSize); err != nil {
		return stats, err
	}

	ids, err := lineIDs(ctx, tx, res)
	if err != nil {
		return stats, err
	}

	stats.Replies, err = updateReplies(ctx, tx, res.Messages, ids)
	if err != nil {
		return stats, err
	}

	stats.Attachments, stats.DroppedAttachments, err = insertAttachments(ctx, tx, res, ids, batchSize)
	if err != nil {
		return stats, err
	}

	stats.Tapbacks, stats.DroppedTapbacks, err = insertTapbacks(ctx, tx, res, ids, batchSize)
	if err != nil {
		return stats, err
	}

	for _, m := range res.Messages {
		if m.Duplicate {
			stats.Duplicates++
		} else {
			stats.Messages++
		}
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE conversations SET message_count = ?, attachment_count = ? WHERE target_number = ?`,
		stats.Messages, stats.Attachments, res.Target,
	)
	if err != nil {
		return stats, fmt.Errorf("update counts: %w", err)
	}

	return stats, tx.Commit()
}

const messageColumns = `target_number, message_date, sender, message_text, is_from_me,
	reply_to_message_id, message_type, indent_level, read_receipt_info,
	edited_text, edit_timestamp, is_unsent, expressive_type, special_data,
	line_number, is_duplicate`

func insertMessages(ctx context.Context, tx *sql.Tx, res *parse.Result, batchSize int) error {
	rows := make([][]any, 0, len(res.Messages))
	for i := range res.Messages {
		m := &res.Messages[i]

		var receipt, editedText, editAfter, effect any
		if m.Text != nil {
			if m.Text.ReadReceipt != nil {
				b, err := json.Marshal(m.Text.ReadReceipt)
				if err != nil {
					return fmt.Errorf("encode read receipt: %w", err)
				}
				receipt = string(b)
			}
			if m.Text.Edit != nil {
				editedText = m.Text.Edit.Text
				editAfter = m.Text.Edit.After
			}
			effect = nullString(m.Text.Effect)
		}

		rows = append(rows, []any{
			res.Target,
			m.Timestamp,
			nullString(m.Sender),
			m.Body(),
			m.IsFromMe,
			nil, // reply edge is filled in once ids are known
			string(m.Kind),
			m.Indent,
			receipt,
			editedText,
			editAfter,
			m.Kind == parse.KindUnsent,
			effect,
			nil,
			m.Line,
			m.Duplicate,
		})
	}

	if err := insertBatched(ctx, tx, "messages", messageColumns, 16, rows, batchSize); err != nil {
		return fmt.Errorf("insert messages: %w", err)
	}
	return nil
}

// lineIDs pairs the storage ids of the conversation's messages, ascending,
// with the source line numbers, ascending. This relies on ids being handed
// out in insertion order, which holds for one writer inserting in one
// transaction.
func lineIDs(ctx context.Context, tx *sql.Tx, res *parse.Result) (map[int]int64, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT id, line_number FROM messages WHERE target_number = ? ORDER BY id`,
		res.Target,
	)
	if err != nil {
		return nil, fmt.Errorf("read message ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		var line sql.NullInt64
		if err := rows.Scan(&id, &line); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	lines := make([]int, len(res.Messages))
	for i, m := range res.Messages {
		lines[i] = m.Line
	}
	sort.Ints(lines)

	if len(ids) != len(lines) {
		return nil, fmt.Errorf("read message ids: got %d ids for %d messages", len(ids), len(lines))
	}

	byLine := make(map[int]int64, len(lines))
	for i, line := range lines {
		byLine[line] = ids[i]
	}
	return byLine, nil
}

func updateReplies(ctx context.Context, tx *sql.Tx, msgs []parse.Message, ids map[int]int64) (int, error) {
	stmt, err := tx.PrepareContext(ctx, `UPDATE messages SET reply_to_message_id = ? WHERE id = ?`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	n := 0
	for _, m := range msgs {
		if m.Parent == nil {
			continue
		}
		id, ok := ids[m.Line]
		if !ok {
			continue
		}
		parentID, ok := ids[*m.Parent]
		if !ok {
			continue
		}
		if _, err := stmt.ExecContext(ctx, parentID, id); err != nil {
			return n, fmt.Errorf("update reply edge: %w", err)
		}
		n++
	}
	return n, nil
}

func insertAttachments(ctx context.Context, tx *sql.Tx, res *parse.Result, ids map[int]int64, batchSize int) (inserted, dropped int, err error) {
	var rows [][]any
	for _, a := range res.Attachments {
		id, ok := ids[a.MessageLine]
		if !ok {
			dropped++
			continue
		}
		var relPath, size any
		if a.RelPath != nil {
			relPath = *a.RelPath
		}
		if a.Size != nil {
			size = *a.Size
		}
		rows = append(rows, []any{
			id, res.Target, a.Filename, relPath, a.DirNumber, size, a.MIME, a.Sticker,
		})
	}

	err = insertBatched(ctx, tx, "attachments",
		`message_id, target_number, filename, relative_path, directory_number, file_size, mime_type, is_sticker`,
		8, rows, batchSize)
	if err != nil {
		return 0, dropped, fmt.Errorf("insert attachments: %w", err)
	}
	return len(rows), dropped, nil
}

func insertTapbacks(ctx context.Context, tx *sql.Tx, res *parse.Result, ids map[int]int64, batchSize int) (inserted, dropped int, err error) {
	var rows [][]any
	for _, t := range res.Tapbacks {
		id, ok := ids[t.TargetLine]
		if !ok {
			dropped++
			continue
		}
		rows = append(rows, []any{id, res.Target, t.Sender, string(t.Kind), t.IsFromMe})
	}

	err = insertBatched(ctx, tx, "tapbacks",
		`target_message_id, target_number, sender, tapback_type, is_from_me`,
		5, rows, batchSize)
	if err != nil {
		return 0, dropped, fmt.Errorf("insert tapbacks: %w", err)
	}
	return len(rows), dropped, nil
}

// insertBatched writes rows as multi-row INSERT statements of at most
// batchSize rows each, fewer when batchSize*ncols would exceed maxVariables.
func insertBatched(ctx context.Context, tx *sql.Tx, table, columns string, ncols int, rows [][]any, batchSize int) error {
	batchSize = rowsPerStatement(batchSize, ncols)
	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", ncols), ", ") + ")"

	for start := 0; start < len(rows); start += batchSize {
		end := start + batchSize
		if end > len(rows) {
			end = len(rows)
		}
		batch := rows[start:end]

		var b strings.Builder
		fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ", table, columns)
		args := make([]any, 0, len(batch)*ncols)
		for i, r := range batch {
			if len(r) != ncols {
				return fmt.Errorf("%s row has %d values, want %d", table, len(r), ncols)
			}
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(placeholder)
			args = append(args, r...)
		}

		if _, err := tx.ExecContext(ctx, b.String(), args...); err != nil {
			return err
		}
	}
	return nil
}

func rowsPerStatement(batchSize, ncols int) int {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if limit := maxVariables / ncols; batchSize > limit {
		return limit
	}
	return batchSize
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
