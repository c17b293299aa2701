package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/Zuo-Peng/imsgdb/internal/index"
)

type Result struct {
	MessageID   int64
	Target      string
	Date        string
	Sender      string
	IsFromMe    bool
	IsDuplicate bool
	Line        int
	Snippet     string
}

type Options struct {
	Query             string
	Target            string // "" = all conversations
	Sender            string // "" = all senders
	FromMe            *bool  // nil = both directions
	IncludeDuplicates bool
	Limit             int
}

// makeSnippet extracts a snippet around the first occurrence of query in text.
func makeSnippet(text, query string, contextChars int) string {
	text = strings.ReplaceAll(text, "\n", " ")
	lower := strings.ToLower(text)
	qLower := strings.ToLower(query)
	idx := strings.Index(lower, qLower)
	if idx < 0 || query == "" || len(lower) != len(text) {
		// no match (or case folding changed byte offsets), return head
		if len([]rune(text)) > contextChars*2 {
			return string([]rune(text)[:contextChars*2]) + "..."
		}
		return text
	}
	runes := []rune(text)
	qRunes := []rune(query)
	// find rune position of idx
	runePos := len([]rune(text[:idx]))
	start := runePos - contextChars
	if start < 0 {
		start = 0
	}
	end := runePos + len(qRunes) + contextChars
	if end > len(runes) {
		end = len(runes)
	}
	prefix := ""
	suffix := ""
	if start > 0 {
		prefix = "..."
	}
	if end < len(runes) {
		suffix = "..."
	}
	// wrap the matched part with markers
	snippet := string(runes[start:runePos]) +
		">>>" + string(runes[runePos:runePos+len(qRunes)]) + "<<<" +
		string(runes[runePos+len(qRunes):end])
	return prefix + snippet + suffix
}

// escapeLike makes query match literally inside a LIKE pattern.
func escapeLike(q string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(q)
}

// Search finds messages whose text contains opts.Query, newest line first
// within each conversation. Duplicates are skipped unless asked for.
func Search(ctx context.Context, db *index.DB, opts Options) ([]Result, error) {
	if opts.Limit <= 0 {
		opts.Limit = 100
	}
	if strings.TrimSpace(opts.Query) == "" {
		return nil, fmt.Errorf("empty query")
	}

	var conditions []string
	var args []interface{}

	conditions = append(conditions, `message_text LIKE ? ESCAPE '\'`)
	args = append(args, "%"+escapeLike(opts.Query)+"%")

	// conversation filter
	if opts.Target != "" {
		conditions = append(conditions, "target_number = ?")
		args = append(args, opts.Target)
	}

	// sender filter
	if opts.Sender != "" {
		conditions = append(conditions, "sender = ?")
		args = append(args, opts.Sender)
	}

	// direction filter
	if opts.FromMe != nil {
		conditions = append(conditions, "is_from_me = ?")
		args = append(args, *opts.FromMe)
	}

	if !opts.IncludeDuplicates {
		conditions = append(conditions, "is_duplicate = FALSE")
	}

	where := strings.Join(conditions, " AND ")

	query := fmt.Sprintf(`
		SELECT
			id,
			target_number,
			COALESCE(message_date, ''),
			COALESCE(sender, ''),
			COALESCE(is_from_me, 0),
			COALESCE(is_duplicate, 0),
			COALESCE(line_number, 0),
			COALESCE(message_text, '')
		FROM messages
		WHERE %s
		ORDER BY target_number, line_number DESC
		LIMIT ?
	`, where)

	args = append(args, opts.Limit)

	rows, err := db.Raw().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var fullText string
		if err := rows.Scan(
			&r.MessageID, &r.Target, &r.Date, &r.Sender,
			&r.IsFromMe, &r.IsDuplicate, &r.Line, &fullText,
		); err != nil {
			return nil, err
		}
		r.Snippet = makeSnippet(fullText, opts.Query, 30)
		results = append(results, r)
	}
	return results, rows.Err()
}

// ListAll returns one row per conversation, most messages first.
func ListAll(ctx context.Context, db *index.DB, limit int) ([]index.ConversationRow, error) {
	convs, err := db.ListConversations(ctx)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	if limit > 0 && len(convs) > limit {
		convs = convs[:limit]
	}
	return convs, nil
}
