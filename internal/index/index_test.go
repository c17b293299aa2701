package index

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Zuo-Peng/imsgdb/internal/parse"
	"github.com/Zuo-Peng/imsgdb/internal/scan"
)

var quietLog = slog.New(slog.NewTextHandler(io.Discard, nil))

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func writeTranscript(t *testing.T, root, dir string, lines ...string) {
	t.Helper()
	writeFile(t, filepath.Join(root, dir, dir+".txt"), []byte(strings.Join(lines, "\n")+"\n"))
}

func newDB(t *testing.T) *DB {
	t.Helper()
	db, err := CreateDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("CreateDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// sampleExport lays out three conversations: a threaded one with
// attachments, one without a transcript and one with an empty transcript.
func sampleExport(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	writeTranscript(t, root, "p15551234567",
		"Jan 1, 2024  9:00:00 AM",
		"Me",
		"Hello there",
		"    Jan 1, 2024  9:01:00 AM",
		"    Alice",
		"    Hi back",
		"Tapbacks:",
		"Loved by Alice",
		"",
		"Jan 1, 2024  9:05:00 AM",
		"Alice",
		"/Users/me/exported/p15551234567/attachments/4/IMG_0001.jpeg",
		"attachments/4/gone.mov",
		"pics",
		"",
		"Jan 1, 2024  9:05:00 AM",
		"Alice",
		"pics",
		"",
		"Alice unsent a message!",
	)
	writeFile(t, filepath.Join(root, "p15551234567", "attachments", "4", "IMG_0001.jpeg"), make([]byte, 1234))

	if err := os.MkdirAll(filepath.Join(root, "p15559990000"), 0o755); err != nil {
		t.Fatal(err)
	}
	writeTranscript(t, root, "p15558887777", "no timestamps here")
	return root
}

func TestBuild_SampleExport(t *testing.T) {
	ctx := context.Background()
	root := sampleExport(t)
	db := newDB(t)

	stats, err := Build(ctx, db, BuildOptions{ExportRoot: root, Logger: quietLog, BatchSize: 2})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if stats.Discovered != 3 || stats.Imported != 1 || stats.Skipped != 2 || stats.Failed != 0 {
		t.Fatalf("stats = %s", stats)
	}
	if stats.Messages != 4 || stats.Duplicates != 1 || stats.Attachments != 2 || stats.Tapbacks != 1 {
		t.Errorf("totals = %s", stats)
	}

	conv, err := db.GetConversation(ctx, "+15551234567")
	if err != nil || conv == nil {
		t.Fatalf("GetConversation: %v %v", conv, err)
	}
	if conv.MessageCount != 4 || conv.AttachmentCount != 2 {
		t.Errorf("counts = %d/%d, want 4/2", conv.MessageCount, conv.AttachmentCount)
	}
	if conv.FirstDate != "Jan 1, 2024  9:00:00 AM" || conv.LastDate != "" {
		t.Errorf("first/last = %q/%q", conv.FirstDate, conv.LastDate)
	}

	msgs, err := db.GetThread(ctx, "+15551234567")
	if err != nil {
		t.Fatalf("GetThread: %v", err)
	}
	if len(msgs) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(msgs))
	}

	first, reply := msgs[0], msgs[1]
	if first.ReplyTo != nil {
		t.Errorf("level-0 message has reply edge %d", *first.ReplyTo)
	}
	if reply.ReplyTo == nil || *reply.ReplyTo != first.ID {
		t.Errorf("reply edge = %v, want %d", reply.ReplyTo, first.ID)
	}
	if reply.Indent != 1 || reply.Line != 3 {
		t.Errorf("reply indent/line = %d/%d", reply.Indent, reply.Line)
	}
	if len(reply.Tapbacks) != 1 || reply.Tapbacks[0].Type != "Loved" || reply.Tapbacks[0].Sender != "Alice" {
		t.Errorf("tapbacks = %+v", reply.Tapbacks)
	}

	pics := msgs[2]
	if len(pics.Attachments) != 2 {
		t.Fatalf("attachments = %+v", pics.Attachments)
	}
	found, missing := pics.Attachments[0], pics.Attachments[1]
	if found.RelPath != "p15551234567/attachments/4/IMG_0001.jpeg" || found.Size == nil || *found.Size != 1234 {
		t.Errorf("found attachment = %+v", found)
	}
	if found.MIME != "image/jpeg" {
		t.Errorf("MIME = %q", found.MIME)
	}
	if missing.RelPath != "" || missing.Size != nil || missing.Filename != "gone.mov" || missing.DirNumber != "4" {
		t.Errorf("missing attachment = %+v", missing)
	}

	if msgs[2].IsDuplicate || !msgs[3].IsDuplicate {
		t.Errorf("duplicate flags = %v/%v, want false/true", msgs[2].IsDuplicate, msgs[3].IsDuplicate)
	}

	unsent := msgs[4]
	if unsent.Type != "unsent" || !unsent.IsUnsent || unsent.Text != parse.UnsentText || unsent.Sender != "Alice" {
		t.Errorf("unsent = %+v", unsent)
	}
}

func TestBuild_RebuildIsIdempotent(t *testing.T) {
	ctx := context.Background()
	root := sampleExport(t)
	path := filepath.Join(t.TempDir(), "rebuild.db")

	dump := func() string {
		db, err := CreateDB(path)
		if err != nil {
			t.Fatalf("CreateDB: %v", err)
		}
		defer db.Close()
		if _, err := Build(ctx, db, BuildOptions{ExportRoot: root, Logger: quietLog}); err != nil {
			t.Fatalf("Build: %v", err)
		}
		return dumpStore(t, db)
	}

	first := dump()
	second := dump()
	if first != second {
		t.Errorf("rebuild differs:\n%s\n---\n%s", first, second)
	}
}

// dumpStore renders every row except created_at columns.
func dumpStore(t *testing.T, db *DB) string {
	t.Helper()
	queries := []string{
		`SELECT target_number, message_count, attachment_count, first_message_date, last_message_date FROM conversations ORDER BY target_number`,
		`SELECT id, target_number, message_date, sender, message_text, is_from_me, reply_to_message_id, message_type,
			indent_level, read_receipt_info, edited_text, edit_timestamp, is_unsent, expressive_type, line_number, is_duplicate
			FROM messages ORDER BY id`,
		`SELECT id, message_id, filename, relative_path, directory_number, file_size, mime_type, is_sticker FROM attachments ORDER BY id`,
		`SELECT id, target_message_id, sender, tapback_type, is_from_me FROM tapbacks ORDER BY id`,
	}

	var b strings.Builder
	for _, q := range queries {
		rows, err := db.Raw().Query(q)
		if err != nil {
			t.Fatalf("dump: %v", err)
		}
		cols, _ := rows.Columns()
		for rows.Next() {
			vals := make([]any, len(cols))
			ptrs := make([]any, len(cols))
			for i := range vals {
				ptrs[i] = &vals[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				t.Fatalf("dump scan: %v", err)
			}
			fmt.Fprintln(&b, vals...)
		}
		rows.Close()
	}
	return b.String()
}

func TestBuild_NoConversations(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "not-a-conversation"), 0o755); err != nil {
		t.Fatal(err)
	}
	_, err := Build(context.Background(), newDB(t), BuildOptions{ExportRoot: root, Logger: quietLog})
	if !errors.Is(err, ErrNoConversations) {
		t.Fatalf("err = %v, want ErrNoConversations", err)
	}
}

func TestBuild_NothingImported(t *testing.T) {
	root := t.TempDir()
	writeTranscript(t, root, "p15551234567", "", "")
	stats, err := Build(context.Background(), newDB(t), BuildOptions{ExportRoot: root, Logger: quietLog})
	if !errors.Is(err, ErrNothingImported) {
		t.Fatalf("err = %v, want ErrNothingImported", err)
	}
	if stats.Skipped != 1 {
		t.Errorf("stats = %s", stats)
	}
}

func TestBuild_CustomLayout(t *testing.T) {
	root := t.TempDir()
	writeTranscript(t, root, "x4930123456",
		"Jan 1, 2024  9:00:00 AM",
		"Myself",
		"hallo",
	)
	db := newDB(t)
	_, err := Build(context.Background(), db, BuildOptions{
		ExportRoot: root,
		Layout:     scan.Layout{Prefix: "x", MinDigits: 8},
		SelfLabel:  "Myself",
		Logger:     quietLog,
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	msgs, err := db.GetThread(context.Background(), "+4930123456")
	if err != nil || len(msgs) != 1 {
		t.Fatalf("GetThread = %v, %v", msgs, err)
	}
	if !msgs[0].IsFromMe {
		t.Error("self label not applied")
	}
}

func TestIngest_NoMessages(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)
	_, err := Ingest(ctx, db, &parse.Result{Target: "+15551234567"}, 10)
	if !errors.Is(err, ErrNoMessages) {
		t.Fatalf("err = %v, want ErrNoMessages", err)
	}
	counts, err := db.TableCounts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for table, n := range counts {
		if n != 0 {
			t.Errorf("%s has %d rows", table, n)
		}
	}
}

func TestIngest_DropsUnresolvedTargets(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)
	res, err := parse.ParseTranscript(strings.NewReader(strings.Join([]string{
		"Jan 1, 2024  9:00:00 AM",
		"Me",
		"hi",
	}, "\n")), parse.Options{Target: "+15551234567"})
	if err != nil {
		t.Fatal(err)
	}
	res.Tapbacks = append(res.Tapbacks, parse.Tapback{TargetLine: 99, Sender: "Alice", Kind: parse.Liked})
	res.Attachments = append(res.Attachments, parse.Attachment{MessageLine: 42, Filename: "x.png", MIME: "image/png"})

	is, err := Ingest(ctx, db, res, 10)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if is.Tapbacks != 0 || is.DroppedTapbacks != 1 || is.Attachments != 0 || is.DroppedAttachments != 1 {
		t.Errorf("stats = %+v", is)
	}
}

func TestIngest_ReadReceiptAndEdit(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)
	res, err := parse.ParseTranscript(strings.NewReader(strings.Join([]string{
		"Jan 1, 2024  9:00:00 AM (Read by them after 5 seconds) Sent with Gentle",
		"Me",
		"orig",
		"Edited 30 seconds later: new text",
	}, "\n")), parse.Options{Target: "+15551234567"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Ingest(ctx, db, res, 10); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	msgs, err := db.GetThread(ctx, "+15551234567")
	if err != nil || len(msgs) != 1 {
		t.Fatalf("GetThread = %v, %v", msgs, err)
	}
	m := msgs[0]
	if m.ReadReceipt != `{"read_by":"them","duration":"5 seconds"}` {
		t.Errorf("ReadReceipt = %q", m.ReadReceipt)
	}
	if m.EditedText != "new text" || m.EditTimestamp != "30" {
		t.Errorf("edit = %q/%q", m.EditedText, m.EditTimestamp)
	}
	if m.Effect != "Gentle" {
		t.Errorf("Effect = %q", m.Effect)
	}

	got, err := db.GetMessage(ctx, m.ID)
	if err != nil || got == nil || got.Text != "orig" {
		t.Errorf("GetMessage = %+v, %v", got, err)
	}
	if missing, err := db.GetMessage(ctx, m.ID+100); err != nil || missing != nil {
		t.Errorf("GetMessage(missing) = %+v, %v", missing, err)
	}
}

func TestSummary(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)
	if _, err := Build(ctx, db, BuildOptions{ExportRoot: sampleExport(t), Logger: quietLog}); err != nil {
		t.Fatal(err)
	}
	s, err := db.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	want := Summary{Conversations: 1, Messages: 4, Duplicates: 1, Attachments: 2, Tapbacks: 1}
	if s != want {
		t.Errorf("Summary = %+v, want %+v", s, want)
	}

	convs, err := db.ListConversations(ctx)
	if err != nil || len(convs) != 1 || convs[0].Target != "+15551234567" {
		t.Errorf("ListConversations = %+v, %v", convs, err)
	}
}

func countRows(t *testing.T, db *DB, table, target string) int {
	t.Helper()
	var n int
	if err := db.Raw().QueryRow("SELECT COUNT(*) FROM "+table+" WHERE target_number = ?", target).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func TestBuild_FailedConversationIsSkipped(t *testing.T) {
	root := t.TempDir()
	writeTranscript(t, root, "p15551234567",
		"Jan 1, 2024  9:00:00 AM",
		"Me",
		"hi",
	)
	// transcript path exists but cannot be read as a file
	if err := os.MkdirAll(filepath.Join(root, "p15559990000", "p15559990000.txt"), 0o755); err != nil {
		t.Fatal(err)
	}

	db := newDB(t)
	stats, err := Build(context.Background(), db, BuildOptions{ExportRoot: root, Logger: quietLog})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if stats.Discovered != 2 || stats.Imported != 1 || stats.Failed != 1 || stats.Skipped != 0 {
		t.Errorf("stats = %s", stats)
	}
	for _, table := range []string{"conversations", "messages"} {
		if n := countRows(t, db, table, "+15559990000"); n != 0 {
			t.Errorf("%s has %d rows for the failed conversation", table, n)
		}
	}
	if n := countRows(t, db, "messages", "+15551234567"); n != 1 {
		t.Errorf("imported conversation has %d messages, want 1", n)
	}
}

func TestBuild_RecoversFromPanic(t *testing.T) {
	root := t.TempDir()
	for _, dir := range []string{"p15551234567", "p15559990000"} {
		writeTranscript(t, root, dir,
			"Jan 1, 2024  9:00:00 AM",
			"Alice",
			"hello",
		)
	}

	parseOrPanic := func(path string, opts parse.Options) (*parse.Result, error) {
		if opts.Target == "+15559990000" {
			panic("corrupt transcript")
		}
		return parse.ParseFile(path, opts)
	}

	db := newDB(t)
	stats, err := Build(context.Background(), db, BuildOptions{ExportRoot: root, Logger: quietLog, Parse: parseOrPanic})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if stats.Imported != 1 || stats.Failed != 1 {
		t.Errorf("stats = %s", stats)
	}
	if n := countRows(t, db, "conversations", "+15559990000"); n != 0 {
		t.Errorf("panicked conversation has %d rows", n)
	}
	if n := countRows(t, db, "conversations", "+15551234567"); n != 1 {
		t.Errorf("healthy conversation has %d rows, want 1", n)
	}
}

func TestIngest_RollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)
	const target = "+15551234567"

	// A stray row for the target makes the id/line pairing count disagree.
	for _, q := range []string{
		"PRAGMA foreign_keys = OFF",
		"INSERT INTO messages (target_number, message_text, line_number) VALUES ('" + target + "', 'stray', 99)",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Raw().Exec(q); err != nil {
			t.Fatal(err)
		}
	}

	res, err := parse.ParseTranscript(strings.NewReader("Jan 1, 2024  9:00:00 AM\nMe\nhi\n"), parse.Options{Target: target})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Ingest(ctx, db, res, 10); err == nil {
		t.Fatal("expected Ingest to fail")
	}
	if n := countRows(t, db, "conversations", target); n != 0 {
		t.Errorf("conversation row survived rollback")
	}
	if n := countRows(t, db, "messages", target); n != 1 {
		t.Errorf("messages = %d, want only the stray row", n)
	}
}

func TestIngest_LargeBatchSize(t *testing.T) {
	const n = 2100
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "Jan 1, 2024  9:00:00 AM\nMe\nmessage %d\n", i)
	}
	res, err := parse.ParseTranscript(strings.NewReader(b.String()), parse.Options{Target: "+15551234567"})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Messages) != n {
		t.Fatalf("parsed %d messages, want %d", len(res.Messages), n)
	}

	db := newDB(t)
	is, err := Ingest(context.Background(), db, res, n)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if is.Messages != n {
		t.Errorf("Messages = %d, want %d", is.Messages, n)
	}
	if got := countRows(t, db, "messages", "+15551234567"); got != n {
		t.Errorf("stored %d messages, want %d", got, n)
	}
}

func TestRowsPerStatement(t *testing.T) {
	tests := []struct {
		batch, ncols, want int
	}{
		{500, 16, 500},
		{0, 16, defaultBatchSize},
		{2100, 16, 2047},
		{100000, 5, 6553},
		{10000, 8, 4095},
	}
	for _, tt := range tests {
		if got := rowsPerStatement(tt.batch, tt.ncols); got != tt.want {
			t.Errorf("rowsPerStatement(%d, %d) = %d, want %d", tt.batch, tt.ncols, got, tt.want)
		}
	}
}
