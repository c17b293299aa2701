package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/Zuo-Peng/imsgdb/internal/parse"
	"github.com/Zuo-Peng/imsgdb/internal/scan"
)

var (
	ErrTranscriptMissing = errors.New("transcript file not found")
	ErrNoConversations   = errors.New("no conversation directories found")
	ErrNothingImported   = errors.New("no conversations were imported")
)

// ParseFunc turns one transcript file into a parse result.
type ParseFunc func(path string, opts parse.Options) (*parse.Result, error)

type BuildOptions struct {
	ExportRoot string
	Layout     scan.Layout
	SelfLabel  string
	BatchSize  int
	Logger     *slog.Logger
	Parse      ParseFunc // nil means parse.ParseFile
}

type Stats struct {
	Discovered  int
	Imported    int
	Skipped     int // missing transcript or no messages
	Failed      int
	Messages    int
	Duplicates  int
	Attachments int
	Tapbacks    int
}

func (s Stats) String() string {
	return fmt.Sprintf("discovered=%d imported=%d skipped=%d failed=%d messages=%d duplicates=%d attachments=%d tapbacks=%d",
		s.Discovered, s.Imported, s.Skipped, s.Failed, s.Messages, s.Duplicates, s.Attachments, s.Tapbacks)
}

// Build imports every conversation directory under opts.ExportRoot into db,
// one at a time. A conversation that fails is logged and skipped; the run
// only fails when nothing was found or nothing could be imported.
func Build(ctx context.Context, db *DB, opts BuildOptions) (Stats, error) {
	var stats Stats
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	if opts.Layout.Prefix == "" {
		opts.Layout = scan.DefaultLayout
	}
	if opts.Parse == nil {
		opts.Parse = parse.ParseFile
	}

	convs, err := scan.Conversations(opts.ExportRoot, opts.Layout)
	if err != nil {
		return stats, fmt.Errorf("scan: %w", err)
	}
	stats.Discovered = len(convs)
	if len(convs) == 0 {
		return stats, ErrNoConversations
	}
	log.Info("found conversations", "count", len(convs), "root", opts.ExportRoot)

	for _, conv := range convs {
		clog := log.With("target", conv.Target)

		is, err := importConversation(ctx, db, conv, opts, clog)
		switch {
		case errors.Is(err, ErrTranscriptMissing):
			stats.Skipped++
			clog.Warn("no conversation file found", "path", conv.Transcript)
			continue
		case errors.Is(err, ErrNoMessages):
			stats.Skipped++
			clog.Warn("no messages found")
			continue
		case err != nil:
			stats.Failed++
			clog.Error("import failed", "error", err)
			continue
		}

		stats.Imported++
		stats.Messages += is.Messages
		stats.Duplicates += is.Duplicates
		stats.Attachments += is.Attachments
		stats.Tapbacks += is.Tapbacks
		clog.Info("imported", "messages", is.Messages, "attachments", is.Attachments,
			"tapbacks", is.Tapbacks, "duplicates", is.Duplicates)
	}

	if stats.Imported == 0 {
		return stats, ErrNothingImported
	}

	log.Info("optimizing database")
	if err := db.Optimize(ctx); err != nil {
		return stats, err
	}
	return stats, nil
}

// importConversation parses and ingests one directory. Panics below this
// point are turned into an error for this conversation only.
func importConversation(ctx context.Context, db *DB, conv scan.Conversation, opts BuildOptions, log *slog.Logger) (is IngestStats, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	if _, err := os.Stat(conv.Transcript); err != nil {
		if os.IsNotExist(err) {
			return is, ErrTranscriptMissing
		}
		return is, err
	}

	attachments, err := scan.BuildAttachmentIndex(opts.ExportRoot, conv.Dir)
	if err != nil {
		return is, fmt.Errorf("attachment index: %w", err)
	}
	log.Debug("attachment index built", "files", len(attachments))

	res, err := opts.Parse(conv.Transcript, parse.Options{
		Target:      conv.Target,
		SelfLabel:   opts.SelfLabel,
		Attachments: attachments,
	})
	if err != nil {
		return is, err
	}
	log.Debug("parsed transcript", "messages", len(res.Messages),
		"attachments", len(res.Attachments), "tapbacks", len(res.Tapbacks))

	return Ingest(ctx, db, res, opts.BatchSize)
}
