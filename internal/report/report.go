package report

import (
	"fmt"
	"io"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/Zuo-Peng/imsgdb/internal/index"
)

// Report is what `build` and `stats` print about a store.
type Report struct {
	RunID         string     `yaml:"run_id,omitempty"`
	Database      string     `yaml:"database"`
	Conversations int        `yaml:"conversations"`
	Messages      int        `yaml:"messages"`
	Duplicates    int        `yaml:"duplicates"`
	Attachments   int        `yaml:"attachments"`
	Tapbacks      int        `yaml:"tapbacks"`
	Build         *BuildInfo `yaml:"build,omitempty"`
}

// BuildInfo is present only when the report follows a build.
type BuildInfo struct {
	Discovered int `yaml:"discovered"`
	Imported   int `yaml:"imported"`
	Skipped    int `yaml:"skipped"`
	Failed     int `yaml:"failed"`
}

func New(dbPath string, s index.Summary) Report {
	return Report{
		Database:      dbPath,
		Conversations: s.Conversations,
		Messages:      s.Messages,
		Duplicates:    s.Duplicates,
		Attachments:   s.Attachments,
		Tapbacks:      s.Tapbacks,
	}
}

// WithBuild attaches build counters and the run id.
func (r Report) WithBuild(runID string, st index.Stats) Report {
	r.RunID = runID
	r.Build = &BuildInfo{
		Discovered: st.Discovered,
		Imported:   st.Imported,
		Skipped:    st.Skipped,
		Failed:     st.Failed,
	}
	return r
}

// Write renders r as "text" (the default) or "yaml".
func Write(w io.Writer, r Report, format string) error {
	switch format {
	case "", "text":
		return writeText(w, r)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encode report: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

func writeText(w io.Writer, r Report) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if r.RunID != "" {
		fmt.Fprintf(tw, "Run:\t%s\n", r.RunID)
	}
	if b := r.Build; b != nil {
		fmt.Fprintf(tw, "Imported:\t%d of %d (%d skipped, %d failed)\n", b.Imported, b.Discovered, b.Skipped, b.Failed)
	}
	fmt.Fprintf(tw, "Conversations:\t%d\n", r.Conversations)
	fmt.Fprintf(tw, "Messages:\t%d (unique)\n", r.Messages)
	fmt.Fprintf(tw, "Duplicates:\t%d (marked)\n", r.Duplicates)
	fmt.Fprintf(tw, "Attachments:\t%d\n", r.Attachments)
	fmt.Fprintf(tw, "Tapbacks:\t%d\n", r.Tapbacks)
	fmt.Fprintf(tw, "Database:\t%s\n", r.Database)
	return tw.Flush()
}
