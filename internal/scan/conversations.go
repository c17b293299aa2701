package scan

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Conversation is one exported conversation directory.
type Conversation struct {
	Dir        string // absolute or root-relative directory path
	Target     string // "+<digits>"
	Transcript string // <dir>/<prefix><digits>.txt
}

// Layout describes how the exporter names conversation directories.
type Layout struct {
	Prefix    string // placeholder substituted for the leading "+"
	MinDigits int
}

// DefaultLayout matches the exporter output after "+" was renamed to "p".
var DefaultLayout = Layout{Prefix: "p", MinDigits: 10}

// TargetFromName returns the "+digits" identifier encoded in a directory
// name, or false when the name does not follow the layout.
func (l Layout) TargetFromName(name string) (string, bool) {
	if !strings.HasPrefix(name, l.Prefix) {
		return "", false
	}
	digits := name[len(l.Prefix):]
	if len(digits) < l.MinDigits || !isDigits(digits) {
		return "", false
	}
	return "+" + digits, true
}

// DirName is the directory name for a target, e.g. p15551234567.
func (l Layout) DirName(target string) string {
	return strings.Replace(target, "+", l.Prefix, 1)
}

// TranscriptName is the transcript filename for a target, e.g. p15551234567.txt.
func (l Layout) TranscriptName(target string) string {
	return l.DirName(target) + ".txt"
}

// TranscriptPath locates a target's transcript under the export root.
func (l Layout) TranscriptPath(root, target string) string {
	return filepath.Join(root, l.DirName(target), l.TranscriptName(target))
}

// Conversations lists the conversation directories directly under root,
// sorted by name. Entries that are not directories or do not match the
// layout are ignored.
func Conversations(root string, layout Layout) ([]Conversation, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}

	var convs []Conversation
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		target, ok := layout.TargetFromName(e.Name())
		if !ok {
			continue
		}
		dir := filepath.Join(root, e.Name())
		convs = append(convs, Conversation{
			Dir:        dir,
			Target:     target,
			Transcript: filepath.Join(dir, layout.TranscriptName(target)),
		})
	}

	sort.Slice(convs, func(i, j int) bool { return convs[i].Dir < convs[j].Dir })
	return convs, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
