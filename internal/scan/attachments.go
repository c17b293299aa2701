package scan

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// AttachmentFile is what the index knows about one file on disk.
type AttachmentFile struct {
	RelPath   string // relative to the export root, slash separated
	Size      int64
	DirNumber string // first attachments/<n>/ segment, "" if none
}

// AttachmentIndex maps a bare filename to its file metadata.
//
// Lookups are by filename only. When two files share a name, the one
// walked last overwrites the earlier entry, so metadata can be attributed
// to the wrong file if an export reuses names across numbered directories.
type AttachmentIndex map[string]AttachmentFile

// Lookup reports the metadata recorded for filename.
func (idx AttachmentIndex) Lookup(filename string) (AttachmentFile, bool) {
	f, ok := idx[filename]
	return f, ok
}

var dirNumberRe = regexp.MustCompile(`attachments[/\\](\d+)[/\\]`)

// BuildAttachmentIndex walks convDir/attachments once. A conversation without
// an attachments subtree yields an empty index and no error.
func BuildAttachmentIndex(exportRoot, convDir string) (AttachmentIndex, error) {
	idx := make(AttachmentIndex)
	root := filepath.Join(convDir, "attachments")

	info, err := os.Stat(root)
	if os.IsNotExist(err) {
		return idx, nil
	}
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return idx, nil
	}

	err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // skip unreadable entries
		}
		if info.IsDir() || strings.HasPrefix(info.Name(), ".") {
			return nil
		}

		rel, err := filepath.Rel(exportRoot, path)
		if err != nil {
			rel = path
		}
		rel = filepath.ToSlash(rel)

		var dirNum string
		if m := dirNumberRe.FindStringSubmatch(rel); m != nil {
			dirNum = m[1]
		}

		// last write wins on duplicate filenames
		idx[info.Name()] = AttachmentFile{
			RelPath:   rel,
			Size:      info.Size(),
			DirNumber: dirNum,
		}
		return nil
	})
	return idx, err
}
