package export

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// Exporter produces a plain-text export of one conversation.
type Exporter interface {
	Export(ctx context.Context, target string) (string, error)
}

// CommandExporter runs imessage-exporter (or a compatible binary) once per
// target, writing into Root/<target>.
type CommandExporter struct {
	Bin    string
	Root   string
	Force  bool // remove an existing export directory first
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

// Args returns the exporter arguments for target writing to dir.
func Args(target, dir string) []string {
	return []string{"-f", "txt", "-c", "clone", "-t", target, "-o", dir}
}

// Export runs the exporter and returns the directory it wrote to.
func (e *CommandExporter) Export(ctx context.Context, target string) (string, error) {
	if !strings.HasPrefix(target, "+") {
		return "", fmt.Errorf("target %q: expected +<digits>", target)
	}
	log := e.Logger
	if log == nil {
		log = slog.Default()
	}

	dir := filepath.Join(e.Root, target)
	if e.Force {
		if err := os.RemoveAll(dir); err != nil {
			return "", fmt.Errorf("remove existing export: %w", err)
		}
	}

	cmd := exec.CommandContext(ctx, e.Bin, Args(target, dir)...)
	cmd.Stdout = e.Stdout
	cmd.Stderr = e.Stderr
	log.Info("running exporter", "bin", e.Bin, "target", target, "dir", dir)
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("export %s: %w", target, err)
	}
	return dir, nil
}

// NormalizeNames replaces "+" with placeholder in every file and directory
// name under root, files first and then directories deepest first. An
// existing entry with the new name is replaced. It returns the number of
// entries renamed.
func NormalizeNames(root, placeholder string) (int, error) {
	if placeholder == "" || strings.Contains(placeholder, "+") {
		return 0, fmt.Errorf("invalid placeholder %q", placeholder)
	}

	var files, dirs []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == root || !strings.Contains(info.Name(), "+") {
			return nil
		}
		if info.IsDir() {
			dirs = append(dirs, path)
		} else {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("walk %s: %w", root, err)
	}

	// deepest directories first so parents are renamed after their children
	sort.Slice(dirs, func(i, j int) bool {
		return strings.Count(dirs[i], string(filepath.Separator)) > strings.Count(dirs[j], string(filepath.Separator))
	})

	n := 0
	for _, path := range append(files, dirs...) {
		newPath := filepath.Join(filepath.Dir(path), strings.ReplaceAll(filepath.Base(path), "+", placeholder))
		if err := os.RemoveAll(newPath); err != nil {
			return n, fmt.Errorf("remove %s: %w", newPath, err)
		}
		if err := os.Rename(path, newPath); err != nil {
			return n, fmt.Errorf("rename %s: %w", path, err)
		}
		n++
	}
	return n, nil
}
