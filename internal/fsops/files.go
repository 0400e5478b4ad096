package fsops

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/zjrosen/codexwui/internal/log"
)

// DirEntry is one ListDir result.
type DirEntry struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	IsDirectory bool   `json:"isDirectory"`
	Size        int64  `json:"size"`
}

// WriteSummary counts the lines a WriteFile changed.
type WriteSummary struct {
	Path    string `json:"path"`
	Created bool   `json:"created"`
	Added   int    `json:"linesAdded"`
	Removed int    `json:"linesRemoved"`
}

// ReadFile returns the contents of a workspace file.
func ReadFile(workspace, p string) (string, error) {
	resolved, err := Resolve(workspace, p)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", p, err)
	}
	return string(data), nil
}

// WriteFile replaces a workspace file's contents and reports the line diff
// against what was there before.
func WriteFile(workspace, p, content string) (WriteSummary, error) {
	resolved, err := Resolve(workspace, p)
	if err != nil {
		return WriteSummary{}, err
	}

	summary := WriteSummary{Path: resolved}
	previous, err := os.ReadFile(resolved)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		summary.Created = true
	case err != nil:
		return WriteSummary{}, fmt.Errorf("reading %s: %w", p, err)
	}

	mode := os.FileMode(0o644)
	if info, err := os.Stat(resolved); err == nil {
		mode = info.Mode().Perm()
	}
	if err := os.WriteFile(resolved, []byte(content), mode); err != nil {
		return WriteSummary{}, fmt.Errorf("writing %s: %w", p, err)
	}

	summary.Added, summary.Removed = LineDiff(string(previous), content)
	log.Debug(log.CatFS, "file written", "path", resolved, "added", summary.Added, "removed", summary.Removed)
	return summary, nil
}

// LineDiff counts lines inserted and deleted going from before to after.
func LineDiff(before, after string) (added, removed int) {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)
	for _, d := range diffs {
		n := countLines(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			added += n
		case diffmatchpatch.DiffDelete:
			removed += n
		}
	}
	return added, removed
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}

// ListDir lists a workspace directory, directories first then by name.
func ListDir(workspace, p string) ([]DirEntry, error) {
	resolved, err := Resolve(workspace, p)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(resolved)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", p, err)
	}

	out := make([]DirEntry, 0, len(entries))
	for _, e := range entries {
		full := filepath.Join(resolved, e.Name())
		entry := DirEntry{Name: e.Name(), Path: full}
		if info, err := os.Stat(full); err == nil {
			entry.IsDirectory = info.IsDir()
			if !info.IsDir() {
				entry.Size = info.Size()
			}
		}
		out = append(out, entry)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].IsDirectory != out[j].IsDirectory {
			return out[i].IsDirectory
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// FileExists reports whether p exists inside workspace. Paths outside the
// workspace report false.
func FileExists(workspace, p string) bool {
	resolved, err := Resolve(workspace, p)
	if err != nil {
		return false
	}
	_, err = os.Stat(resolved)
	return err == nil
}
