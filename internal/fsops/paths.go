// Package fsops implements workspace-scoped file operations for the UI.
package fsops

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zjrosen/codexwui/internal/codex"
)

var (
	// ErrWorkspaceRequired is returned when no workspace root is given.
	ErrWorkspaceRequired = errors.New("workspacePath is required")
	// ErrWorkspaceMissing is returned when the workspace root does not exist.
	ErrWorkspaceMissing = errors.New("workspacePath does not exist")
	// ErrWorkspaceNotDir is returned when the workspace root is a file.
	ErrWorkspaceNotDir = errors.New("workspacePath is not a directory")
	// ErrParentMissing is returned when a new file's directory does not exist.
	ErrParentMissing = errors.New("target parent directory does not exist")
	// ErrOutsideWorkspace is returned for paths that resolve outside the root.
	ErrOutsideWorkspace = errors.New("path is outside workspace root")
)

// WorkspaceRoot expands and canonicalizes workspace, following symlinks.
func WorkspaceRoot(workspace string) (string, error) {
	if strings.TrimSpace(workspace) == "" {
		return "", ErrWorkspaceRequired
	}
	root, err := filepath.EvalSymlinks(codex.ExpandTildePath(workspace))
	if err != nil {
		return "", ErrWorkspaceMissing
	}
	root, err = filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", workspace, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return "", ErrWorkspaceMissing
	}
	if !info.IsDir() {
		return "", ErrWorkspaceNotDir
	}
	return root, nil
}

// Resolve maps p, absolute or relative to workspace, to a canonical path
// inside workspace. p need not exist but its parent must.
func Resolve(workspace, p string) (string, error) {
	root, err := WorkspaceRoot(workspace)
	if err != nil {
		return "", err
	}

	target := codex.ExpandTildePath(p)
	if !filepath.IsAbs(target) {
		target = filepath.Join(root, target)
	}

	var resolved string
	if _, err := os.Lstat(target); err == nil {
		resolved, err = filepath.EvalSymlinks(target)
		if err != nil {
			return "", fmt.Errorf("resolving %s: %w", p, err)
		}
	} else {
		parent, err := filepath.EvalSymlinks(filepath.Dir(target))
		if err != nil {
			return "", ErrParentMissing
		}
		resolved = filepath.Join(parent, filepath.Base(target))
	}

	if !within(root, resolved) {
		return "", fmt.Errorf("%w: %s", ErrOutsideWorkspace, p)
	}
	return resolved, nil
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
