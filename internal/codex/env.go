package codex

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// SpawnEnv returns the environment for a codex child. On darwin, apps started
// from Finder inherit a minimal PATH, so common install locations are added.
func SpawnEnv() []string {
	return spawnEnv(runtime.GOOS, os.Environ())
}

func spawnEnv(goos string, environ []string) []string {
	if goos != "darwin" {
		return environ
	}

	home, _ := HomeDir()
	nvmDir := os.Getenv("NVM_DIR")
	if nvmDir == "" {
		nvmDir = filepath.Join(home, ".nvm")
	}

	out := make([]string, 0, len(environ)+1)
	var current string
	for _, kv := range environ {
		if v, ok := strings.CutPrefix(kv, "PATH="); ok {
			current = v
			continue
		}
		out = append(out, kv)
	}
	return append(out, "PATH="+EnrichPath(current, home, nvmDir))
}

// EnrichPath prepends well-known toolchain directories to current. Node
// versions installed by nvm are discovered on disk.
func EnrichPath(current, home, nvmDir string) string {
	extra := []string{
		"/opt/homebrew/bin",
		"/opt/homebrew/sbin",
		"/usr/local/bin",
		"/usr/local/sbin",
		"/usr/local/share/npm/bin",
	}
	if home != "" {
		extra = append(extra,
			filepath.Join(home, ".local", "bin"),
			filepath.Join(home, ".volta", "bin"),
			filepath.Join(home, ".fnm", "aliases", "default", "bin"),
			filepath.Join(home, ".cargo", "bin"),
			filepath.Join(home, ".bun", "bin"),
		)
	}

	if entries, err := os.ReadDir(filepath.Join(nvmDir, "versions", "node")); err == nil {
		for _, e := range entries {
			bin := filepath.Join(nvmDir, "versions", "node", e.Name(), "bin")
			if info, err := os.Stat(bin); err == nil && info.IsDir() {
				extra = append(extra, bin)
			}
		}
	}
	if alias := filepath.Join(nvmDir, "alias", "default"); fileExists(alias) {
		extra = append(extra, alias)
	}

	seen := make(map[string]bool)
	parts := make([]string, 0, len(extra)+8)
	for _, p := range append(extra, filepath.SplitList(current)...) {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		parts = append(parts, p)
	}
	return strings.Join(parts, string(os.PathListSeparator))
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

// ResolveBinary locates name on the spawn PATH. exec.Command resolves names
// against the parent's PATH, which on darwin misses the enriched entries.
// On windows the .cmd and .exe shims installed by npm are preferred. When
// nothing is found name is returned unchanged so the start error names it.
func ResolveBinary(name string) string {
	if name == "" || strings.ContainsRune(name, os.PathSeparator) || strings.Contains(name, "/") {
		return name
	}
	if runtime.GOOS == "windows" {
		for _, ext := range []string{".cmd", ".exe"} {
			if p, err := exec.LookPath(name + ext); err == nil {
				return p
			}
		}
		return name
	}
	for _, kv := range SpawnEnv() {
		if v, ok := strings.CutPrefix(kv, "PATH="); ok {
			if p := lookPathIn(name, v); p != "" {
				return p
			}
		}
	}
	return name
}

func lookPathIn(name, pathList string) string {
	for _, dir := range filepath.SplitList(pathList) {
		if dir == "" {
			continue
		}
		p := filepath.Join(dir, name)
		if info, err := os.Stat(p); err == nil && !info.IsDir() && info.Mode()&0o111 != 0 {
			return p
		}
	}
	return ""
}
