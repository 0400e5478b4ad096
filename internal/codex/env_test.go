package codex

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSpawnEnv_OnlyDarwinIsEnriched(t *testing.T) {
	env := []string{"PATH=/usr/bin", "FOO=bar"}
	require.Equal(t, env, spawnEnv("linux", env))

	out := spawnEnv("darwin", env)
	require.Contains(t, out, "FOO=bar")
	var path string
	for _, kv := range out {
		if v, ok := strings.CutPrefix(kv, "PATH="); ok {
			path = v
		}
	}
	require.Contains(t, path, "/opt/homebrew/bin")
	require.True(t, strings.HasSuffix(path, "/usr/bin"))
}

func TestEnrichPath_ProbesNVMAndDeduplicates(t *testing.T) {
	home := t.TempDir()
	nvm := filepath.Join(home, ".nvm")
	nodeBin := filepath.Join(nvm, "versions", "node", "v22.1.0", "bin")
	require.NoError(t, os.MkdirAll(nodeBin, 0o755))
	// A version directory without bin is skipped.
	require.NoError(t, os.MkdirAll(filepath.Join(nvm, "versions", "node", "broken"), 0o755))

	got := filepath.SplitList(EnrichPath("/usr/local/bin"+string(os.PathListSeparator)+"/bin", home, nvm))

	require.Contains(t, got, nodeBin)
	require.Contains(t, got, filepath.Join(home, ".cargo", "bin"))
	require.NotContains(t, got, filepath.Join(nvm, "versions", "node", "broken", "bin"))
	require.Equal(t, "/bin", got[len(got)-1])

	count := 0
	for _, p := range got {
		if p == "/usr/local/bin" {
			count++
		}
	}
	require.Equal(t, 1, count)
}

func TestLookPathIn(t *testing.T) {
	dir := t.TempDir()
	exe := filepath.Join(dir, "codex")
	require.NoError(t, os.WriteFile(exe, []byte("#!/bin/sh\n"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plain"), []byte("x"), 0o644))

	require.Equal(t, exe, lookPathIn("codex", "/nonexistent"+string(os.PathListSeparator)+dir))
	require.Empty(t, lookPathIn("plain", dir))
	require.Equal(t, "/abs/codex", ResolveBinary("/abs/codex"))
}
