package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func readCodex(t *testing.T, path string) CodexConfig {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc struct {
		Codex CodexConfig `yaml:"codex"`
	}
	require.NoError(t, yaml.Unmarshal(data, &doc))
	return doc.Codex
}

func TestSaveCodex_CreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	codex := Defaults().Codex
	codex.Model = "o3"

	require.NoError(t, SaveCodex(path, codex))

	require.Equal(t, codex, readCodex(t, path))
}

func TestSaveCodex_PreservesOtherSectionsAndComments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, WriteDefaultConfig(path))

	codex := Defaults().Codex
	codex.Yolo = true
	codex.Sandbox = "read-only"
	require.NoError(t, SaveCodex(path, codex))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)

	require.Contains(t, content, "# Tracing for codex turns (disabled by default)")
	require.Contains(t, content, "addr: 127.0.0.1:8765")
	require.Contains(t, content, "persist-history: true")

	got := readCodex(t, path)
	require.True(t, got.Yolo)
	require.Equal(t, "read-only", got.Sandbox)
}

func TestSaveCodex_AppendsMissingSection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api:\n  addr: :9000\n"), 0o600))

	require.NoError(t, SaveCodex(path, CodexConfig{Binary: "/opt/codex"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "addr: :9000")
	require.Equal(t, "/opt/codex", readCodex(t, path).Binary)
}

func TestSaveCodex_RejectsNonMappingRoot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- a\n- b\n"), 0o600))

	require.ErrorContains(t, SaveCodex(path, Defaults().Codex), "root is not a mapping")
}

func TestSaveCodex_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, SaveCodex(path, Defaults().Codex))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
