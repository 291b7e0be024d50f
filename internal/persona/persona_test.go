package persona

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "persona.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_EmptyPathUsesDefault(t *testing.T) {
	p, fromFile, err := Load("")
	require.NoError(t, err)
	require.False(t, fromFile)
	require.Equal(t, Default(), p)
}

func TestLoad_MissingFileUsesDefault(t *testing.T) {
	p, fromFile, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	require.False(t, fromFile)
	require.Equal(t, Default(), p)
}

func TestLoad_MergesFileOverDefault(t *testing.T) {
	path := writeFile(t, `
name: Shiki
personality: |
  Speaks softly.
aside:
  prompt: "one word, please"
`)
	p, fromFile, err := Load(path)
	require.NoError(t, err)
	require.True(t, fromFile)
	require.Equal(t, "Shiki", p.Name)
	require.Equal(t, "Speaks softly.", p.Personality)
	require.Equal(t, "one word, please", p.Aside.Prompt)
	require.Equal(t, Default().Aside.System, p.Aside.System)
	require.Equal(t, Default().Apology, p.Apology)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeFile(t, "name: [unterminated")
	_, _, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "parse")
}

func TestLoad_UnreadablePath(t *testing.T) {
	_, _, err := Load(t.TempDir())
	require.Error(t, err)
	require.Contains(t, err.Error(), "read")
}
