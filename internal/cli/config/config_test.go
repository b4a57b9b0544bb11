package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	orig, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(orig) })
}

func TestLoad_ParsesServers(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	data := `servers:
  - alias: production
    url: https://api.quill.dev/graphql/
  - alias: local
    url: http://localhost:8080/graphql
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Servers, 2)
	assert.Equal(t, "production", cfg.Servers[0].Alias)
	assert.Equal(t, "https://api.quill.dev/graphql", cfg.Servers[0].URL, "trailing slash is trimmed")
	assert.Equal(t, "http://localhost:8080/graphql", cfg.Servers[1].URL)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte("servers: [\n"), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	cfg := &Config{Servers: []Server{{Alias: "local", URL: "http://localhost:8080/graphql"}}}

	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestFindConfigFile_WalksUp(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, Save(filepath.Join(root, ConfigFileName), &Config{}))

	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0755))
	chdir(t, nested)

	path, err := FindConfigFile()
	require.NoError(t, err)

	want, err := filepath.EvalSymlinks(filepath.Join(root, ConfigFileName))
	require.NoError(t, err)
	got, err := filepath.EvalSymlinks(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestFindConfigFile_NotFound(t *testing.T) {
	chdir(t, t.TempDir())

	_, err := LoadFromCurrentDir()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quill.yaml not found")
}

func TestConfig_Lookup(t *testing.T) {
	cfg := &Config{Servers: []Server{
		{Alias: "production", URL: "https://api.quill.dev/graphql"},
		{Alias: "local", URL: "http://localhost:8080/graphql"},
	}}

	s, err := cfg.GetServerByAlias("local")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/graphql", s.URL)

	s, err = cfg.GetServerByURLOrAlias("https://api.quill.dev/graphql/")
	require.NoError(t, err)
	assert.Equal(t, "production", s.Alias)

	s, err = cfg.GetServerByURLOrAlias("production")
	require.NoError(t, err)
	assert.Equal(t, "production", s.Alias)

	_, err = cfg.GetServerByURLOrAlias("staging")
	assert.Error(t, err)

	s, err = cfg.GetDefaultServer()
	require.NoError(t, err)
	assert.Equal(t, "production", s.Alias)

	_, err = (&Config{}).GetDefaultServer()
	assert.Error(t, err)
}
