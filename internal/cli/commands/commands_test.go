package commands

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/quill-dev/quill/internal/backend"
	"github.com/quill-dev/quill/internal/cli/config"
	appconfig "github.com/quill-dev/quill/internal/config"
	"github.com/quill-dev/quill/internal/devbackend"
	"github.com/quill-dev/quill/internal/session"
)

// devServer starts a dev backend seeded with alice@example.com / secret
func devServer(t *testing.T) (*devbackend.Server, *config.Server) {
	t.Helper()

	s, err := devbackend.New(appconfig.DevConfig{
		DatabaseURL:     filepath.Join(t.TempDir(), "dev.sqlite"),
		JWTSecret:       "test-secret",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
		SeedEmail:       "alice@example.com",
		SeedPassword:    "secret",
		SeedName:        "Alice",
	}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(s.Close)

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	return s, &config.Server{Alias: "local", URL: ts.URL + "/graphql"}
}

// connect opens a session against server with its own cookie jar
func connect(t *testing.T, server *config.Server, store session.SnapshotStore) (*session.Manager, *backend.Client) {
	t.Helper()
	client, err := backend.New(server.URL)
	require.NoError(t, err)
	return session.New(client, session.WithStore(store)), client
}

// setupProject writes quill.yaml into a temp dir, switches to it and
// isolates the user config and keyring
func setupProject(t *testing.T, servers ...config.Server) string {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, config.Save(filepath.Join(dir, config.ConfigFileName), &config.Config{Servers: servers}))

	orig, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(orig) })

	t.Setenv("HOME", t.TempDir())
	keyring.MockInit()
	return dir
}

func loggedIn(t *testing.T) (*devbackend.Server, *config.Server, *session.Manager, *backend.Client, *session.MemoryStore) {
	t.Helper()
	s, server := devServer(t)
	store := session.NewMemoryStore()
	m, client := connect(t, server, store)
	require.True(t, m.Login(context.Background(), "alice@example.com", "secret").Success)
	return s, server, m, client, store
}

func TestLogin_Success(t *testing.T) {
	_, server := devServer(t)
	store := session.NewMemoryStore()
	m, client := connect(t, server, store)
	var out bytes.Buffer

	err := runLogin(context.Background(), "alice@example.com", "secret",
		WithServer(server),
		WithSession(m, client),
		WithOutput(&out),
	)
	require.NoError(t, err)

	assert.Contains(t, out.String(), "Logging in to local")
	assert.Contains(t, out.String(), "✓ Login successful!")
	assert.Contains(t, out.String(), "User: Alice (alice@example.com)")
	assert.Contains(t, out.String(), "Role: owner")

	snap, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.NotEmpty(t, snap.AccessToken)
}

func TestLogin_WrongPassword(t *testing.T) {
	_, server := devServer(t)
	m, client := connect(t, server, session.NewMemoryStore())
	var out bytes.Buffer

	err := runLogin(context.Background(), "alice@example.com", "wrong",
		WithServer(server),
		WithSession(m, client),
		WithOutput(&out),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "login failed")
	assert.NotContains(t, out.String(), "Login successful")
	assert.Equal(t, session.StatusAnonymous, m.State().Status)
}

func TestLogin_CredentialsFromEnv(t *testing.T) {
	_, server := devServer(t)
	m, client := connect(t, server, session.NewMemoryStore())
	t.Setenv("QUILL_EMAIL", "alice@example.com")
	t.Setenv("QUILL_PASSWORD", "secret")

	err := runLogin(context.Background(), "", "",
		WithServer(server),
		WithSession(m, client),
		WithOutput(&bytes.Buffer{}),
	)
	require.NoError(t, err)
	assert.True(t, m.State().HasToken)
}

func TestLogin_NonInteractiveRequiresPassword(t *testing.T) {
	_, server := devServer(t)
	m, client := connect(t, server, session.NewMemoryStore())
	t.Setenv("QUILL_PASSWORD", "")
	orig := stdinIsTerminal
	stdinIsTerminal = func() bool { return false }
	t.Cleanup(func() { stdinIsTerminal = orig })

	err := runLogin(context.Background(), "alice@example.com", "",
		WithServer(server),
		WithSession(m, client),
		WithOutput(&bytes.Buffer{}),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "password is required in non-interactive mode")
}

func TestWhoami(t *testing.T) {
	_, server, m, client, _ := loggedIn(t)
	var out bytes.Buffer

	err := runWhoami(context.Background(), WithServer(server), WithSession(m, client), WithOutput(&out))
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Alice (alice@example.com)")
	assert.Contains(t, out.String(), "Admin: yes")
}

func TestWhoami_NotLoggedIn(t *testing.T) {
	_, server := devServer(t)
	m, client := connect(t, server, session.NewMemoryStore())

	err := runWhoami(context.Background(), WithServer(server), WithSession(m, client), WithOutput(&bytes.Buffer{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quill login")
}

func TestPosts_RefreshesSilently(t *testing.T) {
	s, server, m, client, _ := loggedIn(t)
	s.AdvanceClock(time.Hour)
	var out bytes.Buffer

	err := runPosts(context.Background(), WithServer(server), WithSession(m, client), WithOutput(&out))
	require.NoError(t, err)

	assert.Contains(t, out.String(), "TITLE")
	assert.Contains(t, out.String(), "CREATED AT")
	assert.Contains(t, out.String(), "Welcome to Quill")
	assert.Contains(t, out.String(), "welcome")
	assert.Equal(t, int64(1), s.RefreshCalls())
}

func TestPosts_ExpiredSessionInNewProcess(t *testing.T) {
	s, server, _, _, store := loggedIn(t)

	// a new process restores the access token but has no refresh cookie
	m, client := connect(t, server, store)
	require.True(t, m.State().HasToken)
	s.AdvanceClock(time.Hour)

	err := runPosts(context.Background(), WithServer(server), WithSession(m, client), WithOutput(&bytes.Buffer{}))
	require.Error(t, err)
	assert.Equal(t, "session expired. Please run 'quill login' again", err.Error())
	assert.False(t, m.State().HasToken)

	snap, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, snap, "the stored snapshot is cleared")
}

func TestStatus(t *testing.T) {
	_, server, m, client, _ := loggedIn(t)
	var out bytes.Buffer

	require.NoError(t, runStatus(WithServer(server), WithSession(m, client), WithOutput(&out)))
	assert.Contains(t, out.String(), "local")
	assert.Contains(t, out.String(), "authenticated")
	assert.Contains(t, out.String(), "Alice (alice@example.com)")
	assert.Contains(t, out.String(), "yes")
}

func TestLogout(t *testing.T) {
	_, server, m, client, store := loggedIn(t)
	var out bytes.Buffer

	require.NoError(t, runLogout(context.Background(), WithServer(server), WithSession(m, client), WithOutput(&out)))
	assert.Contains(t, out.String(), "✓ Logged out")
	assert.False(t, m.State().HasToken)

	snap, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, snap)

	out.Reset()
	require.NoError(t, runLogout(context.Background(), WithServer(server), WithSession(m, client), WithOutput(&out)))
	assert.Contains(t, out.String(), "Already logged out.")

	out.Reset()
	require.NoError(t, runStatus(WithServer(server), WithSession(m, client), WithOutput(&out)))
	assert.Contains(t, out.String(), "anonymous")
}

func TestCommands_UseProjectConfigAndKeyring(t *testing.T) {
	_, server := devServer(t)
	setupProject(t, *server)
	ctx := context.Background()
	var out bytes.Buffer

	require.NoError(t, runLogin(ctx, "alice@example.com", "secret", WithOutput(&out)))
	assert.Contains(t, out.String(), "Logging in to local")

	// each run opens a fresh session restored from the keyring
	out.Reset()
	require.NoError(t, runWhoami(ctx, WithOutput(&out)))
	assert.Contains(t, out.String(), "Alice (alice@example.com)")

	out.Reset()
	require.NoError(t, runStatus(WithServerAlias("local"), WithOutput(&out)))
	assert.Contains(t, out.String(), "authenticated")

	out.Reset()
	require.NoError(t, runLogout(ctx, WithOutput(&out)))
	assert.Contains(t, out.String(), "✓ Logged out")

	out.Reset()
	require.NoError(t, runStatus(WithOutput(&out)))
	assert.Contains(t, out.String(), "anonymous")
}

func TestCommands_UnknownServerAlias(t *testing.T) {
	setupProject(t, config.Server{Alias: "local", URL: "http://localhost:8080/graphql"})

	err := runStatus(WithServerAlias("staging"), WithOutput(&bytes.Buffer{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server with alias 'staging' not found")
}

func TestCommands_MissingProjectConfig(t *testing.T) {
	dir := t.TempDir()
	orig, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(orig) })

	err = runStatus(WithOutput(&bytes.Buffer{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quill init")
}
