package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/quill-dev/quill/internal/backend"
	"github.com/quill-dev/quill/internal/blog"
	"github.com/quill-dev/quill/internal/cli/auth"
	"github.com/quill-dev/quill/internal/cli/config"
	"github.com/quill-dev/quill/internal/cli/serverselect"
	"github.com/quill-dev/quill/internal/logger"
	"github.com/quill-dev/quill/internal/session"
)

// env holds what a command runs against. Anything not injected through an
// Option is resolved from quill.yaml, the user config and the OS keyring.
type env struct {
	serverAlias string
	verbose     bool
	out         io.Writer

	server  *config.Server
	manager *session.Manager
	querier blog.Querier
}

// Option configures a command run
type Option func(*env)

// WithServer skips server resolution
func WithServer(server *config.Server) Option {
	return func(e *env) {
		e.server = server
	}
}

// WithServerAlias selects the server by alias, as the --server flag does
func WithServerAlias(alias string) Option {
	return func(e *env) {
		e.serverAlias = alias
	}
}

// WithSession injects the session and the client used for queries
func WithSession(manager *session.Manager, querier blog.Querier) Option {
	return func(e *env) {
		e.manager = manager
		e.querier = querier
	}
}

// WithOutput redirects command output
func WithOutput(w io.Writer) Option {
	return func(e *env) {
		e.out = w
	}
}

// WithVerbose enables debug logging on stderr
func WithVerbose(verbose bool) Option {
	return func(e *env) {
		e.verbose = verbose
	}
}

// globalOptions turns the root command's persistent flags into options
func globalOptions(cmd *cobra.Command) []Option {
	alias, _ := cmd.Flags().GetString("server")
	verbose, _ := cmd.Flags().GetBool("verbose")
	return []Option{
		WithServerAlias(alias),
		WithVerbose(verbose),
		WithOutput(cmd.OutOrStdout()),
	}
}

func newEnv(opts ...Option) *env {
	e := &env{out: os.Stdout}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// resolveServer returns the injected server or the one selected for this project
func (e *env) resolveServer() (*config.Server, error) {
	if e.server != nil {
		return e.server, nil
	}

	server, err := getSelectedServer(e.serverAlias)
	if err != nil {
		return nil, err
	}
	e.server = server
	return server, nil
}

// session returns the injected session or opens the one persisted for the server
func (e *env) session() (*session.Manager, error) {
	if e.manager != nil {
		return e.manager, nil
	}

	server, err := e.resolveServer()
	if err != nil {
		return nil, err
	}

	client, err := backend.New(server.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	level := "warn"
	if e.verbose {
		level = "debug"
	}
	log := logger.New(os.Stderr, level, "console").With().Str("server", server.Alias).Logger()

	e.manager = session.New(client,
		session.WithStore(auth.NewKeyringStore(server.URL)),
		session.WithLogger(log),
	)
	e.querier = client
	return e.manager, nil
}

// getSelectedServer loads the config and returns the selected server.
func getSelectedServer(serverAlias string) (*config.Server, error) {
	cfg, err := config.LoadFromCurrentDir()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w\nRun 'quill init' to create a configuration file", err)
	}

	server, err := serverselect.ResolveServer(cfg, serverAlias)
	if err != nil {
		return nil, err
	}

	if server.URL == "" {
		return nil, fmt.Errorf("server URL is empty. Please edit %s and add a valid URL", config.ConfigFileName)
	}

	return server, nil
}

// expired turns a terminal session error into the message shown to the user
func expired(err error) error {
	if session.IsSessionExpired(err) {
		return fmt.Errorf("session expired. Please run 'quill login' again")
	}
	return err
}

// requireToken fails fast when nothing was ever signed in on this server
func requireToken(m *session.Manager) error {
	if !m.State().HasToken {
		return fmt.Errorf("not authenticated. Please run 'quill login' first")
	}
	return nil
}
