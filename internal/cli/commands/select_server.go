package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quill-dev/quill/internal/cli/config"
	"github.com/quill-dev/quill/internal/cli/serverselect"
	"github.com/quill-dev/quill/internal/cli/userconfig"
)

// NewSelectServerCmd creates the select-server command
func NewSelectServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "select-server [url-or-alias]",
		Short: "Select the server to use for commands",
		Long: `Select the server to use for commands.

If no param is provided, an interactive prompt will be shown.

Examples:
  $ quill select-server                                # Interactive selection
  $ quill select-server http://localhost:8080/graphql  # Select by URL
  $ quill select-server production                     # Select by alias`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var urlOrAlias string
			if len(args) > 0 {
				urlOrAlias = args[0]
			}
			return runSelectServer(urlOrAlias, globalOptions(cmd)...)
		},
	}

	return cmd
}

func runSelectServer(urlOrAlias string, opts ...Option) error {
	e := newEnv(opts...)

	cfg, err := config.LoadFromCurrentDir()
	if err != nil {
		return fmt.Errorf("failed to load config: %w\nRun 'quill init' to create a configuration file", err)
	}

	var server *config.Server
	if urlOrAlias != "" {
		server, err = cfg.GetServerByURLOrAlias(urlOrAlias)
	} else {
		server, err = serverselect.Prompt(cfg)
	}
	if err != nil {
		return err
	}

	if err := userconfig.SetSelectedServer(server.URL); err != nil {
		return fmt.Errorf("failed to save selected server: %w", err)
	}

	fmt.Fprintf(e.out, "Selected server: %s (%s)\n", server.Alias, server.URL)
	return nil
}
