package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// NewWhoamiCmd creates the whoami command
func NewWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWhoami(cmd.Context(), globalOptions(cmd)...)
		},
	}
}

func runWhoami(ctx context.Context, opts ...Option) error {
	e := newEnv(opts...)

	m, err := e.session()
	if err != nil {
		return err
	}
	if err := requireToken(m); err != nil {
		return err
	}

	user, err := m.CurrentUser(ctx)
	if err != nil {
		return expired(err)
	}

	fmt.Fprintf(e.out, "%s (%s)\n", user.Name, user.Email)
	if user.Role != "" {
		fmt.Fprintf(e.out, "  Role: %s\n", user.Role)
	}
	if user.IsAdmin() {
		fmt.Fprintln(e.out, "  Admin: yes")
	}
	return nil
}
