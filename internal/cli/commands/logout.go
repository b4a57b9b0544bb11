package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// NewLogoutCmd creates the logout command
func NewLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogout(cmd.Context(), globalOptions(cmd)...)
		},
	}
}

func runLogout(ctx context.Context, opts ...Option) error {
	e := newEnv(opts...)

	m, err := e.session()
	if err != nil {
		return err
	}

	if !m.State().HasToken {
		fmt.Fprintln(e.out, "Already logged out.")
		return nil
	}

	m.Logout(ctx)
	fmt.Fprintln(e.out, "✓ Logged out")
	return nil
}
