package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// NewStatusCmd creates the status command
func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the stored session without contacting the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(globalOptions(cmd)...)
		},
	}
}

func runStatus(opts ...Option) error {
	e := newEnv(opts...)

	server, err := e.resolveServer()
	if err != nil {
		return err
	}
	m, err := e.session()
	if err != nil {
		return err
	}

	st := m.State()

	w := tabwriter.NewWriter(e.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Server:\t%s (%s)\n", server.Alias, server.URL)
	fmt.Fprintf(w, "Status:\t%s\n", st.Status)
	if st.User != nil {
		fmt.Fprintf(w, "User:\t%s (%s)\n", st.User.Name, st.User.Email)
		if st.User.Role != "" {
			fmt.Fprintf(w, "Role:\t%s\n", st.User.Role)
		}
	}
	if st.IsAdmin {
		fmt.Fprintln(w, "Admin:\tyes")
	}
	if st.Error != "" {
		fmt.Fprintf(w, "Last error:\t%s\n", st.Error)
	}
	return w.Flush()
}
