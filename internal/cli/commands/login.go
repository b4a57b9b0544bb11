package commands

import (
	"context"
	"fmt"
	"os"
	"syscall"

	"github.com/go-playground/validator/v10"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// stdinIsTerminal reports whether prompts can be shown. Tests replace it.
var stdinIsTerminal = func() bool {
	return term.IsTerminal(int(syscall.Stdin))
}

// NewLoginCmd creates the login command
func NewLoginCmd() *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to a quill server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(cmd.Context(), email, password, globalOptions(cmd)...)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Email address (or set QUILL_EMAIL, will prompt if not provided)")
	cmd.Flags().StringVar(&password, "password", "", "Password (or set QUILL_PASSWORD, will prompt if not provided)")

	return cmd
}

func runLogin(ctx context.Context, email, password string, opts ...Option) error {
	e := newEnv(opts...)

	// Environment variables are useful for CI/CD
	if email == "" {
		email = os.Getenv("QUILL_EMAIL")
	}
	if password == "" {
		password = os.Getenv("QUILL_PASSWORD")
	}

	server, err := e.resolveServer()
	if err != nil {
		return err
	}

	interactive := stdinIsTerminal()

	if email == "" {
		if !interactive {
			return fmt.Errorf("email is required in non-interactive mode (use --email flag or QUILL_EMAIL env var)")
		}
		if email, err = promptEmail(); err != nil {
			return err
		}
	}

	if password == "" {
		if !interactive {
			return fmt.Errorf("password is required in non-interactive mode (use --password flag or QUILL_PASSWORD env var)")
		}
		fmt.Fprint(e.out, "Password: ")
		bytePassword, err := term.ReadPassword(int(syscall.Stdin))
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		password = string(bytePassword)
		fmt.Fprintln(e.out)
	}

	m, err := e.session()
	if err != nil {
		return err
	}

	fmt.Fprintf(e.out, "Logging in to %s (%s)...\n", server.Alias, server.URL)

	res := m.Login(ctx, email, password)
	if !res.Success {
		return fmt.Errorf("login failed: %s", res.Message)
	}

	fmt.Fprintln(e.out, "✓ Login successful!")
	if user := m.State().User; user != nil {
		fmt.Fprintf(e.out, "  User: %s (%s)\n", user.Name, user.Email)
		if user.Role != "" {
			fmt.Fprintf(e.out, "  Role: %s\n", user.Role)
		}
	}

	return nil
}

func promptEmail() (string, error) {
	validate := validator.New()
	prompt := promptui.Prompt{
		Label: "Email",
		Validate: func(input string) error {
			if err := validate.Var(input, "required,email"); err != nil {
				return fmt.Errorf("enter a valid email address")
			}
			return nil
		},
	}

	email, err := prompt.Run()
	if err != nil {
		return "", fmt.Errorf("login cancelled: %w", err)
	}
	return email, nil
}
