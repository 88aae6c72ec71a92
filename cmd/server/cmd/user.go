package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/Togather-Foundation/agenda/internal/auth"
	"github.com/Togather-Foundation/agenda/internal/config"
	"github.com/Togather-Foundation/agenda/internal/domain/users"
	"github.com/Togather-Foundation/agenda/internal/storage/postgres"
	"github.com/spf13/cobra"
)

// cliPrincipal is the caller recorded for accounts created from the shell.
var cliPrincipal = auth.Principal{Email: "cli", Role: auth.RoleAdmin}

func newUserCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}
	cmd.AddCommand(newUserCreateCommand(opts))
	return cmd
}

func newUserCreateCommand(opts *rootOptions) *cobra.Command {
	var (
		params        users.NewUserParams
		passwordStdin bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user account",
		Long: `Create a user account directly in the database.

Examples:
  # Create an administrator, reading the password from stdin
  echo "$PASSWORD" | server user create --email boss@example.com --full-name "Jane Doe" --role admin --password-stdin

  # Create a regular user
  server user create --email clerk@example.com --full-name "John Roe" --password secret`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if passwordStdin {
				password, err := readPassword(cmd.InOrStdin())
				if err != nil {
					return err
				}
				params.Password = password
			}

			cfg, err := opts.loadConfig()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			pool, err := openPool(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer pool.Close()

			repo, err := postgres.NewRepository(pool)
			if err != nil {
				return fmt.Errorf("repository init: %w", err)
			}
			service, _, err := newServices(cfg, repo, config.NewLogger(cfg.Logging))
			if err != nil {
				return err
			}
			return createUser(cmd.Context(), service, params, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&params.Email, "email", "", "email address (required)")
	cmd.Flags().StringVar(&params.Login, "login", "", "optional login name")
	cmd.Flags().StringVar(&params.FullName, "full-name", "", "full name (required)")
	cmd.Flags().StringVar(&params.Position, "position", "", "job title")
	cmd.Flags().StringVar(&params.Role, "role", string(auth.RoleUser), "role (admin or user)")
	cmd.Flags().StringVar(&params.Password, "password", "", "password")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("full-name")
	cmd.MarkFlagsMutuallyExclusive("password", "password-stdin")
	return cmd
}

func createUser(ctx context.Context, service *users.Service, params users.NewUserParams, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	id, err := service.Create(ctx, cliPrincipal, params)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	fmt.Fprintf(out, "created user %d (%s, %s)\n", id, strings.ToLower(strings.TrimSpace(params.Email)), params.Role)
	return nil
}

func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", fmt.Errorf("read password: empty input")
	}
	return password, nil
}
