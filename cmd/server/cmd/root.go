package cmd

import (
	"fmt"
	"os"

	"github.com/Togather-Foundation/agenda/internal/config"
	"github.com/spf13/cobra"
)

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

// loadConfig reads the optional --config file plus the environment, then
// applies the logging flags.
func (o *rootOptions) loadConfig() (config.Config, error) {
	cfg, err := config.LoadFile(o.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Logging.Format = o.logFormat
	}
	return cfg, nil
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	serveCmd := newServeCommand(opts)

	root := &cobra.Command{
		Use:   "server",
		Short: "Agenda server - event calendar API with role-based access",
		Long: `Agenda server runs the calendar API for a small office: authenticated
users read and edit events, and administrators manage accounts and
assignments.

Run without a subcommand to start the HTTP server.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveCmd.RunE(cmd, args)
		},
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML config file (optional, env vars override it)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error) (default: info)")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "log format (json, console) (default: json)")

	root.AddCommand(
		serveCmd,
		newMigrateCommand(opts),
		newUserCommand(opts),
		newHealthcheckCommand(),
		newVersionCommand(),
	)
	return root
}

// Execute runs the command tree. It is called by main.main.
func Execute() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
