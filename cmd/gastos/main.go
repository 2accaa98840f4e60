// Command gastos records personal expenses and income in a spreadsheet-like
// backing store and serves them over a JSON API.
package main

import (
	"context"
	"fmt"
	"os"

	"gastos/internal/cli"
	"gastos/internal/log"

	"github.com/spf13/cobra"
)

var version = "dev"

// rootOptions are the persistent flags shared by every subcommand.
type rootOptions struct {
	configFile string
	user       string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:     "gastos",
		Short:   "Personal expense and income ledger",
		Version: version,
		Long: `gastos keeps movements (expenses and income) and per-user categories in a
backing store selected by DATA_BACKEND: memory, csv files, SQLite or a Google
spreadsheet.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if opts.configFile != "" {
				return os.Setenv("GASTOS_CONFIG", opts.configFile)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (yaml, json or toml); overrides GASTOS_CONFIG")
	cmd.PersistentFlags().StringVarP(&opts.user, "user", "u", "", "user owning the movements (default $GASTOS_USER)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error); overrides LOG_LEVEL")

	cmd.AddCommand(serveCmd(opts))
	cmd.AddCommand(migrateCmd(opts))
	cmd.AddCommand(movementsCmd(opts))
	cmd.AddCommand(categoriesCmd(opts))
	return cmd
}

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), os.Stderr)

	ctx, cancel := cli.ShutdownContext(context.Background(), logger)
	err := newRootCmd().ExecuteContext(ctx)
	cancel()

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// session is an initialised runtime for one command invocation.
type session struct {
	*cli.Runtime
	logger *log.Logger
}

func openSession(cmd *cobra.Command, opts *rootOptions) (*session, error) {
	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		return nil, err
	}
	level := cfg.LogLevel
	if opts.logLevel != "" {
		level = opts.logLevel
	}
	logger := cli.SetupLogger(level, cmd.ErrOrStderr())

	rt, err := cli.Bootstrap(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, err
	}
	return &session{Runtime: rt, logger: logger}, nil
}

// resolveUser picks the --user flag, falling back to GASTOS_USER.
func (s *session) resolveUser(opts *rootOptions) (string, error) {
	user := opts.user
	if user == "" {
		user = s.Config.User
	}
	if user == "" {
		return "", fmt.Errorf("no user given: pass --user or set GASTOS_USER")
	}
	return user, nil
}
