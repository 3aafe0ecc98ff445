// Package cli implements the stockledger command line: batch posting of
// business documents, ledger and stock queries, reconciliation and schema
// migrations.
package cli

import (
	"context"
	"fmt"
	"slices"

	"github.com/erp/stockledger/internal/bootstrap"
	"github.com/erp/stockledger/internal/infrastructure/config"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands
type RootOptions struct {
	ConfigPath string
	SQLitePath string
	Format     string // "json" | "text"
	LogLevel   string
	Verbose    bool

	// set by tests
	runtimeOpts []bootstrap.Option
}

// ValidFormats defines the allowed output formats
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the stockledger command
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

// Execute runs the stockledger command with os.Args and returns the exit code
func Execute(ctx context.Context) int {
	opts := &RootOptions{}
	return execute(ctx, newRootCommand(opts), opts)
}

func execute(ctx context.Context, cmd *cobra.Command, opts *RootOptions) int {
	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}
	f := opts.formatter(cmd)
	if f.Format != "json" {
		f.Writer = cmd.ErrOrStderr()
	}
	_ = f.Error(err, nil)
	return GetExitCode(err)
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stockledger",
		Short: "FIFO inventory costing and double-entry posting",
		Long: `stockledger values stock movements with FIFO cost layers and books the
matching double-entry ledger lines. Every document is applied exactly once.`,
		PersistentPreRunE: opts.validate,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}

	addGlobalFlags(cmd, opts)

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewBalanceCommand(opts))
	cmd.AddCommand(NewEntriesCommand(opts))
	cmd.AddCommand(NewTrialBalanceCommand(opts))
	cmd.AddCommand(NewReconcileCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))

	return cmd
}

func (o *RootOptions) validate(*cobra.Command, []string) error {
	if !slices.Contains(ValidFormats, o.Format) {
		return NewExitError(ExitCommandError,
			fmt.Sprintf("invalid format %q: must be one of %v", o.Format, ValidFormats))
	}
	return nil
}

func addGlobalFlags(cmd *cobra.Command, opts *RootOptions) {
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "config file (default ./config.toml)")
	cmd.PersistentFlags().StringVar(&opts.SQLitePath, "sqlite", "", "use a sqlite database file instead of the configured database")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "override log.level")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
}

// loadConfig reads the configuration and applies the global flag overrides.
// Logs go to stderr unless a file is configured so stdout stays parseable.
func (o *RootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFile(o.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	if o.SQLitePath != "" {
		cfg.Database.Driver = "sqlite"
		cfg.Database.Path = o.SQLitePath
	}
	if o.LogLevel != "" {
		cfg.Log.Level = o.LogLevel
	}
	if cfg.Log.Output == "stdout" {
		cfg.Log.Output = "stderr"
	}
	return cfg, nil
}

// openRuntime loads the configuration and wires a Runtime; the caller closes it
func (o *RootOptions) openRuntime(ctx context.Context) (*bootstrap.Runtime, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	rt, err := bootstrap.New(ctx, cfg, o.runtimeOpts...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to start", err)
	}
	return rt, nil
}

// withRuntime runs fn against a fresh Runtime and closes it afterwards
func (o *RootOptions) withRuntime(cmd *cobra.Command, fn func(context.Context, *bootstrap.Runtime) error) (err error) {
	ctx := cmd.Context()
	rt, err := o.openRuntime(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rt.Close(context.Background()); cerr != nil && err == nil {
			err = WrapExitError(ExitCommandError, "failed to shut down cleanly", cerr)
		}
	}()
	return fn(ctx, rt)
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}
