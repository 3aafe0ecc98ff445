package cli

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"slices"
	"strconv"

	"github.com/erp/stockledger/internal/bootstrap"
	"github.com/erp/stockledger/internal/infrastructure/config"
	"github.com/erp/stockledger/internal/infrastructure/logger"
	"github.com/erp/stockledger/internal/infrastructure/migration"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const defaultMigrationsDir = "migrations"

// MigrateOptions holds flags for the migrate commands
type MigrateOptions struct {
	*RootOptions
	Dir         string // migrations on disk; empty applies the embedded schema
	Description string
}

// MigrationVersion is the state of the schema_migrations table
type MigrationVersion struct {
	Version uint `json:"version"`
	Dirty   bool `json:"dirty"`
}

// NewMigrateCommand creates the migrate command group
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MigrateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the versioned database schema",
		Long: `Apply or roll back the versioned postgres schema. The schema compiled into
the binary is used unless --dir points at a migrations directory.

With a sqlite database only "up" is available; it creates the tables from
the persistence models.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Dir, "dir", "", "migrations directory (default: embedded schema)")

	cmd.AddCommand(
		newMigrateUpCommand(opts),
		newMigrateStepCommand(opts, "down", "Roll back all migrations", cobra.NoArgs,
			func(_ *MigrateOptions, m *migration.Migrator, _ []string) error { return m.Down() }),
		newMigrateStepCommand(opts, "step <n>", "Apply n migrations, or roll back when n is negative", cobra.ExactArgs(1),
			func(_ *MigrateOptions, m *migration.Migrator, args []string) error {
				n, err := strconv.Atoi(args[0])
				if err != nil {
					return NewExitError(ExitCommandError, fmt.Sprintf("invalid step count %q", args[0]))
				}
				return m.Steps(n)
			}),
		newMigrateStepCommand(opts, "goto <version>", "Migrate up or down to version", cobra.ExactArgs(1),
			func(_ *MigrateOptions, m *migration.Migrator, args []string) error {
				v, err := strconv.ParseUint(args[0], 10, 32)
				if err != nil {
					return NewExitError(ExitCommandError, fmt.Sprintf("invalid version %q", args[0]))
				}
				return m.GoTo(uint(v))
			}),
		newMigrateStepCommand(opts, "force <version>", "Set the version without running migrations, clearing the dirty flag", cobra.ExactArgs(1),
			func(_ *MigrateOptions, m *migration.Migrator, args []string) error {
				v, err := strconv.Atoi(args[0])
				if err != nil {
					return NewExitError(ExitCommandError, fmt.Sprintf("invalid version %q", args[0]))
				}
				return m.Force(v)
			}),
		newMigrateVersionCommand(opts),
		newMigrateCreateCommand(opts),
		newMigrateListCommand(opts),
	)

	return cmd
}

// NewMigrateRootCommand creates the standalone migrate tool
func NewMigrateRootCommand() *cobra.Command {
	return newMigrateRootCommand(&RootOptions{})
}

// ExecuteMigrate runs the standalone migrate tool and returns the exit code
func ExecuteMigrate(ctx context.Context) int {
	opts := &RootOptions{}
	return execute(ctx, newMigrateRootCommand(opts), opts)
}

func newMigrateRootCommand(opts *RootOptions) *cobra.Command {
	cmd := NewMigrateCommand(opts)
	cmd.PersistentPreRunE = opts.validate
	addGlobalFlags(cmd, opts)
	return cmd
}

type migrateFunc func(opts *MigrateOptions, m *migration.Migrator, args []string) error

func newMigrateStepCommand(opts *MigrateOptions, use, short string, args cobra.PositionalArgs, fn migrateFunc) *cobra.Command {
	return &cobra.Command{
		Use:           use,
		Short:         short,
		Args:          args,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withMigrator(cmd, func(m *migration.Migrator) error {
				if err := fn(opts, m, args); err != nil {
					return WrapExitError(ExitFailure, "migrate "+cmd.Name()+" failed", err)
				}
				return reportVersion(cmd, opts, m)
			})
		},
	}
}

// newMigrateUpCommand creates the tables directly on sqlite
func newMigrateUpCommand(opts *MigrateOptions) *cobra.Command {
	cmd := newMigrateStepCommand(opts, "up", "Apply all pending migrations", cobra.NoArgs,
		func(_ *MigrateOptions, m *migration.Migrator, _ []string) error { return m.Up() })
	versioned := cmd.RunE
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := opts.loadConfig()
		if err != nil {
			return err
		}
		if cfg.Database.Driver == "sqlite" {
			return autoMigrateSQLite(cmd, opts, cfg)
		}
		return versioned(cmd, args)
	}
	return cmd
}

func autoMigrateSQLite(cmd *cobra.Command, opts *MigrateOptions, cfg *config.Config) error {
	rt, err := bootstrap.New(cmd.Context(), cfg, slices.Concat(opts.runtimeOpts, []bootstrap.Option{bootstrap.WithAutoMigrate(true)})...)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to create tables", err)
	}
	if err := rt.Close(context.Background()); err != nil {
		return WrapExitError(ExitCommandError, "failed to shut down cleanly", err)
	}
	return opts.formatter(cmd).Success(map[string]string{"database": cfg.Database.Path}, func(w io.Writer) {
		fmt.Fprintf(w, "tables created in %s\n", cfg.Database.Path)
	})
}

func newMigrateVersionCommand(opts *MigrateOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "version",
		Short:         "Show the current schema version",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withMigrator(cmd, func(m *migration.Migrator) error {
				return reportVersion(cmd, opts, m)
			})
		},
	}
}

func reportVersion(cmd *cobra.Command, opts *MigrateOptions, m *migration.Migrator) error {
	version, dirty, err := m.Version()
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read schema version", err)
	}
	v := MigrationVersion{Version: version, Dirty: dirty}
	return opts.formatter(cmd).Success(v, func(w io.Writer) {
		switch {
		case v.Version == 0:
			fmt.Fprintln(w, "no migrations applied")
		case v.Dirty:
			fmt.Fprintf(w, "version %d (dirty)\n", v.Version)
		default:
			fmt.Fprintf(w, "version %d\n", v.Version)
		}
	})
}

func newMigrateCreateCommand(opts *MigrateOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "create <name>",
		Short:         "Create an empty up/down migration pair",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			mf, err := migration.CreateMigration(opts.dir(), args[0], opts.Description)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to create migration", err)
			}
			return opts.formatter(cmd).Success(mf, func(w io.Writer) {
				fmt.Fprintf(w, "created %s\n        %s\n", mf.UpPath, mf.DownPath)
			})
		},
	}
	cmd.Flags().StringVarP(&opts.Description, "description", "d", "", "description written into the new files")
	return cmd
}

func newMigrateListCommand(opts *MigrateOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List the migrations on disk",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			migrations, err := migration.ListMigrations(opts.dir())
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to list migrations", err)
			}
			return opts.formatter(cmd).Success(migrations, func(w io.Writer) {
				fmt.Fprintln(w, "VERSION\tNAME\tUP\tDOWN")
				for _, m := range migrations {
					fmt.Fprintf(w, "%06d\t%s\t%t\t%t\n", m.Version, m.Name, m.HasUp, m.HasDown)
				}
			})
		},
	}
}

func (o *MigrateOptions) dir() string {
	if o.Dir == "" {
		return defaultMigrationsDir
	}
	return o.Dir
}

// withMigrator connects to postgres and runs fn with a Migrator over the
// embedded schema, or over --dir when set
func (o *MigrateOptions) withMigrator(cmd *cobra.Command, fn func(*migration.Migrator) error) error {
	cfg, err := o.loadConfig()
	if err != nil {
		return err
	}
	if cfg.Database.Driver != "postgres" {
		return NewExitError(ExitCommandError, "versioned migrations require a postgres database")
	}
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02 15:04:05",
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to initialize logger", err)
	}
	defer func() { _ = log.Sync() }()

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer db.Close()
	if err := db.PingContext(cmd.Context()); err != nil {
		return WrapExitError(ExitCommandError, "failed to reach database", err)
	}

	var m *migration.Migrator
	if o.Dir != "" {
		m, err = migration.NewFromDir(cfg.Database.DSN(), o.Dir, log)
	} else {
		m, err = migration.New(db, log)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create migrator", err)
	}
	defer func() {
		if cerr := m.Close(); cerr != nil {
			log.Warn("failed to close migrator", zap.Error(cerr))
		}
	}()

	log.Info("migrate", zap.String("command", cmd.Name()), zap.String("host", cfg.Database.Host),
		zap.String("database", cfg.Database.DBName))
	return fn(m)
}
